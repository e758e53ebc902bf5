package service

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"user-management-api/internal/auth"
	"user-management-api/internal/domain"
	"user-management-api/internal/repository"
	"user-management-api/internal/repository/sqlite"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testIssuedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testTokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret: []byte(testSecret),
		Issuer: "UserManagementAPI",
		TTL:    2 * time.Hour,
	}
}

func newTestIssuer(t *testing.T) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(testTokenConfig(), auth.WithClock(func() time.Time { return testIssuedAt }))
	require.NoError(t, err)
	return issuer
}

func newSQLiteAccounts(t *testing.T) repository.AccountRepository {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := sqlite.NewAccountRepository(db)
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

// countingHasher records how often each operation runs.
type countingHasher struct {
	inner    auth.PasswordHasher
	hashes   atomic.Int32
	verifies atomic.Int32
}

func newCountingHasher() *countingHasher {
	return &countingHasher{inner: auth.NewBcryptHasher(bcrypt.MinCost, 4)}
}

func (h *countingHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	h.hashes.Add(1)
	return h.inner.Hash(ctx, plaintext)
}

func (h *countingHasher) Verify(ctx context.Context, plaintext, hash string) bool {
	h.verifies.Add(1)
	return h.inner.Verify(ctx, plaintext, hash)
}

// fakeAccounts is an in-memory AccountRepository with injectable failures.
type fakeAccounts struct {
	mu        sync.Mutex
	byName    map[string]domain.Account
	getErr    error
	createErr error
	creates   int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byName: make(map[string]domain.Account)}
}

func (f *fakeAccounts) Init(context.Context) error { return nil }

func (f *fakeAccounts) Create(_ context.Context, account *domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byName[account.Username]; ok {
		return repository.ErrConflict
	}
	f.byName[account.Username] = *account
	return nil
}

func (f *fakeAccounts) GetByUsername(_ context.Context, username string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	account, ok := f.byName[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.byName {
		if account.ID == id {
			a := account
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccounts) List(context.Context) ([]domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Account, 0, len(f.byName))
	for _, account := range f.byName {
		out = append(out, account)
	}
	return out, nil
}

func (f *fakeAccounts) UpdatePasswordHash(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, account := range f.byName {
		if account.ID == id {
			account.PasswordHash = hash
			f.byName[name] = account
			return nil
		}
	}
	return repository.ErrNotFound
}
