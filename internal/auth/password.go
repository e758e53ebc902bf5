package auth

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const maxPasswordBytes = 72

// DefaultBcryptCost is used when the configured cost is outside bcrypt's range.
const DefaultBcryptCost = 12

// PasswordHasher turns plaintext secrets into self-describing hashes and
// checks plaintext candidates against them.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, hash string) bool
}

// BcryptHasher hashes with bcrypt. Concurrent work is capped at the number of
// configured workers so a burst of logins cannot saturate every CPU.
type BcryptHasher struct {
	cost  int
	slots *semaphore.Weighted
}

func NewBcryptHasher(cost, workers int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &BcryptHasher{
		cost:  cost,
		slots: semaphore.NewWeighted(int64(workers)),
	}
}

func (h *BcryptHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: %v", ErrHasherBusy, err)
	}
	defer h.slots.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify never fails loudly: malformed hashes, oversize input and cancelled
// contexts all report a mismatch.
func (h *BcryptHasher) Verify(ctx context.Context, plaintext, hash string) bool {
	if hash == "" || len(plaintext) > maxPasswordBytes {
		return false
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.slots.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
