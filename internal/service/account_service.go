package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"

	"user-management-api/internal/auth"
	"user-management-api/internal/domain"
	"user-management-api/internal/repository"
)

// TokenIssuer signs access tokens for authenticated accounts.
type TokenIssuer interface {
	Issue(subject, role string) (string, time.Time, error)
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *domain.Account
}

// CreateAccountInput carries the fields accepted when an administrator creates an account.
type CreateAccountInput struct {
	Username string
	Password string
	Role     string
}

func (in CreateAccountInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&in.Role, validation.Length(0, 50)),
	)
}

// AccountService describes credential verification and account administration.
type AccountService interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	VerifyLogin(ctx context.Context, username, password string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error)
	ResetPassword(ctx context.Context, id, newPassword string) (*domain.Account, error)
}

type accountService struct {
	accounts repository.AccountRepository
	hasher   auth.PasswordHasher
	issuer   TokenIssuer

	decoyMu   sync.Mutex
	decoyHash string
}

func NewAccountService(accounts repository.AccountRepository, hasher auth.PasswordHasher, issuer TokenIssuer) AccountService {
	return &accountService{
		accounts: accounts,
		hasher:   hasher,
		issuer:   issuer,
	}
}

func (s *accountService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	account, err := s.VerifyLogin(ctx, username, password)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.issuer.Issue(account.Username, account.EffectiveRole())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Account: account}, nil
}

// VerifyLogin matches username exactly (case-sensitive). When the account does
// not exist a decoy hash is still compared so both failure paths cost one
// bcrypt verification.
func (s *accountService) VerifyLogin(ctx context.Context, username, password string) (*domain.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.Verify(ctx, password, s.decoy(ctx))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	if !s.hasher.Verify(ctx, password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return sanitizeAccount(account), nil
}

// decoy returns the hash compared against for unknown usernames. It is
// computed detached from the caller's cancellation and only cached once
// hashing succeeds, so an aborted request cannot leave it empty.
func (s *accountService) decoy(ctx context.Context) string {
	s.decoyMu.Lock()
	defer s.decoyMu.Unlock()
	if s.decoyHash == "" {
		hash, err := s.hasher.Hash(context.WithoutCancel(ctx), uuid.NewString())
		if err == nil {
			s.decoyHash = hash
		}
	}
	return s.decoyHash
}

func (s *accountService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Account, len(accounts))
	for i := range accounts {
		out[i] = *sanitizeAccount(&accounts[i])
	}
	return out, nil
}

func (s *accountService) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Role = strings.TrimSpace(input.Role)
	if err := input.Validate(); err != nil {
		return nil, invalid(err)
	}
	if input.Role == "" {
		input.Role = domain.RoleUser
	}

	hash, err := s.hashPassword(ctx, input.Password)
	if err != nil {
		return nil, err
	}

	account := &domain.Account{
		ID:           uuid.NewString(),
		Username:     input.Username,
		PasswordHash: hash,
		Role:         input.Role,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateUsername
		}
		return nil, err
	}
	return sanitizeAccount(account), nil
}

func (s *accountService) ResetPassword(ctx context.Context, id, newPassword string) (*domain.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	err := validation.Validate(newPassword, validation.Required, validation.Length(8, 72))
	if err != nil {
		return nil, invalid(fmt.Errorf("newPassword: %w", err))
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	hash, err := s.hashPassword(ctx, newPassword)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sanitizeAccount(account), nil
}

func (s *accountService) hashPassword(ctx context.Context, password string) (string, error) {
	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) || errors.Is(err, auth.ErrEmptyPassword) {
			return "", invalid(fmt.Errorf("password: %w", err))
		}
		return "", err
	}
	return hash, nil
}

func sanitizeAccount(account *domain.Account) *domain.Account {
	if account == nil {
		return nil
	}
	return &domain.Account{
		ID:        account.ID,
		Username:  account.Username,
		Role:      account.Role,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}
}
