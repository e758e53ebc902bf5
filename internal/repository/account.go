package repository

import (
	"context"
	"errors"

	"user-management-api/internal/domain"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an insert violates a uniqueness constraint.
	ErrConflict = errors.New("record conflicts with an existing one")
)

// AccountRepository defines persistence operations for Account entities.
// Create must rely on the store's own uniqueness guarantee for usernames
// and report a violation as ErrConflict.
type AccountRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, account *domain.Account) error
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}
