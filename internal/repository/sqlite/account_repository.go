package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"user-management-api/internal/domain"
	"user-management-api/internal/repository"
)

const createAccountsTable = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) repository.AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createAccountsTable); err != nil {
		return fmt.Errorf("create accounts table: %w", err)
	}
	return nil
}

// Create inserts the account in a single statement. A duplicate username is
// reported by the UNIQUE index and surfaced as repository.ErrConflict.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	if account.ID == "" {
		return fmt.Errorf("insert account: id is required")
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO accounts (id, username, password_hash, role, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Username,
		account.PasswordHash,
		nullableString(account.Role),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %q: %w", account.Username, repository.ErrConflict)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, username, password_hash, role, created_at, updated_at
FROM accounts
WHERE username = ?`,
		username,
	)
	return scanAccount(row)
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, username, password_hash, role, created_at, updated_at
FROM accounts
WHERE id = ?`,
		id,
	)
	return scanAccount(row)
}

func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, username, password_hash, role, created_at, updated_at
FROM accounts
ORDER BY created_at ASC, username ASC`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE accounts
SET password_hash = ?, updated_at = ?
WHERE id = ?`,
		passwordHash,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update account password: %w", err)
	}
	return expectAffected(res, "account", id)
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		account domain.Account
		role    sql.NullString
	)
	if err := row.Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&role,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	account.Role = role.String
	return &account, nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
