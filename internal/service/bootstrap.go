package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"user-management-api/internal/audit"
	"user-management-api/internal/auth"
	"user-management-api/internal/domain"
	"user-management-api/internal/repository"
)

// DefaultAdminPasswordEnv is consulted when no admin password is configured.
const DefaultAdminPasswordEnv = "ADMIN_PASSWORD"

const generatedPasswordBytes = 24

// BootstrapConfig describes the privileged account guaranteed at startup.
type BootstrapConfig struct {
	Username    string
	Password    string
	PasswordEnv string
	Role        string
	Production  bool
}

// BootstrapResult reports what EnsureAdmin did.
type BootstrapResult struct {
	Created   bool
	Generated bool
	AccountID string
}

type BootstrapOption func(*AdminBootstrapper)

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(fn func(string) (string, bool)) BootstrapOption {
	return func(b *AdminBootstrapper) {
		if fn != nil {
			b.lookupEnv = fn
		}
	}
}

// AdminBootstrapper makes sure the configured admin account exists. It is
// safe to run from several replicas at once: losing the insert race is
// treated as success.
type AdminBootstrapper struct {
	accounts  repository.AccountRepository
	hasher    auth.PasswordHasher
	cfg       BootstrapConfig
	log       logrus.FieldLogger
	events    audit.Sink
	lookupEnv func(string) (string, bool)
}

func NewAdminBootstrapper(accounts repository.AccountRepository, hasher auth.PasswordHasher, cfg BootstrapConfig, log logrus.FieldLogger, events audit.Sink, opts ...BootstrapOption) *AdminBootstrapper {
	cfg.Username = strings.TrimSpace(cfg.Username)
	if cfg.Role == "" {
		cfg.Role = domain.RoleAdministrator
	}
	if cfg.PasswordEnv == "" {
		cfg.PasswordEnv = DefaultAdminPasswordEnv
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if events == nil {
		events = audit.NewLogSink(log)
	}
	b := &AdminBootstrapper{
		accounts:  accounts,
		hasher:    hasher,
		cfg:       cfg,
		log:       log,
		events:    events,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *AdminBootstrapper) EnsureAdmin(ctx context.Context) (BootstrapResult, error) {
	if b.cfg.Username == "" {
		return BootstrapResult{}, errors.New("admin username is required")
	}

	existing, err := b.accounts.GetByUsername(ctx, b.cfg.Username)
	switch {
	case err == nil:
		b.log.WithField("username", existing.Username).Debug("admin account already present")
		return BootstrapResult{AccountID: existing.ID}, nil
	case !errors.Is(err, repository.ErrNotFound):
		return BootstrapResult{}, fmt.Errorf("lookup admin account: %w", err)
	}

	password, generated, err := b.resolvePassword()
	if err != nil {
		return BootstrapResult{}, err
	}

	hash, err := b.hasher.Hash(ctx, password)
	if err != nil {
		return BootstrapResult{}, fmt.Errorf("hash admin password: %w", err)
	}

	account := &domain.Account{
		ID:           uuid.NewString(),
		Username:     b.cfg.Username,
		PasswordHash: hash,
		Role:         b.cfg.Role,
	}
	if err := b.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			b.log.WithField("username", b.cfg.Username).Info("admin account created concurrently by another instance")
			return BootstrapResult{}, nil
		}
		return BootstrapResult{}, fmt.Errorf("create admin account: %w", err)
	}

	b.events.Record(ctx, audit.Event{
		Name:    "admin_bootstrapped",
		Subject: account.Username,
		Fields:  logrus.Fields{"role": account.Role, "generated_password": generated},
	})
	if generated {
		b.announceGenerated(account.Username, password)
	}
	return BootstrapResult{Created: true, Generated: generated, AccountID: account.ID}, nil
}

// resolvePassword prefers the configured password, then the environment, then
// a random one.
func (b *AdminBootstrapper) resolvePassword() (string, bool, error) {
	if b.cfg.Password != "" {
		return b.cfg.Password, false, nil
	}
	if v, ok := b.lookupEnv(b.cfg.PasswordEnv); ok && v != "" {
		return v, false, nil
	}
	password, err := GeneratePassword()
	if err != nil {
		return "", false, err
	}
	return password, true, nil
}

func (b *AdminBootstrapper) announceGenerated(username, password string) {
	entry := b.log.WithField("username", username)
	if b.cfg.Production {
		entry.Warn("admin account created with a generated password; set it explicitly and reset it through the API")
		return
	}
	entry.WithField("password", password).Warn("admin account created with a generated password")
}

// GeneratePassword returns a URL-safe random password from crypto/rand.
func GeneratePassword() (string, error) {
	buf := make([]byte, generatedPasswordBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
