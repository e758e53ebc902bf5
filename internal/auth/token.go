package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL is used when no lifetime is configured.
	DefaultTokenTTL = 2 * time.Hour
	// MinSecretBytes is the shortest accepted HS256 signing secret.
	MinSecretBytes = 32
)

// TokenConfig is the immutable signing configuration shared by the issuer and
// the validator. An empty Audience disables audience embedding and checks.
type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

func (c TokenConfig) Validate() error {
	if len(c.Secret) < MinSecretBytes {
		return fmt.Errorf("token secret must be at least %d bytes", MinSecretBytes)
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return errors.New("token issuer is required")
	}
	if c.TTL < 0 {
		return errors.New("token ttl must be positive")
	}
	// exp has second precision; anything shorter would expire at issuance
	if c.TTL != 0 && c.TTL < time.Second {
		return errors.New("token ttl must be at least one second")
	}
	return nil
}

func (c TokenConfig) clone() TokenConfig {
	out := c
	out.Secret = append([]byte(nil), c.Secret...)
	if out.TTL == 0 {
		out.TTL = DefaultTokenTTL
	}
	return out
}

// Claims is the verified content of an access token.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Clock returns the current time; tests substitute a fixed one.
type Clock func() time.Time

type TokenOption func(*tokenOptions)

type tokenOptions struct {
	now Clock
}

// WithClock overrides the wall clock used for issuance and expiry checks.
func WithClock(now Clock) TokenOption {
	return func(o *tokenOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []TokenOption) tokenOptions {
	o := tokenOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// TokenIssuer signs HS256 access tokens.
type TokenIssuer struct {
	cfg TokenConfig
	now Clock
}

func NewTokenIssuer(cfg TokenConfig, opts ...TokenOption) (*TokenIssuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &TokenIssuer{cfg: cfg.clone(), now: o.now}, nil
}

// Issue signs a token for subject carrying role. The returned expiry matches
// the encoded exp claim, which has second precision.
func (i *TokenIssuer) Issue(subject, role string) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("token subject is required")
	}

	issuedAt := jwt.NewNumericDate(i.now().UTC())
	expiresAt := jwt.NewNumericDate(issuedAt.Add(i.cfg.TTL))

	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   subject,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
			ID:        uuid.NewString(),
		},
	}
	if i.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt.Time, nil
}

// TokenValidator verifies tokens produced by a TokenIssuer sharing the same config.
type TokenValidator struct {
	cfg TokenConfig
	now Clock
}

func NewTokenValidator(cfg TokenConfig, opts ...TokenOption) (*TokenValidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &TokenValidator{cfg: cfg.clone(), now: o.now}, nil
}

// Validate checks structure, signature, issuer, audience and expiry in that
// order and returns the first failure.
func (v *TokenValidator) Validate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.cfg.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrTokenSignatureInvalid
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}

	if strings.TrimSpace(claims.Subject) == "" || claims.ExpiresAt == nil {
		return nil, ErrTokenMalformed
	}
	if claims.Issuer != v.cfg.Issuer {
		return nil, ErrIssuerMismatch
	}
	if v.cfg.Audience != "" && !slices.Contains(claims.Audience, v.cfg.Audience) {
		return nil, ErrAudienceMismatch
	}
	if !v.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}
