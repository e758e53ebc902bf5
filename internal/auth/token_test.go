package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() TokenConfig {
	return TokenConfig{
		Secret: []byte(testSecret),
		Issuer: "UserManagementAPI",
		TTL:    2 * time.Hour,
	}
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func issueAt(t *testing.T, cfg TokenConfig, at time.Time, subject, role string) (string, time.Time) {
	t.Helper()
	issuer, err := NewTokenIssuer(cfg, WithClock(fixedClock(at)))
	require.NoError(t, err)
	token, expires, err := issuer.Issue(subject, role)
	require.NoError(t, err)
	return token, expires
}

func validatorAt(t *testing.T, cfg TokenConfig, at time.Time) *TokenValidator {
	t.Helper()
	v, err := NewTokenValidator(cfg, WithClock(fixedClock(at)))
	require.NoError(t, err)
	return v
}

func TestTokenIssuer_ExpiryIsIssuedAtPlusTTL(t *testing.T) {
	issuedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	token, expires := issueAt(t, testConfig(), issuedAt, "admin", "Administrator")

	assert.Equal(t, issuedAt.Add(2*time.Hour), expires)

	claims, err := validatorAt(t, testConfig(), issuedAt.Add(time.Minute)).Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, "Administrator", claims.Role)
	assert.Equal(t, "UserManagementAPI", claims.Issuer)
	assert.True(t, claims.ExpiresAt.Time.Equal(expires))
	assert.True(t, claims.IssuedAt.Time.Equal(issuedAt))
	assert.NotEmpty(t, claims.ID)
	assert.Empty(t, claims.Audience)
}

func TestTokenIssuer_DefaultTTL(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = 0
	issuedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	_, expires := issueAt(t, cfg, issuedAt, "admin", "")
	assert.Equal(t, issuedAt.Add(DefaultTokenTTL), expires)
}

func TestTokenIssuer_RequiresSubject(t *testing.T) {
	issuer, err := NewTokenIssuer(testConfig())
	require.NoError(t, err)

	_, _, err = issuer.Issue("  ", "User")
	assert.Error(t, err)
}

func TestTokenConfig_Validate(t *testing.T) {
	cfg := testConfig()
	cfg.Secret = []byte("short")
	_, err := NewTokenIssuer(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Issuer = ""
	_, err = NewTokenValidator(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.TTL = -time.Second
	_, err = NewTokenIssuer(cfg)
	assert.Error(t, err)

	for _, ttl := range []time.Duration{time.Nanosecond, 999 * time.Millisecond} {
		cfg = testConfig()
		cfg.TTL = ttl
		_, err = NewTokenIssuer(cfg)
		assert.Error(t, err, "ttl %s", ttl)
	}

	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 500_000_000, time.UTC)
	cfg = testConfig()
	cfg.TTL = time.Second
	issuer, err := NewTokenIssuer(cfg, WithClock(fixedClock(issuedAt)))
	require.NoError(t, err)
	validator, err := NewTokenValidator(cfg, WithClock(fixedClock(issuedAt)))
	require.NoError(t, err)

	token, expires, err := issuer.Issue("alice", "")
	require.NoError(t, err)
	assert.True(t, expires.After(issuedAt))
	_, err = validator.Validate(token)
	assert.NoError(t, err)
}

func TestTokenConfig_SecretIsCopied(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	token, _ := issueAt(t, cfg, now, "admin", "")
	v := validatorAt(t, cfg, now)

	cfg.Secret[0] = 'X'

	_, err := v.Validate(token)
	assert.NoError(t, err)
}

func TestTokenValidator_Expired(t *testing.T) {
	issuedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	token, expires := issueAt(t, testConfig(), issuedAt, "admin", "")

	_, err := validatorAt(t, testConfig(), expires.Add(-time.Second)).Validate(token)
	assert.NoError(t, err)

	_, err = validatorAt(t, testConfig(), expires).Validate(token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = validatorAt(t, testConfig(), expires.Add(time.Hour)).Validate(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenValidator_TamperedPayload(t *testing.T) {
	now := time.Now()
	token, _ := issueAt(t, testConfig(), now, "alice", "User")

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(payload, &fields))
	fields["sub"] = "mallory"
	fields["role"] = "Administrator"
	altered, err := json.Marshal(fields)
	require.NoError(t, err)
	parts[1] = base64.RawURLEncoding.EncodeToString(altered)

	_, err = validatorAt(t, testConfig(), now).Validate(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrTokenSignatureInvalid)
}

func TestTokenValidator_WrongSecret(t *testing.T) {
	now := time.Now()
	token, _ := issueAt(t, testConfig(), now, "alice", "")

	cfg := testConfig()
	cfg.Secret = []byte("fedcba9876543210fedcba9876543210")
	_, err := validatorAt(t, cfg, now).Validate(token)
	assert.ErrorIs(t, err, ErrTokenSignatureInvalid)
}

func TestTokenValidator_RejectsOtherAlgorithms(t *testing.T) {
	now := time.Now()
	claims := Claims{
		Role: "Administrator",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "UserManagementAPI",
			Subject:   "mallory",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = validatorAt(t, testConfig(), now).Validate(unsigned)
	assert.ErrorIs(t, err, ErrTokenSignatureInvalid)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = validatorAt(t, testConfig(), now).Validate(hs512)
	assert.ErrorIs(t, err, ErrTokenSignatureInvalid)
}

func TestTokenValidator_Malformed(t *testing.T) {
	v := validatorAt(t, testConfig(), time.Now())

	for _, token := range []string{"", "   ", "not-a-token", "not.a.jwt", "a.b"} {
		_, err := v.Validate(token)
		assert.ErrorIs(t, err, ErrTokenMalformed, "token %q", token)
	}
}

func TestTokenValidator_MissingSubject(t *testing.T) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "UserManagementAPI",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = validatorAt(t, testConfig(), now).Validate(token)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestTokenValidator_IssuerMismatch(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.Issuer = "SomeoneElse"
	token, _ := issueAt(t, cfg, now, "alice", "")

	_, err := validatorAt(t, testConfig(), now).Validate(token)
	assert.ErrorIs(t, err, ErrIssuerMismatch)
}

func TestTokenValidator_Audience(t *testing.T) {
	now := time.Now()
	issuing := testConfig()
	issuing.Audience = "admin-console"
	token, _ := issueAt(t, issuing, now, "alice", "")

	claims, err := validatorAt(t, issuing, now).Validate(token)
	require.NoError(t, err)
	assert.Equal(t, jwt.ClaimStrings{"admin-console"}, claims.Audience)

	other := testConfig()
	other.Audience = "billing"
	_, err = validatorAt(t, other, now).Validate(token)
	assert.ErrorIs(t, err, ErrAudienceMismatch)

	// audience checks are off when the validator has none configured
	_, err = validatorAt(t, testConfig(), now).Validate(token)
	assert.NoError(t, err)

	noAudience, _ := issueAt(t, testConfig(), now, "alice", "")
	_, err = validatorAt(t, issuing, now).Validate(noAudience)
	assert.ErrorIs(t, err, ErrAudienceMismatch)
}

func TestTokenValidator_CheckOrder(t *testing.T) {
	issuedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	cfg := testConfig()
	cfg.Issuer = "SomeoneElse"
	token, expires := issueAt(t, cfg, issuedAt, "alice", "")

	// wrong issuer and expired: issuer is reported first
	_, err := validatorAt(t, testConfig(), expires.Add(time.Hour)).Validate(token)
	assert.ErrorIs(t, err, ErrIssuerMismatch)
}
