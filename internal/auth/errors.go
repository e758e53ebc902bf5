package auth

import "errors"

// Token validation failures, reported in the order they are checked.
var (
	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenSignatureInvalid = errors.New("token signature is invalid")
	ErrIssuerMismatch        = errors.New("token issuer mismatch")
	ErrAudienceMismatch      = errors.New("token audience mismatch")
	ErrTokenExpired          = errors.New("token has expired")
)

// Authorization failures.
var (
	ErrUnauthenticated = errors.New("request is not authenticated")
	ErrForbidden       = errors.New("insufficient role")
	ErrUnknownPolicy   = errors.New("unknown authorization policy")
)

// Password hashing failures.
var (
	ErrEmptyPassword   = errors.New("password is empty")
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
	ErrHasherBusy      = errors.New("password hasher unavailable")
)
