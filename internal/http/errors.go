package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"user-management-api/internal/auth"
	"user-management-api/internal/service"
)

// Error kinds reported in the "error" field of every failure body.
const (
	KindInvalidCredentials = "invalid_credentials"
	KindMissingToken       = "missing_or_malformed_token"
	KindTokenExpired       = "token_expired"
	KindSignatureInvalid   = "token_signature_invalid"
	KindIssuerOrAudience   = "issuer_or_audience_mismatch"
	KindInsufficientRole   = "insufficient_role"
	KindDuplicateUsername  = "duplicate_username"
	KindValidation         = "validation_error"
	KindNotFound           = "not_found"
	KindRateLimited        = "rate_limited"
	KindInternal           = "internal_error"
)

const internalMessage = "internal server error"

var (
	errMissingBearer = errors.New("missing bearer token")
	errBadScheme     = errors.New("invalid authorization scheme")
	errRateLimited   = errors.New("too many login attempts")
	errRouteNotFound = errors.New("route not found")
	errInvalidBody   = errors.New("invalid request body")
)

// apiError is the client-visible rendering of a failure.
type apiError struct {
	Status  int
	Kind    string
	Message string
}

// classify maps an error to its status, kind and a message safe for clients.
// Anything unrecognised is an internal error and never leaks its text.
func classify(err error) apiError {
	var verr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return apiError{http.StatusUnauthorized, KindInvalidCredentials, "invalid credentials"}
	case errors.Is(err, errMissingBearer), errors.Is(err, errBadScheme):
		return apiError{http.StatusUnauthorized, KindMissingToken, err.Error()}
	case errors.Is(err, auth.ErrTokenMalformed):
		return apiError{http.StatusUnauthorized, KindMissingToken, auth.ErrTokenMalformed.Error()}
	case errors.Is(err, auth.ErrUnauthenticated):
		return apiError{http.StatusUnauthorized, KindMissingToken, auth.ErrUnauthenticated.Error()}
	case errors.Is(err, auth.ErrTokenExpired):
		return apiError{http.StatusUnauthorized, KindTokenExpired, auth.ErrTokenExpired.Error()}
	case errors.Is(err, auth.ErrTokenSignatureInvalid):
		return apiError{http.StatusUnauthorized, KindSignatureInvalid, auth.ErrTokenSignatureInvalid.Error()}
	case errors.Is(err, auth.ErrIssuerMismatch):
		return apiError{http.StatusUnauthorized, KindIssuerOrAudience, auth.ErrIssuerMismatch.Error()}
	case errors.Is(err, auth.ErrAudienceMismatch):
		return apiError{http.StatusUnauthorized, KindIssuerOrAudience, auth.ErrAudienceMismatch.Error()}
	case errors.Is(err, auth.ErrForbidden):
		return apiError{http.StatusForbidden, KindInsufficientRole, auth.ErrForbidden.Error()}
	case errors.Is(err, service.ErrDuplicateUsername):
		return apiError{http.StatusConflict, KindDuplicateUsername, service.ErrDuplicateUsername.Error()}
	case errors.As(err, &verr):
		return apiError{http.StatusBadRequest, KindValidation, verr.Error()}
	case errors.Is(err, service.ErrNotFound):
		return apiError{http.StatusNotFound, KindNotFound, service.ErrNotFound.Error()}
	case errors.Is(err, errRouteNotFound):
		return apiError{http.StatusNotFound, KindNotFound, errRouteNotFound.Error()}
	case errors.Is(err, errRateLimited):
		return apiError{http.StatusTooManyRequests, KindRateLimited, errRateLimited.Error()}
	default:
		return apiError{http.StatusInternalServerError, KindInternal, internalMessage}
	}
}

// respondError writes the taxonomy body for err and stops the chain. Internal
// errors are logged with their detail; the client only sees the generic text.
func (h *Handler) respondError(c *gin.Context, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError {
		h.log.WithFields(requestFields(c)).WithError(err).Error("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(e.Status, gin.H{"error": e.Kind, "details": e.Message})
}

// badRequest reports an undecodable body. Decoder messages name Go types, so
// the detail is only logged.
func (h *Handler) badRequest(c *gin.Context, err error) {
	h.log.WithFields(requestFields(c)).WithError(err).Debug("rejecting request body")
	h.respondError(c, &service.ValidationError{Err: errInvalidBody})
}
