package http

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"user-management-api/internal/audit"
	"user-management-api/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
	claimsKey  = "auth.claims"
	realm      = "user-management-api"
)

var publicPaths = []string{
	"/health",
	"/metrics",
	"/login",
	"/api/auth/login",
}

var publicPrefixes = []string{
	"/swagger/",
	"/docs/",
}

func isPublic(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// ClaimsFromContext returns the claims attached by Authenticate.
func ClaimsFromContext(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok && claims != nil
}

func subjectOf(c *gin.Context) string {
	if claims, ok := ClaimsFromContext(c); ok {
		return claims.Subject
	}
	return ""
}

func requestFields(c *gin.Context) logrus.Fields {
	return logrus.Fields{
		"method":    c.Request.Method,
		"path":      c.Request.URL.Path,
		"client_ip": c.ClientIP(),
	}
}

// ErrorHandler must be the outermost stage. It turns panics into a generic
// 500 and renders errors recorded on the context that nobody wrote out.
// Diagnostic detail only goes to the server log.
func (h *Handler) ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.log.WithFields(requestFields(c)).WithFields(logrus.Fields{
				"panic": fmt.Sprint(rec),
				"stack": string(debug.Stack()),
			}).Error("recovered from panic")

			if c.Writer.Written() {
				c.Abort()
			} else {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": KindInternal, "details": internalMessage})
			}
			h.metrics.observeRequest(c, http.StatusInternalServerError, time.Since(start))
		}()

		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}
		h.respondError(c, c.Errors.Last().Err)
	}
}

// Authenticate validates the bearer token on every non-public request and
// attaches the resulting claims to the context.
func (h *Handler) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || isPublic(c.Request.URL.Path) {
			c.Next()
			return
		}

		token, err := extractBearerToken(c.GetHeader(authHeader))
		if err != nil {
			h.reject(c, err)
			return
		}
		claims, err := h.validator.Validate(token)
		if err != nil {
			h.reject(c, err)
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// Authorize enforces policy on the route group. An empty policy only
// requires an authenticated subject.
func (h *Handler) Authorize(policy string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := ClaimsFromContext(c)
		err := h.policies.Authorize(claims, policy)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, auth.ErrUnknownPolicy):
			h.respondError(c, fmt.Errorf("authorize %q: %w", policy, err))
		default:
			h.reject(c, err)
		}
	}
}

// AccessLog is the innermost stage so that it reports the status produced
// by the handler. Requests stopped earlier are reported by the stage that
// stopped them.
func (h *Handler) AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		fields := requestFields(c)
		fields["status"] = status
		fields["latency"] = elapsed.String()
		if subject := subjectOf(c); subject != "" {
			fields["subject"] = subject
		}

		entry := h.log.WithFields(fields)
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request completed")
		case status >= http.StatusBadRequest:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}
		h.metrics.observeRequest(c, status, elapsed)
	}
}

// reject answers an authentication or authorization failure and records it.
func (h *Handler) reject(c *gin.Context, err error) {
	e := classify(err)
	if e.Status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", challenge(err, e.Message))
	}
	h.metrics.rejected(e.Kind)
	h.events.Record(c.Request.Context(), audit.Event{
		Name:    "request_rejected",
		Subject: subjectOf(c),
		Method:  c.Request.Method,
		Path:    c.Request.URL.Path,
		Status:  e.Status,
		Reason:  e.Kind,
		Failure: true,
	})
	h.respondError(c, err)
}

func challenge(err error, description string) string {
	if errors.Is(err, errMissingBearer) {
		return fmt.Sprintf("Bearer realm=%q", realm)
	}
	return fmt.Sprintf("Bearer realm=%q, error=\"invalid_token\", error_description=%q", realm, description)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" || strings.EqualFold(header, strings.TrimSpace(bearer)) {
		return "", errMissingBearer
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errBadScheme
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingBearer
	}
	return token, nil
}
