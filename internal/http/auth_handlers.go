package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"user-management-api/internal/audit"
	"user-management-api/internal/service"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string `json:"token"`
	Expires string `json:"expires"`
}

// loginRateLimit throttles credential guessing per client address.
func (h *Handler) loginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		h.metrics.login("rate_limited")
		h.events.Record(c.Request.Context(), audit.Event{
			Name:    "login_rate_limited",
			Method:  c.Request.Method,
			Path:    c.Request.URL.Path,
			Status:  http.StatusTooManyRequests,
			Reason:  KindRateLimited,
			Failure: true,
			Fields:  map[string]any{"client_ip": c.ClientIP()},
		})
		c.Header("Retry-After", "1")
		h.respondError(c, errRateLimited)
	}
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.metrics.login("failure")
			h.events.Record(c.Request.Context(), audit.Event{
				Name:    "login_failed",
				Subject: strings.TrimSpace(req.Username),
				Method:  c.Request.Method,
				Path:    c.Request.URL.Path,
				Status:  http.StatusUnauthorized,
				Reason:  KindInvalidCredentials,
				Failure: true,
			})
		} else {
			h.metrics.login("error")
		}
		h.respondError(c, err)
		return
	}

	h.metrics.login("success")
	h.events.Record(c.Request.Context(), audit.Event{
		Name:    "login_succeeded",
		Subject: result.Account.Username,
		Method:  c.Request.Method,
		Path:    c.Request.URL.Path,
		Status:  http.StatusOK,
		Fields:  map[string]any{"role": result.Account.EffectiveRole()},
	})
	c.JSON(http.StatusOK, loginResponse{
		Token:   result.Token,
		Expires: result.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
