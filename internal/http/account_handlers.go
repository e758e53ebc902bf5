package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"user-management-api/internal/audit"
	"user-management-api/internal/domain"
	"user-management-api/internal/service"
)

type AccountResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func accountToResponse(a domain.Account) AccountResponse {
	return AccountResponse{ID: a.ID, Username: a.Username, Role: a.EffectiveRole()}
}

type createAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

func (h *Handler) listAccounts(c *gin.Context) {
	accounts, err := h.accounts.ListAccounts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]AccountResponse, len(accounts))
	for i := range accounts {
		resp[i] = accountToResponse(accounts[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	account, err := h.accounts.CreateAccount(c.Request.Context(), service.CreateAccountInput{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.events.Record(c.Request.Context(), audit.Event{
		Name:    "account_created",
		Subject: subjectOf(c),
		Method:  c.Request.Method,
		Path:    c.Request.URL.Path,
		Status:  http.StatusCreated,
		Fields:  map[string]any{"username": account.Username, "role": account.EffectiveRole()},
	})
	c.JSON(http.StatusCreated, accountToResponse(*account))
}

func (h *Handler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	account, err := h.accounts.ResetPassword(c.Request.Context(), c.Param("id"), req.NewPassword)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.events.Record(c.Request.Context(), audit.Event{
		Name:    "password_reset",
		Subject: subjectOf(c),
		Method:  c.Request.Method,
		Path:    c.Request.URL.Path,
		Status:  http.StatusNoContent,
		Fields:  map[string]any{"username": account.Username},
	})
	c.Status(http.StatusNoContent)
}
