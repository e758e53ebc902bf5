package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"user-management-api/internal/audit"
	"user-management-api/internal/auth"
	"user-management-api/internal/domain"
	"user-management-api/internal/repository/sqlite"
	"user-management-api/internal/service"
)

const (
	testSecret        = "0123456789abcdef0123456789abcdef"
	testIssuer        = "UserManagementAPI"
	testAdminPassword = "admin-password"
	testUserPassword  = "user-password"
)

type testServer struct {
	router   *gin.Engine
	handler  *Handler
	tokens   auth.TokenConfig
	accounts service.AccountService
	events   *audit.MemorySink
	logs     *test.Hook
	admin    *domain.Account
}

type serverOption func(*Options)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	accountRepo := sqlite.NewAccountRepository(db)
	userRepo := sqlite.NewUserRepository(db)
	require.NoError(t, accountRepo.Init(ctx))
	require.NoError(t, userRepo.Init(ctx))

	tokens := auth.TokenConfig{Secret: []byte(testSecret), Issuer: testIssuer}
	issuer, err := auth.NewTokenIssuer(tokens)
	require.NoError(t, err)
	validator, err := auth.NewTokenValidator(tokens)
	require.NoError(t, err)

	accounts := service.NewAccountService(accountRepo, auth.NewBcryptHasher(bcrypt.MinCost, 4), issuer)
	admin, err := accounts.CreateAccount(ctx, service.CreateAccountInput{Username: "admin", Password: testAdminPassword, Role: domain.RoleAdministrator})
	require.NoError(t, err)
	_, err = accounts.CreateAccount(ctx, service.CreateAccountInput{Username: "alice", Password: testUserPassword})
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	sink := &audit.MemorySink{}
	options := Options{
		Accounts:  accounts,
		Users:     service.NewUserService(userRepo),
		Validator: validator,
		Policies:  auth.NewPolicyEngine(),
		Events:    sink,
		Metrics:   NewMetrics(),
		Logger:    logger,
	}
	for _, opt := range opts {
		opt(&options)
	}

	h := NewHandler(options)
	router := gin.New()
	require.NoError(t, router.SetTrustedProxies(nil))
	h.RegisterRoutes(router)

	return &testServer{
		router:   router,
		handler:  h,
		tokens:   tokens,
		accounts: accounts,
		events:   sink,
		logs:     hook,
		admin:    admin,
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		var err error
		payload, err = json.Marshal(b)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func newRequest(method, path, authorization string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return req
}

func serve(s *testServer, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/login", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

// tokenAt issues a token with a different clock or config than the server.
func (s *testServer) tokenAt(t *testing.T, cfg auth.TokenConfig, issuedAt time.Time, subject, role string) string {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(cfg, auth.WithClock(func() time.Time { return issuedAt }))
	require.NoError(t, err)
	token, _, err := issuer.Issue(subject, role)
	require.NoError(t, err)
	return token
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}
