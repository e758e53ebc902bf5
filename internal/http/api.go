package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"user-management-api/internal/audit"
	"user-management-api/internal/auth"
	"user-management-api/internal/service"
)

// TokenValidator checks bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// Options collects the collaborators of Handler. Events, Metrics and Logger
// fall back to working defaults when nil.
type Options struct {
	Accounts  service.AccountService
	Users     service.UserService
	Validator TokenValidator
	Policies  *auth.PolicyEngine
	Events    audit.Sink
	Metrics   *Metrics
	Logger    logrus.FieldLogger

	// LoginRPS <= 0 disables login rate limiting.
	LoginRPS   float64
	LoginBurst int
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	accounts  service.AccountService
	users     service.UserService
	validator TokenValidator
	policies  *auth.PolicyEngine
	events    audit.Sink
	metrics   *Metrics
	log       logrus.FieldLogger
	limiter   *clientLimiter
}

func NewHandler(opts Options) *Handler {
	h := &Handler{
		accounts:  opts.Accounts,
		users:     opts.Users,
		validator: opts.Validator,
		policies:  opts.Policies,
		events:    opts.Events,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		limiter:   newClientLimiter(opts.LoginRPS, opts.LoginBurst),
	}
	if h.log == nil {
		h.log = logrus.StandardLogger()
	}
	if h.events == nil {
		h.events = audit.NewLogSink(h.log)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics()
	}
	if h.policies == nil {
		h.policies = auth.NewPolicyEngine()
	}
	return h
}

// RegisterRoutes installs the request pipeline and all routes. Stage order:
// ErrorHandler, Authenticate, Authorize (per group), AccessLog, handler.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(h.ErrorHandler(), corsMiddleware(), h.Authenticate())

	router.GET("/health", h.AccessLog(), h.health)
	router.GET("/metrics", h.AccessLog(), gin.WrapH(h.metrics.Handler()))
	router.POST("/login", h.loginRateLimit(), h.AccessLog(), h.login)

	api := router.Group("/api")
	{
		api.POST("/auth/login", h.loginRateLimit(), h.AccessLog(), h.login)

		users := api.Group("/users", h.Authorize(""), h.AccessLog())
		users.GET("", h.listUsers)
		users.POST("", h.createUser)
		users.GET("/:id", h.getUser)
		users.PUT("/:id", h.updateUser)
		users.DELETE("/:id", h.deleteUser)

		admin := api.Group("/app-users", h.Authorize(auth.PolicyAdminOnly), h.AccessLog())
		admin.GET("", h.listAccounts)
		admin.POST("", h.createAccount)
		admin.POST("/:id/reset-password", h.resetPassword)
	}

	router.NoRoute(h.AccessLog(), func(c *gin.Context) {
		h.respondError(c, errRouteNotFound)
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "WWW-Authenticate")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
