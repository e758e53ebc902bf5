package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"user-management-api/internal/audit"
	"user-management-api/internal/auth"
	"user-management-api/internal/config"
	apphttp "user-management-api/internal/http"
	"user-management-api/internal/logging"
	"user-management-api/internal/repository"
	"user-management-api/internal/repository/sqlite"
	"user-management-api/internal/service"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd := &cobra.Command{
		Use:          "usermgmt",
		Short:        "User management API with token authentication",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	cmd.AddCommand(serve)
	cmd.AddCommand(&cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the configured admin account if it does not exist, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBootstrap(cmd.Context())
		},
	})
	return cmd
}

// app holds what both commands need: configuration, logger and storage.
type app struct {
	cfg      config.Config
	logger   *logrus.Logger
	db       *sql.DB
	accounts repository.AccountRepository
	users    repository.UserRepository
	hasher   auth.PasswordHasher
	events   audit.Sink
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	accountRepo := sqlite.NewAccountRepository(db)
	userRepo := sqlite.NewUserRepository(db)
	if err := accountRepo.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init account repository: %w", err)
	}
	if err := userRepo.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init user repository: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		accounts: accountRepo,
		users:    userRepo,
		hasher:   auth.NewBcryptHasher(cfg.Auth.BcryptCost, cfg.Auth.HashWorkers),
		events:   audit.NewLogSink(logger),
	}, nil
}

func (a *app) bootstrapAdmin(ctx context.Context) (service.BootstrapResult, error) {
	b := service.NewAdminBootstrapper(a.accounts, a.hasher, a.cfg.BootstrapConfig(), a.logger, a.events)
	return b.EnsureAdmin(ctx)
}

func runBootstrap(ctx context.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.db.Close()

	result, err := a.bootstrapAdmin(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	a.logger.WithFields(logrus.Fields{
		"username": a.cfg.Admin.Username,
		"created":  result.Created,
	}).Info("admin bootstrap finished")
	return nil
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.db.Close()
	logger := a.logger

	if _, err := a.bootstrapAdmin(ctx); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	tokens := a.cfg.TokenConfig()
	issuer, err := auth.NewTokenIssuer(tokens)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}
	validator, err := auth.NewTokenValidator(tokens)
	if err != nil {
		return fmt.Errorf("token validator: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	if err := router.SetTrustedProxies(a.cfg.Server.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	handler := apphttp.NewHandler(apphttp.Options{
		Accounts:   service.NewAccountService(a.accounts, a.hasher, issuer),
		Users:      service.NewUserService(a.users),
		Validator:  validator,
		Policies:   auth.NewPolicyEngine(),
		Events:     a.events,
		Metrics:    apphttp.NewMetrics(),
		Logger:     logger,
		LoginRPS:   a.cfg.RateLimit.Login.RPS,
		LoginBurst: a.cfg.RateLimit.Login.Burst,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", a.cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
	return nil
}
