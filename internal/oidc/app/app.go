package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/openledger/oidcd/internal/oidc/http"
	"github.com/openledger/oidcd/internal/oidc/service"
	"github.com/openledger/oidcd/internal/oidc/store"
	"github.com/openledger/oidcd/internal/oidc/store/drivers/sqlite"
	"github.com/openledger/oidcd/pkg/cryptox"
	"github.com/openledger/oidcd/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the token service with all its dependencies.
type Application struct {
	cfg            Config
	logger         *slog.Logger
	claimsResolver service.ClaimsResolver

	db store.Store

	clientService       *service.ClientService
	authorizeService    *service.AuthorizeService
	tokenService        *service.TokenService
	identityService     *service.IdentityService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// Option customizes host-supplied boundaries before wiring completes.
type Option func(*Application)

// WithClaimsResolver installs the host's claims source. It feeds both the
// userinfo endpoint and identity-token claims; without it only `sub` is
// emitted.
func WithClaimsResolver(r service.ClaimsResolver) Option {
	return func(app *Application) { app.claimsResolver = r }
}

// New creates an Application with all dependencies initialized.
func New(cfg Config, opts ...Option) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "oidcd",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}
	for _, opt := range opts {
		opt(app)
	}

	if cfg.Salt != "" {
		if err := cryptox.ValidateSalt(cfg.Salt); err != nil {
			return nil, fmt.Errorf("OIDC_SALT: %w", err)
		}
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Clients exposes the client registry for administrative commands.
func (app *Application) Clients() *service.ClientService { return app.clientService }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("oidc token service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down oidc token service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("oidc token service stopped")
	return nil
}

// Close releases resources without running the HTTP shutdown sequence. Used
// by one-shot administrative commands.
func (app *Application) Close() error {
	return app.db.Close()
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initServices() {
	app.clientService = &service.ClientService{
		Store: app.db,
		Salt:  app.cfg.Salt,
	}
	app.authorizeService = &service.AuthorizeService{
		Store:   app.db,
		CodeTTL: app.cfg.CodeTTL,
	}
	app.tokenService = &service.TokenService{
		Store:     app.db,
		AccessTTL: app.cfg.AccessTTL,
	}
	app.identityService = &service.IdentityService{
		Store:    app.db,
		Issuer:   app.cfg.Issuer,
		Resolver: app.claimsResolver,
		TTL:      app.cfg.IdentityTTL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.HousekeepingRetain,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.ClientService = app.clientService
	router.AuthorizeService = app.authorizeService
	router.TokenService = app.tokenService
	router.IdentityService = app.identityService
	router.Authenticator = &httpapi.HeaderAuthenticator{Header: app.cfg.UserHeader}
	router.ClaimsResolver = app.claimsResolver
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
