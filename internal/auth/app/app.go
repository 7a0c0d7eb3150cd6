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

	"github.com/fablekids/auth/internal/auth/audit"
	httpapi "github.com/fablekids/auth/internal/auth/http"
	"github.com/fablekids/auth/internal/auth/service"
	"github.com/fablekids/auth/internal/auth/store"
	"github.com/fablekids/auth/internal/auth/store/drivers/sqlite"
	"github.com/fablekids/auth/pkg/cryptox"
	"github.com/fablekids/auth/pkg/jwtx"
	"github.com/fablekids/auth/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application encapsulates the authorization server with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db         store.Store
	keyManager *jwtx.KeyManager
	auditSink  audit.Sink

	tokenService       *service.TokenService
	authorizeService   *service.AuthorizeService
	consentService     *service.ConsentService
	userInfoService    *service.UserInfoService
	subjectService     *service.SubjectService
	clientService      *service.ClientService
	bootstrapService   *service.BootstrapService
	keyRotationService *service.KeyRotationService
	housekeeping       *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "fablekids-auth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(app.cfg.PepperFile)

	// Database first; persistent key mode loads from it.
	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keyManager, err := InitAuthKeys(context.Background(), app.cfg, app.db, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("authorization server starting",
		"port", app.cfg.Port,
		"issuer", app.cfg.Issuer,
		"version", BuildVersion,
	)

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
	app.logger.Info("shutting down authorization server...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("authorization server stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
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

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.auditSink = audit.NewSlogSink(app.logger)

	accessTTL := app.cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = jwtx.DefaultAccessTokenTTL
	}
	refreshTTL := app.cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = jwtx.DefaultRefreshTokenTTL
	}

	app.tokenService = &service.TokenService{
		KeyManager: app.keyManager,
		Store:      app.db,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		Audit:      app.auditSink,
	}

	app.authorizeService = &service.AuthorizeService{
		Store:      app.db,
		KeyManager: app.keyManager,
		Issuer:     app.cfg.Issuer,
		CodeTTL:    app.cfg.CodeTTL, // service clamps this to the 60s cap
		ConsentTTL: app.cfg.ConsentTTL,
		MinorAge:   app.cfg.MinorAge,
		Audit:      app.auditSink,
	}

	app.consentService = &service.ConsentService{
		Store:    app.db,
		MinorAge: app.cfg.MinorAge,
		Audit:    app.auditSink,
	}

	app.userInfoService = &service.UserInfoService{Store: app.db}
	app.subjectService = &service.SubjectService{
		Store:    app.db,
		MinorAge: app.cfg.MinorAge,
	}
	app.clientService = &service.ClientService{Store: app.db}
	app.bootstrapService = &service.BootstrapService{
		Store: app.db,
		Token: app.cfg.BootstrapToken,
	}

	app.housekeeping = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	if app.cfg.KeyStorageMode == "persistent" {
		app.keyRotationService = &service.KeyRotationService{
			Store:       app.db,
			KeyManager:  app.keyManager,
			Algorithm:   app.cfg.Algorithm,
			GracePeriod: app.cfg.KeyGracePeriod,
			Audit:       app.auditSink,
		}
		app.logger.Info("key rotation service enabled (persistent mode)")
	} else {
		// Ephemeral mode still allows runtime rotation, just no persistence.
		app.keyRotationService = &service.KeyRotationService{
			Store:      nil,
			KeyManager: app.keyManager,
			Algorithm:  app.cfg.Algorithm,
			Audit:      app.auditSink,
		}
		app.logger.Info("key rotation service enabled (ephemeral mode)")
	}
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager.KeySet,
		app.keyManager.Verifier,
		app.cfg.Issuer,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.TokenService = app.tokenService
	router.AuthorizeService = app.authorizeService
	router.ConsentService = app.consentService
	router.UserInfoService = app.userInfoService
	router.SubjectService = app.subjectService
	router.ClientService = app.clientService
	router.BootstrapService = app.bootstrapService
	router.KeyRotationService = app.keyRotationService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
