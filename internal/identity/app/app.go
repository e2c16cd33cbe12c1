package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpapi "github.com/mango3/identity/internal/identity/http"
	"github.com/mango3/identity/internal/identity/jobs"
	"github.com/mango3/identity/internal/identity/service"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/mango3/identity/internal/identity/store/drivers/sqlite"
	"github.com/mango3/identity/pkg/cryptox"
	"github.com/mango3/identity/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application is the HTTP-facing identity service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db    store.Store
	queue *jobs.Queue

	userService          *service.UserService
	sessionService       *service.SessionService
	confirmationService  *service.ConfirmationService
	authorizationService *service.AuthorizationService
	applicationService   *service.ApplicationService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)
	if cfg.MasterKeyPath != "" {
		cryptox.SetMasterKeyPath(cfg.MasterKeyPath)
	}

	db, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	app.db = db
	app.logger.Info("database migrations applied successfully")

	app.initServices()
	app.initHTTP()

	return app, nil
}

// OpenStore opens the SQLite store and applies migrations. Shared with the
// worker and CLI entrypoints.
func OpenStore(cfg Config) (store.Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return db, nil
}

// Services assembles the service layer over a store. Shared with the worker
// and CLI entrypoints so configuration is applied once.
func Services(cfg Config, db store.Store) (*jobs.Queue, *service.UserService, *service.SessionService, *service.ConfirmationService, *service.AuthorizationService, *service.ApplicationService) {
	queue := &jobs.Queue{Store: db}

	users := &service.UserService{
		Store:      db,
		Jobs:       queue,
		UsersLimit: cfg.UsersLimit,
	}
	sessions := &service.SessionService{
		Store:      db,
		Jobs:       queue,
		TokenBytes: cfg.SessionTokenBytes,
	}
	confirmations := &service.ConfirmationService{
		Store:      db,
		Jobs:       queue,
		CodeLength: cfg.ConfirmationCodeLength,
		TTL:        cfg.ConfirmationTTL,
	}
	authorizations := &service.AuthorizationService{
		Store:      db,
		Jobs:       queue,
		TTL:        cfg.AuthorizationTTL,
		RefreshTTL: cfg.AuthorizationRefreshTTL,
		TokenBytes: cfg.AuthorizationTokenBytes,
	}
	applications := &service.ApplicationService{
		Store:        db,
		SecretLength: cfg.SecretLength,
	}

	return queue, users, sessions, confirmations, authorizations, applications
}

func (app *Application) initServices() {
	app.queue, app.userService, app.sessionService, app.confirmationService,
		app.authorizationService, app.applicationService = Services(app.cfg, app.db)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.cfg.AppToken, BuildVersion, app.db, app.logger)
	router.UserService = app.userService
	router.SessionService = app.sessionService
	router.ConfirmationService = app.confirmationService
	router.AuthorizationService = app.authorizationService
	router.ApplicationService = app.applicationService
	router.ApplyRoutes()

	app.router = router
	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: router,
	}
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.logger.Info("identity service starting", "port", app.cfg.Port, "version", BuildVersion)

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
	app.logger.Info("shutting down identity service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}
