package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mango3/identity/internal/identity/jobs"
	"github.com/mango3/identity/internal/identity/service"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/mango3/identity/pkg/cryptox"
	"github.com/mango3/identity/pkg/slogx"
)

// WorkerApp is the background process draining the job queues: emails,
// geolocation, webhook deliveries and cascades.
type WorkerApp struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store
	worker *jobs.Worker
}

// NewWorker creates a WorkerApp with stores, services and handlers wired.
func NewWorker(cfg Config) (*WorkerApp, error) {
	wa := &WorkerApp{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity-monitor",
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
	wa.db = db

	_, _, sessions, _, authorizations, _ := Services(cfg, db)

	var sender jobs.Sender
	if cfg.MailerEnable {
		sender = &jobs.SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SenderAddress,
		}
	} else {
		sender = &jobs.LogSender{Log: wa.logger}
	}

	handlers := &jobs.Handlers{
		Store:          db,
		Logger:         wa.logger,
		Sessions:       sessions,
		Authorizations: authorizations,
		Webhooks:       &service.WebhookService{},
		Mailer: &jobs.Mailer{
			Sender:         sender,
			SupportAddress: cfg.SupportAddress,
		},
		GeoIP: &jobs.GeoIP{APIKey: cfg.GeoIPAPIKey},
	}

	wa.worker = &jobs.Worker{
		Store:        db,
		Logger:       wa.logger,
		Handlers:     handlers.Map(),
		PollInterval: cfg.WorkerPollInterval,
		BatchSize:    cfg.WorkerBatchSize,
		MaxAttempts:  cfg.WorkerMaxAttempts,
	}

	return wa, nil
}

// Run starts the worker and blocks until shutdown is requested.
func (wa *WorkerApp) Run() error {
	wa.logger.Info("identity monitor starting", "version", BuildVersion)
	wa.worker.Start()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	wa.logger.Info("shutdown signal received", "signal", sig)

	return wa.Shutdown()
}

// Shutdown waits for in-flight handlers within the grace period, then
// closes the store. Jobs abandoned at the deadline are re-leased once their
// lease lapses.
func (wa *WorkerApp) Shutdown() error {
	wa.logger.Info("shutting down identity monitor...")

	ctx, cancel := context.WithTimeout(context.Background(), wa.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := wa.worker.Stop(ctx); err != nil {
		wa.logger.Error("worker did not drain in time", "error", err)
	}

	if err := wa.db.Close(); err != nil {
		wa.logger.Error("error closing database", "error", err)
		return fmt.Errorf("close database: %w", err)
	}

	wa.logger.Info("identity monitor stopped")
	return nil
}
