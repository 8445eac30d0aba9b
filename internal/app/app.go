// Package app wires configuration into the stores, services and batch job
// shared by the server and cronjob binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"booking-reconciler/internal/config"
	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/jobs"
	"booking-reconciler/internal/lock"
	"booking-reconciler/internal/logger"
	"booking-reconciler/internal/repository"
	"booking-reconciler/internal/repository/memory"
	"booking-reconciler/internal/repository/postgres"
	"booking-reconciler/internal/service"
)

type App struct {
	Config  *config.Config
	Repos   repository.Repositories
	Recon   service.ReconciliationService
	Alerts  service.AlertService
	Payouts service.PayoutService
	Job     *jobs.ReconciliationJob
	// Ping checks the backing store.
	Ping func(ctx context.Context) error

	closers []func() error
}

// New connects to the configured store and lock backend and builds the
// services. Close releases every connection it opened.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	locker, err := a.openLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	policy, err := cfg.ReconciliationPolicy()
	if err != nil {
		a.Close()
		return nil, err
	}

	minNotify, err := domain.ParseSeverity(cfg.SendGrid.MinSeverity)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := newNotifier(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Alerts = service.NewAlertService(a.Repos.Alerts, notifier, minNotify)
	a.Recon = service.NewReconciliationService(a.Repos.Ledger, a.Repos.Bookings, a.Repos.ValidationLogs, a.Alerts, policy)
	a.Payouts = service.NewPayoutService(a.Repos.Payouts, policy)
	a.Job = jobs.NewReconciliationJob(a.Repos.Bookings, a.Repos.Runs, a.Recon, locker, jobs.ReconciliationJobConfig{
		DefaultLimit: cfg.Reconciliation.BatchLimit,
		Workers:      cfg.Reconciliation.Workers,
		Timeout:      cfg.Reconciliation.RunTimeout,
	})
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store, data is lost on exit")
		a.Repos = memory.NewStore().Repositories()
		a.Ping = func(context.Context) error { return nil }
		return nil
	}

	logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		return fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	db.SetMaxOpenConns(cfg.Reconciliation.Workers*2 + 4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	// Test database connection
	if err := db.PingContext(ctx); err != nil {
		logger.Error("Failed to ping database", "error", err)
		return fmt.Errorf("ping database: %w", err)
	}
	logger.Info("Database connection established")

	a.Repos = postgres.NewStore(db).Repositories()
	a.Ping = db.PingContext
	return nil
}

func (a *App) openLocker(ctx context.Context) (lock.RunLocker, error) {
	cfg := a.Config.Redis
	if cfg.Addr == "" {
		logger.Info("No redis address configured, run lock is process-local")
		return lock.NewLocalLocker(), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	a.closers = append(a.closers, rdb.Close)
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to ping redis", "addr", cfg.Addr, "error", err)
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("Redis connection established", "addr", cfg.Addr)
	return lock.NewRedisLocker(rdb), nil
}

func newNotifier(ctx context.Context, cfg *config.Config) (service.AlertNotifier, error) {
	var notifiers []service.AlertNotifier
	if cfg.SendGrid.APIKey == "" {
		logger.Info("SendGrid not configured, incident emails are logged only")
		notifiers = append(notifiers, service.NewLogNotifier())
	} else {
		notifiers = append(notifiers, service.NewSendGridNotifier(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName, cfg.SendGrid.AlertRecipients))
	}

	if cfg.FCM.CredentialsFile != "" {
		push, err := service.NewFCMNotifier(ctx, cfg.FCM.CredentialsFile, cfg.FCM.ProjectID, cfg.FCM.Topic)
		if err != nil {
			logger.Error("Failed to initialize FCM", "error", err)
			return nil, err
		}
		logger.Info("Incident push notifications enabled", "topic", cfg.FCM.Topic)
		notifiers = append(notifiers, push)
	}
	return service.NewMultiNotifier(notifiers...), nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Error closing connection", "error", err)
		}
	}
	a.closers = nil
}
