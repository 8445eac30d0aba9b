package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"booking-reconciler/internal/app"
	"booking-reconciler/internal/config"
	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/jobs"
	"booking-reconciler/internal/logger"
	"booking-reconciler/internal/scheduler"
	"booking-reconciler/internal/security"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'reconcile-balances')")
	hashSecret := flag.String("hash-secret", "", "Print the bcrypt hash of a cron secret for cron.secret_hash and exit")
	flag.Parse()

	if *hashSecret != "" {
		hash, err := security.HashCronSecret(*hashSecret)
		if err != nil {
			log.Fatalf("Failed to hash secret: %v", err)
		}
		fmt.Println(hash)
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Booking Reconciler Cronjob Runner...", "log_level", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer application.Close()

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(application.Job, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		report, err := jobRunner.RunOnce(ctx, *runOnce)
		if err != nil {
			logger.Error("Job failed", "job", *runOnce, "error", err)
			if errors.Is(err, domain.ErrValidationInput) {
				fmt.Printf("Available jobs:\n")
				fmt.Printf("  - %s\n", jobs.JobReconcileBalances)
			}
			application.Close()
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce, "run_id", report.ID, "status", report.Status)
		return
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		application.Close()
		log.Fatalf("Failed to register jobs: %v", err)
	}

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.", "next_run", cronScheduler.NextRun())

	// Wait for interrupt signal
	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}
