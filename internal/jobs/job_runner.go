package jobs

import (
	"context"
	"errors"
	"fmt"

	"booking-reconciler/internal/config"
	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/logger"
)

// JobReconcileBalances is the name external cron callers pass to -run-once.
const JobReconcileBalances = "reconcile-balances"

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	reconcile *ReconciliationJob
	config    *config.Config
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(reconcile *ReconciliationJob, cfg *config.Config) *JobRunner {
	return &JobRunner{
		reconcile: reconcile,
		config:    cfg,
	}
}

// Config exposes the configuration the scheduler registers jobs from.
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	if err := jobFunc(); err != nil {
		return err
	}
	logger.Info("Job completed", "job", jobName)
	return nil
}

// ReconcileBalances is the scheduled entry point. It takes no parameters so
// repeated invocations are safe; a run already in progress is skipped.
func (jr *JobRunner) ReconcileBalances() {
	err := jr.runWithRecovery(JobReconcileBalances, func() error {
		_, err := jr.reconcile.Run(context.Background(), RunOptions{TriggeredBy: domain.TriggeredByCron})
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRunInProgress):
		logger.Warn("Skipping scheduled reconciliation, another run holds the lock", "job", JobReconcileBalances)
	default:
		logger.Error("Scheduled reconciliation failed", "job", JobReconcileBalances, "error", err)
	}
}

// RunOnce executes a single named job to completion, for external cron callers.
func (jr *JobRunner) RunOnce(ctx context.Context, name string) (*domain.ReconciliationRunReport, error) {
	switch name {
	case JobReconcileBalances:
		var report *domain.ReconciliationRunReport
		err := jr.runWithRecovery(name, func() error {
			var err error
			report, err = jr.reconcile.Run(ctx, RunOptions{TriggeredBy: domain.TriggeredByCron})
			return err
		})
		return report, err
	default:
		return nil, domain.NewValidationError("job", "unknown job %q", name)
	}
}
