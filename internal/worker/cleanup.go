package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/logger"
)

type CleanupConfig struct {
	Interval time.Duration
	// OutboxRetention is the age after which processed outbox rows are
	// removed. Zero keeps them forever.
	OutboxRetention time.Duration
}

// CleanupResult counts what one sweep removed.
type CleanupResult struct {
	ExpiredCodes    int64
	ProcessedEvents int64
}

// CleanupWorker periodically deletes expired verification codes and old
// processed outbox events.
type CleanupWorker struct {
	repos  repository.Repositories
	config CleanupConfig
	logger *logger.Logger
	now    func() time.Time
}

func NewCleanupWorker(repos repository.Repositories, config CleanupConfig, log *logger.Logger) *CleanupWorker {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	return &CleanupWorker{
		repos:  repos,
		config: config,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (w *CleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("starting cleanup worker", "interval", w.config.Interval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("shutting down cleanup worker")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error(err, "cleanup failed")
			}
		}
	}
}

// RunOnce performs a single sweep. A failure in one step does not skip the
// other.
func (w *CleanupWorker) RunOnce(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult
	now := w.now()

	codes, codesErr := w.repos.VerificationCodes().DeleteExpired(ctx, now)
	if codesErr != nil {
		codesErr = fmt.Errorf("failed to delete expired verification codes: %w", codesErr)
	}
	result.ExpiredCodes = codes

	var eventsErr error
	if w.config.OutboxRetention > 0 {
		result.ProcessedEvents, eventsErr = w.repos.Outbox().DeleteProcessedBefore(ctx, now.Add(-w.config.OutboxRetention))
		if eventsErr != nil {
			eventsErr = fmt.Errorf("failed to delete processed outbox events: %w", eventsErr)
		}
	}

	if result.ExpiredCodes > 0 || result.ProcessedEvents > 0 {
		w.logger.Info("cleanup removed rows",
			"expired_codes", result.ExpiredCodes,
			"processed_events", result.ProcessedEvents)
	}

	if codesErr != nil {
		return result, codesErr
	}
	return result, eventsErr
}
