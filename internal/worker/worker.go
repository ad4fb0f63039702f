package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stridelog-strava-sync/internal/config"
	"stridelog-strava-sync/internal/metrics"
	"stridelog-strava-sync/internal/sync"
)

// Store is the subset of the database the scheduler reads
type Store interface {
	ListConnectedUserIDs() ([]string, error)
	LastSuccessfulSync(userID string) (*time.Time, error)
}

// Syncer runs one incremental sync for a user
type Syncer interface {
	SyncActivitiesIncremental(ctx context.Context, userID, oldestOverride, newestOverride string) (*sync.SyncResult, error)
}

// Worker periodically syncs every connected user. Users are processed
// one at a time, so at most one sync per user is ever in flight.
type Worker struct {
	store  Store
	syncer Syncer
	config *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewWorker creates a new sync scheduler
func NewWorker(store Store, syncer Syncer, cfg *config.Config) *Worker {
	return &Worker{
		store:  store,
		syncer: syncer,
		config: cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
}

// Start runs the scheduler loop until the context is cancelled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting sync scheduler",
		"interval", w.config.SyncInterval,
		"cooldown", w.config.SyncCooldown)
	metrics.SchedulerActive.Set(1)
	defer metrics.SchedulerActive.Set(0)

	ticker := time.NewTicker(w.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping sync scheduler")
			return ctx.Err()
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

// runCycle syncs every eligible connected user once
func (w *Worker) runCycle(ctx context.Context) {
	users, err := w.store.ListConnectedUserIDs()
	if err != nil {
		w.logger.Error("Failed to list connected users", "error", err)
		metrics.SchedulerCyclesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return
	}

	if len(users) == 0 {
		metrics.SchedulerCyclesTotal.WithLabelValues(metrics.OutcomeIdle).Inc()
		return
	}

	for _, userID := range users {
		if ctx.Err() != nil {
			return
		}
		w.syncUser(ctx, userID)
	}
}

// syncUser runs one incremental sync if the user is due
func (w *Worker) syncUser(ctx context.Context, userID string) {
	last, err := w.store.LastSuccessfulSync(userID)
	if err != nil {
		w.logger.Error("Failed to look up last sync", "user_id", userID, "error", err)
		metrics.SchedulerCyclesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return
	}

	// Users without a completed bootstrap are never scheduled
	if last == nil {
		w.logger.Debug("Skipping user without prior successful sync", "user_id", userID)
		metrics.SchedulerCyclesTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return
	}

	if age := w.now().Sub(*last); age < w.config.SyncCooldown {
		w.logger.Debug("Skipping user inside cooldown",
			"user_id", userID, "last_sync_age", age)
		metrics.SchedulerCyclesTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return
	}

	result, err := w.syncer.SyncActivitiesIncremental(ctx, userID, "", "")
	if err != nil {
		if errors.Is(err, sync.ErrNoPreviousSync) || errors.Is(err, sync.ErrNotConnected) {
			w.logger.Warn("User no longer eligible for scheduled sync", "user_id", userID, "error", err)
			metrics.SchedulerCyclesTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
			return
		}
		w.logger.Error("Scheduled sync failed", "user_id", userID, "error", err)
		metrics.SchedulerCyclesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return
	}

	w.logger.Info("Scheduled sync complete",
		"user_id", userID,
		"window", result.Window.String(),
		"events", result.EventCount,
		"saved", result.SavedActivityCount)
	metrics.SchedulerCyclesTotal.WithLabelValues(metrics.OutcomeSynced).Inc()
}
