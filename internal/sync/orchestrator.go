package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stridelog-strava-sync/internal/database"
	"stridelog-strava-sync/internal/metrics"
	"stridelog-strava-sync/internal/strava"
)

// Repository is the persistence contract the engine depends on. It is the
// only path to the database: connection lookup, sync-log lifecycle,
// idempotent upserts, and rollup recomputation.
type Repository interface {
	ConnectedAthleteID(userID string) (int64, bool, error)
	LastSuccessfulSync(userID string) (*time.Time, error)
	CreateSyncLogStarted(userID string) (string, error)
	CompleteSyncLogSuccess(id string, fetchedActivityCount int) error
	CompleteSyncLogFailed(id, errorMessage string) error
	UpsertAthleteProfile(p *database.AthleteProfile) error
	UpsertActivities(userID string, athleteID int64, batch []database.ActivityUpsert) (*database.UpsertResult, error)
	RecomputeDashboardRunRollups(userID string, affectedDates []string) error
	RecomputeDashboardRunRollupsForUser(userID string) error
	ListConnectedUserIDs() ([]string, error)
	ListRecentSyncLogs(userID string, limit int) ([]*database.SyncLog, error)
}

// Orchestrator sequences the top-level sync use cases. Every attempt that
// reaches the upstream opens a sync-log row first and finalizes it exactly
// once; failures record the causal message before the error is returned.
type Orchestrator struct {
	repo     Repository
	pipeline *Pipeline
	gateway  UpstreamGateway
	logger   *slog.Logger
	now      func() time.Time
}

func NewOrchestrator(repo Repository, gateway UpstreamGateway, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		pipeline: NewPipeline(gateway, logger),
		gateway:  gateway,
		logger:   logger,
		now:      time.Now,
	}
}

// BootstrapResult combines the connect and initial ingestion outcomes
type BootstrapResult struct {
	Athlete            *strava.AthleteProfile
	Window             Window
	EventCount         int
	SavedActivityCount int
}

// SyncResult reports one incremental sync
type SyncResult struct {
	Window             Window
	EventCount         int
	SavedActivityCount int
}

// ConnectionStatus is the read-only connection summary for one user
type ConnectionStatus struct {
	Connected            bool
	AthleteID            int64
	LastSuccessfulSyncAt *time.Time
	RecentSyncLogs       []*database.SyncLog
}

// ConnectAthlete fetches and persists the athlete profile under a sync
// log of its own (fetched activity count 0).
func (o *Orchestrator) ConnectAthlete(ctx context.Context, userID string, athleteID int64) (*strava.AthleteProfile, error) {
	timer := prometheus.NewTimer(metrics.SyncDuration.WithLabelValues(metrics.SyncKindConnect))
	defer timer.ObserveDuration()

	logID, err := o.repo.CreateSyncLogStarted(userID)
	if err != nil {
		return nil, wrapInternal("failed to open sync log", err)
	}

	profile, err := o.fetchAndPersistProfile(ctx, userID, athleteID)
	if err != nil {
		o.failSync(logID, metrics.SyncKindConnect, err)
		return nil, err
	}

	if err := o.repo.CompleteSyncLogSuccess(logID, 0); err != nil {
		return nil, wrapInternal("failed to finalize sync log", err)
	}
	metrics.SyncAttemptsTotal.WithLabelValues(metrics.SyncKindConnect, metrics.ResultSuccess).Inc()

	o.logger.Info("athlete connected", "user_id", userID, "athlete_id", profile.ID)
	return profile, nil
}

// ConnectAthleteAndBootstrapActivities connects the athlete and then runs
// the initial two-week window through the ingestion pipeline.
func (o *Orchestrator) ConnectAthleteAndBootstrapActivities(ctx context.Context, userID string, athleteID int64) (*BootstrapResult, error) {
	profile, err := o.ConnectAthlete(ctx, userID, athleteID)
	if err != nil {
		return nil, err
	}

	timer := prometheus.NewTimer(metrics.SyncDuration.WithLabelValues(metrics.SyncKindBootstrap))
	defer timer.ObserveDuration()

	window := BuildInitialSyncWindow(o.now())

	logID, err := o.repo.CreateSyncLogStarted(userID)
	if err != nil {
		return nil, wrapInternal("failed to open sync log", err)
	}

	ingest, err := o.pipeline.FetchAndUpsertActivities(ctx, o.repo, userID, profile.ID, window)
	if err != nil {
		o.failSync(logID, metrics.SyncKindBootstrap, err)
		return nil, err
	}

	if err := o.repo.CompleteSyncLogSuccess(logID, ingest.EventCount); err != nil {
		return nil, wrapInternal("failed to finalize sync log", err)
	}
	metrics.SyncAttemptsTotal.WithLabelValues(metrics.SyncKindBootstrap, metrics.ResultSuccess).Inc()

	o.logger.Info("bootstrap sync complete",
		"user_id", userID, "window", window.String(),
		"events", ingest.EventCount, "saved", ingest.SavedActivityCount)

	return &BootstrapResult{
		Athlete:            profile,
		Window:             window,
		EventCount:         ingest.EventCount,
		SavedActivityCount: ingest.SavedActivityCount,
	}, nil
}

// SyncActivitiesIncremental syncs the window anchored on the last
// successful sync. Preconditions (connected athlete, a prior successful
// sync, parseable overrides) are user errors checked before any sync-log
// row exists.
func (o *Orchestrator) SyncActivitiesIncremental(ctx context.Context, userID, oldestOverride, newestOverride string) (*SyncResult, error) {
	timer := prometheus.NewTimer(metrics.SyncDuration.WithLabelValues(metrics.SyncKindIncremental))
	defer timer.ObserveDuration()

	athleteID, connected, err := o.repo.ConnectedAthleteID(userID)
	if err != nil {
		return nil, wrapInternal("failed to look up connected athlete", err)
	}
	if !connected {
		return nil, ErrNotConnected
	}

	lastSync, err := o.repo.LastSuccessfulSync(userID)
	if err != nil {
		return nil, wrapInternal("failed to look up last sync", err)
	}
	if lastSync == nil {
		return nil, ErrNoPreviousSync
	}

	window, err := BuildIncrementalSyncWindow(o.now(), *lastSync, oldestOverride, newestOverride)
	if err != nil {
		return nil, err
	}

	logID, err := o.repo.CreateSyncLogStarted(userID)
	if err != nil {
		return nil, wrapInternal("failed to open sync log", err)
	}

	ingest, err := o.pipeline.FetchAndUpsertActivities(ctx, o.repo, userID, athleteID, window)
	if err != nil {
		o.failSync(logID, metrics.SyncKindIncremental, err)
		return nil, err
	}

	if err := o.repo.CompleteSyncLogSuccess(logID, ingest.EventCount); err != nil {
		return nil, wrapInternal("failed to finalize sync log", err)
	}
	metrics.SyncAttemptsTotal.WithLabelValues(metrics.SyncKindIncremental, metrics.ResultSuccess).Inc()

	o.logger.Info("incremental sync complete",
		"user_id", userID, "window", window.String(),
		"events", ingest.EventCount, "saved", ingest.SavedActivityCount)

	return &SyncResult{
		Window:             window,
		EventCount:         ingest.EventCount,
		SavedActivityCount: ingest.SavedActivityCount,
	}, nil
}

// TestConnection re-fetches and re-persists the profile as a liveness
// probe. It never touches the sync log.
func (o *Orchestrator) TestConnection(ctx context.Context, userID string) (*strava.AthleteProfile, error) {
	athleteID, connected, err := o.repo.ConnectedAthleteID(userID)
	if err != nil {
		return nil, wrapInternal("failed to look up connected athlete", err)
	}
	if !connected {
		return nil, ErrNotConnected
	}
	return o.fetchAndPersistProfile(ctx, userID, athleteID)
}

// GetConnectionStatus summarizes the user's connection without any
// upstream call.
func (o *Orchestrator) GetConnectionStatus(userID string) (*ConnectionStatus, error) {
	athleteID, connected, err := o.repo.ConnectedAthleteID(userID)
	if err != nil {
		return nil, wrapInternal("failed to look up connected athlete", err)
	}

	status := &ConnectionStatus{Connected: connected, AthleteID: athleteID}
	if !connected {
		return status, nil
	}

	status.LastSuccessfulSyncAt, err = o.repo.LastSuccessfulSync(userID)
	if err != nil {
		return nil, wrapInternal("failed to look up last sync", err)
	}
	status.RecentSyncLogs, err = o.repo.ListRecentSyncLogs(userID, 10)
	if err != nil {
		return nil, wrapInternal("failed to list sync logs", err)
	}
	return status, nil
}

// BackfillDashboardRollups runs the full recomputation for every
// connected user. A per-user failure does not stop the remaining users.
// Returns the number of users recomputed successfully.
func (o *Orchestrator) BackfillDashboardRollups(ctx context.Context) (int, error) {
	userIDs, err := o.repo.ListConnectedUserIDs()
	if err != nil {
		return 0, wrapInternal("failed to list connected users", err)
	}

	recomputed := 0
	var failures []error
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}
		if err := o.repo.RecomputeDashboardRunRollupsForUser(userID); err != nil {
			o.logger.Error("backfill failed for user", "user_id", userID, "error", err)
			failures = append(failures, err)
			continue
		}
		recomputed++
	}

	o.logger.Info("rollup backfill complete", "users", len(userIDs), "recomputed", recomputed)
	if len(failures) > 0 {
		return recomputed, wrapInternal("rollup backfill incomplete", errors.Join(failures...))
	}
	return recomputed, nil
}

func (o *Orchestrator) fetchAndPersistProfile(ctx context.Context, userID string, athleteID int64) (*strava.AthleteProfile, error) {
	profile, err := o.gateway.FetchAthleteProfile(ctx, userID, athleteID)
	if err != nil {
		return nil, wrapUpstream("failed to fetch athlete profile", err)
	}

	profileJSON := string(profile.Raw)
	row := &database.AthleteProfile{
		UserID:    userID,
		AthleteID: profile.ID,
		Username:  profile.Username,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Sex:       profile.Sex,
		WeightKg:  profile.WeightKg,
	}
	if profileJSON != "" {
		row.ProfileJSON = &profileJSON
	}
	if err := o.repo.UpsertAthleteProfile(row); err != nil {
		return nil, wrapInternal("failed to persist athlete profile", err)
	}
	return profile, nil
}

// failSync finalizes a started log row with the causal message. A failure
// to record the failure is logged but does not mask the original error.
func (o *Orchestrator) failSync(logID, kind string, cause error) {
	metrics.SyncAttemptsTotal.WithLabelValues(kind, metrics.ResultFailure).Inc()
	if err := o.repo.CompleteSyncLogFailed(logID, cause.Error()); err != nil {
		o.logger.Error("failed to record sync failure", "sync_log_id", logID, "error", err)
	}
}
