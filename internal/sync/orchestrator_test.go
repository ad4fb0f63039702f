package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	stdsync "sync"
	"testing"
	"time"

	"stridelog-strava-sync/internal/database"
	"stridelog-strava-sync/internal/strava"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRepo struct {
	athleteID int64
	connected bool
	lastSync  *time.Time
	userIDs   []string

	logs     map[string]*database.SyncLog
	logOrder []string
	nextLog  int

	profiles       []*database.AthleteProfile
	upserts        [][]database.ActivityUpsert
	upsertErr      error
	recomputed     [][]string
	fullRecomputed []string
	fullErr        map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{logs: make(map[string]*database.SyncLog)}
}

func (r *fakeRepo) ConnectedAthleteID(userID string) (int64, bool, error) {
	return r.athleteID, r.connected, nil
}

func (r *fakeRepo) LastSuccessfulSync(userID string) (*time.Time, error) {
	return r.lastSync, nil
}

func (r *fakeRepo) CreateSyncLogStarted(userID string) (string, error) {
	r.nextLog++
	id := fmt.Sprintf("log-%d", r.nextLog)
	r.logs[id] = &database.SyncLog{ID: id, UserID: userID, Status: database.SyncStatusStarted}
	r.logOrder = append(r.logOrder, id)
	return id, nil
}

func (r *fakeRepo) CompleteSyncLogSuccess(id string, fetchedActivityCount int) error {
	log, ok := r.logs[id]
	if !ok || log.Status != database.SyncStatusStarted {
		return fmt.Errorf("sync log %s not found or already finalized", id)
	}
	log.Status = database.SyncStatusSuccess
	log.FetchedActivityCount = fetchedActivityCount
	return nil
}

func (r *fakeRepo) CompleteSyncLogFailed(id, errorMessage string) error {
	log, ok := r.logs[id]
	if !ok || log.Status != database.SyncStatusStarted {
		return fmt.Errorf("sync log %s not found or already finalized", id)
	}
	log.Status = database.SyncStatusFailed
	log.Error = &errorMessage
	return nil
}

func (r *fakeRepo) UpsertAthleteProfile(p *database.AthleteProfile) error {
	r.profiles = append(r.profiles, p)
	return nil
}

func (r *fakeRepo) UpsertActivities(userID string, athleteID int64, batch []database.ActivityUpsert) (*database.UpsertResult, error) {
	if r.upsertErr != nil {
		return nil, r.upsertErr
	}
	r.upserts = append(r.upserts, batch)
	result := &database.UpsertResult{SavedActivityCount: len(batch)}
	seen := make(map[string]struct{})
	for _, a := range batch {
		date := a.StartDate.UTC().Format("2006-01-02")
		if _, ok := seen[date]; !ok {
			seen[date] = struct{}{}
			result.AffectedDates = append(result.AffectedDates, date)
		}
	}
	return result, nil
}

func (r *fakeRepo) RecomputeDashboardRunRollups(userID string, affectedDates []string) error {
	r.recomputed = append(r.recomputed, affectedDates)
	return nil
}

func (r *fakeRepo) RecomputeDashboardRunRollupsForUser(userID string) error {
	if err := r.fullErr[userID]; err != nil {
		return err
	}
	r.fullRecomputed = append(r.fullRecomputed, userID)
	return nil
}

func (r *fakeRepo) ListConnectedUserIDs() ([]string, error) {
	return r.userIDs, nil
}

func (r *fakeRepo) ListRecentSyncLogs(userID string, limit int) ([]*database.SyncLog, error) {
	var logs []*database.SyncLog
	for i := len(r.logOrder) - 1; i >= 0 && len(logs) < limit; i-- {
		logs = append(logs, r.logs[r.logOrder[i]])
	}
	return logs, nil
}

func (r *fakeRepo) lastLog() *database.SyncLog {
	if len(r.logOrder) == 0 {
		return nil
	}
	return r.logs[r.logOrder[len(r.logOrder)-1]]
}

type fakeGateway struct {
	mu stdsync.Mutex

	profile    *strava.AthleteProfile
	profileErr error

	events    []strava.ActivityEvent
	eventsErr error

	details   map[int64]*strava.ActivityDetail
	maps      map[int64]*strava.ActivityMap
	streams   map[int64]strava.StreamSet
	detailErr error

	streamRequests map[int64][]string
}

func (g *fakeGateway) FetchAthleteProfile(ctx context.Context, userID string, athleteID int64) (*strava.AthleteProfile, error) {
	if g.profileErr != nil {
		return nil, g.profileErr
	}
	return g.profile, nil
}

func (g *fakeGateway) FetchActivityEvents(ctx context.Context, userID string, after, before time.Time) ([]strava.ActivityEvent, error) {
	if g.eventsErr != nil {
		return nil, g.eventsErr
	}
	return g.events, nil
}

func (g *fakeGateway) FetchActivityDetail(ctx context.Context, userID string, activityID int64) (*strava.ActivityDetail, error) {
	if g.detailErr != nil {
		return nil, g.detailErr
	}
	detail, ok := g.details[activityID]
	if !ok {
		return nil, &strava.HTTPError{StatusCode: 404, Body: "not found"}
	}
	return detail, nil
}

func (g *fakeGateway) FetchActivityMap(ctx context.Context, userID string, activityID int64) (*strava.ActivityMap, error) {
	if m, ok := g.maps[activityID]; ok {
		return m, nil
	}
	return &strava.ActivityMap{}, nil
}

func (g *fakeGateway) FetchActivityStreams(ctx context.Context, userID string, activityID int64, types []string) (strava.StreamSet, error) {
	g.mu.Lock()
	if g.streamRequests == nil {
		g.streamRequests = make(map[int64][]string)
	}
	g.streamRequests[activityID] = types
	g.mu.Unlock()

	set := make(strava.StreamSet)
	source := g.streams[activityID]
	for _, streamType := range types {
		if stream, ok := source[streamType]; ok {
			set[streamType] = stream
		}
	}
	return set, nil
}

func runDetail(id int64, start time.Time) *strava.ActivityDetail {
	return &strava.ActivityDetail{
		ID:             id,
		Name:           "Run",
		SportType:      "Run",
		StartDate:      start,
		DistanceMeters: 5000,
		ElapsedTimeSec: 1500,
		MovingTimeSec:  1480,
	}
}

func TestConnectAthlete(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{profile: &strava.AthleteProfile{ID: 12345, Username: "runner"}}
	o := NewOrchestrator(repo, gw, testLogger())

	profile, err := o.ConnectAthlete(context.Background(), "user-1", 12345)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	if profile.ID != 12345 {
		t.Errorf("Expected athlete 12345, got %d", profile.ID)
	}

	if len(repo.profiles) != 1 || repo.profiles[0].AthleteID != 12345 {
		t.Errorf("Expected one upserted profile, got %+v", repo.profiles)
	}

	log := repo.lastLog()
	if log == nil || log.Status != database.SyncStatusSuccess {
		t.Errorf("Expected successful sync log, got %+v", log)
	}
	if log != nil && log.FetchedActivityCount != 0 {
		t.Errorf("Expected fetched count 0 on connect, got %d", log.FetchedActivityCount)
	}
}

func TestConnectAthleteUpstreamAuthFailure(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{profileErr: &strava.HTTPError{StatusCode: 401, Body: "unauthorized"}}
	o := NewOrchestrator(repo, gw, testLogger())

	_, err := o.ConnectAthlete(context.Background(), "user-1", 12345)
	if err == nil {
		t.Fatal("Expected connect to fail")
	}
	if StatusCode(err) != 401 {
		t.Errorf("Expected status 401, got %d", StatusCode(err))
	}

	log := repo.lastLog()
	if log == nil || log.Status != database.SyncStatusFailed {
		t.Fatalf("Expected failed sync log, got %+v", log)
	}
	if log.Error == nil || *log.Error == "" {
		t.Error("Expected causal message recorded on the failed log")
	}
}

func TestSyncActivitiesIncrementalPreconditions(t *testing.T) {
	repo := newFakeRepo()
	o := NewOrchestrator(repo, &fakeGateway{}, testLogger())
	ctx := context.Background()

	_, err := o.SyncActivitiesIncremental(ctx, "user-1", "", "")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if StatusCode(err) != 404 {
		t.Errorf("Expected status 404, got %d", StatusCode(err))
	}

	repo.connected = true
	repo.athleteID = 12345
	_, err = o.SyncActivitiesIncremental(ctx, "user-1", "", "")
	if !errors.Is(err, ErrNoPreviousSync) {
		t.Errorf("Expected ErrNoPreviousSync, got %v", err)
	}
	if StatusCode(err) != 409 {
		t.Errorf("Expected status 409, got %d", StatusCode(err))
	}

	// Invalid overrides are user errors too.
	lastSync := time.Now().Add(-48 * time.Hour)
	repo.lastSync = &lastSync
	_, err = o.SyncActivitiesIncremental(ctx, "user-1", "garbage", "")
	if StatusCode(err) != 400 {
		t.Errorf("Expected status 400 for bad override, got %d", StatusCode(err))
	}

	// Precondition failures never open a sync log.
	if len(repo.logOrder) != 0 {
		t.Errorf("Expected no sync logs for precondition failures, found %d", len(repo.logOrder))
	}
}

func TestSyncActivitiesIncremental(t *testing.T) {
	start := time.Date(2024, 3, 9, 7, 0, 0, 0, time.UTC)
	lastSync := time.Date(2024, 3, 8, 20, 0, 0, 0, time.UTC)

	repo := newFakeRepo()
	repo.connected = true
	repo.athleteID = 12345
	repo.lastSync = &lastSync

	gw := &fakeGateway{
		// The upstream list may repeat an id; the pipeline dedupes.
		events: []strava.ActivityEvent{
			{ID: 1, SportType: "Run", StartDate: start},
			{ID: 2, SportType: "Run", StartDate: start.Add(time.Hour)},
			{ID: 1, SportType: "Run", StartDate: start},
		},
		details: map[int64]*strava.ActivityDetail{
			1: runDetail(1, start),
			2: runDetail(2, start.Add(time.Hour)),
		},
	}
	o := NewOrchestrator(repo, gw, testLogger())
	o.now = func() time.Time { return time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC) }

	result, err := o.SyncActivitiesIncremental(context.Background(), "user-1", "", "")
	if err != nil {
		t.Fatalf("Failed to sync: %v", err)
	}
	if result.EventCount != 3 {
		t.Errorf("Expected 3 events, got %d", result.EventCount)
	}
	if result.SavedActivityCount != 2 {
		t.Errorf("Expected 2 saved after dedupe, got %d", result.SavedActivityCount)
	}
	if result.Window.Oldest != "2024-03-07" || result.Window.Newest != "2024-03-10" {
		t.Errorf("Unexpected window %s", result.Window.String())
	}

	if len(repo.recomputed) != 1 || len(repo.recomputed[0]) != 1 || repo.recomputed[0][0] != "2024-03-09" {
		t.Errorf("Expected recompute for 2024-03-09, got %v", repo.recomputed)
	}

	log := repo.lastLog()
	if log == nil || log.Status != database.SyncStatusSuccess {
		t.Errorf("Expected successful sync log, got %+v", log)
	}
}

func TestSyncActivitiesIncrementalUpstreamFailure(t *testing.T) {
	lastSync := time.Now().Add(-24 * time.Hour)
	repo := newFakeRepo()
	repo.connected = true
	repo.athleteID = 12345
	repo.lastSync = &lastSync

	gw := &fakeGateway{eventsErr: &strava.HTTPError{StatusCode: 503, Body: "unavailable"}}
	o := NewOrchestrator(repo, gw, testLogger())

	_, err := o.SyncActivitiesIncremental(context.Background(), "user-1", "", "")
	if err == nil {
		t.Fatal("Expected sync to fail")
	}
	if StatusCode(err) != 502 {
		t.Errorf("Expected status 502, got %d", StatusCode(err))
	}

	log := repo.lastLog()
	if log == nil || log.Status != database.SyncStatusFailed {
		t.Fatalf("Expected failed sync log, got %+v", log)
	}

	// A failed fetch aborts before any recomputation.
	if len(repo.recomputed) != 0 {
		t.Errorf("Expected no recomputation on failure, got %v", repo.recomputed)
	}
}

func TestTestConnection(t *testing.T) {
	repo := newFakeRepo()
	repo.connected = true
	repo.athleteID = 12345
	gw := &fakeGateway{profile: &strava.AthleteProfile{ID: 12345}}
	o := NewOrchestrator(repo, gw, testLogger())

	if _, err := o.TestConnection(context.Background(), "user-1"); err != nil {
		t.Fatalf("Failed to test connection: %v", err)
	}
	if len(repo.profiles) != 1 {
		t.Errorf("Expected profile re-persisted, got %d upserts", len(repo.profiles))
	}
	// A liveness probe is not a sync attempt.
	if len(repo.logOrder) != 0 {
		t.Errorf("Expected no sync logs, found %d", len(repo.logOrder))
	}

	repo.connected = false
	if _, err := o.TestConnection(context.Background(), "user-1"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestGetConnectionStatus(t *testing.T) {
	repo := newFakeRepo()
	o := NewOrchestrator(repo, &fakeGateway{}, testLogger())

	status, err := o.GetConnectionStatus("user-1")
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}
	if status.Connected {
		t.Error("Expected disconnected status")
	}

	lastSync := time.Date(2024, 3, 8, 20, 0, 0, 0, time.UTC)
	repo.connected = true
	repo.athleteID = 12345
	repo.lastSync = &lastSync
	id, _ := repo.CreateSyncLogStarted("user-1")
	repo.CompleteSyncLogSuccess(id, 5)

	status, err = o.GetConnectionStatus("user-1")
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}
	if !status.Connected || status.AthleteID != 12345 {
		t.Errorf("Expected connected athlete 12345, got %+v", status)
	}
	if status.LastSuccessfulSyncAt == nil || !status.LastSuccessfulSyncAt.Equal(lastSync) {
		t.Errorf("Expected last sync %v, got %v", lastSync, status.LastSuccessfulSyncAt)
	}
	if len(status.RecentSyncLogs) != 1 {
		t.Errorf("Expected 1 recent log, got %d", len(status.RecentSyncLogs))
	}
}

func TestBackfillDashboardRollups(t *testing.T) {
	repo := newFakeRepo()
	repo.userIDs = []string{"user-a", "user-b", "user-c"}
	repo.fullErr = map[string]error{"user-b": errors.New("disk full")}
	o := NewOrchestrator(repo, &fakeGateway{}, testLogger())

	recomputed, err := o.BackfillDashboardRollups(context.Background())
	if err == nil {
		t.Error("Expected aggregate error when a user fails")
	}
	if recomputed != 2 {
		t.Errorf("Expected 2 users recomputed, got %d", recomputed)
	}
	if len(repo.fullRecomputed) != 2 {
		t.Errorf("Expected full recompute for 2 users, got %v", repo.fullRecomputed)
	}
}
