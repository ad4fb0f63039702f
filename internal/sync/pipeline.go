package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"stridelog-strava-sync/internal/database"
	"stridelog-strava-sync/internal/efforts"
	"stridelog-strava-sync/internal/metrics"
	"stridelog-strava-sync/internal/strava"
)

// UpstreamGateway is the provider-facing contract. Implementations own
// network and auth side effects and return payloads already validated
// against the expected shape.
type UpstreamGateway interface {
	FetchAthleteProfile(ctx context.Context, userID string, athleteID int64) (*strava.AthleteProfile, error)
	FetchActivityEvents(ctx context.Context, userID string, after, before time.Time) ([]strava.ActivityEvent, error)
	FetchActivityDetail(ctx context.Context, userID string, activityID int64) (*strava.ActivityDetail, error)
	FetchActivityMap(ctx context.Context, userID string, activityID int64) (*strava.ActivityMap, error)
	FetchActivityStreams(ctx context.Context, userID string, activityID int64, types []string) (strava.StreamSet, error)
}

// detailFetchConcurrency bounds the per-activity fetches in one batch
const detailFetchConcurrency = 4

// Pipeline turns a sync window into persisted activity aggregates
type Pipeline struct {
	gateway UpstreamGateway
	logger  *slog.Logger
}

func NewPipeline(gateway UpstreamGateway, logger *slog.Logger) *Pipeline {
	return &Pipeline{gateway: gateway, logger: logger}
}

// IngestResult reports one pipeline run
type IngestResult struct {
	EventCount         int
	SavedActivityCount int
	AffectedDates      []string
}

// FetchAndUpsertActivities lists the window's activities, fetches their
// details, maps, and advertised sensor streams, derives best efforts, and
// persists the batch. Rollups are recomputed for exactly the affected
// dates. A fetch or parse failure aborts the whole attempt before any
// recomputation runs.
func (p *Pipeline) FetchAndUpsertActivities(ctx context.Context, repo Repository, userID string, athleteID int64, window Window) (*IngestResult, error) {
	after, before, err := window.Bounds()
	if err != nil {
		return nil, &Error{Code: CodeInvalidDateRange, Message: "invalid sync window", Cause: err}
	}

	events, err := p.gateway.FetchActivityEvents(ctx, userID, after, before)
	if err != nil {
		return nil, wrapUpstream("failed to list activities", err)
	}
	metrics.SyncActivitiesFetched.Observe(float64(len(events)))

	unique := dedupeEvents(events)
	p.logger.Info("fetched activity events",
		"user_id", userID, "window", window.String(),
		"events", len(events), "unique", len(unique))

	batch := make([]database.ActivityUpsert, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailFetchConcurrency)
	for i, event := range unique {
		i, event := i, event
		g.Go(func() error {
			upsert, err := p.fetchActivity(gctx, userID, event.ID)
			if err != nil {
				return err
			}
			batch[i] = *upsert
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, wrapUpstream("failed to fetch activity data", err)
	}

	result, err := repo.UpsertActivities(userID, athleteID, batch)
	if err != nil {
		return nil, wrapInternal("failed to persist activities", err)
	}
	metrics.SyncActivitiesSaved.Observe(float64(result.SavedActivityCount))

	if len(result.AffectedDates) > 0 {
		if err := repo.RecomputeDashboardRunRollups(userID, result.AffectedDates); err != nil {
			return nil, wrapInternal("failed to recompute rollups", err)
		}
	}

	return &IngestResult{
		EventCount:         len(events),
		SavedActivityCount: result.SavedActivityCount,
		AffectedDates:      result.AffectedDates,
	}, nil
}

// dedupeEvents drops repeated provider ids, keeping first occurrence
func dedupeEvents(events []strava.ActivityEvent) []strava.ActivityEvent {
	seen := make(map[int64]struct{}, len(events))
	unique := make([]strava.ActivityEvent, 0, len(events))
	for _, event := range events {
		if _, ok := seen[event.ID]; ok {
			continue
		}
		seen[event.ID] = struct{}{}
		unique = append(unique, event)
	}
	return unique
}

// fetchActivity assembles one activity aggregate: detail and map fetched
// concurrently, then only the advertised streams intersecting the
// preferred set.
func (p *Pipeline) fetchActivity(ctx context.Context, userID string, activityID int64) (*database.ActivityUpsert, error) {
	var (
		detail      *strava.ActivityDetail
		activityMap *strava.ActivityMap
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		detail, err = p.gateway.FetchActivityDetail(gctx, userID, activityID)
		return err
	})
	g.Go(func() error {
		var err error
		activityMap, err = p.gateway.FetchActivityMap(gctx, userID, activityID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	types := intersectStreamTypes(detail.AdvertisedStreams())
	var streams strava.StreamSet
	if len(types) > 0 {
		var err error
		streams, err = p.gateway.FetchActivityStreams(ctx, userID, activityID, types)
		if err != nil {
			return nil, err
		}
	}

	return buildActivityUpsert(detail, activityMap, streams)
}

// intersectStreamTypes filters advertised streams against the preferred
// set, preserving the preferred order.
func intersectStreamTypes(advertised []string) []string {
	available := make(map[string]struct{}, len(advertised))
	for _, streamType := range advertised {
		available[streamType] = struct{}{}
	}
	var types []string
	for _, streamType := range strava.PreferredStreamTypes {
		if _, ok := available[streamType]; ok {
			types = append(types, streamType)
		}
	}
	return types
}

func buildActivityUpsert(detail *strava.ActivityDetail, activityMap *strava.ActivityMap, streams strava.StreamSet) (*database.ActivityUpsert, error) {
	upsert := &database.ActivityUpsert{
		ProviderActivityID: detail.ID,
		Name:               detail.Name,
		SportType:          detail.SportType,
		StartDate:          detail.StartDate,
		DistanceMeters:     detail.DistanceMeters,
		ElapsedTimeSec:     detail.ElapsedTimeSec,
		MovingTimeSec:      detail.MovingTimeSec,
		AverageSpeedMps:    detail.AverageSpeedMps,
		MaxSpeedMps:        detail.MaxSpeedMps,
		AverageHeartrate:   detail.AverageHeartrate,
		MaxHeartrate:       detail.MaxHeartrate,
		AverageCadence:     detail.AverageCadence,
		SufferScore:        detail.SufferScore,
		Calories:           detail.Calories,
		RawJSON:            string(detail.Raw),
	}

	if activityMap != nil && (activityMap.Polyline != "" || activityMap.SummaryPolyline != "") {
		mapJSON, err := json.Marshal(activityMap)
		if err != nil {
			return nil, fmt.Errorf("failed to encode map: %w", err)
		}
		upsert.MapJSON = string(mapJSON)
	}

	if len(detail.SplitsMetric) > 0 {
		splitsJSON, err := json.Marshal(detail.SplitsMetric)
		if err != nil {
			return nil, fmt.Errorf("failed to encode splits: %w", err)
		}
		upsert.SplitsJSON = string(splitsJSON)
	}

	if len(detail.Laps) > 0 {
		intervalsJSON, err := json.Marshal(detail.Laps)
		if err != nil {
			return nil, fmt.Errorf("failed to encode laps: %w", err)
		}
		upsert.IntervalsJSON = string(intervalsJSON)
		for _, lap := range detail.Laps {
			upsert.Intervals = append(upsert.Intervals, database.Interval{
				Sequence:         lap.Sequence,
				DistanceMeters:   lap.DistanceMeters,
				ElapsedTimeSec:   lap.ElapsedTimeSec,
				MovingTimeSec:    lap.MovingTimeSec,
				AverageSpeedMps:  lap.AverageSpeedMps,
				AverageHeartrate: lap.AverageHeartrate,
			})
		}
	}

	for _, streamType := range strava.PreferredStreamTypes {
		stream, ok := streams[streamType]
		if !ok {
			continue
		}
		dataJSON, err := json.Marshal(stream.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s stream: %w", streamType, err)
		}
		upsert.Streams = append(upsert.Streams, database.StreamRow{
			StreamType:   streamType,
			DataJSON:     string(dataJSON),
			OriginalSize: stream.OriginalSize,
			Resolution:   stream.Resolution,
		})
	}

	if distance, ok := streams[strava.StreamDistance]; ok {
		for _, effort := range efforts.Extract(efforts.Clamp(distance.Data)) {
			upsert.BestEfforts = append(upsert.BestEfforts, database.BestEffortRow{
				TargetMeters: effort.TargetMeters,
				StartIndex:   effort.StartIndex,
				EndIndex:     effort.EndIndex,
				DurationSec:  effort.DurationSec,
			})
		}
	}

	if hr, ok := streams[strava.StreamHeartrate]; ok {
		zonesJSON, err := json.Marshal(heartRateZones(hr.Data, detail.MaxHeartrate))
		if err != nil {
			return nil, fmt.Errorf("failed to encode heart rate zones: %w", err)
		}
		upsert.HRZonesJSON = string(zonesJSON)
	}

	return upsert, nil
}

// hrZone is seconds spent in one heart rate zone
type hrZone struct {
	Zone    int `json:"zone"`
	Seconds int `json:"seconds"`
}

// heartRateZones buckets per-second heart rate samples into five zones at
// 60/70/80/90 percent of the activity's max heart rate. Falls back to the
// observed max when the detail carries none.
func heartRateZones(samples []float64, maxHeartrate float64) []hrZone {
	if maxHeartrate <= 0 {
		for _, sample := range samples {
			if sample > maxHeartrate {
				maxHeartrate = sample
			}
		}
	}
	zones := make([]hrZone, 5)
	for i := range zones {
		zones[i].Zone = i + 1
	}
	if maxHeartrate <= 0 {
		return zones
	}
	for _, sample := range samples {
		fraction := sample / maxHeartrate
		switch {
		case fraction < 0.6:
			zones[0].Seconds++
		case fraction < 0.7:
			zones[1].Seconds++
		case fraction < 0.8:
			zones[2].Seconds++
		case fraction < 0.9:
			zones[3].Seconds++
		default:
			zones[4].Seconds++
		}
	}
	return zones
}
