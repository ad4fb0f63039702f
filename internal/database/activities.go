package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stridelog-strava-sync/internal/metrics"
)

// Activity is one persisted activity row
type Activity struct {
	ID                 int64
	UserID             string
	AthleteID          int64
	ProviderActivityID int64
	Name               string
	SportType          string
	StartDate          *int64
	DistanceMeters     float64
	ElapsedTimeSec     int64
	MovingTimeSec      int64
	AverageSpeedMps    *float64
	MaxSpeedMps        *float64
	AverageHeartrate   *float64
	MaxHeartrate       *float64
	AverageCadence     *float64
	SufferScore        *float64
	Calories           *float64
	MapJSON            *string
	HRZonesJSON        *string
	SplitsJSON         *string
	IntervalsJSON      *string
	RawJSON            *string
	CreatedAt          int64
	UpdatedAt          int64
}

// Interval is one child interval (lap) row
type Interval struct {
	Sequence         int
	DistanceMeters   float64
	ElapsedTimeSec   int64
	MovingTimeSec    int64
	AverageSpeedMps  float64
	AverageHeartrate float64
}

// StreamRow is one child sensor stream row
type StreamRow struct {
	StreamType   string
	DataJSON     string
	OriginalSize int
	Resolution   string
}

// BestEffortRow is one child best-effort row
type BestEffortRow struct {
	TargetMeters float64
	StartIndex   int
	EndIndex     int
	DurationSec  int
}

// ActivityUpsert is the unit of idempotent persistence: scalar fields plus
// the complete child sets. Children always replace what is stored.
type ActivityUpsert struct {
	ProviderActivityID int64
	Name               string
	SportType          string
	StartDate          time.Time
	DistanceMeters     float64
	ElapsedTimeSec     int64
	MovingTimeSec      int64
	AverageSpeedMps    float64
	MaxSpeedMps        float64
	AverageHeartrate   float64
	MaxHeartrate       float64
	AverageCadence     float64
	SufferScore        float64
	Calories           float64
	MapJSON            string
	HRZonesJSON        string
	SplitsJSON         string
	IntervalsJSON      string
	RawJSON            string

	Intervals   []Interval
	Streams     []StreamRow
	BestEfforts []BestEffortRow
}

// UpsertResult reports what a batch upsert changed
type UpsertResult struct {
	SavedActivityCount int
	AffectedDates      []string
}

// UpsertActivities persists a batch. Each activity is written in its own
// transaction: scalar upsert keyed on (user_id, provider_activity_id),
// then delete-then-reinsert of all three child sets. A failure keeps the
// activities committed before it; a retried sync re-upserts them
// harmlessly.
func (db *DB) UpsertActivities(userID string, athleteID int64, batch []ActivityUpsert) (*UpsertResult, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertActivities))
	defer timer.ObserveDuration()

	result := &UpsertResult{}
	affected := make(map[string]struct{})

	for i := range batch {
		if err := db.upsertActivity(userID, athleteID, &batch[i]); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertActivities).Inc()
			return result, fmt.Errorf("failed to upsert activity %d: %w", batch[i].ProviderActivityID, err)
		}
		result.SavedActivityCount++

		date := batch[i].StartDate.UTC().Format("2006-01-02")
		if _, seen := affected[date]; !seen {
			affected[date] = struct{}{}
			result.AffectedDates = append(result.AffectedDates, date)
		}
	}

	return result, nil
}

func (db *DB) upsertActivity(userID string, athleteID int64, a *ActivityUpsert) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	startDate := a.StartDate.Unix()

	var activityID int64
	err = tx.QueryRow(`
		INSERT INTO activities (
			user_id, athlete_id, provider_activity_id, name, sport_type, start_date,
			distance_m, elapsed_time_s, moving_time_s,
			average_speed_mps, max_speed_mps, average_heartrate, max_heartrate,
			average_cadence, suffer_score, calories,
			map_json, hr_zones_json, splits_json, intervals_json, raw_json,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider_activity_id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			name = excluded.name,
			sport_type = excluded.sport_type,
			start_date = excluded.start_date,
			distance_m = excluded.distance_m,
			elapsed_time_s = excluded.elapsed_time_s,
			moving_time_s = excluded.moving_time_s,
			average_speed_mps = excluded.average_speed_mps,
			max_speed_mps = excluded.max_speed_mps,
			average_heartrate = excluded.average_heartrate,
			max_heartrate = excluded.max_heartrate,
			average_cadence = excluded.average_cadence,
			suffer_score = excluded.suffer_score,
			calories = excluded.calories,
			map_json = excluded.map_json,
			hr_zones_json = excluded.hr_zones_json,
			splits_json = excluded.splits_json,
			intervals_json = excluded.intervals_json,
			raw_json = excluded.raw_json,
			updated_at = excluded.updated_at
		RETURNING id
	`, userID, athleteID, a.ProviderActivityID, a.Name, a.SportType, startDate,
		a.DistanceMeters, a.ElapsedTimeSec, a.MovingTimeSec,
		a.AverageSpeedMps, a.MaxSpeedMps, a.AverageHeartrate, a.MaxHeartrate,
		a.AverageCadence, a.SufferScore, a.Calories,
		a.MapJSON, a.HRZonesJSON, a.SplitsJSON, a.IntervalsJSON, a.RawJSON,
		now, now).Scan(&activityID)
	if err != nil {
		return fmt.Errorf("failed to upsert activity row: %w", err)
	}
	if activityID == 0 {
		return fmt.Errorf("activity upsert returned no row")
	}

	// Replace the child sets completely. Children are derived state; a
	// merge could leave rows from a previous version of the activity.
	for _, table := range []string{"activity_intervals", "activity_streams", "activity_best_efforts"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE activity_id = ?", activityID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, interval := range a.Intervals {
		if _, err := tx.Exec(`
			INSERT INTO activity_intervals (
				activity_id, sequence, distance_m, elapsed_time_s, moving_time_s,
				average_speed_mps, average_heartrate
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, activityID, interval.Sequence, interval.DistanceMeters, interval.ElapsedTimeSec,
			interval.MovingTimeSec, interval.AverageSpeedMps, interval.AverageHeartrate); err != nil {
			return fmt.Errorf("failed to insert interval: %w", err)
		}
	}

	for _, stream := range a.Streams {
		if _, err := tx.Exec(`
			INSERT INTO activity_streams (activity_id, stream_type, data_json, original_size, resolution)
			VALUES (?, ?, ?, ?, ?)
		`, activityID, stream.StreamType, stream.DataJSON, stream.OriginalSize, stream.Resolution); err != nil {
			return fmt.Errorf("failed to insert stream: %w", err)
		}
	}

	for _, effort := range a.BestEfforts {
		if _, err := tx.Exec(`
			INSERT INTO activity_best_efforts (activity_id, target_m, start_index, end_index, duration_s)
			VALUES (?, ?, ?, ?, ?)
		`, activityID, effort.TargetMeters, effort.StartIndex, effort.EndIndex, effort.DurationSec); err != nil {
			return fmt.Errorf("failed to insert best effort: %w", err)
		}
	}

	return tx.Commit()
}

// GetActivityByProviderID retrieves one activity by its provider id
func (db *DB) GetActivityByProviderID(userID string, providerActivityID int64) (*Activity, error) {
	var a Activity
	err := db.conn.QueryRow(`
		SELECT id, user_id, athlete_id, provider_activity_id, name, sport_type, start_date,
		       distance_m, elapsed_time_s, moving_time_s,
		       average_speed_mps, max_speed_mps, average_heartrate, max_heartrate,
		       average_cadence, suffer_score, calories,
		       map_json, hr_zones_json, splits_json, intervals_json, raw_json,
		       created_at, updated_at
		FROM activities WHERE user_id = ? AND provider_activity_id = ?
	`, userID, providerActivityID).Scan(
		&a.ID, &a.UserID, &a.AthleteID, &a.ProviderActivityID, &a.Name, &a.SportType, &a.StartDate,
		&a.DistanceMeters, &a.ElapsedTimeSec, &a.MovingTimeSec,
		&a.AverageSpeedMps, &a.MaxSpeedMps, &a.AverageHeartrate, &a.MaxHeartrate,
		&a.AverageCadence, &a.SufferScore, &a.Calories,
		&a.MapJSON, &a.HRZonesJSON, &a.SplitsJSON, &a.IntervalsJSON, &a.RawJSON,
		&a.CreatedAt, &a.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return &a, nil
}

// DeleteActivity removes an activity and its children
func (db *DB) DeleteActivity(userID string, providerActivityID int64) error {
	_, err := db.conn.Exec(`
		DELETE FROM activities WHERE user_id = ? AND provider_activity_id = ?
	`, userID, providerActivityID)
	if err != nil {
		return fmt.Errorf("failed to delete activity: %w", err)
	}
	return nil
}

// ListBestEffortsForActivity returns the stored best efforts for one activity
func (db *DB) ListBestEffortsForActivity(activityID int64) ([]BestEffortRow, error) {
	rows, err := db.conn.Query(`
		SELECT target_m, start_index, end_index, duration_s
		FROM activity_best_efforts WHERE activity_id = ? ORDER BY target_m
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list best efforts: %w", err)
	}
	defer rows.Close()

	var efforts []BestEffortRow
	for rows.Next() {
		var e BestEffortRow
		if err := rows.Scan(&e.TargetMeters, &e.StartIndex, &e.EndIndex, &e.DurationSec); err != nil {
			return nil, fmt.Errorf("failed to scan best effort: %w", err)
		}
		efforts = append(efforts, e)
	}
	return efforts, rows.Err()
}

// CountActivityChildren returns the child row counts for one activity
func (db *DB) CountActivityChildren(activityID int64) (intervals, streams, bestEfforts int, err error) {
	if err = db.conn.QueryRow(`SELECT COUNT(*) FROM activity_intervals WHERE activity_id = ?`, activityID).Scan(&intervals); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count intervals: %w", err)
	}
	if err = db.conn.QueryRow(`SELECT COUNT(*) FROM activity_streams WHERE activity_id = ?`, activityID).Scan(&streams); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count streams: %w", err)
	}
	if err = db.conn.QueryRow(`SELECT COUNT(*) FROM activity_best_efforts WHERE activity_id = ?`, activityID).Scan(&bestEfforts); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count best efforts: %w", err)
	}
	return intervals, streams, bestEfforts, nil
}
