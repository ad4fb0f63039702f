package database

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stridelog-strava-sync/internal/goals"
	"stridelog-strava-sync/internal/metrics"
)

// Personal record types
const (
	RecordLongestRun  = "longest_run"
	RecordFastest400m = "fastest_400m"
	RecordFastest1k   = "fastest_1k"
	RecordFastestMile = "fastest_mile"
	RecordFastest5k   = "fastest_5k"
	RecordFastest10k  = "fastest_10k"
)

// Rollup is one weekly or monthly dashboard aggregate
type Rollup struct {
	UserID            string
	PeriodStart       string
	RunCount          int
	TotalDistanceM    float64
	TotalElapsedS     int64
	TotalMovingS      int64
	AveragePaceSPerKm float64
}

// PersonalRecord is one per-user all-time best
type PersonalRecord struct {
	UserID             string
	RecordType         string
	ProviderActivityID int64
	Value              float64
	AchievedAt         *int64
}

// Dashboard rollups count only running activities. Strava sport types vary
// in casing and spacing across API versions, so the filter normalizes in
// SQL: lowercase with spaces, underscores and hyphens stripped.
const normalizedSportType = `LOWER(REPLACE(REPLACE(REPLACE(sport_type, ' ', ''), '_', ''), '-', ''))`

const dashboardRunFilter = normalizedSportType + ` IN ('run', 'trailrun', 'treadmillrun', 'virtualrun')`

// IsDashboardRun reports whether a sport type counts toward dashboard
// rollups. Mirrors the SQL filter for callers that classify in memory.
func IsDashboardRun(sportType string) bool {
	normalized := strings.ToLower(sportType)
	normalized = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(normalized)
	switch normalized {
	case "run", "trailrun", "treadmillrun", "virtualrun":
		return true
	}
	return false
}

// RecomputeDashboardRunRollups incrementally recomputes the weekly and
// monthly buckets containing any of the affected dates ("2006-01-02"),
// then fully recomputes personal records and refreshes goal progress for
// the touched periods. Buckets left with no qualifying runs are removed.
func (db *DB) RecomputeDashboardRunRollups(userID string, affectedDates []string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpRecomputeRollups))
	defer timer.ObserveDuration()

	weekStarts, monthStarts, err := periodStarts(affectedDates)
	if err != nil {
		return err
	}

	for _, week := range weekStarts {
		if err := db.recomputeRollupBucket(userID, "weekly_rollups", week, week.AddDate(0, 0, 7)); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpRecomputeRollups).Inc()
			return err
		}
	}
	for _, month := range monthStarts {
		if err := db.recomputeRollupBucket(userID, "monthly_rollups", month, month.AddDate(0, 1, 0)); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpRecomputeRollups).Inc()
			return err
		}
	}

	if err := db.recomputePersonalRecords(userID); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpRecomputeRollups).Inc()
		return err
	}

	if err := db.recomputeGoalProgressForPeriods(userID, weekStarts, monthStarts); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpRecomputeRollups).Inc()
		return err
	}

	metrics.RollupRecomputationsTotal.WithLabelValues("incremental").Inc()
	return nil
}

// RecomputeDashboardRunRollupsForUser rebuilds every rollup, personal
// record, and goal progress row for one user from the stored activities.
// Used by the backfill operation after reprocessing historical data.
func (db *DB) RecomputeDashboardRunRollupsForUser(userID string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpRecomputeUserRollups))
	defer timer.ObserveDuration()

	// Clearing first removes buckets whose runs have since disappeared.
	for _, table := range []string{"weekly_rollups", "monthly_rollups"} {
		if _, err := db.conn.Exec("DELETE FROM "+table+" WHERE user_id = ?", userID); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpRecomputeUserRollups).Inc()
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	dates, err := db.dashboardRunDates(userID)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpRecomputeUserRollups).Inc()
		return err
	}

	weekStarts, monthStarts, err := periodStarts(dates)
	if err != nil {
		return err
	}

	for _, week := range weekStarts {
		if err := db.recomputeRollupBucket(userID, "weekly_rollups", week, week.AddDate(0, 0, 7)); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpRecomputeUserRollups).Inc()
			return err
		}
	}
	for _, month := range monthStarts {
		if err := db.recomputeRollupBucket(userID, "monthly_rollups", month, month.AddDate(0, 1, 0)); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpRecomputeUserRollups).Inc()
			return err
		}
	}

	if err := db.recomputePersonalRecords(userID); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpRecomputeUserRollups).Inc()
		return err
	}

	if err := db.recomputeAllGoalProgress(userID, weekStarts, monthStarts); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpRecomputeUserRollups).Inc()
		return err
	}

	metrics.RollupRecomputationsTotal.WithLabelValues("full").Inc()
	return nil
}

// periodStarts maps activity dates to the deduplicated, sorted week and
// month starts they fall in.
func periodStarts(dates []string) (weeks, months []time.Time, err error) {
	weekSet := make(map[string]time.Time)
	monthSet := make(map[string]time.Time)
	for _, date := range dates {
		day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid affected date %q: %w", date, err)
		}
		week := goals.WeekStart(day)
		month := goals.MonthStart(day)
		weekSet[week.Format("2006-01-02")] = week
		monthSet[month.Format("2006-01-02")] = month
	}
	for _, t := range weekSet {
		weeks = append(weeks, t)
	}
	for _, t := range monthSet {
		months = append(months, t)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].Before(weeks[j]) })
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return weeks, months, nil
}

// recomputeRollupBucket rebuilds one period bucket from scratch. The
// bucket row exists iff at least one qualifying run falls in [start, end).
func (db *DB) recomputeRollupBucket(userID, table string, start, end time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	periodStart := start.Format("2006-01-02")

	if _, err := tx.Exec(
		"DELETE FROM "+table+" WHERE user_id = ? AND period_start = ?",
		userID, periodStart,
	); err != nil {
		return fmt.Errorf("failed to clear %s bucket: %w", table, err)
	}

	var (
		runCount      int
		totalDistance float64
		totalElapsed  int64
		totalMoving   int64
	)
	err = tx.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(distance_m), 0), COALESCE(SUM(elapsed_time_s), 0), COALESCE(SUM(moving_time_s), 0)
		FROM activities
		WHERE user_id = ? AND start_date >= ? AND start_date < ? AND `+dashboardRunFilter,
		userID, start.Unix(), end.Unix(),
	).Scan(&runCount, &totalDistance, &totalElapsed, &totalMoving)
	if err != nil {
		return fmt.Errorf("failed to aggregate %s bucket: %w", table, err)
	}

	if runCount == 0 {
		return tx.Commit()
	}

	var pace float64
	if totalDistance > 0 {
		pace = float64(totalElapsed) / (totalDistance / 1000)
	}

	if _, err := tx.Exec(`
		INSERT INTO `+table+` (user_id, period_start, run_count, total_distance_m, total_elapsed_s, total_moving_s, average_pace_s_per_km)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, userID, periodStart, runCount, totalDistance, totalElapsed, totalMoving, pace); err != nil {
		return fmt.Errorf("failed to insert %s bucket: %w", table, err)
	}

	return tx.Commit()
}

// recomputePersonalRecords fully replaces the user's personal records.
// Distance records come from activity scalars; time records from the
// stored best-effort windows. A record row exists only when at least one
// qualifying run produced it.
func (db *DB) recomputePersonalRecords(userID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM personal_records WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to clear personal records: %w", err)
	}

	insert := func(recordType string, providerActivityID int64, value float64, achievedAt *int64) error {
		_, err := tx.Exec(`
			INSERT INTO personal_records (user_id, record_type, provider_activity_id, value, achieved_at)
			VALUES (?, ?, ?, ?, ?)
		`, userID, recordType, providerActivityID, value, achievedAt)
		if err != nil {
			return fmt.Errorf("failed to insert personal record %s: %w", recordType, err)
		}
		return nil
	}

	// Longest run by distance.
	var (
		longestID       int64
		longestDistance float64
		longestDate     *int64
	)
	err = tx.QueryRow(`
		SELECT provider_activity_id, distance_m, start_date
		FROM activities
		WHERE user_id = ? AND distance_m > 0 AND `+dashboardRunFilter+`
		ORDER BY distance_m DESC, start_date ASC
		LIMIT 1
	`, userID).Scan(&longestID, &longestDistance, &longestDate)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to find longest run: %w", err)
	}
	if err == nil {
		if err := insert(RecordLongestRun, longestID, longestDistance, longestDate); err != nil {
			return err
		}
	}

	// Fastest times per target distance from best-effort windows. Ties go
	// to the earlier activity.
	for _, record := range []struct {
		recordType string
		targetM    float64
	}{
		{RecordFastest400m, 400},
		{RecordFastest1k, 1000},
		{RecordFastestMile, 1609.34},
		{RecordFastest5k, 5000},
		{RecordFastest10k, 10000},
	} {
		var (
			providerID int64
			duration   float64
			achievedAt *int64
		)
		err = tx.QueryRow(`
			SELECT a.provider_activity_id, e.duration_s, a.start_date
			FROM activity_best_efforts e
			JOIN activities a ON a.id = e.activity_id
			WHERE a.user_id = ? AND e.target_m = ? AND `+strings.ReplaceAll(dashboardRunFilter, "sport_type", "a.sport_type")+`
			ORDER BY e.duration_s ASC, a.start_date ASC
			LIMIT 1
		`, userID, record.targetM).Scan(&providerID, &duration, &achievedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return fmt.Errorf("failed to find %s: %w", record.recordType, err)
		}
		if err := insert(record.recordType, providerID, duration, achievedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// dashboardRunDates lists the distinct UTC dates of the user's qualifying
// runs.
func (db *DB) dashboardRunDates(userID string) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT DISTINCT DATE(start_date, 'unixepoch')
		FROM activities
		WHERE user_id = ? AND `+dashboardRunFilter+`
		ORDER BY 1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("failed to scan run date: %w", err)
		}
		dates = append(dates, date)
	}
	return dates, rows.Err()
}

// GetWeeklyRollup retrieves one weekly bucket, nil when absent
func (db *DB) GetWeeklyRollup(userID, periodStart string) (*Rollup, error) {
	return db.getRollup(userID, "weekly_rollups", periodStart)
}

// GetMonthlyRollup retrieves one monthly bucket, nil when absent
func (db *DB) GetMonthlyRollup(userID, periodStart string) (*Rollup, error) {
	return db.getRollup(userID, "monthly_rollups", periodStart)
}

func (db *DB) getRollup(userID, table, periodStart string) (*Rollup, error) {
	var r Rollup
	err := db.conn.QueryRow(`
		SELECT user_id, period_start, run_count, total_distance_m, total_elapsed_s, total_moving_s, average_pace_s_per_km
		FROM `+table+` WHERE user_id = ? AND period_start = ?
	`, userID, periodStart).Scan(
		&r.UserID, &r.PeriodStart, &r.RunCount, &r.TotalDistanceM, &r.TotalElapsedS, &r.TotalMovingS, &r.AveragePaceSPerKm,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s bucket: %w", table, err)
	}
	return &r, nil
}

// ListPersonalRecords returns the user's records ordered by type
func (db *DB) ListPersonalRecords(userID string) ([]PersonalRecord, error) {
	rows, err := db.conn.Query(`
		SELECT user_id, record_type, provider_activity_id, value, achieved_at
		FROM personal_records WHERE user_id = ? ORDER BY record_type
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list personal records: %w", err)
	}
	defer rows.Close()

	var records []PersonalRecord
	for rows.Next() {
		var r PersonalRecord
		if err := rows.Scan(&r.UserID, &r.RecordType, &r.ProviderActivityID, &r.Value, &r.AchievedAt); err != nil {
			return nil, fmt.Errorf("failed to scan personal record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
