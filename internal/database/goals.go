package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"stridelog-strava-sync/internal/goals"
	"stridelog-strava-sync/internal/metrics"
)

var (
	ErrGoalExists   = errors.New("an active goal with this type and cadence already exists")
	ErrGoalNotFound = errors.New("goal not found")
	ErrStreakExists = errors.New("another active streak already exists for this user")
)

// Goal is one user-defined target
type Goal struct {
	ID          string
	UserID      string
	GoalType    goals.Type
	Cadence     goals.Cadence
	TargetValue float64
	CreatedAt   int64
	AbandonedAt *int64
}

// Active reports whether the goal has not been archived
func (g *Goal) Active() bool {
	return g.AbandonedAt == nil
}

// GoalProgress is one derived per-period progress row
type GoalProgress struct {
	GoalID       string
	PeriodStart  string
	CurrentValue float64
	CompletedAt  *int64
}

// GoalStreak tracks consecutive completed weeks for one weekly goal
type GoalStreak struct {
	ID          string
	UserID      string
	GoalID      string
	StartedAt   int64
	LengthWeeks int
	EndedAt     *int64
}

// CreateGoal creates a goal, or reactivates the archived goal with the
// same (type, cadence) key. An active goal with the same key is an error.
// Progress for the current period is computed immediately so a freshly
// created goal reflects runs already synced this period.
func (db *DB) CreateGoal(userID string, goalType goals.Type, cadence goals.Cadence, targetValue float64) (*Goal, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpCreateGoal))
	defer timer.ObserveDuration()

	switch goalType {
	case goals.TypeDistance, goals.TypeFrequency, goals.TypePace:
	default:
		return nil, fmt.Errorf("invalid goal type %q", goalType)
	}
	switch cadence {
	case goals.CadenceWeekly, goals.CadenceMonthly:
	default:
		return nil, fmt.Errorf("invalid goal cadence %q", cadence)
	}
	if targetValue <= 0 {
		return nil, fmt.Errorf("goal target must be positive, got %v", targetValue)
	}

	existing, err := db.goalByKey(userID, goalType, cadence)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	var goal *Goal

	switch {
	case existing == nil:
		goal = &Goal{
			ID:          uuid.NewString(),
			UserID:      userID,
			GoalType:    goalType,
			Cadence:     cadence,
			TargetValue: targetValue,
			CreatedAt:   now,
		}
		_, err = db.conn.Exec(`
			INSERT INTO goals (id, user_id, goal_type, cadence, target_value, created_at, abandoned_at)
			VALUES (?, ?, ?, ?, ?, ?, NULL)
		`, goal.ID, goal.UserID, string(goal.GoalType), string(goal.Cadence), goal.TargetValue, goal.CreatedAt)
		if err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCreateGoal).Inc()
			return nil, fmt.Errorf("failed to insert goal: %w", err)
		}

	case existing.Active():
		return nil, ErrGoalExists

	default:
		// Reactivate the archived row rather than duplicating the key.
		_, err = db.conn.Exec(`
			UPDATE goals SET target_value = ?, abandoned_at = NULL WHERE id = ?
		`, targetValue, existing.ID)
		if err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCreateGoal).Inc()
			return nil, fmt.Errorf("failed to reactivate goal: %w", err)
		}
		existing.TargetValue = targetValue
		existing.AbandonedAt = nil
		goal = existing
	}

	start, _ := goals.PeriodBounds(cadence, time.Now().UTC())
	if err := db.recomputeProgressForGoal(goal, []time.Time{start}); err != nil {
		return nil, err
	}

	return goal, nil
}

// ArchiveGoal marks a goal abandoned and ends any streak attached to it
func (db *DB) ArchiveGoal(goalID string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpArchiveGoal))
	defer timer.ObserveDuration()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	result, err := tx.Exec(`
		UPDATE goals SET abandoned_at = ? WHERE id = ? AND abandoned_at IS NULL
	`, now, goalID)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpArchiveGoal).Inc()
		return fmt.Errorf("failed to archive goal: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check archive result: %w", err)
	}
	if rows == 0 {
		return ErrGoalNotFound
	}

	if _, err := tx.Exec(`
		UPDATE goal_streaks SET ended_at = ? WHERE goal_id = ? AND ended_at IS NULL
	`, now, goalID); err != nil {
		return fmt.Errorf("failed to end streak: %w", err)
	}

	return tx.Commit()
}

// GetGoal retrieves one goal by id, nil when absent
func (db *DB) GetGoal(goalID string) (*Goal, error) {
	return db.scanGoal(db.conn.QueryRow(`
		SELECT id, user_id, goal_type, cadence, target_value, created_at, abandoned_at
		FROM goals WHERE id = ?
	`, goalID))
}

func (db *DB) goalByKey(userID string, goalType goals.Type, cadence goals.Cadence) (*Goal, error) {
	return db.scanGoal(db.conn.QueryRow(`
		SELECT id, user_id, goal_type, cadence, target_value, created_at, abandoned_at
		FROM goals WHERE user_id = ? AND goal_type = ? AND cadence = ?
	`, userID, string(goalType), string(cadence)))
}

func (db *DB) scanGoal(row *sql.Row) (*Goal, error) {
	var g Goal
	err := row.Scan(&g.ID, &g.UserID, &g.GoalType, &g.Cadence, &g.TargetValue, &g.CreatedAt, &g.AbandonedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan goal: %w", err)
	}
	return &g, nil
}

// ListGoals returns the user's goals, active first
func (db *DB) ListGoals(userID string, includeArchived bool) ([]Goal, error) {
	query := `
		SELECT id, user_id, goal_type, cadence, target_value, created_at, abandoned_at
		FROM goals WHERE user_id = ?
	`
	if !includeArchived {
		query += " AND abandoned_at IS NULL"
	}
	query += " ORDER BY abandoned_at IS NOT NULL, created_at"

	rows, err := db.conn.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var list []Goal
	for rows.Next() {
		var g Goal
		if err := rows.Scan(&g.ID, &g.UserID, &g.GoalType, &g.Cadence, &g.TargetValue, &g.CreatedAt, &g.AbandonedAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

// GetGoalProgress retrieves one progress row, nil when absent
func (db *DB) GetGoalProgress(goalID, periodStart string) (*GoalProgress, error) {
	var p GoalProgress
	err := db.conn.QueryRow(`
		SELECT goal_id, period_start, current_value, completed_at
		FROM goal_progress WHERE goal_id = ? AND period_start = ?
	`, goalID, periodStart).Scan(&p.GoalID, &p.PeriodStart, &p.CurrentValue, &p.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get goal progress: %w", err)
	}
	return &p, nil
}

// EnableGoalStreak starts streak tracking on a weekly frequency goal. A
// user may have at most one active streak; the initial length is computed
// from progress already persisted.
func (db *DB) EnableGoalStreak(goalID string) (*GoalStreak, error) {
	goal, err := db.GetGoal(goalID)
	if err != nil {
		return nil, err
	}
	if goal == nil || !goal.Active() {
		return nil, ErrGoalNotFound
	}
	if goal.Cadence != goals.CadenceWeekly || goal.GoalType != goals.TypeFrequency {
		return nil, fmt.Errorf("streaks require a weekly frequency goal, got %s %s", goal.Cadence, goal.GoalType)
	}

	var active int
	err = db.conn.QueryRow(`
		SELECT COUNT(*) FROM goal_streaks WHERE user_id = ? AND ended_at IS NULL
	`, goal.UserID).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("failed to check active streaks: %w", err)
	}
	if active > 0 {
		return nil, ErrStreakExists
	}

	length, err := db.currentStreakLength(goalID)
	if err != nil {
		return nil, err
	}

	streak := &GoalStreak{
		ID:          uuid.NewString(),
		UserID:      goal.UserID,
		GoalID:      goalID,
		StartedAt:   time.Now().Unix(),
		LengthWeeks: length,
	}
	_, err = db.conn.Exec(`
		INSERT INTO goal_streaks (id, user_id, goal_id, started_at, length_weeks, ended_at)
		VALUES (?, ?, ?, ?, ?, NULL)
	`, streak.ID, streak.UserID, streak.GoalID, streak.StartedAt, streak.LengthWeeks)
	if err != nil {
		return nil, fmt.Errorf("failed to insert streak: %w", err)
	}
	return streak, nil
}

// GetActiveStreak returns the user's active streak, nil when none
func (db *DB) GetActiveStreak(userID string) (*GoalStreak, error) {
	var s GoalStreak
	err := db.conn.QueryRow(`
		SELECT id, user_id, goal_id, started_at, length_weeks, ended_at
		FROM goal_streaks WHERE user_id = ? AND ended_at IS NULL
	`, userID).Scan(&s.ID, &s.UserID, &s.GoalID, &s.StartedAt, &s.LengthWeeks, &s.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active streak: %w", err)
	}
	return &s, nil
}

// recomputeGoalProgressForPeriods refreshes progress for the user's
// active goals in the touched periods, then updates any active streak.
func (db *DB) recomputeGoalProgressForPeriods(userID string, weeks, months []time.Time) error {
	active, err := db.ListGoals(userID, false)
	if err != nil {
		return err
	}

	for i := range active {
		goal := &active[i]
		var periods []time.Time
		if goal.Cadence == goals.CadenceWeekly {
			periods = weeks
		} else {
			periods = months
		}
		if err := db.recomputeProgressForGoal(goal, periods); err != nil {
			return err
		}
	}

	return db.refreshActiveStreak(userID)
}

// recomputeAllGoalProgress discards every progress row for the user's
// goals and rebuilds them for the given periods. Used by full rollup
// recomputation.
func (db *DB) recomputeAllGoalProgress(userID string, weeks, months []time.Time) error {
	if _, err := db.conn.Exec(`
		DELETE FROM goal_progress WHERE goal_id IN (SELECT id FROM goals WHERE user_id = ?)
	`, userID); err != nil {
		return fmt.Errorf("failed to clear goal progress: %w", err)
	}
	return db.recomputeGoalProgressForPeriods(userID, weeks, months)
}

// recomputeProgressForGoal rebuilds the progress rows for one goal over
// the given period starts. A completion timestamp is set the first time a
// period completes and preserved afterwards.
func (db *DB) recomputeProgressForGoal(goal *Goal, periods []time.Time) error {
	for _, start := range periods {
		var end time.Time
		if goal.Cadence == goals.CadenceWeekly {
			end = start.AddDate(0, 0, 7)
		} else {
			end = start.AddDate(0, 1, 0)
		}

		var (
			count         int
			totalDistance float64
			totalElapsed  int64
		)
		err := db.conn.QueryRow(`
			SELECT COUNT(*), COALESCE(SUM(distance_m), 0), COALESCE(SUM(elapsed_time_s), 0)
			FROM activities
			WHERE user_id = ? AND start_date >= ? AND start_date < ? AND `+dashboardRunFilter,
			goal.UserID, start.Unix(), end.Unix(),
		).Scan(&count, &totalDistance, &totalElapsed)
		if err != nil {
			return fmt.Errorf("failed to aggregate goal period: %w", err)
		}

		m := goals.MetricsFromTotals(totalDistance, totalElapsed, count)
		current := goals.CurrentValue(goal.GoalType, m)

		periodStart := start.Format("2006-01-02")

		var completedAt *int64
		if existing, err := db.GetGoalProgress(goal.ID, periodStart); err != nil {
			return err
		} else if existing != nil {
			completedAt = existing.CompletedAt
		}
		if completedAt == nil && goals.IsComplete(goal.GoalType, goal.TargetValue, current) {
			now := time.Now().Unix()
			completedAt = &now
		}

		if _, err := db.conn.Exec(`
			INSERT INTO goal_progress (goal_id, period_start, current_value, completed_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(goal_id, period_start) DO UPDATE SET
				current_value = excluded.current_value,
				completed_at = excluded.completed_at
		`, goal.ID, periodStart, current, completedAt); err != nil {
			return fmt.Errorf("failed to upsert goal progress: %w", err)
		}
	}
	return nil
}

// refreshActiveStreak recounts the user's active streak from the goal's
// persisted progress rows.
func (db *DB) refreshActiveStreak(userID string) error {
	streak, err := db.GetActiveStreak(userID)
	if err != nil {
		return err
	}
	if streak == nil {
		return nil
	}

	length, err := db.currentStreakLength(streak.GoalID)
	if err != nil {
		return err
	}
	if length == streak.LengthWeeks {
		return nil
	}

	if _, err := db.conn.Exec(`
		UPDATE goal_streaks SET length_weeks = ? WHERE id = ?
	`, length, streak.ID); err != nil {
		return fmt.Errorf("failed to update streak length: %w", err)
	}
	return nil
}

// currentStreakLength walks the goal's completed weeks backward from now
func (db *DB) currentStreakLength(goalID string) (int, error) {
	rows, err := db.conn.Query(`
		SELECT period_start FROM goal_progress
		WHERE goal_id = ? AND completed_at IS NOT NULL
	`, goalID)
	if err != nil {
		return 0, fmt.Errorf("failed to list completed weeks: %w", err)
	}
	defer rows.Close()

	completed := make(map[string]bool)
	for rows.Next() {
		var periodStart string
		if err := rows.Scan(&periodStart); err != nil {
			return 0, fmt.Errorf("failed to scan completed week: %w", err)
		}
		completed[periodStart] = true
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	includeCurrent := completed[goals.WeekStart(now).Format("2006-01-02")]
	return goals.CurrentWeeklyStreakWeeks(completed, now, includeCurrent), nil
}
