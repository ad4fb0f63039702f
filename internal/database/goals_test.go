package database

import (
	"errors"
	"testing"
	"time"

	"stridelog-strava-sync/internal/goals"
)

func TestCreateGoalValidation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if _, err := db.CreateGoal("user-1", "sleep", goals.CadenceWeekly, 10); err == nil {
		t.Error("Expected error for invalid goal type")
	}
	if _, err := db.CreateGoal("user-1", goals.TypeDistance, "daily", 10); err == nil {
		t.Error("Expected error for invalid cadence")
	}
	if _, err := db.CreateGoal("user-1", goals.TypeDistance, goals.CadenceWeekly, 0); err == nil {
		t.Error("Expected error for non-positive target")
	}
}

func TestDuplicateActiveGoalRejected(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if _, err := db.CreateGoal("user-1", goals.TypeDistance, goals.CadenceWeekly, 20000); err != nil {
		t.Fatalf("Failed to create goal: %v", err)
	}

	_, err := db.CreateGoal("user-1", goals.TypeDistance, goals.CadenceWeekly, 30000)
	if !errors.Is(err, ErrGoalExists) {
		t.Errorf("Expected ErrGoalExists, got %v", err)
	}

	// Different cadence is a different key.
	if _, err := db.CreateGoal("user-1", goals.TypeDistance, goals.CadenceMonthly, 80000); err != nil {
		t.Errorf("Expected monthly goal to be allowed, got %v", err)
	}
}

func TestArchiveAndRecreateGoal(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	created, err := db.CreateGoal("user-1", goals.TypeFrequency, goals.CadenceWeekly, 3)
	if err != nil {
		t.Fatalf("Failed to create goal: %v", err)
	}

	streak, err := db.EnableGoalStreak(created.ID)
	if err != nil {
		t.Fatalf("Failed to enable streak: %v", err)
	}

	if err := db.ArchiveGoal(created.ID); err != nil {
		t.Fatalf("Failed to archive goal: %v", err)
	}

	archived, err := db.GetGoal(created.ID)
	if err != nil {
		t.Fatalf("Failed to get goal: %v", err)
	}
	if archived.Active() {
		t.Error("Expected goal to be archived")
	}

	// Archiving ends the attached streak.
	var endedAt *int64
	err = db.conn.QueryRow(`SELECT ended_at FROM goal_streaks WHERE id = ?`, streak.ID).Scan(&endedAt)
	if err != nil {
		t.Fatalf("Failed to read streak: %v", err)
	}
	if endedAt == nil {
		t.Error("Expected streak to be ended by archive")
	}

	// Archiving twice is an error.
	if err := db.ArchiveGoal(created.ID); !errors.Is(err, ErrGoalNotFound) {
		t.Errorf("Expected ErrGoalNotFound on double archive, got %v", err)
	}

	// Recreating the same key reactivates the same row.
	recreated, err := db.CreateGoal("user-1", goals.TypeFrequency, goals.CadenceWeekly, 4)
	if err != nil {
		t.Fatalf("Failed to recreate goal: %v", err)
	}
	if recreated.ID != created.ID {
		t.Errorf("Expected reactivated goal to keep id %s, got %s", created.ID, recreated.ID)
	}
	if !recreated.Active() {
		t.Error("Expected recreated goal to be active")
	}
	if recreated.TargetValue != 4 {
		t.Errorf("Expected updated target 4, got %v", recreated.TargetValue)
	}

	list, err := db.ListGoals("user-1", true)
	if err != nil {
		t.Fatalf("Failed to list goals: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected a single goal row after recreate, got %d", len(list))
	}
}

func TestGoalProgressMonotonicity(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	goal, err := db.CreateGoal("user-1", goals.TypeDistance, goals.CadenceWeekly, 10000)
	if err != nil {
		t.Fatalf("Failed to create goal: %v", err)
	}

	week := goals.WeekStart(time.Now().UTC())
	periodStart := week.Format("2006-01-02")

	result, err := db.UpsertActivities("user-1", 12345, []ActivityUpsert{
		runUpsert(1, week.Add(7*time.Hour), 4000, 1200),
	})
	if err != nil {
		t.Fatalf("Failed to upsert activity: %v", err)
	}
	if err := db.RecomputeDashboardRunRollups("user-1", result.AffectedDates); err != nil {
		t.Fatalf("Failed to recompute: %v", err)
	}

	progress, err := db.GetGoalProgress(goal.ID, periodStart)
	if err != nil {
		t.Fatalf("Failed to get progress: %v", err)
	}
	if progress == nil || progress.CurrentValue != 4000 {
		t.Fatalf("Expected progress 4000, got %+v", progress)
	}
	if progress.CompletedAt != nil {
		t.Error("Expected goal not yet complete")
	}

	result, err = db.UpsertActivities("user-1", 12345, []ActivityUpsert{
		runUpsert(2, week.Add(31*time.Hour), 7000, 2100),
	})
	if err != nil {
		t.Fatalf("Failed to upsert activity: %v", err)
	}
	if err := db.RecomputeDashboardRunRollups("user-1", result.AffectedDates); err != nil {
		t.Fatalf("Failed to recompute: %v", err)
	}

	updated, err := db.GetGoalProgress(goal.ID, periodStart)
	if err != nil {
		t.Fatalf("Failed to get progress: %v", err)
	}
	if updated.CurrentValue < progress.CurrentValue {
		t.Errorf("Progress decreased from %v to %v", progress.CurrentValue, updated.CurrentValue)
	}
	if updated.CurrentValue != 11000 {
		t.Errorf("Expected progress 11000, got %v", updated.CurrentValue)
	}
	if updated.CompletedAt == nil {
		t.Error("Expected goal completed at 11000/10000")
	}
}

func TestEnableGoalStreak(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	distance, err := db.CreateGoal("user-1", goals.TypeDistance, goals.CadenceWeekly, 10000)
	if err != nil {
		t.Fatalf("Failed to create distance goal: %v", err)
	}
	if _, err := db.EnableGoalStreak(distance.ID); err == nil {
		t.Error("Expected streaks to be limited to frequency goals")
	}

	frequency, err := db.CreateGoal("user-1", goals.TypeFrequency, goals.CadenceWeekly, 1)
	if err != nil {
		t.Fatalf("Failed to create frequency goal: %v", err)
	}
	streak, err := db.EnableGoalStreak(frequency.ID)
	if err != nil {
		t.Fatalf("Failed to enable streak: %v", err)
	}
	if streak.LengthWeeks != 0 {
		t.Errorf("Expected empty streak, got %d weeks", streak.LengthWeeks)
	}

	// One active streak per user.
	other, err := db.CreateGoal("user-2", goals.TypeFrequency, goals.CadenceWeekly, 2)
	if err != nil {
		t.Fatalf("Failed to create goal for other user: %v", err)
	}
	if _, err := db.EnableGoalStreak(other.ID); err != nil {
		t.Errorf("Expected other user's streak to be allowed, got %v", err)
	}
	if _, err := db.EnableGoalStreak(frequency.ID); !errors.Is(err, ErrStreakExists) {
		t.Errorf("Expected ErrStreakExists for second streak, got %v", err)
	}
}

func TestStreakGrowsWithCompletedWeeks(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	goal, err := db.CreateGoal("user-1", goals.TypeFrequency, goals.CadenceWeekly, 1)
	if err != nil {
		t.Fatalf("Failed to create goal: %v", err)
	}

	// One run in each of the three weeks before the current one.
	week := goals.WeekStart(time.Now().UTC())
	var batch []ActivityUpsert
	for i := 1; i <= 3; i++ {
		start := week.AddDate(0, 0, -7*i).Add(8 * time.Hour)
		batch = append(batch, runUpsert(int64(i), start, 5000, 1500))
	}
	result, err := db.UpsertActivities("user-1", 12345, batch)
	if err != nil {
		t.Fatalf("Failed to upsert activities: %v", err)
	}
	if err := db.RecomputeDashboardRunRollups("user-1", result.AffectedDates); err != nil {
		t.Fatalf("Failed to recompute: %v", err)
	}

	streak, err := db.EnableGoalStreak(goal.ID)
	if err != nil {
		t.Fatalf("Failed to enable streak: %v", err)
	}
	if streak.LengthWeeks != 3 {
		t.Errorf("Expected streak of 3 completed weeks, got %d", streak.LengthWeeks)
	}

	// Completing the current week extends the streak to 4.
	result, err = db.UpsertActivities("user-1", 12345, []ActivityUpsert{
		runUpsert(10, week.Add(8*time.Hour), 5000, 1500),
	})
	if err != nil {
		t.Fatalf("Failed to upsert activity: %v", err)
	}
	if err := db.RecomputeDashboardRunRollups("user-1", result.AffectedDates); err != nil {
		t.Fatalf("Failed to recompute: %v", err)
	}

	active, err := db.GetActiveStreak("user-1")
	if err != nil {
		t.Fatalf("Failed to get active streak: %v", err)
	}
	if active == nil || active.LengthWeeks != 4 {
		t.Errorf("Expected streak of 4 after completing current week, got %+v", active)
	}
}
