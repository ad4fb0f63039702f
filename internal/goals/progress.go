// Package goals holds the pure rules for goal progress, completion, and
// weekly streak continuity. It has no database or network dependencies so
// the persistence layer can recompute against it freely.
package goals

import "time"

// Type is what a goal measures.
type Type string

const (
	TypeDistance  Type = "distance"  // total meters in the period
	TypeFrequency Type = "frequency" // run count in the period
	TypePace      Type = "pace"      // seconds per km, lower is better
)

// Cadence is the period a goal is evaluated over.
type Cadence string

const (
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// MaxStreakWeeks bounds the backward streak scan.
const MaxStreakWeeks = 156

// PeriodMetrics aggregates run activities within one goal period.
type PeriodMetrics struct {
	DistanceMeters float64
	Frequency      int
	PaceSecPerKm   float64
}

// MetricsFromTotals derives period metrics from raw activity totals.
// Pace is total elapsed seconds over total kilometers, or 0 when no
// distance was covered.
func MetricsFromTotals(distanceMeters float64, elapsedSec int64, count int) PeriodMetrics {
	m := PeriodMetrics{
		DistanceMeters: distanceMeters,
		Frequency:      count,
	}
	if distanceMeters > 0 {
		m.PaceSecPerKm = float64(elapsedSec) / (distanceMeters / 1000)
	}
	return m
}

// CurrentValue selects the metric a goal of the given type tracks.
func CurrentValue(t Type, m PeriodMetrics) float64 {
	switch t {
	case TypeDistance:
		return m.DistanceMeters
	case TypeFrequency:
		return float64(m.Frequency)
	case TypePace:
		return m.PaceSecPerKm
	default:
		return 0
	}
}

// IsComplete reports whether the current value satisfies the target.
// Distance and frequency complete at or above the target; pace completes
// at or below it, but only once there is a real pace to compare.
func IsComplete(t Type, target, current float64) bool {
	if target <= 0 {
		return false
	}
	switch t {
	case TypeDistance, TypeFrequency:
		return current >= target
	case TypePace:
		return current > 0 && current <= target
	default:
		return false
	}
}

// ProgressRatio is the unclamped progress toward the target. Callers clamp
// to [0, 1] for display.
func ProgressRatio(t Type, target, current float64) float64 {
	if target <= 0 {
		return 0
	}
	switch t {
	case TypeDistance, TypeFrequency:
		return current / target
	case TypePace:
		if current <= 0 {
			return 0
		}
		return target / current
	default:
		return 0
	}
}

// WeekStart truncates t to the Monday of its ISO week, date only.
func WeekStart(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the preceding Monday
	}
	return t.AddDate(0, 0, -(weekday - 1))
}

// MonthStart truncates t to the first of its calendar month, date only.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// PeriodBounds returns the half-open [start, end) interval containing t
// for the given cadence.
func PeriodBounds(c Cadence, t time.Time) (time.Time, time.Time) {
	switch c {
	case CadenceMonthly:
		start := MonthStart(t)
		return start, start.AddDate(0, 1, 0)
	default:
		start := WeekStart(t)
		return start, start.AddDate(0, 0, 7)
	}
}

// CurrentWeeklyStreakWeeks counts consecutive completed weeks walking
// backward from the current week (when includeCurrentWeek) or the prior
// week. completedWeeks is keyed by week start date in "2006-01-02" form.
// The scan stops at the first incomplete or missing week, or after
// MaxStreakWeeks.
func CurrentWeeklyStreakWeeks(completedWeeks map[string]bool, now time.Time, includeCurrentWeek bool) int {
	week := WeekStart(now)
	if !includeCurrentWeek {
		week = week.AddDate(0, 0, -7)
	}

	streak := 0
	for streak < MaxStreakWeeks {
		if !completedWeeks[week.Format("2006-01-02")] {
			break
		}
		streak++
		week = week.AddDate(0, 0, -7)
	}
	return streak
}
