package sync

import (
	"fmt"
	"time"
)

const (
	// Bootstrap reaches two weeks back from the connect date.
	initialWindowDays = 14

	// Incremental windows start a day before the last successful sync to
	// tolerate upstream clock skew and late-arriving activities.
	incrementalOverlapDays = 1

	dateFormat = "2006-01-02"
)

// Window is the calendar-date range requested from the upstream provider
// for activity discovery. Both bounds are inclusive dates, never
// timestamps.
type Window struct {
	Oldest string
	Newest string
}

func (w Window) String() string {
	return w.Oldest + ".." + w.Newest
}

// Bounds converts the date window into the half-open UTC instant range
// covering every moment of both boundary days.
func (w Window) Bounds() (after, before time.Time, err error) {
	after, err = time.ParseInLocation(dateFormat, w.Oldest, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window oldest %q: %w", w.Oldest, err)
	}
	newest, err := time.ParseInLocation(dateFormat, w.Newest, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window newest %q: %w", w.Newest, err)
	}
	return after, newest.AddDate(0, 0, 1), nil
}

// BuildInitialSyncWindow is the bootstrap window for a fresh connection
func BuildInitialSyncWindow(now time.Time) Window {
	newest := now.UTC()
	oldest := newest.AddDate(0, 0, -initialWindowDays)
	return Window{
		Oldest: oldest.Format(dateFormat),
		Newest: newest.Format(dateFormat),
	}
}

// BuildIncrementalSyncWindow computes the window for an incremental sync.
// Newest defaults to now, oldest to a day before the last successful
// sync. Overrides accept a bare date or any parseable timestamp and are
// normalized to calendar dates.
func BuildIncrementalSyncWindow(now, lastSuccessfulSyncAt time.Time, oldestOverride, newestOverride string) (Window, error) {
	oldest := lastSuccessfulSyncAt.UTC().AddDate(0, 0, -incrementalOverlapDays)
	newest := now.UTC()

	if oldestOverride != "" {
		parsed, err := parseDateOverride(oldestOverride)
		if err != nil {
			return Window{}, &Error{Code: CodeInvalidDateRange, Message: "invalid oldest override", Cause: err}
		}
		oldest = parsed
	}
	if newestOverride != "" {
		parsed, err := parseDateOverride(newestOverride)
		if err != nil {
			return Window{}, &Error{Code: CodeInvalidDateRange, Message: "invalid newest override", Cause: err}
		}
		newest = parsed
	}

	return Window{
		Oldest: oldest.Format(dateFormat),
		Newest: newest.Format(dateFormat),
	}, nil
}

func parseDateOverride(value string) (time.Time, error) {
	for _, layout := range []string{dateFormat, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", value)
}
