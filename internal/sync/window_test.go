package sync

import (
	"testing"
	"time"
)

func TestBuildInitialSyncWindow(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)
	window := BuildInitialSyncWindow(now)

	if window.Oldest != "2024-02-25" {
		t.Errorf("Expected oldest 2024-02-25, got %s", window.Oldest)
	}
	if window.Newest != "2024-03-10" {
		t.Errorf("Expected newest 2024-03-10, got %s", window.Newest)
	}
}

func TestBuildIncrementalSyncWindow(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	lastSync := time.Date(2024, 3, 3, 22, 15, 0, 0, time.UTC)

	window, err := BuildIncrementalSyncWindow(now, lastSync, "", "")
	if err != nil {
		t.Fatalf("Failed to build window: %v", err)
	}
	if window.Oldest != "2024-03-02" {
		t.Errorf("Expected oldest 2024-03-02 (one day overlap), got %s", window.Oldest)
	}
	if window.Newest != "2024-03-10" {
		t.Errorf("Expected newest 2024-03-10, got %s", window.Newest)
	}
}

func TestBuildIncrementalSyncWindowOverrides(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	lastSync := time.Date(2024, 3, 3, 22, 15, 0, 0, time.UTC)

	// Bare dates.
	window, err := BuildIncrementalSyncWindow(now, lastSync, "2024-01-01", "2024-02-01")
	if err != nil {
		t.Fatalf("Failed to build window: %v", err)
	}
	if window.Oldest != "2024-01-01" || window.Newest != "2024-02-01" {
		t.Errorf("Expected overridden window, got %s", window.String())
	}

	// Timestamps normalize to dates.
	window, err = BuildIncrementalSyncWindow(now, lastSync, "2024-01-15T14:30:00Z", "")
	if err != nil {
		t.Fatalf("Failed to build window: %v", err)
	}
	if window.Oldest != "2024-01-15" {
		t.Errorf("Expected oldest 2024-01-15, got %s", window.Oldest)
	}
	if window.Newest != "2024-03-10" {
		t.Errorf("Expected default newest 2024-03-10, got %s", window.Newest)
	}
}

func TestBuildIncrementalSyncWindowInvalidOverride(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	lastSync := time.Date(2024, 3, 3, 22, 15, 0, 0, time.UTC)

	for _, bad := range []string{"not-a-date", "03/10/2024", "2024-13-45"} {
		_, err := BuildIncrementalSyncWindow(now, lastSync, bad, "")
		if err == nil {
			t.Errorf("Expected error for override %q", bad)
			continue
		}
		if StatusCode(err) != 400 {
			t.Errorf("Expected status 400 for override %q, got %d", bad, StatusCode(err))
		}
	}
}

func TestWindowBounds(t *testing.T) {
	window := Window{Oldest: "2024-03-02", Newest: "2024-03-10"}
	after, before, err := window.Bounds()
	if err != nil {
		t.Fatalf("Failed to compute bounds: %v", err)
	}
	if !after.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected after at midnight of oldest, got %v", after)
	}
	// The newest day is covered in full.
	if !before.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected before at midnight after newest, got %v", before)
	}
}
