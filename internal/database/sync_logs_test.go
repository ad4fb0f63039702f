package database

import (
	"testing"
	"time"
)

func TestSyncLogLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	id, err := db.CreateSyncLogStarted("user-1")
	if err != nil {
		t.Fatalf("Failed to create sync log: %v", err)
	}

	log, err := db.GetSyncLog(id)
	if err != nil {
		t.Fatalf("Failed to get sync log: %v", err)
	}
	if log == nil {
		t.Fatal("Expected sync log, got nil")
	}
	if log.Status != SyncStatusStarted {
		t.Errorf("Expected status started, got %s", log.Status)
	}
	if log.CompletedAt != nil {
		t.Error("Expected no completion time on a started log")
	}

	if err := db.CompleteSyncLogSuccess(id, 7); err != nil {
		t.Fatalf("Failed to complete sync log: %v", err)
	}

	log, err = db.GetSyncLog(id)
	if err != nil {
		t.Fatalf("Failed to get sync log: %v", err)
	}
	if log.Status != SyncStatusSuccess {
		t.Errorf("Expected status success, got %s", log.Status)
	}
	if log.FetchedActivityCount != 7 {
		t.Errorf("Expected 7 fetched activities, got %d", log.FetchedActivityCount)
	}
	if log.CompletedAt == nil {
		t.Error("Expected completion time to be set")
	}

	// A finalized log cannot be finalized again.
	if err := db.CompleteSyncLogFailed(id, "too late"); err == nil {
		t.Error("Expected error finalizing an already-finalized log")
	}
}

func TestCompleteSyncLogFailed(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	id, err := db.CreateSyncLogStarted("user-1")
	if err != nil {
		t.Fatalf("Failed to create sync log: %v", err)
	}

	if err := db.CompleteSyncLogFailed(id, "upstream returned 503"); err != nil {
		t.Fatalf("Failed to fail sync log: %v", err)
	}

	log, err := db.GetSyncLog(id)
	if err != nil {
		t.Fatalf("Failed to get sync log: %v", err)
	}
	if log.Status != SyncStatusFailed {
		t.Errorf("Expected status failed, got %s", log.Status)
	}
	if log.Error == nil || *log.Error != "upstream returned 503" {
		t.Errorf("Expected error message to be recorded, got %v", log.Error)
	}
}

func TestLastSuccessfulSync(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	last, err := db.LastSuccessfulSync("user-1")
	if err != nil {
		t.Fatalf("Failed to query last sync: %v", err)
	}
	if last != nil {
		t.Errorf("Expected nil before any sync, got %v", last)
	}

	// A failed attempt does not count.
	id, err := db.CreateSyncLogStarted("user-1")
	if err != nil {
		t.Fatalf("Failed to create sync log: %v", err)
	}
	if err := db.CompleteSyncLogFailed(id, "boom"); err != nil {
		t.Fatalf("Failed to fail sync log: %v", err)
	}
	last, err = db.LastSuccessfulSync("user-1")
	if err != nil {
		t.Fatalf("Failed to query last sync: %v", err)
	}
	if last != nil {
		t.Errorf("Expected nil after only failed syncs, got %v", last)
	}

	before := time.Now().Add(-time.Second)
	id, err = db.CreateSyncLogStarted("user-1")
	if err != nil {
		t.Fatalf("Failed to create sync log: %v", err)
	}
	if err := db.CompleteSyncLogSuccess(id, 3); err != nil {
		t.Fatalf("Failed to complete sync log: %v", err)
	}

	last, err = db.LastSuccessfulSync("user-1")
	if err != nil {
		t.Fatalf("Failed to query last sync: %v", err)
	}
	if last == nil {
		t.Fatal("Expected a last successful sync")
	}
	if last.Before(before) {
		t.Errorf("Expected last sync at or after %v, got %v", before, last)
	}

	// Another user's syncs are invisible.
	other, err := db.LastSuccessfulSync("user-2")
	if err != nil {
		t.Fatalf("Failed to query last sync: %v", err)
	}
	if other != nil {
		t.Errorf("Expected nil for other user, got %v", other)
	}
}

func TestListRecentSyncLogs(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	for i := 0; i < 3; i++ {
		id, err := db.CreateSyncLogStarted("user-1")
		if err != nil {
			t.Fatalf("Failed to create sync log: %v", err)
		}
		if err := db.CompleteSyncLogSuccess(id, i); err != nil {
			t.Fatalf("Failed to complete sync log: %v", err)
		}
	}

	logs, err := db.ListRecentSyncLogs("user-1", 2)
	if err != nil {
		t.Fatalf("Failed to list sync logs: %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("Expected 2 logs, got %d", len(logs))
	}
}
