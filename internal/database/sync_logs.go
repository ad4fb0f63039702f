package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"stridelog-strava-sync/internal/metrics"
)

// Sync log statuses
const (
	SyncStatusStarted = "started"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// SyncLog is one sync attempt
type SyncLog struct {
	ID                   string
	UserID               string
	Status               string
	StartedAt            int64
	CompletedAt          *int64
	FetchedActivityCount int
	Error                *string
}

// CreateSyncLogStarted opens a new sync attempt and returns its id
func (db *DB) CreateSyncLogStarted(userID string) (string, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpCreateSyncLog))
	defer timer.ObserveDuration()

	id := uuid.NewString()
	_, err := db.conn.Exec(`
		INSERT INTO sync_logs (id, user_id, status, started_at, fetched_activity_count)
		VALUES (?, ?, ?, ?, 0)
	`, id, userID, SyncStatusStarted, time.Now().Unix())

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCreateSyncLog).Inc()
		return "", fmt.Errorf("failed to create sync log: %w", err)
	}
	return id, nil
}

// CompleteSyncLogSuccess finalizes a started attempt as successful
func (db *DB) CompleteSyncLogSuccess(id string, fetchedActivityCount int) error {
	return db.completeSyncLog(id, SyncStatusSuccess, fetchedActivityCount, nil)
}

// CompleteSyncLogFailed finalizes a started attempt as failed with the
// causal message
func (db *DB) CompleteSyncLogFailed(id string, errorMessage string) error {
	return db.completeSyncLog(id, SyncStatusFailed, 0, &errorMessage)
}

func (db *DB) completeSyncLog(id, status string, fetchedActivityCount int, errorMessage *string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpCompleteSyncLog))
	defer timer.ObserveDuration()

	result, err := db.conn.Exec(`
		UPDATE sync_logs
		SET status = ?, completed_at = ?, fetched_activity_count = ?, error = ?
		WHERE id = ? AND status = ?
	`, status, time.Now().Unix(), fetchedActivityCount, errorMessage, id, SyncStatusStarted)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCompleteSyncLog).Inc()
		return fmt.Errorf("failed to complete sync log: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("sync log %s not found or already finalized", id)
	}
	return nil
}

// GetSyncLog retrieves one sync log row
func (db *DB) GetSyncLog(id string) (*SyncLog, error) {
	var l SyncLog
	err := db.conn.QueryRow(`
		SELECT id, user_id, status, started_at, completed_at, fetched_activity_count, error
		FROM sync_logs WHERE id = ?
	`, id).Scan(&l.ID, &l.UserID, &l.Status, &l.StartedAt, &l.CompletedAt, &l.FetchedActivityCount, &l.Error)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync log: %w", err)
	}
	return &l, nil
}

// LastSuccessfulSync returns the completion time of the user's most recent
// successful sync, or nil if none exists.
func (db *DB) LastSuccessfulSync(userID string) (*time.Time, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpLastSuccessfulSync))
	defer timer.ObserveDuration()

	var completedAt int64
	err := db.conn.QueryRow(`
		SELECT completed_at FROM sync_logs
		WHERE user_id = ? AND status = ? AND completed_at IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT 1
	`, userID, SyncStatusSuccess).Scan(&completedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpLastSuccessfulSync).Inc()
		return nil, fmt.Errorf("failed to get last successful sync: %w", err)
	}

	t := time.Unix(completedAt, 0).UTC()
	return &t, nil
}

// ListRecentSyncLogs returns the user's most recent attempts, newest first
func (db *DB) ListRecentSyncLogs(userID string, limit int) ([]*SyncLog, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.conn.Query(`
		SELECT id, user_id, status, started_at, completed_at, fetched_activity_count, error
		FROM sync_logs
		WHERE user_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*SyncLog
	for rows.Next() {
		var l SyncLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Status, &l.StartedAt, &l.CompletedAt,
			&l.FetchedActivityCount, &l.Error); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		logs = append(logs, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync logs: %w", err)
	}
	return logs, nil
}
