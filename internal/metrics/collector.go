package metrics

import (
	"context"
	"log/slog"
	"time"
)

// DB interface for connection gauge queries
type DB interface {
	CountConnectedUsers() (int, error)
	ListConnectedUserIDs() ([]string, error)
	LastSuccessfulSync(userID string) (*time.Time, error)
}

// StartConnectionGaugeCollector starts a background goroutine that
// periodically collects connection gauges from the database
func StartConnectionGaugeCollector(ctx context.Context, db DB, interval time.Duration) {
	logger := slog.Default()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect once immediately
	collectConnectionGauges(db, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Connection gauge collector stopping")
			return
		case <-ticker.C:
			collectConnectionGauges(db, logger)
		}
	}
}

func collectConnectionGauges(db DB, logger *slog.Logger) {
	if count, err := db.CountConnectedUsers(); err != nil {
		logger.Error("Failed to count connected users", "error", err)
	} else {
		ConnectedUsers.Set(float64(count))
	}

	users, err := db.ListConnectedUserIDs()
	if err != nil {
		logger.Error("Failed to list connected users", "error", err)
		return
	}

	// Gauge tracks the user furthest behind
	var oldest *time.Time
	for _, userID := range users {
		last, err := db.LastSuccessfulSync(userID)
		if err != nil {
			logger.Error("Failed to get last sync", "user_id", userID, "error", err)
			continue
		}
		if last == nil {
			continue
		}
		if oldest == nil || last.Before(*oldest) {
			oldest = last
		}
	}

	if oldest != nil {
		LastSyncAgeSeconds.Set(time.Since(*oldest).Seconds())
	} else {
		LastSyncAgeSeconds.Set(0)
	}
}
