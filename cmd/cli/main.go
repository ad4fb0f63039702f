package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"stridelog-strava-sync/internal/config"
	"stridelog-strava-sync/internal/database"
	"stridelog-strava-sync/internal/strava"
	"stridelog-strava-sync/internal/sync"
)

func main() {
	// Disable structured logging for CLI
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors
	})))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	if command == "help" {
		printUsage()
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Open database
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize database: %v\n", err)
		os.Exit(1)
	}

	// Create Strava client and orchestrator
	client := strava.NewClient(db, slog.Default())
	if cfg.StravaBaseURL != "" {
		client.SetBaseURL(cfg.StravaBaseURL)
	}
	orchestrator := sync.NewOrchestrator(db, client, slog.Default())

	switch command {
	case "status":
		handleStatus(orchestrator)
	case "connect":
		handleConnect(orchestrator)
	case "sync":
		handleSync(orchestrator)
	case "backfill":
		handleBackfill(orchestrator)
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`stridelog-strava-sync CLI - Activity Sync Management

Usage:
  cli <command> [options]

Commands:
  status <user_id>                      Show connection status and recent syncs
  connect <user_id> <athlete_id>        Connect an athlete and bootstrap activities
  sync <user_id> [oldest] [newest]      Run an incremental sync, optionally overriding the window
  backfill                              Recompute dashboard rollups for every connected user
  help                                  Show this help message

Examples:
  cli status u_123
  cli connect u_123 45789235
  cli sync u_123
  cli sync u_123 2024-03-01 2024-03-10
  cli backfill

Environment Variables Required:
  INTERNAL_API_KEY       - Internal API key (server endpoints)
  DATABASE_PATH          - SQLite database path (default: ./data.db)`)
}

func requireArg(position int, name string) string {
	if len(os.Args) <= position {
		fmt.Fprintf(os.Stderr, "Error: %s required\n", name)
		printUsage()
		os.Exit(1)
	}
	return os.Args[position]
}

func optionalArg(position int) string {
	if len(os.Args) <= position {
		return ""
	}
	return os.Args[position]
}

func handleStatus(orchestrator *sync.Orchestrator) {
	userID := requireArg(2, "user_id")

	status, err := orchestrator.GetConnectionStatus(userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !status.Connected {
		fmt.Printf("User %s has no connected athlete.\n", userID)
		return
	}

	fmt.Printf("User: %s\n", userID)
	fmt.Printf("  Athlete ID: %d\n", status.AthleteID)
	if status.LastSuccessfulSyncAt != nil {
		fmt.Printf("  Last successful sync: %s\n", status.LastSuccessfulSyncAt.UTC().Format(time.RFC3339))
	} else {
		fmt.Println("  Last successful sync: never")
	}

	if len(status.RecentSyncLogs) == 0 {
		return
	}

	fmt.Printf("\nRecent sync attempts:\n")
	for _, log := range status.RecentSyncLogs {
		line := fmt.Sprintf("  %s  %-9s  fetched=%d",
			time.Unix(log.StartedAt, 0).UTC().Format(time.RFC3339),
			log.Status,
			log.FetchedActivityCount)
		if log.Error != nil {
			line += "  error=" + *log.Error
		}
		fmt.Println(line)
	}
}

func handleConnect(orchestrator *sync.Orchestrator) {
	userID := requireArg(2, "user_id")
	athleteArg := requireArg(3, "athlete_id")

	var athleteID int64
	if _, err := fmt.Sscanf(athleteArg, "%d", &athleteID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid athlete ID: %s\n", athleteArg)
		os.Exit(1)
	}

	fmt.Printf("Connecting athlete %d for user %s...\n", athleteID, userID)

	result, err := orchestrator.ConnectAthleteAndBootstrapActivities(context.Background(), userID, athleteID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Athlete connected!")
	fmt.Printf("  Athlete: %s %s (ID %d)\n", result.Athlete.FirstName, result.Athlete.LastName, result.Athlete.ID)
	fmt.Printf("  Bootstrap window: %s\n", result.Window.String())
	fmt.Printf("  Activities fetched: %d\n", result.EventCount)
	fmt.Printf("  Activities saved: %d\n", result.SavedActivityCount)
}

func handleSync(orchestrator *sync.Orchestrator) {
	userID := requireArg(2, "user_id")
	oldest := optionalArg(3)
	newest := optionalArg(4)

	fmt.Printf("Running incremental sync for %s...\n", userID)

	result, err := orchestrator.SyncActivitiesIncremental(context.Background(), userID, oldest, newest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Sync complete!")
	fmt.Printf("  Window: %s\n", result.Window.String())
	fmt.Printf("  Activities fetched: %d\n", result.EventCount)
	fmt.Printf("  Activities saved: %d\n", result.SavedActivityCount)
}

func handleBackfill(orchestrator *sync.Orchestrator) {
	fmt.Println("Recomputing dashboard rollups for all connected users...")

	count, err := orchestrator.BackfillDashboardRollups(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Recomputed rollups for %d user(s)\n", count)
}
