package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stridelog-strava-sync/internal/metrics"
)

// AthleteProfile is one (user, provider athlete) pairing
type AthleteProfile struct {
	UserID      string
	AthleteID   int64
	Username    string
	FirstName   string
	LastName    string
	Sex         string
	WeightKg    float64
	ProfileJSON *string
	CreatedAt   int64
	UpdatedAt   int64
}

// UpsertAthleteProfile inserts or refreshes the profile row for
// (user, athlete). Every successful profile fetch lands here, so the most
// recently updated row identifies the connected athlete.
func (db *DB) UpsertAthleteProfile(p *AthleteProfile) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertProfile))
	defer timer.ObserveDuration()

	now := time.Now().Unix()

	_, err := db.conn.Exec(`
		INSERT INTO athlete_profiles (
			user_id, athlete_id, username, first_name, last_name, sex,
			weight_kg, profile_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, athlete_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			sex = excluded.sex,
			weight_kg = excluded.weight_kg,
			profile_json = excluded.profile_json,
			updated_at = excluded.updated_at
	`, p.UserID, p.AthleteID, p.Username, p.FirstName, p.LastName, p.Sex,
		p.WeightKg, p.ProfileJSON, now, now)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertProfile).Inc()
		return fmt.Errorf("failed to upsert athlete profile: %w", err)
	}
	return nil
}

// GetAthleteProfile retrieves one profile row
func (db *DB) GetAthleteProfile(userID string, athleteID int64) (*AthleteProfile, error) {
	var p AthleteProfile
	err := db.conn.QueryRow(`
		SELECT user_id, athlete_id, username, first_name, last_name, sex,
		       weight_kg, profile_json, created_at, updated_at
		FROM athlete_profiles WHERE user_id = ? AND athlete_id = ?
	`, userID, athleteID).Scan(
		&p.UserID, &p.AthleteID, &p.Username, &p.FirstName, &p.LastName, &p.Sex,
		&p.WeightKg, &p.ProfileJSON, &p.CreatedAt, &p.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get athlete profile: %w", err)
	}
	return &p, nil
}

// ConnectedAthleteID returns the athlete id of the user's most recently
// updated profile. The second return is false when the user has never
// connected.
func (db *DB) ConnectedAthleteID(userID string) (int64, bool, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpConnectedAthlete))
	defer timer.ObserveDuration()

	var athleteID int64
	err := db.conn.QueryRow(`
		SELECT athlete_id FROM athlete_profiles
		WHERE user_id = ?
		ORDER BY updated_at DESC, athlete_id DESC
		LIMIT 1
	`, userID).Scan(&athleteID)

	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpConnectedAthlete).Inc()
		return 0, false, fmt.Errorf("failed to get connected athlete: %w", err)
	}
	return athleteID, true, nil
}

// ListConnectedUserIDs returns every user with at least one athlete profile
func (db *DB) ListConnectedUserIDs() ([]string, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpListConnectedUsers))
	defer timer.ObserveDuration()

	rows, err := db.conn.Query(`SELECT DISTINCT user_id FROM athlete_profiles ORDER BY user_id`)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpListConnectedUsers).Inc()
		return nil, fmt.Errorf("failed to list connected users: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return userIDs, nil
}

// CountConnectedUsers returns the number of users with a profile
func (db *DB) CountConnectedUsers() (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(DISTINCT user_id) FROM athlete_profiles`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count connected users: %w", err)
	}
	return count, nil
}

// SetProviderCredential stores the working access token for a user. The
// product's OAuth layer owns acquisition and refresh; this engine only
// reads it back.
func (db *DB) SetProviderCredential(userID string, athleteID int64, accessToken string) error {
	_, err := db.conn.Exec(`
		INSERT INTO provider_credentials (user_id, athlete_id, access_token, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			access_token = excluded.access_token,
			updated_at = excluded.updated_at
	`, userID, athleteID, accessToken, time.Now().Unix())

	if err != nil {
		return fmt.Errorf("failed to set provider credential: %w", err)
	}
	return nil
}

// AccessToken implements the gateway's credential source contract
func (db *DB) AccessToken(_ context.Context, userID string) (string, error) {
	var token string
	err := db.conn.QueryRow(`
		SELECT access_token FROM provider_credentials WHERE user_id = ?
	`, userID).Scan(&token)

	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no provider credential for user %s", userID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get provider credential: %w", err)
	}
	return token, nil
}
