package database

// Schema contains all SQL statements for creating tables and indexes
const Schema = `
-- Provider credentials: written by the product's OAuth layer, read here.
-- Token refresh happens outside this engine.
CREATE TABLE IF NOT EXISTS provider_credentials (
    user_id TEXT PRIMARY KEY,
    athlete_id INTEGER NOT NULL,
    access_token TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Athlete profiles: one row per (user, provider athlete). The connected
-- athlete for a user is the most recently updated row.
CREATE TABLE IF NOT EXISTS athlete_profiles (
    user_id TEXT NOT NULL,
    athlete_id INTEGER NOT NULL,

    username TEXT,
    first_name TEXT,
    last_name TEXT,
    sex TEXT,
    weight_kg REAL,
    profile_json TEXT,

    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    PRIMARY KEY (user_id, athlete_id)
);

-- Sync logs: append-only audit trail of sync attempts. A row is created
-- as 'started' before any upstream call and finalized exactly once.
CREATE TABLE IF NOT EXISTS sync_logs (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('started', 'success', 'failed')),
    started_at INTEGER NOT NULL,
    completed_at INTEGER,
    fetched_activity_count INTEGER NOT NULL DEFAULT 0,
    error TEXT
);

-- Activities: the single source of truth all derived tables are computed
-- from. One row per (user, provider activity id).
CREATE TABLE IF NOT EXISTS activities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    athlete_id INTEGER NOT NULL,
    provider_activity_id INTEGER NOT NULL,

    name TEXT,
    sport_type TEXT,
    start_date INTEGER,  -- Unix timestamp

    distance_m REAL NOT NULL DEFAULT 0,
    elapsed_time_s INTEGER NOT NULL DEFAULT 0,
    moving_time_s INTEGER NOT NULL DEFAULT 0,
    average_speed_mps REAL,
    max_speed_mps REAL,
    average_heartrate REAL,
    max_heartrate REAL,
    average_cadence REAL,
    suffer_score REAL,
    calories REAL,

    -- JSON blobs
    map_json TEXT,
    hr_zones_json TEXT,
    splits_json TEXT,
    intervals_json TEXT,
    raw_json TEXT,

    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    UNIQUE (user_id, provider_activity_id)
);

-- Children of activities: always written as a complete set per activity
-- per sync (delete-then-reinsert), never merged.
CREATE TABLE IF NOT EXISTS activity_intervals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    activity_id INTEGER NOT NULL,
    sequence INTEGER NOT NULL,
    distance_m REAL NOT NULL,
    elapsed_time_s INTEGER NOT NULL,
    moving_time_s INTEGER NOT NULL,
    average_speed_mps REAL,
    average_heartrate REAL,

    FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS activity_streams (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    activity_id INTEGER NOT NULL,
    stream_type TEXT NOT NULL,
    data_json TEXT NOT NULL,
    original_size INTEGER NOT NULL DEFAULT 0,
    resolution TEXT,

    FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS activity_best_efforts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    activity_id INTEGER NOT NULL,
    target_m REAL NOT NULL,
    start_index INTEGER NOT NULL,
    end_index INTEGER NOT NULL,
    duration_s INTEGER NOT NULL,

    FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE
);

-- Derived rollups: a row exists iff at least one qualifying run activity
-- falls in that period.
CREATE TABLE IF NOT EXISTS weekly_rollups (
    user_id TEXT NOT NULL,
    period_start TEXT NOT NULL,  -- yyyy-MM-dd, Monday
    run_count INTEGER NOT NULL,
    total_distance_m REAL NOT NULL,
    total_elapsed_s INTEGER NOT NULL,
    total_moving_s INTEGER NOT NULL,
    average_pace_s_per_km REAL NOT NULL,

    PRIMARY KEY (user_id, period_start)
);

CREATE TABLE IF NOT EXISTS monthly_rollups (
    user_id TEXT NOT NULL,
    period_start TEXT NOT NULL,  -- yyyy-MM-dd, first of month
    run_count INTEGER NOT NULL,
    total_distance_m REAL NOT NULL,
    total_elapsed_s INTEGER NOT NULL,
    total_moving_s INTEGER NOT NULL,
    average_pace_s_per_km REAL NOT NULL,

    PRIMARY KEY (user_id, period_start)
);

-- Personal records: fully replaced per user on every recomputation.
CREATE TABLE IF NOT EXISTS personal_records (
    user_id TEXT NOT NULL,
    record_type TEXT NOT NULL,
    provider_activity_id INTEGER NOT NULL,
    value REAL NOT NULL,  -- seconds for fastest-* records, meters for longest_run
    achieved_at INTEGER,

    PRIMARY KEY (user_id, record_type)
);

-- Goals: at most one per (user, type, cadence); recreating an archived
-- goal reactivates the row.
CREATE TABLE IF NOT EXISTS goals (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    goal_type TEXT NOT NULL CHECK (goal_type IN ('distance', 'frequency', 'pace')),
    cadence TEXT NOT NULL CHECK (cadence IN ('weekly', 'monthly')),
    target_value REAL NOT NULL,
    created_at INTEGER NOT NULL,
    abandoned_at INTEGER,

    UNIQUE (user_id, goal_type, cadence)
);

-- Goal progress: one derived row per (goal, period start).
CREATE TABLE IF NOT EXISTS goal_progress (
    goal_id TEXT NOT NULL,
    period_start TEXT NOT NULL,  -- yyyy-MM-dd
    current_value REAL NOT NULL,
    completed_at INTEGER,

    PRIMARY KEY (goal_id, period_start),
    FOREIGN KEY (goal_id) REFERENCES goals(id) ON DELETE CASCADE
);

-- Goal streaks: at most one active (ended_at IS NULL) streak per user.
CREATE TABLE IF NOT EXISTS goal_streaks (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    goal_id TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    length_weeks INTEGER NOT NULL DEFAULT 0,
    ended_at INTEGER,

    FOREIGN KEY (goal_id) REFERENCES goals(id) ON DELETE CASCADE
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_athlete_profiles_user_updated ON athlete_profiles(user_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_sync_logs_user_started ON sync_logs(user_id, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_sync_logs_user_status ON sync_logs(user_id, status);
CREATE INDEX IF NOT EXISTS idx_activities_user_start ON activities(user_id, start_date DESC);
CREATE INDEX IF NOT EXISTS idx_activities_user_type ON activities(user_id, sport_type);
CREATE INDEX IF NOT EXISTS idx_activity_intervals_activity ON activity_intervals(activity_id);
CREATE INDEX IF NOT EXISTS idx_activity_streams_activity ON activity_streams(activity_id);
CREATE INDEX IF NOT EXISTS idx_activity_best_efforts_activity ON activity_best_efforts(activity_id);
CREATE INDEX IF NOT EXISTS idx_goals_user ON goals(user_id);
CREATE INDEX IF NOT EXISTS idx_goal_streaks_user_active ON goal_streaks(user_id) WHERE ended_at IS NULL;
`
