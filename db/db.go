package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Import postgres driver
)

func Connect(dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database handle: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database within %v: %w (close also failed: %v)", timeout, err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database within %v: %w", timeout, err)
	}

	return db, nil
}

// Уникальные ограничения здесь несут инварианты домена:
// rating_history_player_match_key — не более одной записи рейтинга на (игрок, матч),
// match_rounds_slot_key — ровно один слот на (матч, игрок, раунд),
// queue_entries_player_key — не более одной активной записи очереди на игрока.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS player_ratings (
	player_id      BIGINT PRIMARY KEY,
	current_rating INT NOT NULL DEFAULT 1000,
	peak_rating    INT NOT NULL DEFAULT 1000,
	matches_played INT NOT NULL DEFAULT 0,
	wins           INT NOT NULL DEFAULT 0,
	losses         INT NOT NULL DEFAULT 0,
	draws          INT NOT NULL DEFAULT 0,
	last_active_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT player_ratings_floor_check CHECK (current_rating >= 100),
	CONSTRAINT player_ratings_peak_check CHECK (peak_rating >= current_rating)
);
CREATE INDEX IF NOT EXISTS idx_player_ratings_rating ON player_ratings(current_rating DESC);

CREATE TABLE IF NOT EXISTS matches (
	id               BIGSERIAL PRIMARY KEY,
	p1_id            BIGINT NOT NULL,
	p2_id            BIGINT,
	is_fallback      BOOLEAN NOT NULL DEFAULT FALSE,
	p1_role          TEXT NOT NULL DEFAULT '',
	p2_role          TEXT NOT NULL DEFAULT '',
	state            TEXT NOT NULL DEFAULT 'queued',
	p1_score         INT,
	p2_score         INT,
	winner_id        BIGINT,
	is_locked        BOOLEAN NOT NULL DEFAULT FALSE,
	rating_processed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at       TIMESTAMPTZ,
	finalized_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_matches_p1 ON matches(p1_id) WHERE state <> 'finalized';
CREATE INDEX IF NOT EXISTS idx_matches_p2 ON matches(p2_id) WHERE state <> 'finalized';

CREATE TABLE IF NOT EXISTS match_rounds (
	id           BIGSERIAL PRIMARY KEY,
	match_id     BIGINT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
	player_id    BIGINT NOT NULL,
	round_number SMALLINT NOT NULL CHECK (round_number BETWEEN 1 AND 3),
	content_ref  TEXT,
	score        INT CHECK (score IS NULL OR (score >= 0 AND score <= 10000)),
	is_submitted BOOLEAN NOT NULL DEFAULT FALSE,
	is_locked    BOOLEAN NOT NULL DEFAULT FALSE,
	submitted_at TIMESTAMPTZ,
	CONSTRAINT match_rounds_slot_key UNIQUE (match_id, player_id, round_number)
);

CREATE TABLE IF NOT EXISTS rating_history (
	id              BIGSERIAL PRIMARY KEY,
	player_id       BIGINT NOT NULL REFERENCES player_ratings(player_id),
	match_id        BIGINT NOT NULL REFERENCES matches(id),
	old_rating      INT NOT NULL,
	new_rating      INT NOT NULL,
	delta           INT NOT NULL,
	opponent_rating INT NOT NULL,
	result          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT rating_history_player_match_key UNIQUE (player_id, match_id)
);
CREATE INDEX IF NOT EXISTS idx_rating_history_player ON rating_history(player_id, created_at DESC);

CREATE TABLE IF NOT EXISTS queue_entries (
	id                BIGSERIAL PRIMARY KEY,
	player_id         BIGINT NOT NULL,
	rating            INT NOT NULL,
	min_rating        INT NOT NULL,
	max_rating        INT NOT NULL,
	category          TEXT,
	joined_at         TIMESTAMPTZ NOT NULL,
	last_heartbeat_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT queue_entries_player_key UNIQUE (player_id)
);
CREATE INDEX IF NOT EXISTS idx_queue_entries_band ON queue_entries(min_rating, max_rating);
`

// EnsureSchema создаёт таблицы ядра, если их ещё нет.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
