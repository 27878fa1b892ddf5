package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/debate-arena/models"
	"github.com/lib/pq"
)

var (
	ErrPlayerRatingNotFound = errors.New("player rating not found")
	ErrRatingCheckViolated  = errors.New("player rating violates floor or peak constraint")
)

type RatingRepository interface {
	GetByPlayerID(ctx context.Context, exec SQLExecutor, playerID int64) (*models.PlayerRating, error)
	// GetForUpdate блокирует строку рейтинга (SELECT ... FOR UPDATE) до конца транзакции.
	GetForUpdate(ctx context.Context, exec SQLExecutor, playerID int64) (*models.PlayerRating, error)
	// GetOrCreate лениво создаёт запись рейтинга при первом участии игрока.
	GetOrCreate(ctx context.Context, exec SQLExecutor, playerID int64, defaultRating int, now time.Time) (*models.PlayerRating, error)
	Update(ctx context.Context, exec SQLExecutor, rating *models.PlayerRating) error
	ListLeaderboard(ctx context.Context, limit, offset int) ([]*models.PlayerRating, error)
}

type postgresRatingRepository struct {
	db *sql.DB
}

func NewPostgresRatingRepository(db *sql.DB) RatingRepository {
	return &postgresRatingRepository{db: db}
}

func (r *postgresRatingRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const ratingColumns = `player_id, current_rating, peak_rating, matches_played, wins, losses, draws, last_active_at`

func scanRating(row *sql.Row) (*models.PlayerRating, error) {
	rating := &models.PlayerRating{}
	err := row.Scan(
		&rating.PlayerID,
		&rating.CurrentRating,
		&rating.PeakRating,
		&rating.MatchesPlayed,
		&rating.Wins,
		&rating.Losses,
		&rating.Draws,
		&rating.LastActiveAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlayerRatingNotFound
		}
		return nil, fmt.Errorf("failed to scan player rating: %w", err)
	}
	return rating, nil
}

func (r *postgresRatingRepository) GetByPlayerID(ctx context.Context, exec SQLExecutor, playerID int64) (*models.PlayerRating, error) {
	query := `SELECT ` + ratingColumns + ` FROM player_ratings WHERE player_id = $1`
	return scanRating(r.getExecutor(exec).QueryRowContext(ctx, query, playerID))
}

func (r *postgresRatingRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, playerID int64) (*models.PlayerRating, error) {
	query := `SELECT ` + ratingColumns + ` FROM player_ratings WHERE player_id = $1 FOR UPDATE`
	return scanRating(r.getExecutor(exec).QueryRowContext(ctx, query, playerID))
}

func (r *postgresRatingRepository) GetOrCreate(ctx context.Context, exec SQLExecutor, playerID int64, defaultRating int, now time.Time) (*models.PlayerRating, error) {
	executor := r.getExecutor(exec)
	insert := `
		INSERT INTO player_ratings (player_id, current_rating, peak_rating, last_active_at)
		VALUES ($1, $2, $2, $3)
		ON CONFLICT (player_id) DO NOTHING`
	if _, err := executor.ExecContext(ctx, insert, playerID, defaultRating, now); err != nil {
		return nil, fmt.Errorf("failed to lazily create rating for player %d: %w", playerID, err)
	}
	return r.GetByPlayerID(ctx, exec, playerID)
}

func (r *postgresRatingRepository) Update(ctx context.Context, exec SQLExecutor, rating *models.PlayerRating) error {
	query := `
		UPDATE player_ratings
		SET current_rating = $2,
		    peak_rating = $3,
		    matches_played = $4,
		    wins = $5,
		    losses = $6,
		    draws = $7,
		    last_active_at = $8
		WHERE player_id = $1`

	result, err := r.getExecutor(exec).ExecContext(ctx, query,
		rating.PlayerID,
		rating.CurrentRating,
		rating.PeakRating,
		rating.MatchesPlayed,
		rating.Wins,
		rating.Losses,
		rating.Draws,
		rating.LastActiveAt,
	)
	if err != nil {
		var pqErr *pq.Error
		// 23514 check_violation: пол рейтинга или peak < current
		if errors.As(err, &pqErr) && pqErr.Code == "23514" {
			return fmt.Errorf("%w: player %d", ErrRatingCheckViolated, rating.PlayerID)
		}
		return fmt.Errorf("failed to update rating for player %d: %w", rating.PlayerID, err)
	}
	return checkAffectedRows(result, ErrPlayerRatingNotFound)
}

func (r *postgresRatingRepository) ListLeaderboard(ctx context.Context, limit, offset int) ([]*models.PlayerRating, error) {
	query := `
		SELECT ` + ratingColumns + `
		FROM player_ratings
		ORDER BY current_rating DESC, player_id ASC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var ratings []*models.PlayerRating
	for rows.Next() {
		rating := &models.PlayerRating{}
		if err := rows.Scan(
			&rating.PlayerID,
			&rating.CurrentRating,
			&rating.PeakRating,
			&rating.MatchesPlayed,
			&rating.Wins,
			&rating.Losses,
			&rating.Draws,
			&rating.LastActiveAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		ratings = append(ratings, rating)
	}
	return ratings, rows.Err()
}
