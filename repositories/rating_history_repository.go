package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/debate-arena/models"
	"github.com/lib/pq"
)

var (
	// ErrRatingHistoryDuplicate — вторая запись для пары (игрок, матч).
	// Означает повторную попытку обсчитать уже обсчитанный матч.
	ErrRatingHistoryDuplicate = errors.New("rating history entry already exists for this player and match")
)

// RatingHistoryRepository — append-only журнал изменений рейтинга.
// Записи никогда не обновляются и не удаляются.
type RatingHistoryRepository interface {
	Create(ctx context.Context, exec SQLExecutor, entry *models.RatingHistoryEntry) error
	ListByPlayer(ctx context.Context, playerID int64, limit int) ([]*models.RatingHistoryEntry, error)
}

type postgresRatingHistoryRepository struct {
	db *sql.DB
}

func NewPostgresRatingHistoryRepository(db *sql.DB) RatingHistoryRepository {
	return &postgresRatingHistoryRepository{db: db}
}

func (r *postgresRatingHistoryRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresRatingHistoryRepository) Create(ctx context.Context, exec SQLExecutor, entry *models.RatingHistoryEntry) error {
	query := `
		INSERT INTO rating_history
			(player_id, match_id, old_rating, new_rating, delta, opponent_rating, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		entry.PlayerID,
		entry.MatchID,
		entry.OldRating,
		entry.NewRating,
		entry.Delta,
		entry.OpponentRating,
		entry.Result,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "rating_history_player_match_key" {
			return fmt.Errorf("%w: player %d, match %d", ErrRatingHistoryDuplicate, entry.PlayerID, entry.MatchID)
		}
		return fmt.Errorf("failed to append rating history for player %d: %w", entry.PlayerID, err)
	}
	return nil
}

func (r *postgresRatingHistoryRepository) ListByPlayer(ctx context.Context, playerID int64, limit int) ([]*models.RatingHistoryEntry, error) {
	query := `
		SELECT id, player_id, match_id, old_rating, new_rating, delta, opponent_rating, result, created_at
		FROM rating_history
		WHERE player_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rating history for player %d: %w", playerID, err)
	}
	defer rows.Close()

	var entries []*models.RatingHistoryEntry
	for rows.Next() {
		entry := &models.RatingHistoryEntry{}
		if err := rows.Scan(
			&entry.ID,
			&entry.PlayerID,
			&entry.MatchID,
			&entry.OldRating,
			&entry.NewRating,
			&entry.Delta,
			&entry.OpponentRating,
			&entry.Result,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rating history row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
