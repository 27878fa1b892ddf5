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
	ErrMatchRoundNotFound = errors.New("match round slot not found")
	// ErrRoundSlotDuplicate — нарушение уникальности (match, player, round).
	ErrRoundSlotDuplicate = errors.New("round slot already exists for this match, player and round")
	// ErrRoundAlreadyLocked — условная запись в слот не прошла: слот уже
	// отправлен или заблокирован.
	ErrRoundAlreadyLocked = errors.New("round slot is already submitted or locked")
)

type MatchRoundRepository interface {
	// CreateBatch создаёт все слоты матча. Вызывается в той же транзакции,
	// что и вставка матча: частично созданный матч не должен быть наблюдаем.
	CreateBatch(ctx context.Context, exec SQLExecutor, rounds []*models.MatchRound) error
	ListByMatch(ctx context.Context, exec SQLExecutor, matchID int64) ([]*models.MatchRound, error)
	// Submit записывает результат слота. Условный UPDATE по is_submitted/is_locked:
	// повторная отправка не затрагивает строк.
	Submit(ctx context.Context, exec SQLExecutor, roundID int64, contentRef string, score int, submittedAt time.Time) error
}

type postgresMatchRoundRepository struct {
	db *sql.DB
}

func NewPostgresMatchRoundRepository(db *sql.DB) MatchRoundRepository {
	return &postgresMatchRoundRepository{db: db}
}

func (r *postgresMatchRoundRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresMatchRoundRepository) CreateBatch(ctx context.Context, exec SQLExecutor, rounds []*models.MatchRound) error {
	if len(rounds) == 0 {
		return nil
	}
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO match_rounds (match_id, player_id, round_number)
		VALUES ($1, $2, $3)
		RETURNING id`

	for _, round := range rounds {
		err := executor.QueryRowContext(ctx, query, round.MatchID, round.PlayerID, round.RoundNumber).Scan(&round.ID)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "match_rounds_slot_key" {
				return fmt.Errorf("%w: match %d, player %d, round %d",
					ErrRoundSlotDuplicate, round.MatchID, round.PlayerID, round.RoundNumber)
			}
			return fmt.Errorf("failed to create round slot (match %d, player %d, round %d): %w",
				round.MatchID, round.PlayerID, round.RoundNumber, err)
		}
	}
	return nil
}

func (r *postgresMatchRoundRepository) ListByMatch(ctx context.Context, exec SQLExecutor, matchID int64) ([]*models.MatchRound, error) {
	query := `
		SELECT id, match_id, player_id, round_number, content_ref, score, is_submitted, is_locked, submitted_at
		FROM match_rounds
		WHERE match_id = $1
		ORDER BY round_number ASC, player_id ASC`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds for match %d: %w", matchID, err)
	}
	defer rows.Close()

	var rounds []*models.MatchRound
	for rows.Next() {
		round := &models.MatchRound{}
		if err := rows.Scan(
			&round.ID,
			&round.MatchID,
			&round.PlayerID,
			&round.RoundNumber,
			&round.ContentRef,
			&round.Score,
			&round.IsSubmitted,
			&round.IsLocked,
			&round.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan round row: %w", err)
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}

func (r *postgresMatchRoundRepository) Submit(ctx context.Context, exec SQLExecutor, roundID int64, contentRef string, score int, submittedAt time.Time) error {
	query := `
		UPDATE match_rounds
		SET content_ref = $2,
		    score = $3,
		    is_submitted = TRUE,
		    is_locked = TRUE,
		    submitted_at = $4
		WHERE id = $1 AND is_submitted = FALSE AND is_locked = FALSE`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, roundID, contentRef, score, submittedAt)
	if err != nil {
		return fmt.Errorf("failed to submit round %d: %w", roundID, err)
	}
	return checkAffectedRows(result, ErrRoundAlreadyLocked)
}
