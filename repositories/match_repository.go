package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/debate-arena/models"
)

var (
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchAlreadyLocked — условное обновление не прошло: матч уже запечатан
	// другим писателем. Первый успешный писатель выигрывает.
	ErrMatchAlreadyLocked = errors.New("match is already locked")
	// ErrMatchAlreadyProcessed — флаг rating_processed уже переведён в true.
	ErrMatchAlreadyProcessed = errors.New("match rating is already processed")
	ErrMatchNotQueued        = errors.New("match is not in queued state")
)

type MatchRepository interface {
	// Create вставляет строку матча. Роли назначаются отдельным вызовом
	// AssignRoles после того, как известен id (политика выводится из id).
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	AssignRoles(ctx context.Context, exec SQLExecutor, matchID int64, p1Role, p2Role models.Role) error
	GetByID(ctx context.Context, exec SQLExecutor, id int64) (*models.Match, error)
	// GetForUpdate блокирует строку матча на время транзакции. Все записи в матч
	// и его раунды идут под этой блокировкой — один писатель на матч.
	GetForUpdate(ctx context.Context, exec SQLExecutor, id int64) (*models.Match, error)
	HasActiveForPlayer(ctx context.Context, exec SQLExecutor, playerID int64) (bool, error)
	// Start переводит queued -> in_progress.
	Start(ctx context.Context, exec SQLExecutor, id int64, startedAt time.Time) error
	// Finalize — единственный путь записи, устанавливающий is_locked на матче.
	// Условный UPDATE: при is_locked = TRUE не затрагивает ни одной строки.
	Finalize(ctx context.Context, exec SQLExecutor, id int64, p1Score, p2Score int, winnerID int64, finalizedAt time.Time) error
	// MarkRatingProcessed — условный перевод rating_processed false -> true.
	// Повторный вызов не затрагивает строк и возвращает ErrMatchAlreadyProcessed.
	MarkRatingProcessed(ctx context.Context, exec SQLExecutor, id int64) error
	ListByPlayer(ctx context.Context, playerID int64, limit int) ([]*models.Match, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `id, p1_id, p2_id, is_fallback, p1_role, p2_role, state, p1_score, p2_score,
	winner_id, is_locked, rating_processed, created_at, started_at, finalized_at`

func scanMatch(row *sql.Row) (*models.Match, error) {
	match := &models.Match{}
	err := row.Scan(
		&match.ID,
		&match.P1ID,
		&match.P2ID,
		&match.IsFallback,
		&match.P1Role,
		&match.P2Role,
		&match.State,
		&match.P1Score,
		&match.P2Score,
		&match.WinnerID,
		&match.IsLocked,
		&match.RatingProcessed,
		&match.CreatedAt,
		&match.StartedAt,
		&match.FinalizedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match: %w", err)
	}
	return match, nil
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches (p1_id, p2_id, is_fallback, state, created_at, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		match.P1ID,
		match.P2ID,
		match.IsFallback,
		match.State,
		match.CreatedAt,
		match.StartedAt,
	).Scan(&match.ID)
	if err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) AssignRoles(ctx context.Context, exec SQLExecutor, matchID int64, p1Role, p2Role models.Role) error {
	query := `UPDATE matches SET p1_role = $2, p2_role = $3 WHERE id = $1 AND is_locked = FALSE`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, matchID, p1Role, p2Role)
	if err != nil {
		return fmt.Errorf("failed to assign roles for match %d: %w", matchID, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int64) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	return scanMatch(r.getExecutor(exec).QueryRowContext(ctx, query, id))
}

func (r *postgresMatchRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id int64) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1 FOR UPDATE`
	return scanMatch(r.getExecutor(exec).QueryRowContext(ctx, query, id))
}

func (r *postgresMatchRepository) HasActiveForPlayer(ctx context.Context, exec SQLExecutor, playerID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM matches
			WHERE (p1_id = $1 OR p2_id = $1) AND state <> 'finalized'
		)`
	var active bool
	if err := r.getExecutor(exec).QueryRowContext(ctx, query, playerID).Scan(&active); err != nil {
		return false, fmt.Errorf("failed to check active match for player %d: %w", playerID, err)
	}
	return active, nil
}

func (r *postgresMatchRepository) Start(ctx context.Context, exec SQLExecutor, id int64, startedAt time.Time) error {
	query := `
		UPDATE matches
		SET state = 'in_progress', started_at = $2
		WHERE id = $1 AND state = 'queued' AND is_locked = FALSE`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, id, startedAt)
	if err != nil {
		return fmt.Errorf("failed to start match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotQueued)
}

func (r *postgresMatchRepository) Finalize(ctx context.Context, exec SQLExecutor, id int64, p1Score, p2Score int, winnerID int64, finalizedAt time.Time) error {
	query := `
		UPDATE matches
		SET state = 'finalized',
		    p1_score = $2,
		    p2_score = $3,
		    winner_id = $4,
		    is_locked = TRUE,
		    finalized_at = $5
		WHERE id = $1 AND is_locked = FALSE`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, id, p1Score, p2Score, winnerID, finalizedAt)
	if err != nil {
		return fmt.Errorf("failed to finalize match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchAlreadyLocked)
}

func (r *postgresMatchRepository) MarkRatingProcessed(ctx context.Context, exec SQLExecutor, id int64) error {
	query := `
		UPDATE matches
		SET rating_processed = TRUE
		WHERE id = $1 AND rating_processed = FALSE AND is_locked = TRUE`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark match %d rating processed: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchAlreadyProcessed)
}

func (r *postgresMatchRepository) ListByPlayer(ctx context.Context, playerID int64, limit int) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE p1_id = $1 OR p2_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for player %d: %w", playerID, err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		match := &models.Match{}
		if err := rows.Scan(
			&match.ID,
			&match.P1ID,
			&match.P2ID,
			&match.IsFallback,
			&match.P1Role,
			&match.P2Role,
			&match.State,
			&match.P1Score,
			&match.P2Score,
			&match.WinnerID,
			&match.IsLocked,
			&match.RatingProcessed,
			&match.CreatedAt,
			&match.StartedAt,
			&match.FinalizedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}
