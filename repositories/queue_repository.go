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
	ErrQueueEntryNotFound = errors.New("queue entry not found")
	// ErrQueueEntryDuplicate — игрок уже стоит в очереди.
	ErrQueueEntryDuplicate = errors.New("player already has an active queue entry")
)

type QueueRepository interface {
	Insert(ctx context.Context, exec SQLExecutor, entry *models.QueueEntry) error
	// Delete удаляет запись игрока и сообщает, была ли она. Удаление записи —
	// точка линеаризации подбора: человеческий матч, конвертация в fallback и
	// явный выход конкурируют за одну и ту же строку, побеждает ровно один.
	Delete(ctx context.Context, exec SQLExecutor, playerID int64) (bool, error)
	// FindCandidate выбирает лучшего совместимого кандидата: пересечение
	// диапазонов, вне активных матчей, наименьший рейтинг, затем раньше
	// вошедший, затем меньший id. Строка захватывается FOR UPDATE SKIP LOCKED,
	// чтобы два параллельных подбора не взяли одного кандидата.
	// Возвращает (nil, nil), когда никто не подходит.
	FindCandidate(ctx context.Context, exec SQLExecutor, forPlayerID int64, minRating, maxRating int, category *string) (*models.QueueEntry, error)
	Heartbeat(ctx context.Context, exec SQLExecutor, playerID int64, at time.Time) error
	DeleteStale(ctx context.Context, exec SQLExecutor, olderThan time.Time) (int64, error)
}

type postgresQueueRepository struct {
	db *sql.DB
}

func NewPostgresQueueRepository(db *sql.DB) QueueRepository {
	return &postgresQueueRepository{db: db}
}

func (r *postgresQueueRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresQueueRepository) Insert(ctx context.Context, exec SQLExecutor, entry *models.QueueEntry) error {
	query := `
		INSERT INTO queue_entries
			(player_id, rating, min_rating, max_rating, category, joined_at, last_heartbeat_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		entry.PlayerID,
		entry.Rating,
		entry.MinRating,
		entry.MaxRating,
		entry.Category,
		entry.JoinedAt,
		entry.LastHeartbeatAt,
	).Scan(&entry.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "queue_entries_player_key" {
			return fmt.Errorf("%w: player %d", ErrQueueEntryDuplicate, entry.PlayerID)
		}
		return fmt.Errorf("failed to enqueue player %d: %w", entry.PlayerID, err)
	}
	return nil
}

func (r *postgresQueueRepository) Delete(ctx context.Context, exec SQLExecutor, playerID int64) (bool, error) {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`DELETE FROM queue_entries WHERE player_id = $1`, playerID)
	if err != nil {
		return false, fmt.Errorf("failed to dequeue player %d: %w", playerID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return affected > 0, nil
}

func (r *postgresQueueRepository) FindCandidate(ctx context.Context, exec SQLExecutor, forPlayerID int64, minRating, maxRating int, category *string) (*models.QueueEntry, error) {
	query := `
		SELECT id, player_id, rating, min_rating, max_rating, category, joined_at, last_heartbeat_at
		FROM queue_entries
		WHERE player_id <> $1
		  AND min_rating <= $3
		  AND max_rating >= $2
		  AND ($4::text IS NULL OR category IS NULL OR category = $4)
		  AND NOT EXISTS (
				SELECT 1 FROM matches m
				WHERE (m.p1_id = queue_entries.player_id OR m.p2_id = queue_entries.player_id)
				  AND m.state <> 'finalized'
		  )
		ORDER BY rating ASC, joined_at ASC, player_id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	entry := &models.QueueEntry{}
	err := r.getExecutor(exec).QueryRowContext(ctx, query, forPlayerID, minRating, maxRating, category).Scan(
		&entry.ID,
		&entry.PlayerID,
		&entry.Rating,
		&entry.MinRating,
		&entry.MaxRating,
		&entry.Category,
		&entry.JoinedAt,
		&entry.LastHeartbeatAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // никто не подходит — это не ошибка
		}
		return nil, fmt.Errorf("failed to find queue candidate for player %d: %w", forPlayerID, err)
	}
	return entry, nil
}

func (r *postgresQueueRepository) Heartbeat(ctx context.Context, exec SQLExecutor, playerID int64, at time.Time) error {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`UPDATE queue_entries SET last_heartbeat_at = $2 WHERE player_id = $1`, playerID, at)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat for player %d: %w", playerID, err)
	}
	return checkAffectedRows(result, ErrQueueEntryNotFound)
}

func (r *postgresQueueRepository) DeleteStale(ctx context.Context, exec SQLExecutor, olderThan time.Time) (int64, error) {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`DELETE FROM queue_entries WHERE last_heartbeat_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale queue entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return affected, nil
}
