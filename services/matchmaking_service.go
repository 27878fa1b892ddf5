package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/debate-arena/models"
	"github.com/Dosada05/debate-arena/repositories"
)

// MatchmakingService — очередь подбора соперника. Линеаризующая точка всех
// переходов — удаление строки queue_entries: кто удалил запись игрока, тот и
// решает её судьбу (матч с человеком, fallback или выход из очереди).
type MatchmakingService interface {
	// Enqueue ставит игрока в очередь и сразу пытается подобрать соперника.
	// Возвращает матч, если соперник найден, иначе nil и взведённый
	// fallback-таймер.
	Enqueue(ctx context.Context, playerID int64, category *string) (*models.Match, error)
	// Dequeue снимает игрока с очереди. Идемпотентен: выход уже исчезнувшей
	// записи — не ошибка.
	Dequeue(ctx context.Context, playerID int64) error
	// Heartbeat продлевает жизнь записи в очереди.
	Heartbeat(ctx context.Context, playerID int64) error
	// SweepStale удаляет записи с протухшим heartbeat. Вызывается планировщиком.
	SweepStale(ctx context.Context) (int64, error)
}

type matchmakingService struct {
	db           *sql.DB
	queueRepo    repositories.QueueRepository
	ratingRepo   repositories.RatingRepository
	matchRepo    repositories.MatchRepository
	matchService MatchService
	notifier     Notifier
	clock        Clock
	logger       *slog.Logger

	window          int
	fallbackTimeout time.Duration
	heartbeatTTL    time.Duration

	mu     sync.Mutex
	timers map[int64]Timer
}

func NewMatchmakingService(
	db *sql.DB,
	queueRepo repositories.QueueRepository,
	ratingRepo repositories.RatingRepository,
	matchRepo repositories.MatchRepository,
	matchService MatchService,
	notifier Notifier,
	clock Clock,
	logger *slog.Logger,
	window int,
	fallbackTimeout time.Duration,
	heartbeatTTL time.Duration,
) MatchmakingService {
	return &matchmakingService{
		db:              db,
		queueRepo:       queueRepo,
		ratingRepo:      ratingRepo,
		matchRepo:       matchRepo,
		matchService:    matchService,
		notifier:        notifier,
		clock:           clock,
		logger:          logger,
		window:          window,
		fallbackTimeout: fallbackTimeout,
		heartbeatTTL:    heartbeatTTL,
		timers:          make(map[int64]Timer),
	}
}

func (s *matchmakingService) Enqueue(ctx context.Context, playerID int64, category *string) (*models.Match, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := s.clock.Now()
	rating, err := s.ratingRepo.GetOrCreate(ctx, tx, playerID, models.DefaultRating, now)
	if err != nil {
		return nil, err
	}

	active, err := s.matchRepo.HasActiveForPlayer(ctx, tx, playerID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrPlayerInActiveMatch
	}

	entry := &models.QueueEntry{
		PlayerID:        playerID,
		Rating:          rating.CurrentRating,
		MinRating:       rating.CurrentRating - s.window,
		MaxRating:       rating.CurrentRating + s.window,
		Category:        category,
		JoinedAt:        now,
		LastHeartbeatAt: now,
	}
	if err := s.queueRepo.Insert(ctx, tx, entry); err != nil {
		if errors.Is(err, repositories.ErrQueueEntryDuplicate) {
			return nil, ErrAlreadyQueued
		}
		return nil, err
	}

	candidate, err := s.queueRepo.FindCandidate(ctx, tx, playerID, entry.MinRating, entry.MaxRating, category)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		committed = true
		s.armFallback(playerID)
		s.logger.InfoContext(ctx, "player queued",
			slog.Int64("player_id", playerID),
			slog.Int("rating", entry.Rating),
		)
		return nil, nil
	}

	// Обе записи удаляются в транзакции создания матча: после коммита никакой
	// другой путь (fallback, выход) этих игроков уже не увидит.
	for _, id := range []int64{candidate.PlayerID, playerID} {
		removed, err := s.queueRepo.Delete(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if !removed {
			return nil, fmt.Errorf("%w: queue entry for player %d vanished mid-pairing", ErrInternalInvariant, id)
		}
	}

	// Кандидат ждал дольше — он первый игрок.
	p2 := playerID
	match, err := s.matchService.CreateMatch(ctx, tx, candidate.PlayerID, &p2, false)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	s.cancelFallback(candidate.PlayerID)
	s.cancelFallback(playerID)

	s.logger.InfoContext(ctx, "players matched",
		slog.Int64("match_id", match.ID),
		slog.Int64("p1", match.P1ID),
		slog.Int64("p2", playerID),
	)
	s.notifyMatchFound(match)
	return match, nil
}

func (s *matchmakingService) Dequeue(ctx context.Context, playerID int64) error {
	s.cancelFallback(playerID)
	_, err := s.queueRepo.Delete(ctx, s.db, playerID)
	return err
}

func (s *matchmakingService) Heartbeat(ctx context.Context, playerID int64) error {
	err := s.queueRepo.Heartbeat(ctx, s.db, playerID, s.clock.Now())
	if errors.Is(err, repositories.ErrQueueEntryNotFound) {
		return ErrQueueEntryMissing
	}
	return err
}

func (s *matchmakingService) SweepStale(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.heartbeatTTL)
	removed, err := s.queueRepo.DeleteStale(ctx, s.db, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "stale queue entries swept", slog.Int64("removed", removed))
	}
	return removed, nil
}

func (s *matchmakingService) armFallback(playerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[playerID]; ok {
		t.Stop()
	}
	s.timers[playerID] = s.clock.AfterFunc(s.fallbackTimeout, func() {
		s.convertToFallback(playerID)
	})
}

func (s *matchmakingService) cancelFallback(playerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[playerID]; ok {
		t.Stop()
		delete(s.timers, playerID)
	}
}

// convertToFallback срабатывает по таймеру: если запись игрока всё ещё в
// очереди, она превращается в одиночный матч против бота. Проигрыш гонки с
// Enqueue другого игрока или с Dequeue — штатный no-op.
func (s *matchmakingService) convertToFallback(playerID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.cancelFallback(playerID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "fallback conversion failed to begin tx",
			slog.Int64("player_id", playerID), slog.Any("error", err))
		return
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	removed, err := s.queueRepo.Delete(ctx, tx, playerID)
	if err != nil {
		s.logger.ErrorContext(ctx, "fallback conversion failed",
			slog.Int64("player_id", playerID), slog.Any("error", err))
		return
	}
	if !removed {
		return
	}

	match, err := s.matchService.CreateMatch(ctx, tx, playerID, nil, true)
	if err != nil {
		s.logger.ErrorContext(ctx, "fallback match creation failed",
			slog.Int64("player_id", playerID), slog.Any("error", err))
		return
	}
	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "fallback conversion failed to commit",
			slog.Int64("player_id", playerID), slog.Any("error", err))
		return
	}
	committed = true

	s.logger.InfoContext(ctx, "fallback match created",
		slog.Int64("match_id", match.ID),
		slog.Int64("player_id", playerID),
	)
	s.notifyMatchFound(match)
}

func (s *matchmakingService) notifyMatchFound(match *models.Match) {
	s.notifier.NotifyPlayer(match.P1ID, EventMatchFound, MatchFoundPayload{
		MatchID:    match.ID,
		PlayerID:   match.P1ID,
		OpponentID: match.P2ID,
		IsFallback: match.IsFallback,
		Role:       string(match.P1Role),
	})
	if match.P2ID != nil {
		p1 := match.P1ID
		s.notifier.NotifyPlayer(*match.P2ID, EventMatchFound, MatchFoundPayload{
			MatchID:    match.ID,
			PlayerID:   *match.P2ID,
			OpponentID: &p1,
			IsFallback: match.IsFallback,
			Role:       string(match.P2Role),
		})
	}
}
