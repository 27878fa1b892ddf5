package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/debate-arena/models"
	"github.com/Dosada05/debate-arena/repositories"
	"golang.org/x/sync/errgroup"
)

// RatingOutcome — применённые изменения рейтинга одного матча.
type RatingOutcome struct {
	// Skipped — матч исключён из рейтинга (fallback-оппонент).
	Skipped bool
	Entries []*models.RatingHistoryEntry
}

// PlayerProfile — сводка для профиля игрока.
type PlayerProfile struct {
	Rating        *models.PlayerRating        `json:"rating"`
	RecentHistory []*models.RatingHistoryEntry `json:"recent_history"`
	RecentMatches []*models.Match              `json:"recent_matches"`
}

// RatingService владеет состоянием рейтингов: движок обсчёта запечатанных
// матчей плюс read-модели профиля и таблицы лидеров.
type RatingService interface {
	// ProcessMatch применяет рейтинговые дельты запечатанного матча ровно один
	// раз. Вызывается только финализацией, в её же транзакции; exec обязан
	// быть транзакцией. Нарушенные предусловия — фатальная ошибка инварианта.
	ProcessMatch(ctx context.Context, exec repositories.SQLExecutor, match *models.Match, outcome *matchOutcome) (*RatingOutcome, error)
	GetProfile(ctx context.Context, playerID int64) (*PlayerProfile, error)
	Leaderboard(ctx context.Context, limit, offset int) ([]*models.PlayerRating, error)
	History(ctx context.Context, playerID int64, limit int) ([]*models.RatingHistoryEntry, error)
}

type ratingService struct {
	ratingRepo  repositories.RatingRepository
	historyRepo repositories.RatingHistoryRepository
	matchRepo   repositories.MatchRepository
	clock       Clock
	logger      *slog.Logger
}

func NewRatingService(
	ratingRepo repositories.RatingRepository,
	historyRepo repositories.RatingHistoryRepository,
	matchRepo repositories.MatchRepository,
	clock Clock,
	logger *slog.Logger,
) RatingService {
	return &ratingService{
		ratingRepo:  ratingRepo,
		historyRepo: historyRepo,
		matchRepo:   matchRepo,
		clock:       clock,
		logger:      logger,
	}
}

func (s *ratingService) ProcessMatch(ctx context.Context, exec repositories.SQLExecutor, match *models.Match, outcome *matchOutcome) (*RatingOutcome, error) {
	if exec == nil {
		return nil, ErrTransactionRequired
	}
	// Fallback-матчи не рейтингуются: тихо пропускаем.
	if match.P2ID == nil || match.IsFallback {
		return &RatingOutcome{Skipped: true}, nil
	}
	if match.State != models.MatchStateFinalized || !match.IsLocked {
		return nil, fmt.Errorf("%w: match %d state=%s locked=%v", ErrMatchNotSealed, match.ID, match.State, match.IsLocked)
	}
	if match.RatingProcessed {
		return nil, fmt.Errorf("%w: match %d", ErrRatingDoubleApply, match.ID)
	}
	if match.WinnerID == nil {
		return nil, fmt.Errorf("%w: match %d", ErrWinnerNotSet, match.ID)
	}
	if !match.HasParticipant(*match.WinnerID) {
		return nil, fmt.Errorf("%w: match %d, winner %d", ErrWinnerNotPlayer, match.ID, *match.WinnerID)
	}

	// Блокировка строк рейтинга всегда по возрастанию id — единый порядок
	// по всему движку исключает взаимоблокировку параллельных финализаций.
	lowID, highID := match.P1ID, *match.P2ID
	if highID < lowID {
		lowID, highID = highID, lowID
	}
	low, err := s.lockRating(ctx, exec, lowID)
	if err != nil {
		return nil, err
	}
	high, err := s.lockRating(ctx, exec, highID)
	if err != nil {
		return nil, err
	}

	// Сторона A — игрок с меньшим id: её дельта округляется, сторона B
	// получает точное отрицание.
	var actualA float64
	switch {
	case outcome.IsDraw:
		actualA = 0.5
	case *match.WinnerID == lowID:
		actualA = 1
	default:
		actualA = 0
	}
	deltaA, deltaB := computeRatingDeltas(
		low.CurrentRating, high.CurrentRating,
		low.MatchesPlayed,
		actualA,
	)

	now := s.clock.Now()
	ratingOutcome := &RatingOutcome{}
	for _, side := range []struct {
		rating   *models.PlayerRating
		opponent *models.PlayerRating
		delta    int
	}{
		{low, high, deltaA},
		{high, low, deltaB},
	} {
		oldRating := side.rating.CurrentRating
		opponentRating := side.opponent.CurrentRating

		side.rating.CurrentRating = oldRating + side.delta
		if side.rating.CurrentRating > side.rating.PeakRating {
			side.rating.PeakRating = side.rating.CurrentRating
		}
		side.rating.MatchesPlayed++
		result := models.ResultDraw
		if !outcome.IsDraw {
			if *match.WinnerID == side.rating.PlayerID {
				result = models.ResultWin
				side.rating.Wins++
			} else {
				result = models.ResultLoss
				side.rating.Losses++
			}
		} else {
			side.rating.Draws++
		}
		side.rating.LastActiveAt = now

		if err := s.ratingRepo.Update(ctx, exec, side.rating); err != nil {
			return nil, fmt.Errorf("failed to store rating for player %d: %w", side.rating.PlayerID, err)
		}

		entry := &models.RatingHistoryEntry{
			PlayerID:       side.rating.PlayerID,
			MatchID:        match.ID,
			OldRating:      oldRating,
			NewRating:      side.rating.CurrentRating,
			Delta:          side.delta,
			OpponentRating: opponentRating,
			Result:         result,
			CreatedAt:      now,
		}
		if err := s.historyRepo.Create(ctx, exec, entry); err != nil {
			if errors.Is(err, repositories.ErrRatingHistoryDuplicate) {
				return nil, fmt.Errorf("%w: match %d", ErrRatingDoubleApply, match.ID)
			}
			return nil, err
		}
		ratingOutcome.Entries = append(ratingOutcome.Entries, entry)
	}

	// Последняя запись транзакции: условный перевод флага. Ноль затронутых
	// строк означает конкурентный повторный обсчёт — фатально, вся транзакция
	// откатывается вместе с дельтами выше.
	if err := s.matchRepo.MarkRatingProcessed(ctx, exec, match.ID); err != nil {
		if errors.Is(err, repositories.ErrMatchAlreadyProcessed) {
			return nil, fmt.Errorf("%w: match %d", ErrRatingDoubleApply, match.ID)
		}
		return nil, err
	}
	match.RatingProcessed = true

	s.logger.InfoContext(ctx, "ratings applied",
		slog.Int64("match_id", match.ID),
		slog.Int64("player_a", lowID),
		slog.Int64("player_b", highID),
		slog.Int("delta_a", deltaA),
		slog.Int("delta_b", deltaB),
	)
	return ratingOutcome, nil
}

func (s *ratingService) lockRating(ctx context.Context, exec repositories.SQLExecutor, playerID int64) (*models.PlayerRating, error) {
	rating, err := s.ratingRepo.GetForUpdate(ctx, exec, playerID)
	if err != nil {
		if errors.Is(err, repositories.ErrPlayerRatingNotFound) {
			// Рейтинг создаётся при входе в очередь; его отсутствие на этапе
			// обсчёта — испорченное состояние выше по течению.
			return nil, fmt.Errorf("%w: player %d", ErrRatingRowMissing, playerID)
		}
		return nil, err
	}
	return rating, nil
}

const profileHistoryLimit = 10

func (s *ratingService) GetProfile(ctx context.Context, playerID int64) (*PlayerProfile, error) {
	profile := &PlayerProfile{}
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rating, err := s.ratingRepo.GetByPlayerID(gCtx, nil, playerID)
		if err != nil {
			if errors.Is(err, repositories.ErrPlayerRatingNotFound) {
				return fmt.Errorf("%w: player %d", ErrNotFound, playerID)
			}
			return err
		}
		profile.Rating = rating
		return nil
	})
	g.Go(func() error {
		history, err := s.historyRepo.ListByPlayer(gCtx, playerID, profileHistoryLimit)
		if err != nil {
			return err
		}
		profile.RecentHistory = history
		return nil
	})
	g.Go(func() error {
		matches, err := s.matchRepo.ListByPlayer(gCtx, playerID, profileHistoryLimit)
		if err != nil {
			return err
		}
		profile.RecentMatches = matches
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return profile, nil
}

const defaultLeaderboardLimit = 50

func (s *ratingService) Leaderboard(ctx context.Context, limit, offset int) ([]*models.PlayerRating, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultLeaderboardLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.ratingRepo.ListLeaderboard(ctx, limit, offset)
}

func (s *ratingService) History(ctx context.Context, playerID int64, limit int) ([]*models.RatingHistoryEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultLeaderboardLimit
	}
	return s.historyRepo.ListByPlayer(ctx, playerID, limit)
}
