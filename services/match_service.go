package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/debate-arena/models"
	"github.com/Dosada05/debate-arena/repositories"
)

// MatchService создаёт агрегат матча и отдаёт его на чтение.
type MatchService interface {
	// CreateMatch создаёт матч со всеми слотами раундов одной атомарной
	// единицей: exec обязан быть транзакцией. p2 == nil допустим только для
	// fallback-матча (3 слота вместо 6). Fallback-матч проходит queued ->
	// in_progress внутри той же транзакции.
	CreateMatch(ctx context.Context, exec repositories.SQLExecutor, p1ID int64, p2ID *int64, isFallback bool) (*models.Match, error)
	GetMatch(ctx context.Context, matchID int64) (*models.Match, error)
}

type matchService struct {
	matchRepo repositories.MatchRepository
	roundRepo repositories.MatchRoundRepository
	clock     Clock
	logger    *slog.Logger
}

func NewMatchService(
	matchRepo repositories.MatchRepository,
	roundRepo repositories.MatchRoundRepository,
	clock Clock,
	logger *slog.Logger,
) MatchService {
	return &matchService{
		matchRepo: matchRepo,
		roundRepo: roundRepo,
		clock:     clock,
		logger:    logger,
	}
}

// DeriveRoles выводит назначение ролей из id матча: чётный id — первый игрок
// petitioner, нечётный — respondent. Политика произвольная, но детерминированно
// восстановима по id.
func DeriveRoles(matchID int64) (p1Role, p2Role models.Role) {
	if matchID%2 == 0 {
		return models.RolePetitioner, models.RoleRespondent
	}
	return models.RoleRespondent, models.RolePetitioner
}

func (s *matchService) CreateMatch(ctx context.Context, exec repositories.SQLExecutor, p1ID int64, p2ID *int64, isFallback bool) (*models.Match, error) {
	if exec == nil {
		return nil, ErrTransactionRequired
	}
	if p2ID == nil && !isFallback {
		return nil, fmt.Errorf("%w: match without a second participant must be a fallback match", ErrValidation)
	}
	if p2ID != nil && *p2ID == p1ID {
		return nil, ErrSelfMatch
	}

	now := s.clock.Now()
	match := &models.Match{
		P1ID:       p1ID,
		P2ID:       p2ID,
		IsFallback: isFallback,
		State:      models.MatchStateQueued,
		CreatedAt:  now,
	}
	if p2ID != nil {
		// Живой соперник найден — матч сразу идёт.
		match.State = models.MatchStateInProgress
		startedAt := now
		match.StartedAt = &startedAt
	}

	if err := s.matchRepo.Create(ctx, exec, match); err != nil {
		return nil, err
	}

	match.P1Role, match.P2Role = DeriveRoles(match.ID)
	if err := s.matchRepo.AssignRoles(ctx, exec, match.ID, match.P1Role, match.P2Role); err != nil {
		return nil, err
	}

	rounds := make([]*models.MatchRound, 0, match.ExpectedRoundSlots())
	for n := models.RoundOpening; n <= models.RoundClosing; n++ {
		rounds = append(rounds, &models.MatchRound{MatchID: match.ID, PlayerID: p1ID, RoundNumber: n})
	}
	if p2ID != nil {
		for n := models.RoundOpening; n <= models.RoundClosing; n++ {
			rounds = append(rounds, &models.MatchRound{MatchID: match.ID, PlayerID: *p2ID, RoundNumber: n})
		}
	}
	if err := s.roundRepo.CreateBatch(ctx, exec, rounds); err != nil {
		return nil, err
	}
	match.Rounds = rounds

	if p2ID == nil {
		// Fallback-матч стартует немедленно, пройдя состояние queued.
		if err := s.matchRepo.Start(ctx, exec, match.ID, now); err != nil {
			return nil, err
		}
		match.State = models.MatchStateInProgress
		startedAt := now
		match.StartedAt = &startedAt
	}

	s.logger.InfoContext(ctx, "match created",
		slog.Int64("match_id", match.ID),
		slog.Int64("p1_id", p1ID),
		slog.Any("p2_id", p2ID),
		slog.Bool("is_fallback", isFallback),
		slog.String("p1_role", string(match.P1Role)),
		slog.String("p2_role", string(match.P2Role)),
	)
	return match, nil
}

func (s *matchService) GetMatch(ctx context.Context, matchID int64) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, mapMatchRepoError(err, matchID)
	}
	rounds, err := s.roundRepo.ListByMatch(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}
	match.Rounds = rounds
	return match, nil
}

func mapMatchRepoError(err error, matchID int64) error {
	if errors.Is(err, repositories.ErrMatchNotFound) {
		return fmt.Errorf("%w %d", ErrMatchNotFoundForPlayer, matchID)
	}
	return err
}
