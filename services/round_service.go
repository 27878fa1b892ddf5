package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Dosada05/debate-arena/models"
	"github.com/Dosada05/debate-arena/repositories"
	"github.com/Dosada05/debate-arena/storage"
	"github.com/google/uuid"
)

const maxArgumentLength = 20000

// RoundService принимает аргументы раундов и, когда матч заполнен, запускает
// финализацию и обсчёт рейтинга в той же транзакции.
type RoundService interface {
	// SubmitRound записывает аргумент игрока в слот раунда. Слот запечатывается
	// навсегда; возможен переход матча в finalized, если слот был последним.
	SubmitRound(ctx context.Context, matchID, playerID int64, roundNumber int, content string) (*models.MatchRound, error)
}

type roundService struct {
	db            *sql.DB
	matchRepo     repositories.MatchRepository
	roundRepo     repositories.MatchRoundRepository
	ratingService RatingService
	scorer        Scorer
	uploader      storage.FileUploader
	notifier      Notifier
	clock         Clock
	logger        *slog.Logger
}

func NewRoundService(
	db *sql.DB,
	matchRepo repositories.MatchRepository,
	roundRepo repositories.MatchRoundRepository,
	ratingService RatingService,
	scorer Scorer,
	uploader storage.FileUploader,
	notifier Notifier,
	clock Clock,
	logger *slog.Logger,
) RoundService {
	return &roundService{
		db:            db,
		matchRepo:     matchRepo,
		roundRepo:     roundRepo,
		ratingService: ratingService,
		scorer:        scorer,
		uploader:      uploader,
		notifier:      notifier,
		clock:         clock,
		logger:        logger,
	}
}

func (s *roundService) SubmitRound(ctx context.Context, matchID, playerID int64, roundNumber int, content string) (*models.MatchRound, error) {
	if roundNumber < models.RoundOpening || roundNumber > models.RoundClosing {
		return nil, fmt.Errorf("%w: %d", ErrRoundNumberInvalid, roundNumber)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrContentRequired
	}
	if len(content) > maxArgumentLength {
		return nil, fmt.Errorf("%w: argument exceeds %d bytes", ErrValidation, maxArgumentLength)
	}

	// Оценка и выгрузка текста — до транзакции: скорер и хранилище могут быть
	// медленными, держать блокировку матча на это время нельзя.
	raw, err := s.scorer.Score(ctx, content, roundNumber)
	if err != nil {
		return nil, fmt.Errorf("scorer failed: %w", err)
	}
	score, err := QuantizeScore(raw)
	if err != nil {
		return nil, err
	}
	contentRef, err := s.storeContent(ctx, matchID, playerID, roundNumber, content)
	if err != nil {
		return nil, err
	}

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

	match, err := s.matchRepo.GetForUpdate(ctx, tx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, fmt.Errorf("%w: match %d", ErrNotFound, matchID)
		}
		return nil, err
	}
	if match.IsLocked {
		return nil, ErrMatchLocked
	}
	if match.State != models.MatchStateInProgress {
		return nil, fmt.Errorf("%w: state %s", ErrMatchNotInProgress, match.State)
	}
	if !match.HasParticipant(playerID) {
		return nil, fmt.Errorf("%w: match %d", ErrMatchNotFoundForPlayer, matchID)
	}

	rounds, err := s.roundRepo.ListByMatch(ctx, tx, matchID)
	if err != nil {
		return nil, err
	}
	target, err := checkRoundOrder(rounds, playerID, roundNumber)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.roundRepo.Submit(ctx, tx, target.ID, contentRef, score, now); err != nil {
		if errors.Is(err, repositories.ErrRoundAlreadyLocked) {
			return nil, ErrRoundAlreadySubmitted
		}
		return nil, err
	}
	target.ContentRef = &contentRef
	target.Score = &score
	target.IsSubmitted = true
	target.IsLocked = true
	target.SubmittedAt = &now

	var outcome *matchOutcome
	var ratingOutcome *RatingOutcome
	if allRoundsLocked(rounds) {
		outcome, err = computeOutcome(match, rounds)
		if err != nil {
			return nil, err
		}
		finalizedAt := s.clock.Now()
		if err := s.matchRepo.Finalize(ctx, tx, matchID, outcome.P1Score, outcome.P2Score, outcome.WinnerID, finalizedAt); err != nil {
			if errors.Is(err, repositories.ErrMatchAlreadyLocked) {
				return nil, ErrMatchLocked
			}
			return nil, err
		}
		match.State = models.MatchStateFinalized
		match.IsLocked = true
		match.P1Score = &outcome.P1Score
		match.P2Score = &outcome.P2Score
		match.WinnerID = &outcome.WinnerID
		match.FinalizedAt = &finalizedAt

		ratingOutcome, err = s.ratingService.ProcessMatch(ctx, tx, match, outcome)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	s.notifyAfterCommit(ctx, match, target, outcome, ratingOutcome)
	return target, nil
}

// checkRoundOrder находит слот игрока и проверяет строгий порядок: сабмит
// раунда N допустим, только когда все слоты раунда N-1 заперты (обе стороны).
func checkRoundOrder(rounds []*models.MatchRound, playerID int64, roundNumber int) (*models.MatchRound, error) {
	var target *models.MatchRound
	for _, r := range rounds {
		if r.PlayerID == playerID && r.RoundNumber == roundNumber {
			target = r
		}
		if r.RoundNumber < roundNumber && !r.IsLocked {
			return nil, fmt.Errorf("%w: round %d is not complete", ErrRoundOutOfOrder, r.RoundNumber)
		}
	}
	if target == nil {
		return nil, ErrRoundSlotMissing
	}
	if target.IsLocked {
		return nil, ErrRoundAlreadySubmitted
	}
	return target, nil
}

func allRoundsLocked(rounds []*models.MatchRound) bool {
	for _, r := range rounds {
		if !r.IsLocked {
			return false
		}
	}
	return true
}

// storeContent кладёт текст аргумента во внешнее хранилище и возвращает ключ.
// Без хранилища текст адресуется своим хешем, inline-ссылкой.
func (s *roundService) storeContent(ctx context.Context, matchID, playerID int64, roundNumber int, content string) (string, error) {
	if s.uploader == nil {
		sum := sha256.Sum256([]byte(content))
		return "inline:" + hex.EncodeToString(sum[:]), nil
	}
	key := fmt.Sprintf("arguments/%d/%d-%d-%s.txt", matchID, playerID, roundNumber, uuid.NewString())
	url, err := s.uploader.UploadText(ctx, key, content)
	if err != nil {
		return "", fmt.Errorf("failed to upload argument: %w", err)
	}
	return url, nil
}

func (s *roundService) notifyAfterCommit(ctx context.Context, match *models.Match, round *models.MatchRound, outcome *matchOutcome, ratingOutcome *RatingOutcome) {
	s.notifier.NotifyMatch(match.ID, EventRoundLocked, RoundLockedPayload{
		MatchID:     match.ID,
		PlayerID:    round.PlayerID,
		RoundNumber: round.RoundNumber,
		Score:       *round.Score,
	})
	if outcome == nil {
		return
	}

	s.logger.InfoContext(ctx, "match finalized",
		slog.Int64("match_id", match.ID),
		slog.Int64("winner_id", outcome.WinnerID),
		slog.Bool("draw", outcome.IsDraw),
		slog.String("decision", outcome.Decision),
	)
	s.notifier.NotifyMatch(match.ID, EventMatchFinalized, MatchFinalizedPayload{
		MatchID:  match.ID,
		WinnerID: outcome.WinnerID,
		P1Score:  outcome.P1Score,
		P2Score:  outcome.P2Score,
		IsDraw:   outcome.IsDraw,
		Decision: outcome.Decision,
	})
	if ratingOutcome == nil || ratingOutcome.Skipped {
		return
	}
	for _, entry := range ratingOutcome.Entries {
		s.notifier.NotifyPlayer(entry.PlayerID, EventRatingUpdated, RatingUpdatedPayload{
			PlayerID:  entry.PlayerID,
			MatchID:   entry.MatchID,
			OldRating: entry.OldRating,
			NewRating: entry.NewRating,
			Delta:     entry.Delta,
			Result:    entry.Result,
		})
	}
}
