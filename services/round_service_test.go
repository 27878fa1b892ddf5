package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Dosada05/debate-arena/models"
)

type roundFixture struct {
	matches  *fakeMatchRepo
	rounds   *fakeRoundRepo
	ratings  *fakeRatingRepo
	history  *fakeHistoryRepo
	notifier *fakeNotifier
	clock    *fakeClock
	service  RoundService
}

func newRoundFixture(t *testing.T) *roundFixture {
	f := &roundFixture{
		matches:  newFakeMatchRepo(),
		rounds:   newFakeRoundRepo(),
		ratings:  newFakeRatingRepo(),
		history:  &fakeHistoryRepo{},
		notifier: &fakeNotifier{},
		clock:    newFakeClock(),
	}
	ratingService := NewRatingService(f.ratings, f.history, f.matches, f.clock, quietLogger())
	f.service = NewRoundService(
		newStubDB(t), f.matches, f.rounds, ratingService,
		NewHashScorer(), nil, f.notifier, f.clock, quietLogger(),
	)
	return f
}

func (f *roundFixture) createVersusMatch(t *testing.T, p1, p2 int64) *models.Match {
	t.Helper()
	matchService := NewMatchService(f.matches, f.rounds, f.clock, quietLogger())
	p2ID := p2
	match, err := matchService.CreateMatch(context.Background(), fakeExec{}, p1, &p2ID, false)
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	f.ratings.put(&models.PlayerRating{PlayerID: p1, CurrentRating: 1000, PeakRating: 1000})
	f.ratings.put(&models.PlayerRating{PlayerID: p2, CurrentRating: 1000, PeakRating: 1000})
	return match
}

func (f *roundFixture) createFallbackMatch(t *testing.T, p1 int64) *models.Match {
	t.Helper()
	matchService := NewMatchService(f.matches, f.rounds, f.clock, quietLogger())
	match, err := matchService.CreateMatch(context.Background(), fakeExec{}, p1, nil, true)
	if err != nil {
		t.Fatalf("create fallback match: %v", err)
	}
	return match
}

// playOut прогоняет матч до конца: оба игрока сдают раунды 1..3 по очереди.
func (f *roundFixture) playOut(t *testing.T, match *models.Match) {
	t.Helper()
	ctx := context.Background()
	for n := models.RoundOpening; n <= models.RoundClosing; n++ {
		if _, err := f.service.SubmitRound(ctx, match.ID, match.P1ID, n, fmt.Sprintf("p1 argument %d", n)); err != nil {
			t.Fatalf("p1 round %d: %v", n, err)
		}
		if _, err := f.service.SubmitRound(ctx, match.ID, *match.P2ID, n, fmt.Sprintf("p2 argument %d", n)); err != nil {
			t.Fatalf("p2 round %d: %v", n, err)
		}
	}
}

func TestSubmitRoundLocksSlot(t *testing.T) {
	f := newRoundFixture(t)
	match := f.createVersusMatch(t, 1, 2)

	round, err := f.service.SubmitRound(context.Background(), match.ID, 1, 1, "the lease was void ab initio")
	if err != nil {
		t.Fatalf("SubmitRound: %v", err)
	}
	if !round.IsLocked || !round.IsSubmitted {
		t.Error("submitted slot must be locked")
	}
	if round.Score == nil || *round.Score < 0 || *round.Score > BasisPointsMax {
		t.Errorf("score out of basis point range: %v", round.Score)
	}
	if round.ContentRef == nil || !strings.HasPrefix(*round.ContentRef, "inline:") {
		t.Errorf("without storage the content ref must be hash-addressed, got %v", round.ContentRef)
	}

	locked := f.notifier.byType(EventRoundLocked)
	if len(locked) != 1 {
		t.Fatalf("ROUND_LOCKED notifications = %d, want 1", len(locked))
	}
	payload := locked[0].payload.(RoundLockedPayload)
	if payload.Score != *round.Score {
		t.Errorf("notification score = %d, want %d", payload.Score, *round.Score)
	}
}

func TestSubmitRoundRejectsResubmission(t *testing.T) {
	f := newRoundFixture(t)
	match := f.createVersusMatch(t, 1, 2)
	ctx := context.Background()

	if _, err := f.service.SubmitRound(ctx, match.ID, 1, 1, "first version"); err != nil {
		t.Fatalf("SubmitRound: %v", err)
	}
	if _, err := f.service.SubmitRound(ctx, match.ID, 1, 1, "better version"); !errors.Is(err, ErrRoundAlreadySubmitted) {
		t.Errorf("err = %v, want ErrRoundAlreadySubmitted", err)
	}
}

func TestSubmitRoundEnforcesOrder(t *testing.T) {
	f := newRoundFixture(t)
	match := f.createVersusMatch(t, 1, 2)
	ctx := context.Background()

	// Раунд 2 до завершения раунда 1 обеими сторонами.
	if _, err := f.service.SubmitRound(ctx, match.ID, 1, 2, "rebuttal too early"); !errors.Is(err, ErrRoundOutOfOrder) {
		t.Errorf("err = %v, want ErrRoundOutOfOrder", err)
	}

	if _, err := f.service.SubmitRound(ctx, match.ID, 1, 1, "opening"); err != nil {
		t.Fatalf("SubmitRound: %v", err)
	}
	// Свой раунд 1 сдан, соперник ещё нет — раунд 2 всё ещё закрыт.
	if _, err := f.service.SubmitRound(ctx, match.ID, 1, 2, "rebuttal still early"); !errors.Is(err, ErrRoundOutOfOrder) {
		t.Errorf("err = %v, want ErrRoundOutOfOrder", err)
	}

	if _, err := f.service.SubmitRound(ctx, match.ID, 2, 1, "opposing opening"); err != nil {
		t.Fatalf("SubmitRound: %v", err)
	}
	if _, err := f.service.SubmitRound(ctx, match.ID, 1, 2, "rebuttal on time"); err != nil {
		t.Errorf("round 2 after full round 1: %v", err)
	}
}

func TestSubmitRoundValidations(t *testing.T) {
	f := newRoundFixture(t)
	match := f.createVersusMatch(t, 1, 2)
	ctx := context.Background()

	if _, err := f.service.SubmitRound(ctx, match.ID, 1, 0, "x"); !errors.Is(err, ErrRoundNumberInvalid) {
		t.Errorf("round 0: err = %v, want ErrRoundNumberInvalid", err)
	}
	if _, err := f.service.SubmitRound(ctx, match.ID, 1, 4, "x"); !errors.Is(err, ErrRoundNumberInvalid) {
		t.Errorf("round 4: err = %v, want ErrRoundNumberInvalid", err)
	}
	if _, err := f.service.SubmitRound(ctx, match.ID, 1, 1, "   "); !errors.Is(err, ErrContentRequired) {
		t.Errorf("blank content: err = %v, want ErrContentRequired", err)
	}
	if _, err := f.service.SubmitRound(ctx, match.ID, 99, 1, "not my match"); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-participant: err = %v, want ErrNotFound", err)
	}
	if _, err := f.service.SubmitRound(ctx, 404, 1, 1, "no such match"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown match: err = %v, want ErrNotFound", err)
	}
}

func TestLastSubmissionFinalizesAndRates(t *testing.T) {
	f := newRoundFixture(t)
	match := f.createVersusMatch(t, 1, 2)
	f.playOut(t, match)

	stored, err := f.matches.GetByID(context.Background(), nil, match.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.State != models.MatchStateFinalized || !stored.IsLocked {
		t.Errorf("match must be finalized and locked, got state=%s locked=%v", stored.State, stored.IsLocked)
	}
	if stored.WinnerID == nil || !stored.HasParticipant(*stored.WinnerID) {
		t.Error("winner must be a participant")
	}
	if !stored.RatingProcessed {
		t.Error("ratings must be processed in the finalize transaction")
	}

	// Нулевая сумма после обсчёта.
	a, _ := f.ratings.GetByPlayerID(context.Background(), nil, 1)
	b, _ := f.ratings.GetByPlayerID(context.Background(), nil, 2)
	if (a.CurrentRating - 1000) + (b.CurrentRating - 1000) != 0 {
		t.Errorf("ratings are not zero-sum: %d / %d", a.CurrentRating, b.CurrentRating)
	}

	if n := len(f.notifier.byType(EventMatchFinalized)); n != 1 {
		t.Errorf("MATCH_FINALIZED notifications = %d, want 1", n)
	}
	if n := len(f.notifier.byType(EventRatingUpdated)); n != 2 {
		t.Errorf("RATING_UPDATED notifications = %d, want 2", n)
	}
}

func TestConcurrentFinalSubmissionsFinalizeOnce(t *testing.T) {
	f := newRoundFixture(t)
	match := f.createVersusMatch(t, 1, 2)
	ctx := context.Background()

	for n := models.RoundOpening; n <= models.RoundClosing; n++ {
		if _, err := f.service.SubmitRound(ctx, match.ID, 1, n, fmt.Sprintf("p1 argument %d", n)); err != nil {
			t.Fatalf("p1 round %d: %v", n, err)
		}
		if n < models.RoundClosing {
			if _, err := f.service.SubmitRound(ctx, match.ID, 2, n, fmt.Sprintf("p2 argument %d", n)); err != nil {
				t.Fatalf("p2 round %d: %v", n, err)
			}
		}
	}

	// Две параллельные сдачи последнего слота: условный UPDATE слота —
	// точка сериализации, финализировать матч должна ровно одна.
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.SubmitRound(ctx, match.ID, 2, models.RoundClosing, "p2 closing argument")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if !errors.Is(err, ErrConflict) {
			t.Errorf("attempt %d: err = %v, want a conflict", i, err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("successful submissions = %d, want exactly 1", succeeded)
	}

	stored, err := f.matches.GetByID(ctx, nil, match.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.State != models.MatchStateFinalized || !stored.IsLocked || !stored.RatingProcessed {
		t.Errorf("match must be finalized exactly once, got state=%s locked=%v processed=%v",
			stored.State, stored.IsLocked, stored.RatingProcessed)
	}

	if n := len(f.notifier.byType(EventMatchFinalized)); n != 1 {
		t.Errorf("MATCH_FINALIZED notifications = %d, want 1", n)
	}
	if n := len(f.notifier.byType(EventRatingUpdated)); n != 2 {
		t.Errorf("RATING_UPDATED notifications = %d, want 2", n)
	}
}

func TestFinalizedMatchRejectsSubmissions(t *testing.T) {
	f := newRoundFixture(t)
	match := f.createVersusMatch(t, 1, 2)
	f.playOut(t, match)

	if _, err := f.service.SubmitRound(context.Background(), match.ID, 1, 3, "too late"); !errors.Is(err, ErrMatchLocked) {
		t.Errorf("err = %v, want ErrMatchLocked", err)
	}
}

func TestFallbackMatchFinalizesWithoutRating(t *testing.T) {
	f := newRoundFixture(t)
	f.ratings.put(&models.PlayerRating{PlayerID: 1, CurrentRating: 1000, PeakRating: 1000})
	match := f.createFallbackMatch(t, 1)
	ctx := context.Background()

	for n := models.RoundOpening; n <= models.RoundClosing; n++ {
		if _, err := f.service.SubmitRound(ctx, match.ID, 1, n, fmt.Sprintf("solo argument %d", n)); err != nil {
			t.Fatalf("round %d: %v", n, err)
		}
	}

	stored, _ := f.matches.GetByID(ctx, nil, match.ID)
	if stored.State != models.MatchStateFinalized {
		t.Errorf("state = %s, want finalized", stored.State)
	}
	if stored.WinnerID == nil || *stored.WinnerID != 1 {
		t.Error("solo match winner must be the human player")
	}

	rating, _ := f.ratings.GetByPlayerID(ctx, nil, 1)
	if rating.CurrentRating != 1000 || rating.MatchesPlayed != 0 {
		t.Error("fallback match must not touch the rating")
	}
	if n := len(f.notifier.byType(EventRatingUpdated)); n != 0 {
		t.Errorf("RATING_UPDATED after fallback = %d, want 0", n)
	}
}

func TestReplayDeterminism(t *testing.T) {
	// Одинаковая последовательность отправок даёт побитово одинаковый исход.
	run := func() (*models.Match, int, int) {
		f := newRoundFixture(t)
		match := f.createVersusMatch(t, 1, 2)
		f.playOut(t, match)
		stored, _ := f.matches.GetByID(context.Background(), nil, match.ID)
		return stored, *stored.P1Score, *stored.P2Score
	}

	first, p1a, p2a := run()
	second, p1b, p2b := run()
	if p1a != p1b || p2a != p2b {
		t.Errorf("scores differ between replays: %d/%d vs %d/%d", p1a, p2a, p1b, p2b)
	}
	if *first.WinnerID != *second.WinnerID {
		t.Errorf("winner differs between replays: %d vs %d", *first.WinnerID, *second.WinnerID)
	}
}
