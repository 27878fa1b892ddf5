package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dosada05/debate-arena/models"
	"github.com/Dosada05/debate-arena/repositories"
)

// --- stub database/sql driver ---
//
// Сервисы владеют транзакциями через *sql.DB, а вся работа с данными уходит в
// репозитории. Для юнит-тестов репозитории подменяются in-memory фейками, а
// *sql.DB нужен только ради BeginTx/Commit/Rollback: их обслуживает пустой
// драйвер ниже.

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return &stubConn{}, nil }

type stubConn struct{}

func (*stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (*stubConn) Close() error                        { return nil }
func (*stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

var registerStubOnce sync.Once

func newStubDB(t interface{ Fatalf(string, ...interface{}) }) *sql.DB {
	registerStubOnce.Do(func() { sql.Register("arenastub", stubDriver{}) })
	db, err := sql.Open("arenastub", "")
	if err != nil {
		t.Fatalf("open stub db: %v", err)
	}
	return db
}

// fakeExec — заглушка SQLExecutor для вызовов, требующих транзакцию.
type fakeExec struct{}

func (fakeExec) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errors.New("not supported")
}
func (fakeExec) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errors.New("not supported")
}
func (fakeExec) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

// --- fake clock ---

type fakeTimer struct {
	stopped bool
	fn      func()
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) AfterFunc(_ time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Fire синхронно запускает все невыключенные таймеры.
func (c *fakeClock) Fire() {
	c.mu.Lock()
	pending := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, t := range pending {
		if !t.stopped {
			t.stopped = true
			t.fn()
		}
	}
}

func (c *fakeClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// --- fake notifier ---

type notification struct {
	targetMatch  int64
	targetPlayer int64
	eventType    string
	payload      interface{}
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *fakeNotifier) NotifyMatch(matchID int64, eventType string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{targetMatch: matchID, eventType: eventType, payload: payload})
}

func (n *fakeNotifier) NotifyPlayer(playerID int64, eventType string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{targetPlayer: playerID, eventType: eventType, payload: payload})
}

func (n *fakeNotifier) byType(eventType string) []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification
	for _, e := range n.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// --- fake rating repository ---

type fakeRatingRepo struct {
	mu      sync.Mutex
	ratings map[int64]*models.PlayerRating
}

func newFakeRatingRepo() *fakeRatingRepo {
	return &fakeRatingRepo{ratings: make(map[int64]*models.PlayerRating)}
}

func (r *fakeRatingRepo) put(rating *models.PlayerRating) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rating
	r.ratings[rating.PlayerID] = &cp
}

func (r *fakeRatingRepo) GetByPlayerID(_ context.Context, _ repositories.SQLExecutor, playerID int64) (*models.PlayerRating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rating, ok := r.ratings[playerID]
	if !ok {
		return nil, repositories.ErrPlayerRatingNotFound
	}
	cp := *rating
	return &cp, nil
}

func (r *fakeRatingRepo) GetForUpdate(ctx context.Context, exec repositories.SQLExecutor, playerID int64) (*models.PlayerRating, error) {
	return r.GetByPlayerID(ctx, exec, playerID)
}

func (r *fakeRatingRepo) GetOrCreate(_ context.Context, _ repositories.SQLExecutor, playerID int64, defaultRating int, now time.Time) (*models.PlayerRating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rating, ok := r.ratings[playerID]; ok {
		cp := *rating
		return &cp, nil
	}
	rating := &models.PlayerRating{
		PlayerID:      playerID,
		CurrentRating: defaultRating,
		PeakRating:    defaultRating,
		LastActiveAt:  now,
	}
	r.ratings[playerID] = rating
	cp := *rating
	return &cp, nil
}

func (r *fakeRatingRepo) Update(_ context.Context, _ repositories.SQLExecutor, rating *models.PlayerRating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rating.CurrentRating < models.RatingFloor {
		return repositories.ErrRatingCheckViolated
	}
	cp := *rating
	r.ratings[rating.PlayerID] = &cp
	return nil
}

func (r *fakeRatingRepo) ListLeaderboard(_ context.Context, limit, offset int) ([]*models.PlayerRating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PlayerRating
	for _, rating := range r.ratings {
		cp := *rating
		out = append(out, &cp)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CurrentRating > out[i].CurrentRating {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// --- fake rating history repository ---

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []*models.RatingHistoryEntry
}

func (r *fakeHistoryRepo) Create(_ context.Context, _ repositories.SQLExecutor, entry *models.RatingHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.PlayerID == entry.PlayerID && e.MatchID == entry.MatchID {
			return repositories.ErrRatingHistoryDuplicate
		}
	}
	cp := *entry
	cp.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *fakeHistoryRepo) ListByPlayer(_ context.Context, playerID int64, limit int) ([]*models.RatingHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.RatingHistoryEntry
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if r.entries[i].PlayerID == playerID {
			cp := *r.entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- fake match repository ---

type fakeMatchRepo struct {
	mu      sync.Mutex
	nextID  int64
	matches map[int64]*models.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{nextID: 1, matches: make(map[int64]*models.Match)}
}

func (r *fakeMatchRepo) Create(_ context.Context, _ repositories.SQLExecutor, match *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	match.ID = r.nextID
	r.nextID++
	cp := *match
	r.matches[match.ID] = &cp
	return nil
}

func (r *fakeMatchRepo) AssignRoles(_ context.Context, _ repositories.SQLExecutor, matchID int64, p1Role, p2Role models.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[matchID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.P1Role, m.P2Role = p1Role, p2Role
	return nil
}

func (r *fakeMatchRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int64) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMatchRepo) GetForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int64) (*models.Match, error) {
	return r.GetByID(ctx, exec, id)
}

func (r *fakeMatchRepo) HasActiveForPlayer(_ context.Context, _ repositories.SQLExecutor, playerID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.matches {
		if m.State != models.MatchStateFinalized && m.HasParticipant(playerID) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMatchRepo) Start(_ context.Context, _ repositories.SQLExecutor, id int64, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	if m.State != models.MatchStateQueued {
		return repositories.ErrMatchNotQueued
	}
	m.State = models.MatchStateInProgress
	m.StartedAt = &startedAt
	return nil
}

func (r *fakeMatchRepo) Finalize(_ context.Context, _ repositories.SQLExecutor, id int64, p1Score, p2Score int, winnerID int64, finalizedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	if m.IsLocked {
		return repositories.ErrMatchAlreadyLocked
	}
	m.State = models.MatchStateFinalized
	m.P1Score, m.P2Score = &p1Score, &p2Score
	m.WinnerID = &winnerID
	m.IsLocked = true
	m.FinalizedAt = &finalizedAt
	return nil
}

func (r *fakeMatchRepo) MarkRatingProcessed(_ context.Context, _ repositories.SQLExecutor, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	if m.RatingProcessed || !m.IsLocked {
		return repositories.ErrMatchAlreadyProcessed
	}
	m.RatingProcessed = true
	return nil
}

func (r *fakeMatchRepo) ListByPlayer(_ context.Context, playerID int64, limit int) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Match
	for id := r.nextID - 1; id >= 1 && len(out) < limit; id-- {
		if m, ok := r.matches[id]; ok && m.HasParticipant(playerID) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- fake round repository ---

type fakeRoundRepo struct {
	mu     sync.Mutex
	nextID int64
	rounds []*models.MatchRound
}

func newFakeRoundRepo() *fakeRoundRepo {
	return &fakeRoundRepo{nextID: 1}
}

func (r *fakeRoundRepo) CreateBatch(_ context.Context, _ repositories.SQLExecutor, rounds []*models.MatchRound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, nr := range rounds {
		for _, existing := range r.rounds {
			if existing.MatchID == nr.MatchID && existing.PlayerID == nr.PlayerID && existing.RoundNumber == nr.RoundNumber {
				return repositories.ErrRoundSlotDuplicate
			}
		}
	}
	for _, nr := range rounds {
		nr.ID = r.nextID
		r.nextID++
		cp := *nr
		r.rounds = append(r.rounds, &cp)
	}
	return nil
}

func (r *fakeRoundRepo) ListByMatch(_ context.Context, _ repositories.SQLExecutor, matchID int64) ([]*models.MatchRound, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.MatchRound
	for _, round := range r.rounds {
		if round.MatchID == matchID {
			cp := *round
			out = append(out, &cp)
		}
	}
	// ORDER BY round_number, player_id
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].RoundNumber < out[i].RoundNumber ||
				(out[j].RoundNumber == out[i].RoundNumber && out[j].PlayerID < out[i].PlayerID) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (r *fakeRoundRepo) Submit(_ context.Context, _ repositories.SQLExecutor, roundID int64, contentRef string, score int, submittedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, round := range r.rounds {
		if round.ID != roundID {
			continue
		}
		if round.IsSubmitted || round.IsLocked {
			return repositories.ErrRoundAlreadyLocked
		}
		round.ContentRef = &contentRef
		round.Score = &score
		round.IsSubmitted = true
		round.IsLocked = true
		round.SubmittedAt = &submittedAt
		return nil
	}
	return fmt.Errorf("round %d not found", roundID)
}

// --- fake queue repository ---

type fakeQueueRepo struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*models.QueueEntry
	// activeCheck подключает матчевый репозиторий к NOT EXISTS-фильтру кандидата.
	activeCheck func(playerID int64) bool
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{nextID: 1, entries: make(map[int64]*models.QueueEntry)}
}

func (r *fakeQueueRepo) Insert(_ context.Context, _ repositories.SQLExecutor, entry *models.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.PlayerID]; ok {
		return repositories.ErrQueueEntryDuplicate
	}
	entry.ID = r.nextID
	r.nextID++
	cp := *entry
	r.entries[entry.PlayerID] = &cp
	return nil
}

func (r *fakeQueueRepo) Delete(_ context.Context, _ repositories.SQLExecutor, playerID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[playerID]; !ok {
		return false, nil
	}
	delete(r.entries, playerID)
	return true, nil
}

func (r *fakeQueueRepo) FindCandidate(_ context.Context, _ repositories.SQLExecutor, forPlayerID int64, minRating, maxRating int, category *string) (*models.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *models.QueueEntry
	for _, e := range r.entries {
		if e.PlayerID == forPlayerID {
			continue
		}
		// Как в SQL-предикате: требуется только пересечение диапазонов.
		if e.MinRating > maxRating || e.MaxRating < minRating {
			continue
		}
		// Отсутствующая категория — wildcard, как в SQL-фильтре кандидата.
		if category != nil && e.Category != nil && *category != *e.Category {
			continue
		}
		if r.activeCheck != nil && r.activeCheck(e.PlayerID) {
			continue
		}
		if best == nil ||
			e.Rating < best.Rating ||
			(e.Rating == best.Rating && e.JoinedAt.Before(best.JoinedAt)) ||
			(e.Rating == best.Rating && e.JoinedAt.Equal(best.JoinedAt) && e.PlayerID < best.PlayerID) {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (r *fakeQueueRepo) Heartbeat(_ context.Context, _ repositories.SQLExecutor, playerID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[playerID]
	if !ok {
		return repositories.ErrQueueEntryNotFound
	}
	e.LastHeartbeatAt = at
	return nil
}

func (r *fakeQueueRepo) DeleteStale(_ context.Context, _ repositories.SQLExecutor, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, e := range r.entries {
		if e.LastHeartbeatAt.Before(olderThan) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed, nil
}
