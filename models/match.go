package models

import "time"

type MatchState string

const (
	MatchStateQueued     MatchState = "queued"
	MatchStateInProgress MatchState = "in_progress"
	MatchStateFinalized  MatchState = "finalized"
)

type Role string

const (
	RolePetitioner Role = "petitioner"
	RoleRespondent Role = "respondent"
)

const (
	RoundOpening  = 1
	RoundRebuttal = 2
	RoundClosing  = 3
	// RoundsPerPlayer — фиксированное число слотов на участника.
	RoundsPerPlayer = 3
)

// Match — агрегат матча. P2ID == nil означает запасного (не-человеческого)
// оппонента: такой матч играется в одиночку и исключён из рейтинга.
// После IsLocked == true ни матч, ни его раунды больше не изменяются.
type Match struct {
	ID              int64      `json:"id"`
	P1ID            int64      `json:"p1_id"`
	P2ID            *int64     `json:"p2_id,omitempty"`
	IsFallback      bool       `json:"is_fallback"`
	P1Role          Role       `json:"p1_role"`
	P2Role          Role       `json:"p2_role"`
	State           MatchState `json:"state"`
	P1Score         *int       `json:"p1_score,omitempty"`
	P2Score         *int       `json:"p2_score,omitempty"`
	WinnerID        *int64     `json:"winner_id,omitempty"`
	IsLocked        bool       `json:"is_locked"`
	RatingProcessed bool       `json:"rating_processed"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinalizedAt     *time.Time `json:"finalized_at,omitempty"`

	Rounds []*MatchRound `json:"rounds,omitempty"`
}

// HasParticipant сообщает, является ли игрок участником матча.
func (m *Match) HasParticipant(playerID int64) bool {
	if m.P1ID == playerID {
		return true
	}
	return m.P2ID != nil && *m.P2ID == playerID
}

// ExpectedRoundSlots — 3 слота для одиночного (fallback) матча, 6 для матча двух игроков.
func (m *Match) ExpectedRoundSlots() int {
	if m.P2ID == nil {
		return RoundsPerPlayer
	}
	return RoundsPerPlayer * 2
}

// MatchRound — один слот (match, player, round). Ровно одна строка на тройку,
// раунд N открывается только после блокировки всех слотов раунда N-1.
type MatchRound struct {
	ID          int64      `json:"id"`
	MatchID     int64      `json:"match_id"`
	PlayerID    int64      `json:"player_id"`
	RoundNumber int        `json:"round_number"`
	ContentRef  *string    `json:"content_ref,omitempty"`
	Score       *int       `json:"score,omitempty"`
	IsSubmitted bool       `json:"is_submitted"`
	IsLocked    bool       `json:"is_locked"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}
