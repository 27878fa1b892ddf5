package services

import "github.com/Dosada05/debate-arena/models"

// Типы событий, публикуемых ядром. Доставка fire-and-forget: сбой доставки
// логируется реализацией и никогда не влияет на корректность матча.
const (
	EventMatchFound     = "MATCH_FOUND"
	EventRoundLocked    = "ROUND_LOCKED"
	EventMatchFinalized = "MATCH_FINALIZED"
	EventRatingUpdated  = "RATING_UPDATED"
)

type MatchFoundPayload struct {
	MatchID    int64  `json:"match_id"`
	PlayerID   int64  `json:"player_id"`
	OpponentID *int64 `json:"opponent_id,omitempty"`
	IsFallback bool   `json:"is_fallback"`
	Role       string `json:"role"`
}

type RoundLockedPayload struct {
	MatchID     int64 `json:"match_id"`
	PlayerID    int64 `json:"player_id"`
	RoundNumber int   `json:"round_number"`
	Score       int   `json:"score"`
}

type MatchFinalizedPayload struct {
	MatchID  int64  `json:"match_id"`
	WinnerID int64  `json:"winner_id"`
	P1Score  int    `json:"p1_score"`
	P2Score  int    `json:"p2_score"`
	IsDraw   bool   `json:"is_draw"`
	Decision string `json:"decision"`
}

type RatingUpdatedPayload struct {
	MatchID   int64              `json:"match_id"`
	PlayerID  int64              `json:"player_id"`
	OldRating int                `json:"old_rating"`
	NewRating int                `json:"new_rating"`
	Delta     int                `json:"delta"`
	Result    models.MatchResult `json:"result"`
}

// Notifier — приёмник событий ядра. Реализации: комнатный websocket-хаб (live),
// AMQP-паблишер (notify), а также их композиция и no-op.
type Notifier interface {
	NotifyMatch(matchID int64, eventType string, payload interface{})
	NotifyPlayer(playerID int64, eventType string, payload interface{})
}

type nopNotifier struct{}

func NewNopNotifier() Notifier {
	return nopNotifier{}
}

func (nopNotifier) NotifyMatch(int64, string, interface{})  {}
func (nopNotifier) NotifyPlayer(int64, string, interface{}) {}

type multiNotifier struct {
	sinks []Notifier
}

// NewMultiNotifier объединяет несколько приёмников в один.
func NewMultiNotifier(sinks ...Notifier) Notifier {
	return &multiNotifier{sinks: sinks}
}

func (m *multiNotifier) NotifyMatch(matchID int64, eventType string, payload interface{}) {
	for _, sink := range m.sinks {
		sink.NotifyMatch(matchID, eventType, payload)
	}
}

func (m *multiNotifier) NotifyPlayer(playerID int64, eventType string, payload interface{}) {
	for _, sink := range m.sinks {
		sink.NotifyPlayer(playerID, eventType, payload)
	}
}
