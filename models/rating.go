package models

import "time"

const (
	// DefaultRating присваивается игроку при первом входе в очередь.
	DefaultRating = 1000
	// RatingFloor — нижняя граница рейтинга, ниже неё рейтинг не опускается.
	RatingFloor = 100
)

type MatchResult string

const (
	ResultWin  MatchResult = "win"
	ResultLoss MatchResult = "loss"
	ResultDraw MatchResult = "draw"
)

// PlayerRating мутируется только движком рейтинга внутри транзакции финализации матча.
type PlayerRating struct {
	PlayerID      int64     `json:"player_id"`
	CurrentRating int       `json:"current_rating"`
	PeakRating    int       `json:"peak_rating"`
	MatchesPlayed int       `json:"matches_played"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	Draws         int       `json:"draws"`
	LastActiveAt  time.Time `json:"last_active_at"`
}

// RatingHistoryEntry — неизменяемая запись одного изменения рейтинга.
// Не более одной записи на пару (player, match), никогда не обновляется и не удаляется.
type RatingHistoryEntry struct {
	ID             int64       `json:"id"`
	PlayerID       int64       `json:"player_id"`
	MatchID        int64       `json:"match_id"`
	OldRating      int         `json:"old_rating"`
	NewRating      int         `json:"new_rating"`
	Delta          int         `json:"delta"`
	OpponentRating int         `json:"opponent_rating"`
	Result         MatchResult `json:"result"`
	CreatedAt      time.Time   `json:"created_at"`
}
