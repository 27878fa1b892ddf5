package models

import "time"

// QueueEntry — ожидающий игрок в очереди подбора. Создаётся при входе в очередь,
// удаляется при найденном матче, явном выходе или по таймауту heartbeat.
type QueueEntry struct {
	ID              int64     `json:"id"`
	PlayerID        int64     `json:"player_id"`
	Rating          int       `json:"rating"`
	MinRating       int       `json:"min_rating"`
	MaxRating       int       `json:"max_rating"`
	Category        *string   `json:"category,omitempty"`
	JoinedAt        time.Time `json:"joined_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}
