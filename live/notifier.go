package live

import "github.com/Dosada05/debate-arena/services"

// hubNotifier транслирует события ядра в комнаты websocket-хаба.
type hubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) services.Notifier {
	return &hubNotifier{hub: hub}
}

func (n *hubNotifier) NotifyMatch(matchID int64, eventType string, payload interface{}) {
	room := MatchRoom(matchID)
	n.hub.BroadcastToRoom(room, Message{Type: eventType, Payload: payload, RoomID: room})
}

func (n *hubNotifier) NotifyPlayer(playerID int64, eventType string, payload interface{}) {
	room := PlayerRoom(playerID)
	n.hub.BroadcastToRoom(room, Message{Type: eventType, Payload: payload, RoomID: room})
}
