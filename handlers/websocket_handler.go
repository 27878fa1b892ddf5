package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/debate-arena/live"
	"github.com/Dosada05/debate-arena/middleware"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// В продакшене здесь должна быть проверка Origin.
		return true
	},
}

type WebSocketHandler struct {
	hub *live.Hub
}

func NewWebSocketHandler(hub *live.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// ServeMatch подписывает соединение на события матча: /ws/matches/{matchID}.
func (h *WebSocketHandler) ServeMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseIDParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	h.serve(w, r, live.MatchRoom(matchID))
}

// ServePlayer подписывает соединение на персональные события аутентифицированного
// игрока: MATCH_FOUND, RATING_UPDATED.
func (h *WebSocketHandler) ServePlayer(w http.ResponseWriter, r *http.Request) {
	playerID, err := middleware.GetPlayerIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}
	h.serve(w, r, live.PlayerRoom(playerID))
}

func (h *WebSocketHandler) serve(w http.ResponseWriter, r *http.Request, room string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to upgrade websocket",
			slog.String("room", room), slog.Any("error", err))
		return
	}

	client := &live.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Room: room,
	}
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
