package handlers

import (
	"net/http"

	"github.com/Dosada05/debate-arena/middleware"
	"github.com/Dosada05/debate-arena/services"
)

type QueueHandler struct {
	matchmakingService services.MatchmakingService
}

func NewQueueHandler(matchmakingService services.MatchmakingService) *QueueHandler {
	return &QueueHandler{matchmakingService: matchmakingService}
}

// Join ставит игрока в очередь подбора. 201 с матчем, если соперник нашёлся
// сразу, 202 — если игрок остался ждать.
func (h *QueueHandler) Join(w http.ResponseWriter, r *http.Request) {
	playerID, err := middleware.GetPlayerIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}

	var input struct {
		Category *string `json:"category"`
	}
	if r.ContentLength > 0 {
		if err := readJSON(w, r, &input); err != nil {
			badRequestResponse(w, err)
			return
		}
	}

	match, err := h.matchmakingService.Enqueue(r.Context(), playerID, input.Category)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if match == nil {
		writeJSON(w, http.StatusAccepted, jsonResponse{"status": "queued"}, nil)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{"status": "matched", "match": match}, nil)
}

func (h *QueueHandler) Leave(w http.ResponseWriter, r *http.Request) {
	playerID, err := middleware.GetPlayerIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}

	if err := h.matchmakingService.Dequeue(r.Context(), playerID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"status": "dequeued"}, nil)
}

func (h *QueueHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	playerID, err := middleware.GetPlayerIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}

	if err := h.matchmakingService.Heartbeat(r.Context(), playerID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"status": "ok"}, nil)
}
