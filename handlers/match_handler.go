package handlers

import (
	"net/http"
	"strconv"

	"github.com/Dosada05/debate-arena/middleware"
	"github.com/Dosada05/debate-arena/services"
	"github.com/go-chi/chi/v5"
)

type MatchHandler struct {
	matchService services.MatchService
	roundService services.RoundService
}

func NewMatchHandler(matchService services.MatchService, roundService services.RoundService) *MatchHandler {
	return &MatchHandler{matchService: matchService, roundService: roundService}
}

func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseIDParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	match, err := h.matchService.GetMatch(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil)
}

// SubmitRound принимает аргумент игрока для раунда матча.
func (h *MatchHandler) SubmitRound(w http.ResponseWriter, r *http.Request) {
	playerID, err := middleware.GetPlayerIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, err.Error())
		return
	}

	matchID, err := parseIDParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	var input struct {
		RoundNumber int    `json:"round_number"`
		Content     string `json:"content"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	round, err := h.roundService.SubmitRound(r.Context(), matchID, playerID, input.RoundNumber, input.Content)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"round": round}, nil)
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
