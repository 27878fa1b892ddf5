package handlers

import (
	"net/http"
	"strconv"

	"github.com/Dosada05/debate-arena/services"
)

type RatingHandler struct {
	ratingService services.RatingService
}

func NewRatingHandler(ratingService services.RatingService) *RatingHandler {
	return &RatingHandler{ratingService: ratingService}
}

func (h *RatingHandler) Profile(w http.ResponseWriter, r *http.Request) {
	playerID, err := parseIDParam(r, "playerID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	profile, err := h.ratingService.GetProfile(r.Context(), playerID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"profile": profile}, nil)
}

func (h *RatingHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.ratingService.Leaderboard(r.Context(), limit, offset)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"leaderboard": entries}, nil)
}

func (h *RatingHandler) History(w http.ResponseWriter, r *http.Request) {
	playerID, err := parseIDParam(r, "playerID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := h.ratingService.History(r.Context(), playerID, limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"history": history}, nil)
}
