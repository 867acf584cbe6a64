package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/imbroke/backend/internal/services"
)

type SummaryHandler struct {
	summaries Summarizer
	validator *services.ValidationHelper
}

func NewSummaryHandler(summaries Summarizer) *SummaryHandler {
	return &SummaryHandler{summaries: summaries, validator: services.NewValidationHelper()}
}

// UserRoomSummaryRequest is the body of POST /room/summary
type UserRoomSummaryRequest struct {
	RoomID string `json:"roomId" validate:"required,uuid"`
	UserID string `json:"userId" validate:"required,uuid"`
}

// RoomSummary totals a room's transfers per sender and receiver
// @Summary Room summary
// @Tags summary
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} models.RoomSummary
// @Failure 404 {object} services.ErrorResponse "Room not found"
// @Router /room/{id}/summary [get]
func (h *SummaryHandler) RoomSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.summaries.RoomSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, summary)
}

// UserRoomSummary totals one user's transfers inside a room
// @Summary User room summary
// @Tags summary
// @Accept json
// @Produce json
// @Param request body UserRoomSummaryRequest true "Room and user"
// @Success 200 {object} models.RoomSummary
// @Failure 404 {object} services.ErrorResponse "Room not found"
// @Router /room/summary [post]
func (h *SummaryHandler) UserRoomSummary(w http.ResponseWriter, r *http.Request) {
	var req UserRoomSummaryRequest
	if !h.validator.DecodeAndValidate(w, r, &req) {
		return
	}
	summary, err := h.summaries.UserRoomSummary(r.Context(), req.UserID, req.RoomID)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, summary)
}

// Ranking lists users by balance
// @Summary Ranking
// @Tags summary
// @Produce json
// @Success 200 {array} models.RankingEntry
// @Router /ranking [get]
func (h *SummaryHandler) Ranking(w http.ResponseWriter, r *http.Request) {
	entries, err := h.summaries.Ranking(r.Context())
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, entries)
}
