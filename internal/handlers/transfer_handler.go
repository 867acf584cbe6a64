package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/imbroke/backend/internal/services"
)

type TransferHandler struct {
	transfers Transferer
	ledger    LedgerReader
	validator *services.ValidationHelper
}

func NewTransferHandler(transfers Transferer, ledger LedgerReader) *TransferHandler {
	return &TransferHandler{
		transfers: transfers,
		ledger:    ledger,
		validator: services.NewValidationHelper(),
	}
}

// TransferRequest is the body of POST /transfer. Amount accepts a JSON
// number or a numeric string.
// @Description Transfer request
type TransferRequest struct {
	SenderID   string          `json:"senderId" validate:"required,uuid"`
	ReceiverID string          `json:"receiverId" validate:"required,uuid"`
	Amount     json.RawMessage `json:"amount" validate:"required" swaggertype:"number" example:"25.5"`
	RoomID     *string         `json:"roomId,omitempty" validate:"omitempty,uuid"`
}

// TransferResponse reports a committed transfer
type TransferResponse struct {
	Message    string `json:"message" example:"Transfer successful"`
	TransferID string `json:"transferId"`
}

// Transfer moves coins from the caller to another user
// @Summary Transfer coins
// @Tags transfer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TransferRequest true "Transfer"
// @Success 200 {object} TransferResponse
// @Failure 400 {object} services.ErrorResponse "Invalid amount or insufficient balance"
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse "Sender or receiver not found"
// @Failure 409 {object} services.ErrorResponse "Concurrent balance change"
// @Failure 429 {object} services.ErrorResponse
// @Router /transfer [post]
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.validator.DecodeAndValidate(w, r, &req) {
		return
	}
	if _, ok := actingAs(w, r, req.SenderID); !ok {
		return
	}

	amount, err := services.ParseAmount(req.Amount)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}

	result, err := h.transfers.Transfer(r.Context(), services.TransferRequest{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Amount:     amount,
		RoomID:     req.RoomID,
	})
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, TransferResponse{Message: "Transfer successful", TransferID: result.Transfer.ID})
}

// ListLogs pages through the caller's ledger
// @Summary Transfer logs
// @Tags transfer
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Param page query int false "Page" default(1)
// @Param per_page query int false "Page size" default(5)
// @Success 200 {object} models.LedgerPage
// @Failure 403 {object} services.ErrorResponse
// @Router /transfer/logs/user/{userId} [get]
func (h *TransferHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingAs(w, r, chi.URLParam(r, "userId"))
	if !ok {
		return
	}
	p, ok := pagination(w, r)
	if !ok {
		return
	}

	page, err := h.ledger.ListEntries(r.Context(), userID, p)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, page)
}

// MarkLogRead flags one of the caller's entries as read
// @Summary Mark log read
// @Tags transfer
// @Produce json
// @Security BearerAuth
// @Param logId path string true "Log ID"
// @Success 200 {object} models.LedgerEntryView
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /transfer/logs/{logId}/read [patch]
func (h *TransferHandler) MarkLogRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := actingAs(w, r, "")
	if !ok {
		return
	}
	entry, err := h.ledger.MarkRead(r.Context(), chi.URLParam(r, "logId"), caller)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, entry)
}

// MarkAllLogsRead flags every unread entry of the caller
// @Summary Mark all logs read
// @Tags transfer
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Success 200 {object} object{message=string,modified=int}
// @Failure 404 {object} services.ErrorResponse "No unread logs"
// @Router /transfer/logs/user/{userId}/read-all [patch]
func (h *TransferHandler) MarkAllLogsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingAs(w, r, chi.URLParam(r, "userId"))
	if !ok {
		return
	}
	n, err := h.ledger.MarkAllRead(r.Context(), userID)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, map[string]any{
		"message":  "All logs marked as read",
		"modified": n,
	})
}
