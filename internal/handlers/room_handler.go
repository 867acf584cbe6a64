package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/imbroke/backend/internal/services"
	"github.com/shopspring/decimal"
)

type RoomHandler struct {
	rooms     RoomManager
	invites   Inviter
	validator *services.ValidationHelper
}

func NewRoomHandler(rooms RoomManager, invites Inviter) *RoomHandler {
	return &RoomHandler{
		rooms:     rooms,
		invites:   invites,
		validator: services.NewValidationHelper(),
	}
}

// CreateRoomRequest is the body of POST /createroom
// @Description Room creation request
type CreateRoomRequest struct {
	OwnerID     string           `json:"owner_id" validate:"required,uuid" example:"7b0c1c5e-4a3f-4c59-9d3e-1f2a3b4c5d6e"`
	Name        string           `json:"name" validate:"required,min=1,max=255" example:"Poker night"`
	Password    string           `json:"password,omitempty" validate:"omitempty,max=128"`
	RateDefault *decimal.Decimal `json:"rateDefault,omitempty" swaggertype:"number" example:"1"`
}

// MembershipRequest is the body of join and leave
// @Description Room membership request
type MembershipRequest struct {
	RoomID   string `json:"roomId" validate:"required,uuid"`
	UserID   string `json:"userId" validate:"required,uuid"`
	Password string `json:"password,omitempty"`
}

// CloseRoomRequest is the body of DELETE /room/close
type CloseRoomRequest struct {
	RoomID  string `json:"roomId" validate:"required,uuid"`
	OwnerID string `json:"ownerId" validate:"required,uuid"`
}

// AcceptInviteRequest is the body of POST /room/invite/accept
type AcceptInviteRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// CreateRoom creates a room owned by the caller
// @Summary Create room
// @Tags room
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateRoomRequest true "Room"
// @Success 200 {object} models.RoomResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse "Owner user not found"
// @Router /createroom [post]
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if !h.validator.DecodeAndValidate(w, r, &req) {
		return
	}
	if _, ok := actingAs(w, r, req.OwnerID); !ok {
		return
	}

	in := services.CreateRoomRequest{OwnerID: req.OwnerID, Name: req.Name, Password: req.Password}
	if req.RateDefault != nil {
		in.RateDefault = *req.RateDefault
	}

	room, err := h.rooms.CreateRoom(r.Context(), in)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, room.Response())
}

// JoinRoom adds the caller to a room
// @Summary Join room
// @Tags room
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body MembershipRequest true "Membership"
// @Success 200 {object} services.MessageResponse
// @Failure 403 {object} services.ErrorResponse "Invalid room password"
// @Failure 404 {object} services.ErrorResponse
// @Router /room/user/join [post]
func (h *RoomHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req MembershipRequest
	if !h.validator.DecodeAndValidate(w, r, &req) {
		return
	}
	if _, ok := actingAs(w, r, req.UserID); !ok {
		return
	}

	res, err := h.rooms.JoinRoom(r.Context(), req.RoomID, req.UserID, req.Password)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, joinResponse(res))
}

// LeaveRoom removes the caller from a room
// @Summary Leave room
// @Tags room
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body MembershipRequest true "Membership"
// @Success 200 {object} services.MessageResponse
// @Failure 400 {object} services.ErrorResponse "Owner cannot leave the room"
// @Failure 404 {object} services.ErrorResponse
// @Router /room/user/leave [post]
func (h *RoomHandler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	var req MembershipRequest
	if !h.validator.DecodeAndValidate(w, r, &req) {
		return
	}
	if _, ok := actingAs(w, r, req.UserID); !ok {
		return
	}

	if err := h.rooms.LeaveRoom(r.Context(), req.RoomID, req.UserID); err != nil {
		services.WriteServiceError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, services.MessageResponse{Status: "success", Message: "User left the room"})
}

// CloseRoom deletes a room
// @Summary Close room
// @Tags room
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CloseRoomRequest true "Room"
// @Success 200 {object} services.MessageResponse
// @Failure 403 {object} services.ErrorResponse "Only the owner can close the room"
// @Failure 404 {object} services.ErrorResponse
// @Router /room/close [delete]
func (h *RoomHandler) CloseRoom(w http.ResponseWriter, r *http.Request) {
	var req CloseRoomRequest
	if !h.validator.DecodeAndValidate(w, r, &req) {
		return
	}
	caller, ok := actingAs(w, r, req.OwnerID)
	if !ok {
		return
	}

	if err := h.rooms.CloseRoom(r.Context(), req.RoomID, caller); err != nil {
		services.WriteServiceError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, services.MessageResponse{Status: "success", Message: "Room closed"})
}

// ListRooms pages through rooms
// @Summary List rooms
// @Tags room
// @Produce json
// @Param page query int false "Page" default(1)
// @Param per_page query int false "Page size" default(5)
// @Success 200 {object} models.RoomPage
// @Failure 400 {object} services.ErrorResponse
// @Router /room [get]
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	p, ok := pagination(w, r)
	if !ok {
		return
	}
	page, err := h.rooms.ListRooms(r.Context(), p)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, page)
}

// GetRoom returns a room with its owner and members
// @Summary Get room
// @Tags room
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} models.RoomDetail
// @Failure 404 {object} services.ErrorResponse "Room not found"
// @Router /room/{id} [get]
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, room)
}

// CreateInvite issues a single-use invite code
// @Summary Invite to room
// @Tags room
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Success 201 {object} models.RoomInvite
// @Failure 403 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /room/{id}/invite [post]
func (h *RoomHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	caller, ok := actingAs(w, r, "")
	if !ok {
		return
	}
	invite, err := h.invites.CreateInvite(r.Context(), chi.URLParam(r, "id"), caller)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusCreated, invite)
}

// AcceptInvite joins the caller to the invited room
// @Summary Accept invite
// @Tags room
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AcceptInviteRequest true "Invite"
// @Success 200 {object} services.MessageResponse
// @Failure 404 {object} services.ErrorResponse "Invalid or expired invite"
// @Router /room/invite/accept [post]
func (h *RoomHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req AcceptInviteRequest
	if !h.validator.DecodeAndValidate(w, r, &req) {
		return
	}
	caller, ok := actingAs(w, r, "")
	if !ok {
		return
	}

	res, err := h.invites.AcceptInvite(r.Context(), req.Code, caller)
	if err != nil {
		services.WriteServiceError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, joinResponse(res))
}
