package handlers

import (
	"context"
	"net/http"

	"github.com/imbroke/backend/internal/middleware"
	"github.com/imbroke/backend/internal/models"
	"github.com/imbroke/backend/internal/services"
)

// RoomManager is implemented by services.RoomService.
type RoomManager interface {
	CreateRoom(ctx context.Context, req services.CreateRoomRequest) (*models.Room, error)
	JoinRoom(ctx context.Context, roomID, userID, password string) (*services.JoinResult, error)
	LeaveRoom(ctx context.Context, roomID, userID string) error
	CloseRoom(ctx context.Context, roomID, callerID string) error
	ListRooms(ctx context.Context, p services.Pagination) (*models.RoomPage, error)
	GetRoom(ctx context.Context, roomID string) (*models.RoomDetail, error)
}

// Inviter is implemented by services.InviteService.
type Inviter interface {
	CreateInvite(ctx context.Context, roomID, issuerID string) (*models.RoomInvite, error)
	AcceptInvite(ctx context.Context, code, userID string) (*services.JoinResult, error)
}

// Transferer is implemented by services.TransferService.
type Transferer interface {
	Transfer(ctx context.Context, req services.TransferRequest) (*services.TransferResult, error)
}

// LedgerReader is implemented by services.LedgerService.
type LedgerReader interface {
	ListEntries(ctx context.Context, userID string, p services.Pagination) (*models.LedgerPage, error)
	MarkRead(ctx context.Context, entryID, callerID string) (*models.LedgerEntryView, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// Summarizer is implemented by services.SummaryService.
type Summarizer interface {
	RoomSummary(ctx context.Context, roomID string) (*models.RoomSummary, error)
	UserRoomSummary(ctx context.Context, userID, roomID string) (*models.RoomSummary, error)
	Ranking(ctx context.Context) ([]models.RankingEntry, error)
}

// actingAs resolves the caller and checks it matches the actor named in the
// request. It writes the error response itself and reports false on failure.
func actingAs(w http.ResponseWriter, r *http.Request, actorID string) (string, bool) {
	caller := middleware.UserIDFromContext(r.Context())
	if caller == "" {
		services.SendErrorResponse(w, "Token is required", http.StatusUnauthorized, nil)
		return "", false
	}
	if actorID != "" && actorID != caller {
		services.SendErrorResponse(w, "You can only act on your own behalf", http.StatusForbidden, nil)
		return "", false
	}
	return caller, true
}

func pagination(w http.ResponseWriter, r *http.Request) (services.Pagination, bool) {
	q := r.URL.Query()
	p, err := services.ParsePagination(q.Get("page"), q.Get("per_page"))
	if err != nil {
		services.WriteServiceError(w, err)
		return p, false
	}
	return p, true
}

func joinResponse(res *services.JoinResult) services.MessageResponse {
	if res.AlreadyMember {
		return services.MessageResponse{Status: "success", Message: "User already in the room"}
	}
	return services.MessageResponse{Status: "success", Message: "User joined the room", Data: res.Room.Response()}
}
