package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/imbroke/backend/internal/config"
	mW "github.com/imbroke/backend/internal/middleware"
	"github.com/imbroke/backend/internal/models"
	"github.com/imbroke/backend/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	alice = "7b0c1c5e-4a3f-4c59-9d3e-1f2a3b4c5d6e"
	bob   = "2d9e8f7a-6b5c-4d3e-8f1a-0b9c8d7e6f5a"
	room  = "5f6e7d8c-9b0a-4f1e-8d2c-3b4a5f6e7d8c"
)

type testRouter struct {
	handler   http.Handler
	rooms     *MockRooms
	invites   *MockInvites
	transfers *MockTransfers
	ledger    *MockLedger
	summaries *MockSummaries
}

// fakeAuth treats the bearer token as the user id.
func fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := services.BearerToken(r)
		if !ok {
			services.SendErrorResponse(w, "Token is required", http.StatusUnauthorized, nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(mW.WithUserID(r.Context(), token)))
	})
}

func newTestRouter() *testRouter {
	tr := &testRouter{
		rooms:     new(MockRooms),
		invites:   new(MockInvites),
		transfers: new(MockTransfers),
		ledger:    new(MockLedger),
		summaries: new(MockSummaries),
	}
	tr.handler = NewRouter(config.ServerConfig{AllowedOrigins: []string{"*"}}, Dependencies{
		Auth:        stubAuth{},
		Rooms:       tr.rooms,
		Invites:     tr.invites,
		Transfers:   tr.transfers,
		Ledger:      tr.ledger,
		Summaries:   tr.summaries,
		RequireAuth: fakeAuth,
	})
	return tr
}

func (tr *testRouter) do(method, path, user string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, req)
	return w
}

func TestRouter_Root(t *testing.T) {
	tr := newTestRouter()

	w := tr.do(http.MethodGet, "/api/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "App is Working", w.Body.String())

	w = tr.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	tr := newTestRouter()

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/transfer"},
		{http.MethodPost, "/api/createroom"},
		{http.MethodGet, "/api/getuser"},
		{http.MethodPatch, "/api/transfer/logs/user/" + alice + "/read-all"},
	} {
		w := tr.do(route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}
}

func TestTransferHandler_Transfer(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		tr := newTestRouter()
		tr.transfers.On("Transfer", mock.MatchedBy(func(req services.TransferRequest) bool {
			return req.SenderID == alice && req.ReceiverID == bob && req.Amount.Equal(decimal.RequireFromString("25.5"))
		})).Return(&services.TransferResult{Transfer: models.Transfer{ID: "t-1"}}, nil)

		w := tr.do(http.MethodPost, "/api/transfer", alice,
			`{"senderId":"`+alice+`","receiverId":"`+bob+`","amount":25.5}`)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp TransferResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Transfer successful", resp.Message)
		assert.Equal(t, "t-1", resp.TransferID)
		tr.transfers.AssertExpectations(t)
	})

	t.Run("acting for someone else", func(t *testing.T) {
		tr := newTestRouter()

		w := tr.do(http.MethodPost, "/api/transfer", bob,
			`{"senderId":"`+alice+`","receiverId":"`+bob+`","amount":1}`)

		assert.Equal(t, http.StatusForbidden, w.Code)
		tr.transfers.AssertNotCalled(t, "Transfer", mock.Anything)
	})

	t.Run("unparseable amount", func(t *testing.T) {
		tr := newTestRouter()

		w := tr.do(http.MethodPost, "/api/transfer", alice,
			`{"senderId":"`+alice+`","receiverId":"`+bob+`","amount":"abc"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid transfer amount")
	})

	t.Run("malformed receiver id", func(t *testing.T) {
		tr := newTestRouter()

		w := tr.do(http.MethodPost, "/api/transfer", alice,
			`{"senderId":"`+alice+`","receiverId":"bob","amount":1}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "receiverId")
	})

	t.Run("insufficient funds surfaces balance", func(t *testing.T) {
		tr := newTestRouter()
		tr.transfers.On("Transfer", mock.Anything).Return(nil, services.InsufficientFunds(decimal.NewFromInt(3)))

		w := tr.do(http.MethodPost, "/api/transfer", alice,
			`{"senderId":"`+alice+`","receiverId":"`+bob+`","amount":10}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp services.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "3", resp.Details["balance"])
	})

	t.Run("unexpected error is masked", func(t *testing.T) {
		tr := newTestRouter()
		tr.transfers.On("Transfer", mock.Anything).Return(nil, errors.New("pq: connection refused"))

		w := tr.do(http.MethodPost, "/api/transfer", alice,
			`{"senderId":"`+alice+`","receiverId":"`+bob+`","amount":10}`)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "pq:")
	})
}

func TestRoomHandler(t *testing.T) {
	t.Run("create room as owner", func(t *testing.T) {
		tr := newTestRouter()
		tr.rooms.On("CreateRoom", mock.MatchedBy(func(req services.CreateRoomRequest) bool {
			return req.OwnerID == alice && req.Name == "Poker night" && req.RateDefault.Equal(decimal.NewFromInt(2))
		})).Return(&models.Room{ID: room, OwnerID: alice, Name: "Poker night", RateDefault: decimal.NewFromInt(2)}, nil)

		w := tr.do(http.MethodPost, "/api/createroom", alice,
			`{"owner_id":"`+alice+`","name":"Poker night","rateDefault":2}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"rateDefault":2`)
		tr.rooms.AssertExpectations(t)
	})

	t.Run("join twice reports already joined", func(t *testing.T) {
		tr := newTestRouter()
		tr.rooms.On("JoinRoom", room, bob, "").Return(&services.JoinResult{AlreadyMember: true}, nil)

		w := tr.do(http.MethodPost, "/api/room/user/join", bob, map[string]string{"roomId": room, "userId": bob})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "User already in the room")
	})

	t.Run("owner leave is rejected", func(t *testing.T) {
		tr := newTestRouter()
		err := &services.ServiceError{Kind: services.ErrInvalidOperation, Message: "Owner cannot leave the room"}
		tr.rooms.On("LeaveRoom", room, alice).Return(err)

		w := tr.do(http.MethodPost, "/api/room/user/leave", alice, map[string]string{"roomId": room, "userId": alice})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Owner cannot leave the room")
	})

	t.Run("close room for another owner", func(t *testing.T) {
		tr := newTestRouter()

		w := tr.do(http.MethodDelete, "/api/room/close", bob, map[string]string{"roomId": room, "ownerId": alice})

		assert.Equal(t, http.StatusForbidden, w.Code)
		tr.rooms.AssertNotCalled(t, "CloseRoom", mock.Anything, mock.Anything)
	})

	t.Run("list rooms paginates", func(t *testing.T) {
		tr := newTestRouter()
		tr.rooms.On("ListRooms", services.Pagination{Page: 2, PerPage: 10}).
			Return(&models.RoomPage{Page: 2, PerPage: 10, Data: []models.RoomListItem{}}, nil)

		w := tr.do(http.MethodGet, "/api/room?page=2&per_page=10", "", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"per_page":10`)
	})

	t.Run("bad page", func(t *testing.T) {
		tr := newTestRouter()

		w := tr.do(http.MethodGet, "/api/room?page=zero", "", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invite uses caller", func(t *testing.T) {
		tr := newTestRouter()
		tr.invites.On("CreateInvite", room, bob).Return(&models.RoomInvite{Code: "abc", RoomID: room}, nil)

		w := tr.do(http.MethodPost, "/api/room/"+room+"/invite", bob, nil)

		assert.Equal(t, http.StatusCreated, w.Code)
		tr.invites.AssertExpectations(t)
	})

	t.Run("accept invite", func(t *testing.T) {
		tr := newTestRouter()
		tr.invites.On("AcceptInvite", "abc", bob).
			Return(&services.JoinResult{Room: models.Room{ID: room, Name: "Poker night"}}, nil)

		w := tr.do(http.MethodPost, "/api/room/invite/accept", bob, map[string]string{"code": "abc"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "User joined the room")
	})
}

func TestTransferHandler_Logs(t *testing.T) {
	t.Run("own logs", func(t *testing.T) {
		tr := newTestRouter()
		tr.ledger.On("ListEntries", alice, services.Pagination{Page: 1, PerPage: 5}).
			Return(&models.LedgerPage{Page: 1, PerPage: 5, UnreadCount: 1, Data: []models.LedgerEntryView{}}, nil)

		w := tr.do(http.MethodGet, "/api/transfer/logs/user/"+alice, alice, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"unreadCount":1`)
	})

	t.Run("someone else's logs", func(t *testing.T) {
		tr := newTestRouter()

		w := tr.do(http.MethodGet, "/api/transfer/logs/user/"+alice, bob, nil)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("mark all read twice", func(t *testing.T) {
		tr := newTestRouter()
		tr.ledger.On("MarkAllRead", alice).Return(int64(2), nil).Once()
		tr.ledger.On("MarkAllRead", alice).
			Return(int64(0), &services.ServiceError{Kind: services.ErrNotFound, Message: "No unread logs"}).Once()

		w := tr.do(http.MethodPatch, "/api/transfer/logs/user/"+alice+"/read-all", alice, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"modified":2`)

		w = tr.do(http.MethodPatch, "/api/transfer/logs/user/"+alice+"/read-all", alice, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "No unread logs")
	})

	t.Run("mark one read", func(t *testing.T) {
		tr := newTestRouter()
		entry := &models.LedgerEntryView{}
		entry.ID = "e-1"
		entry.IsRead = true
		tr.ledger.On("MarkRead", "e-1", alice).Return(entry, nil)

		w := tr.do(http.MethodPatch, "/api/transfer/logs/e-1/read", alice, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"isRead":true`)
	})
}

func TestSummaryHandler(t *testing.T) {
	t.Run("ranking", func(t *testing.T) {
		tr := newTestRouter()
		tr.summaries.On("Ranking").Return([]models.RankingEntry{
			{UserID: alice, Name: "Alice", TotalBalance: decimal.NewFromInt(100), Rank: 1},
		}, nil)

		w := tr.do(http.MethodGet, "/api/ranking", "", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"totalBalance":100`)
	})

	t.Run("room summary not found", func(t *testing.T) {
		tr := newTestRouter()
		tr.summaries.On("RoomSummary", room).
			Return(nil, &services.ServiceError{Kind: services.ErrNotFound, Message: "Room not found"})

		w := tr.do(http.MethodGet, "/api/room/"+room+"/summary", "", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("user room summary", func(t *testing.T) {
		tr := newTestRouter()
		tr.summaries.On("UserRoomSummary", bob, room).Return(&models.RoomSummary{
			Transactions: []models.SummaryLine{{SenderID: bob, ReceiverID: alice, OwnerID: bob, Amount: decimal.NewFromInt(4)}},
		}, nil)

		w := tr.do(http.MethodPost, "/api/room/summary", "", map[string]string{"roomId": room, "userId": bob})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.Contains(w.Body.String(), `"userId":"`+bob+`"`))
	})
}
