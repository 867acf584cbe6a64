package handlers

import (
	"context"
	"net/http"

	"github.com/imbroke/backend/internal/models"
	"github.com/imbroke/backend/internal/services"
	"github.com/stretchr/testify/mock"
)

type MockRooms struct {
	mock.Mock
}

func (m *MockRooms) CreateRoom(ctx context.Context, req services.CreateRoomRequest) (*models.Room, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}

func (m *MockRooms) JoinRoom(ctx context.Context, roomID, userID, password string) (*services.JoinResult, error) {
	args := m.Called(roomID, userID, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.JoinResult), args.Error(1)
}

func (m *MockRooms) LeaveRoom(ctx context.Context, roomID, userID string) error {
	return m.Called(roomID, userID).Error(0)
}

func (m *MockRooms) CloseRoom(ctx context.Context, roomID, callerID string) error {
	return m.Called(roomID, callerID).Error(0)
}

func (m *MockRooms) ListRooms(ctx context.Context, p services.Pagination) (*models.RoomPage, error) {
	args := m.Called(p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoomPage), args.Error(1)
}

func (m *MockRooms) GetRoom(ctx context.Context, roomID string) (*models.RoomDetail, error) {
	args := m.Called(roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoomDetail), args.Error(1)
}

type MockInvites struct {
	mock.Mock
}

func (m *MockInvites) CreateInvite(ctx context.Context, roomID, issuerID string) (*models.RoomInvite, error) {
	args := m.Called(roomID, issuerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoomInvite), args.Error(1)
}

func (m *MockInvites) AcceptInvite(ctx context.Context, code, userID string) (*services.JoinResult, error) {
	args := m.Called(code, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.JoinResult), args.Error(1)
}

type MockTransfers struct {
	mock.Mock
}

func (m *MockTransfers) Transfer(ctx context.Context, req services.TransferRequest) (*services.TransferResult, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TransferResult), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) ListEntries(ctx context.Context, userID string, p services.Pagination) (*models.LedgerPage, error) {
	args := m.Called(userID, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerPage), args.Error(1)
}

func (m *MockLedger) MarkRead(ctx context.Context, entryID, callerID string) (*models.LedgerEntryView, error) {
	args := m.Called(entryID, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntryView), args.Error(1)
}

func (m *MockLedger) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	args := m.Called(userID)
	return args.Get(0).(int64), args.Error(1)
}

type MockSummaries struct {
	mock.Mock
}

func (m *MockSummaries) RoomSummary(ctx context.Context, roomID string) (*models.RoomSummary, error) {
	args := m.Called(roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoomSummary), args.Error(1)
}

func (m *MockSummaries) UserRoomSummary(ctx context.Context, userID, roomID string) (*models.RoomSummary, error) {
	args := m.Called(userID, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoomSummary), args.Error(1)
}

func (m *MockSummaries) Ranking(ctx context.Context) ([]models.RankingEntry, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RankingEntry), args.Error(1)
}

// stubAuth answers the auth routes with fixed statuses.
type stubAuth struct{}

func (stubAuth) Register(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) }
func (stubAuth) Login(w http.ResponseWriter, r *http.Request)    { w.WriteHeader(http.StatusOK) }
func (stubAuth) Logout(w http.ResponseWriter, r *http.Request)   { w.WriteHeader(http.StatusOK) }
func (stubAuth) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
func (stubAuth) GetUserByID(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
