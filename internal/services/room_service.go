package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imbroke/backend/internal/audit"
	"github.com/imbroke/backend/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateRoomRequest is validated by the handler before it gets here.
type CreateRoomRequest struct {
	OwnerID     string
	Name        string
	Password    string
	RateDefault decimal.Decimal
}

// JoinResult tells a fresh join apart from a repeated one.
type JoinResult struct {
	Room          models.Room
	AlreadyMember bool
}

// RoomService manages rooms and their membership. The owner is a member
// implicitly: never stored in room_members and never allowed to leave.
type RoomService struct {
	db           *sql.DB
	hasher       *PasswordHasher
	audit        *audit.Logger
	queryTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
}

func NewRoomService(db *sql.DB, hasher *PasswordHasher, auditLogger *audit.Logger, queryTimeout time.Duration, logger *zap.Logger) *RoomService {
	return &RoomService{
		db:           db,
		hasher:       hasher,
		audit:        auditLogger,
		queryTimeout: queryTimeout,
		logger:       logger.With(zap.String("component", "rooms")),
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

func (s *RoomService) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	if req.RateDefault.IsNegative() {
		return nil, newError(ErrValidation, "rateDefault must not be negative")
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	exists, err := s.userExists(ctx, req.OwnerID)
	if err != nil {
		return nil, storageError("check owner", err)
	}
	if !exists {
		return nil, newError(ErrNotFound, "Owner user not found")
	}

	room := &models.Room{
		ID:          s.newID(),
		OwnerID:     req.OwnerID,
		Name:        strings.TrimSpace(req.Name),
		RateDefault: req.RateDefault,
		CreatedAt:   s.now().UTC(),
	}
	if req.Password != "" {
		hashed, err := s.hasher.Hash(req.Password)
		if err != nil {
			return nil, storageError("hash room password", err)
		}
		room.PasswordHash = &hashed
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, owner_id, name, password, rate_default, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		room.ID, room.OwnerID, room.Name, room.PasswordHash, room.RateDefault, room.CreatedAt)
	if err != nil {
		return nil, storageError("insert room", err)
	}

	s.audit.LogRoom(audit.EventRoomCreate, room.ID, room.OwnerID)
	return room, nil
}

// JoinRoom adds userID to the room. Joining again, or joining as the owner,
// is reported through JoinResult.AlreadyMember and changes nothing.
func (s *RoomService) JoinRoom(ctx context.Context, roomID, userID, password string) (*JoinResult, error) {
	return s.join(ctx, roomID, userID, password, false)
}

func (s *RoomService) join(ctx context.Context, roomID, userID, password string, viaInvite bool) (*JoinResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	exists, err := s.userExists(ctx, userID)
	if err != nil {
		return nil, storageError("check user", err)
	}
	if !exists {
		return nil, newError(ErrNotFound, "User not found")
	}

	if room.OwnerID == userID {
		return &JoinResult{Room: *room, AlreadyMember: true}, nil
	}
	member, err := s.isStoredMember(ctx, roomID, userID)
	if err != nil {
		return nil, storageError("check membership", err)
	}
	if member {
		return &JoinResult{Room: *room, AlreadyMember: true}, nil
	}

	if !viaInvite && room.PasswordHash != nil && !s.hasher.Verify(password, *room.PasswordHash) {
		return nil, newError(ErrForbidden, "Invalid room password")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO room_members (room_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, user_id) DO NOTHING`,
		roomID, userID, s.now().UTC())
	if err != nil {
		return nil, storageError("insert member", err)
	}
	// A concurrent join of the same user may have won the insert.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &JoinResult{Room: *room, AlreadyMember: true}, nil
	}

	s.audit.LogRoom(audit.EventRoomJoin, roomID, userID)
	return &JoinResult{Room: *room}, nil
}

func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return err
	}
	exists, err := s.userExists(ctx, userID)
	if err != nil {
		return storageError("check user", err)
	}
	if !exists {
		return newError(ErrNotFound, "User not found")
	}
	if room.OwnerID == userID {
		return newError(ErrInvalidOperation, "Owner cannot leave the room")
	}

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM room_members WHERE room_id = $1 AND user_id = $2", roomID, userID)
	if err != nil {
		return storageError("delete member", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageError("delete member", err)
	}
	if n == 0 {
		return newError(ErrInvalidOperation, "User is not a member of the room")
	}

	s.audit.LogRoom(audit.EventRoomLeave, roomID, userID)
	return nil
}

// CloseRoom deletes the room and its memberships. Ledger entries that
// reference the room are left untouched.
func (s *RoomService) CloseRoom(ctx context.Context, roomID, callerID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.OwnerID != callerID {
		return newError(ErrForbidden, "Only the owner can close the room")
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM rooms WHERE id = $1", roomID); err != nil {
		return storageError("delete room", err)
	}

	s.audit.LogRoom(audit.EventRoomClose, roomID, callerID)
	return nil
}

func (s *RoomService) ListRooms(ctx context.Context, p Pagination) (*models.RoomPage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&total); err != nil {
		return nil, storageError("count rooms", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name
		FROM rooms
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, p.PerPage, p.Offset())
	if err != nil {
		return nil, storageError("list rooms", err)
	}
	defer rows.Close()

	page := &models.RoomPage{
		Page:       p.Page,
		PerPage:    p.PerPage,
		Total:      total,
		TotalPages: p.TotalPages(total),
		Data:       []models.RoomListItem{},
	}
	for rows.Next() {
		var item models.RoomListItem
		if err := rows.Scan(&item.ID, &item.Name); err != nil {
			return nil, storageError("scan room", err)
		}
		page.Data = append(page.Data, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list rooms", err)
	}
	return page, nil
}

// GetRoom returns the room with its owner and members, each with a balance.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*models.RoomDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	detail := &models.RoomDetail{RoomResponse: room.Response(), Members: []models.UserWithBalance{}}

	err = s.db.QueryRowContext(ctx, `
		SELECT u.id, u.name, u.email, u.created_at, a.balance
		FROM users u
		JOIN accounts a ON a.user_id = u.id
		WHERE u.id = $1`, room.OwnerID).
		Scan(&detail.Owner.ID, &detail.Owner.Name, &detail.Owner.Email, &detail.Owner.CreatedAt, &detail.Owner.Coin)
	if err != nil {
		return nil, storageError("load room owner", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, u.created_at, a.balance
		FROM room_members m
		JOIN users u ON u.id = m.user_id
		JOIN accounts a ON a.user_id = u.id
		WHERE m.room_id = $1
		ORDER BY m.joined_at, u.id`, roomID)
	if err != nil {
		return nil, storageError("load room members", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.UserWithBalance
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.CreatedAt, &m.Coin); err != nil {
			return nil, storageError("scan room member", err)
		}
		detail.Members = append(detail.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("load room members", err)
	}
	return detail, nil
}

// IsMember reports whether userID is the owner or a stored member.
func (s *RoomService) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	if room.OwnerID == userID {
		return true, nil
	}
	member, err := s.isStoredMember(ctx, roomID, userID)
	if err != nil {
		return false, storageError("check membership", err)
	}
	return member, nil
}

// Room loads a single room without members.
func (s *RoomService) Room(ctx context.Context, roomID string) (*models.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.getRoom(ctx, roomID)
}

func (s *RoomService) getRoom(ctx context.Context, roomID string) (*models.Room, error) {
	if _, err := uuid.Parse(roomID); err != nil {
		return nil, newError(ErrNotFound, "Room not found")
	}

	var room models.Room
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, password, rate_default, created_at
		FROM rooms
		WHERE id = $1`, roomID).
		Scan(&room.ID, &room.OwnerID, &room.Name, &room.PasswordHash, &room.RateDefault, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newError(ErrNotFound, "Room not found")
	}
	if err != nil {
		return nil, storageError("load room", err)
	}
	return &room, nil
}

func (s *RoomService) userExists(ctx context.Context, userID string) (bool, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists)
	return exists, err
}

func (s *RoomService) isStoredMember(ctx context.Context, roomID, userID string) (bool, error) {
	var member bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)",
		roomID, userID).Scan(&member)
	return member, err
}
