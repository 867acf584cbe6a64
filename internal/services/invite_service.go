package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/imbroke/backend/internal/audit"
	"github.com/imbroke/backend/internal/models"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// RoomMembership is the part of RoomService the invite flow needs.
type RoomMembership interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	join(ctx context.Context, roomID, userID, password string, viaInvite bool) (*JoinResult, error)
}

// InviteService issues single-use room invite codes kept in Redis. An
// accepted invite joins the room without the room password.
type InviteService struct {
	rooms  RoomMembership
	redis  *redis.Client
	audit  *audit.Logger
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewInviteService(rooms RoomMembership, redisClient *redis.Client, auditLogger *audit.Logger, ttl time.Duration, logger *zap.Logger) *InviteService {
	return &InviteService{
		rooms:  rooms,
		redis:  redisClient,
		audit:  auditLogger,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "invites")),
		now:    time.Now,
	}
}

type invitePayload struct {
	RoomID    string    `json:"roomId"`
	IssuedBy  string    `json:"issuedBy"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func inviteKey(code string) string {
	return fmt.Sprintf("invite:%s", code)
}

// CreateInvite issues a code for roomID. Only the owner or a member may
// invite.
func (s *InviteService) CreateInvite(ctx context.Context, roomID, issuerID string) (*models.RoomInvite, error) {
	if s.redis == nil {
		return nil, newError(ErrUnavailable, "Invites are unavailable")
	}

	member, err := s.rooms.IsMember(ctx, roomID, issuerID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, newError(ErrForbidden, "Only room members can invite")
	}

	code, err := generateInviteCode()
	if err != nil {
		return nil, storageError("generate invite code", err)
	}
	payload := invitePayload{
		RoomID:    roomID,
		IssuedBy:  issuerID,
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, storageError("encode invite", err)
	}

	if err := s.redis.Set(ctx, inviteKey(code), string(data), s.ttl).Err(); err != nil {
		s.logger.Error("failed to store invite", zap.String("room_id", roomID), zap.Error(err))
		return nil, newError(ErrUnavailable, "Invites are unavailable")
	}

	image, err := renderQR(code)
	if err != nil {
		return nil, storageError("render invite qr", err)
	}

	s.audit.LogRoom(audit.EventInvite, roomID, issuerID)
	return &models.RoomInvite{
		Code:      code,
		RoomID:    roomID,
		IssuedBy:  issuerID,
		QRImage:   image,
		ExpiresAt: payload.ExpiresAt,
	}, nil
}

// AcceptInvite consumes code and joins userID to the invited room.
func (s *InviteService) AcceptInvite(ctx context.Context, code, userID string) (*JoinResult, error) {
	if s.redis == nil {
		return nil, newError(ErrUnavailable, "Invites are unavailable")
	}

	// GETDEL makes the code single use even under concurrent accepts.
	data, err := s.redis.GetDel(ctx, inviteKey(code)).Bytes()
	if err == redis.Nil {
		return nil, newError(ErrNotFound, "Invalid or expired invite")
	}
	if err != nil {
		s.logger.Error("failed to read invite", zap.Error(err))
		return nil, newError(ErrUnavailable, "Invites are unavailable")
	}

	var payload invitePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, storageError("decode invite", err)
	}

	result, err := s.rooms.join(ctx, payload.RoomID, userID, "", true)
	if err != nil {
		s.restoreInvite(ctx, code, string(data), payload.ExpiresAt)
		return nil, err
	}
	return result, nil
}

// restoreInvite puts a consumed code back for the rest of its lifetime when
// the join it was spent on did not happen.
func (s *InviteService) restoreInvite(ctx context.Context, code, data string, expiresAt time.Time) {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.redis.SetNX(ctx, inviteKey(code), data, ttl).Err(); err != nil {
		s.logger.Warn("failed to restore invite", zap.Error(err))
	}
}

func generateInviteCode() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func renderQR(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
