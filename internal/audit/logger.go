// Package audit records ledger-relevant events as structured log lines on a
// dedicated logger, separate from request and debug logs.
package audit

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type EventType string

const (
	EventTransfer   EventType = "TRANSFER"
	EventRoomCreate EventType = "ROOM_CREATED"
	EventRoomJoin   EventType = "ROOM_JOINED"
	EventRoomLeave  EventType = "ROOM_LEFT"
	EventRoomClose  EventType = "ROOM_CLOSED"
	EventInvite     EventType = "ROOM_INVITE"
	EventError      EventType = "ERROR"
)

type Event struct {
	Timestamp time.Time
	Type      EventType
	// ReferenceID is the transfer id or room id the event is about.
	ReferenceID string
	UserID      string
	Amount      *decimal.Decimal
	Status      string
	Details     map[string]string
}

type Logger struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{
		logger: logger.With(zap.String("component", "audit")),
		now:    time.Now,
	}
}

func (a *Logger) LogTransfer(transferID, senderID, receiverID string, amount decimal.Decimal, status string) {
	a.Log(Event{
		Type:        EventTransfer,
		ReferenceID: transferID,
		UserID:      senderID,
		Amount:      &amount,
		Status:      status,
		Details: map[string]string{
			"sender_id":   senderID,
			"receiver_id": receiverID,
		},
	})
}

func (a *Logger) LogRoom(event EventType, roomID, userID string) {
	a.Log(Event{
		Type:        event,
		ReferenceID: roomID,
		UserID:      userID,
		Status:      "SUCCESS",
	})
}

func (a *Logger) LogError(referenceID, userID string, err error) {
	a.Log(Event{
		Type:        EventError,
		ReferenceID: referenceID,
		UserID:      userID,
		Status:      "FAILED",
		Details:     map[string]string{"error": err.Error()},
	})
}

func (a *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = a.now()
	}

	fields := []zap.Field{
		zap.String("event_type", string(event.Type)),
		zap.Time("event_time", event.Timestamp),
		zap.String("reference_id", event.ReferenceID),
		zap.String("user_id", event.UserID),
		zap.String("status", event.Status),
	}
	if event.Amount != nil {
		fields = append(fields, zap.String("amount", event.Amount.String()))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String(k, v))
	}

	a.logger.Info("audit", fields...)
}
