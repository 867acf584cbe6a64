package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

const (
	AggregateTransfer     = "transfer"
	TypeTransferCompleted = "ledger.transfer.completed"
)

// Message is an event waiting to be relayed to Kafka. It is written in the
// same database transaction as the state change it describes.
type Message struct {
	ID            string
	AggregateID   string
	AggregateType string
	MessageType   string
	Topic         string
	Key           string
	Payload       []byte
	Status        Status
	CreatedAt     time.Time
	SentAt        *time.Time
}

// NewMessage builds a pending message with payload marshalled from v.
func NewMessage(aggregateType, aggregateID, messageType, topic string, v any) (*Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:            uuid.NewString(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		MessageType:   messageType,
		Topic:         topic,
		Key:           aggregateID,
		Payload:       payload,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
