package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// CreateTx stores msg inside the caller's transaction.
func (r *Repository) CreateTx(ctx context.Context, tx *sql.Tx, msg *Message) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (id, aggregate_id, aggregate_type, message_type, topic, key_value, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID, msg.AggregateID, msg.AggregateType, msg.MessageType,
		msg.Topic, msg.Key, msg.Payload, msg.Status, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	return nil
}

// PendingTx locks up to limit pending messages, oldest first. Rows locked by
// another relay instance are skipped.
func (r *Repository) PendingTx(ctx context.Context, q Querier, limit int) ([]Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, aggregate_id, aggregate_type, message_type, topic, key_value, payload, status, created_at, sent_at
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var sentAt sql.NullTime
		if err := rows.Scan(&msg.ID, &msg.AggregateID, &msg.AggregateType, &msg.MessageType,
			&msg.Topic, &msg.Key, &msg.Payload, &msg.Status, &msg.CreatedAt, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		if sentAt.Valid {
			msg.SentAt = &sentAt.Time
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}
	return messages, nil
}

func (r *Repository) MarkSent(ctx context.Context, q Querier, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	res, err := q.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $1, sent_at = $2
		WHERE id = ANY($3)`, StatusSent, at, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to mark outbox messages as sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for outbox sent: %w", err)
	}
	if n != int64(len(ids)) {
		return fmt.Errorf("not all outbox messages were marked as sent; expected %d, got %d", len(ids), n)
	}
	return nil
}

// PurgeSent deletes messages relayed before the cutoff.
func (r *Repository) PurgeSent(ctx context.Context, q Querier, before time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM outbox_messages
		WHERE status = $1 AND sent_at < $2`, StatusSent, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge outbox messages: %w", err)
	}
	return res.RowsAffected()
}
