package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/imbroke/backend/internal/models"
	"go.uber.org/zap"
)

// LedgerService reads a user's ledger entries and tracks which ones the
// user has seen.
type LedgerService struct {
	db           *sql.DB
	queryTimeout time.Duration
	logger       *zap.Logger
}

func NewLedgerService(db *sql.DB, queryTimeout time.Duration, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		db:           db,
		queryTimeout: queryTimeout,
		logger:       logger.With(zap.String("component", "ledger")),
	}
}

const ledgerEntryColumns = `
	e.id, e.transfer_id, e.owner_id, e.sender_id, e.receiver_id, e.room_id,
	e.amount, e.kind, e.is_read, e.created_at,
	s.name, s.email, r.name, r.email`

// ListEntries returns one page of userID's entries, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, userID string, p Pagination) (*models.LedgerPage, error) {
	page := &models.LedgerPage{
		Page:    p.Page,
		PerPage: p.PerPage,
		Data:    []models.LedgerEntryView{},
	}
	if _, err := uuid.Parse(userID); err != nil {
		return page, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT is_read)
		FROM ledger_entries
		WHERE owner_id = $1`, userID).Scan(&page.Total, &page.UnreadCount)
	if err != nil {
		return nil, storageError("count ledger entries", err)
	}
	page.TotalPages = p.TotalPages(page.Total)

	rows, err := s.db.QueryContext(ctx, `
		SELECT`+ledgerEntryColumns+`
		FROM ledger_entries e
		JOIN users s ON s.id = e.sender_id
		JOIN users r ON r.id = e.receiver_id
		WHERE e.owner_id = $1
		ORDER BY e.created_at DESC, e.id DESC
		LIMIT $2 OFFSET $3`, userID, p.PerPage, p.Offset())
	if err != nil {
		return nil, storageError("list ledger entries", err)
	}
	defer rows.Close()

	for rows.Next() {
		view, err := scanEntryView(rows)
		if err != nil {
			return nil, storageError("scan ledger entry", err)
		}
		page.Data = append(page.Data, *view)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list ledger entries", err)
	}
	return page, nil
}

// MarkRead flags a single entry as read. Only the entry's owner may do so.
func (s *LedgerService) MarkRead(ctx context.Context, entryID, callerID string) (*models.LedgerEntryView, error) {
	if _, err := uuid.Parse(entryID); err != nil {
		return nil, newError(ErrNotFound, "Log not found")
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var ownerID string
	err := s.db.QueryRowContext(ctx, "SELECT owner_id FROM ledger_entries WHERE id = $1", entryID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newError(ErrNotFound, "Log not found")
	}
	if err != nil {
		return nil, storageError("load ledger entry", err)
	}
	if ownerID != callerID {
		return nil, newError(ErrForbidden, "You can only update your own logs")
	}

	if _, err := s.db.ExecContext(ctx, "UPDATE ledger_entries SET is_read = TRUE WHERE id = $1", entryID); err != nil {
		return nil, storageError("mark entry read", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT`+ledgerEntryColumns+`
		FROM ledger_entries e
		JOIN users s ON s.id = e.sender_id
		JOIN users r ON r.id = e.receiver_id
		WHERE e.id = $1`, entryID)
	view, err := scanEntryView(row)
	if err != nil {
		return nil, storageError("reload ledger entry", err)
	}
	return view, nil
}

// MarkAllRead flags every unread entry of userID and returns how many
// changed.
func (s *LedgerService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return 0, newError(ErrNotFound, "No unread logs")
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		"UPDATE ledger_entries SET is_read = TRUE WHERE owner_id = $1 AND NOT is_read", userID)
	if err != nil {
		return 0, storageError("mark all read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageError("mark all read", err)
	}
	if n == 0 {
		return 0, newError(ErrNotFound, "No unread logs")
	}

	s.logger.Debug("ledger entries marked read", zap.String("user_id", userID), zap.Int64("count", n))
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntryView(row rowScanner) (*models.LedgerEntryView, error) {
	var v models.LedgerEntryView
	err := row.Scan(
		&v.ID, &v.TransferID, &v.OwnerID, &v.SenderID, &v.ReceiverID, &v.RoomID,
		&v.Amount, &v.Kind, &v.IsRead, &v.CreatedAt,
		&v.Sender.Name, &v.Sender.Email, &v.Receiver.Name, &v.Receiver.Email,
	)
	if err != nil {
		return nil, err
	}
	v.Sender.ID = v.SenderID
	v.Receiver.ID = v.ReceiverID
	return &v, nil
}
