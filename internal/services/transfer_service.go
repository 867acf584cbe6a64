package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/imbroke/backend/internal/audit"
	"github.com/imbroke/backend/internal/config"
	"github.com/imbroke/backend/internal/metrics"
	"github.com/imbroke/backend/internal/models"
	"github.com/imbroke/backend/internal/outbox"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// amountScale matches NUMERIC(20,4) in the schema.
	amountScale = 4
	// maxAmountText bounds the literal so parsing and rescaling stay cheap.
	maxAmountText = 64
	// maxAmountExponent is the largest exponent a NUMERIC(20,4) value can have.
	maxAmountExponent = 16
)

// maxAmount is the exclusive NUMERIC(20,4) ceiling.
var maxAmount = decimal.New(1, maxAmountExponent)

// TransferRequest moves Amount from SenderID to ReceiverID, optionally tagged
// with the room it happened in.
type TransferRequest struct {
	SenderID   string
	ReceiverID string
	Amount     decimal.Decimal
	RoomID     *string
}

// TransferResult is the committed state of a successful transfer.
type TransferResult struct {
	Transfer        models.Transfer
	Debit           models.LedgerEntry
	Credit          models.LedgerEntry
	SenderBalance   decimal.Decimal
	ReceiverBalance decimal.Decimal
}

// TransferCompletedEvent is the outbox payload for a committed transfer.
type TransferCompletedEvent struct {
	TransferID string          `json:"transferId"`
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	RoomID     *string         `json:"roomId,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// OutboxWriter stores an event inside the transfer transaction.
type OutboxWriter interface {
	CreateTx(ctx context.Context, tx *sql.Tx, msg *outbox.Message) error
}

// TransferService is the only code path that changes balances. Both balance
// updates, the two ledger entries and the outbox event commit or roll back
// together.
type TransferService struct {
	db           *sql.DB
	redis        *redis.Client
	outbox       OutboxWriter
	audit        *audit.Logger
	cfg          config.LedgerConfig
	queryTimeout time.Duration
	topic        string
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewTransferService wires the engine. redisClient and outboxWriter may be
// nil, which disables the velocity limit, ranking cache invalidation and
// event publishing respectively.
func NewTransferService(db *sql.DB, redisClient *redis.Client, outboxWriter OutboxWriter, auditLogger *audit.Logger, cfg config.LedgerConfig, queryTimeout time.Duration, topic string, logger *zap.Logger) *TransferService {
	return &TransferService{
		db:           db,
		redis:        redisClient,
		outbox:       outboxWriter,
		audit:        auditLogger,
		cfg:          cfg,
		queryTimeout: queryTimeout,
		topic:        topic,
		logger:       logger.With(zap.String("component", "transfer")),
		now:          time.Now,
		newID:        uuid.NewString,
		sleep:        sleepCtx,
	}
}

// ParseAmount accepts a JSON number or a quoted decimal string.
func ParseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if text == "" || text == "null" || len(text) > maxAmountText {
		return decimal.Zero, newError(ErrInvalidAmount, "Invalid transfer amount")
	}
	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, newError(ErrInvalidAmount, "Invalid transfer amount")
	}
	if err := checkAmountRange(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// checkAmountRange rejects values NUMERIC(20,4) cannot hold. The exponent is
// checked first: comparing or rounding rescales the coefficient to 10^|exp|.
func checkAmountRange(amount decimal.Decimal) error {
	exp := amount.Exponent()
	// A coefficient of at most maxAmountText digits scaled below this is
	// smaller than the smallest storable unit.
	if exp > maxAmountExponent || exp < -(maxAmountText+amountScale) {
		return newError(ErrInvalidAmount, "Invalid transfer amount")
	}
	if amount.Abs().GreaterThanOrEqual(maxAmount) {
		return newError(ErrInvalidAmount, "Amount must be below %s", maxAmount.String())
	}
	return nil
}

func (s *TransferService) validate(req TransferRequest) error {
	if !req.Amount.IsPositive() {
		return newError(ErrInvalidAmount, "Invalid transfer amount")
	}
	if err := checkAmountRange(req.Amount); err != nil {
		return err
	}
	if !req.Amount.Equal(req.Amount.Round(amountScale)) {
		return newError(ErrInvalidAmount, "Amount supports at most %d decimal places", amountScale)
	}
	if req.SenderID == req.ReceiverID && !s.cfg.AllowSelfTransfer {
		return newError(ErrValidation, "Sender and receiver must differ")
	}
	return nil
}

// Transfer runs the transfer, retrying lock conflicts up to MaxRetries times.
func (s *TransferService) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	start := s.now()
	result, err := s.transfer(ctx, req)
	metrics.RecordTransfer(transferOutcome(err), s.now().Sub(start))

	if err != nil {
		if StatusCode(err) >= 500 {
			s.audit.LogError("", req.SenderID, err)
			s.logger.Error("transfer failed",
				zap.String("sender_id", req.SenderID),
				zap.String("receiver_id", req.ReceiverID),
				zap.Error(err))
		}
		return nil, err
	}

	s.afterCommit(ctx, result)
	return result, nil
}

func (s *TransferService) transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, req.SenderID); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	for attempt := 0; ; attempt++ {
		result, err := s.transferOnce(txCtx, req)
		if err == nil {
			return result, nil
		}
		if errors.Is(txCtx.Err(), context.DeadlineExceeded) {
			return nil, newError(ErrTimeout, "Transfer timed out")
		}
		if !isRetryable(err) {
			return nil, storageError("transfer", err)
		}
		if attempt >= s.cfg.MaxRetries {
			s.logger.Warn("transfer conflict retries exhausted",
				zap.String("sender_id", req.SenderID),
				zap.Int("attempts", attempt+1),
				zap.Error(err))
			return nil, &ServiceError{Kind: ErrConflict, Message: "Balance changed concurrently, please retry", RetryAfter: 1}
		}

		metrics.RecordTransferRetry()
		if err := s.sleep(txCtx, s.cfg.RetryBackoff*time.Duration(attempt+1)); err != nil {
			return nil, newError(ErrTimeout, "Transfer timed out")
		}
	}
}

func (s *TransferService) transferOnce(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if req.RoomID != nil {
		if err := s.requireRoom(ctx, tx, *req.RoomID); err != nil {
			return nil, err
		}
	}

	sender, receiver, err := s.lockAccounts(ctx, tx, req.SenderID, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	if sender.Balance.LessThan(req.Amount) {
		return nil, InsufficientFunds(sender.Balance)
	}

	now := s.now().UTC()
	transfer := models.Transfer{
		ID:         s.newID(),
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		RoomID:     req.RoomID,
		Amount:     req.Amount,
		CreatedAt:  now,
	}
	if err := s.createTransfer(ctx, tx, &transfer); err != nil {
		return nil, err
	}

	debit := s.entryFor(transfer, req.SenderID, models.EntryDebit)
	credit := s.entryFor(transfer, req.ReceiverID, models.EntryCredit)
	if err := s.createLedgerEntry(ctx, tx, &debit); err != nil {
		return nil, err
	}
	if err := s.createLedgerEntry(ctx, tx, &credit); err != nil {
		return nil, err
	}

	senderBalance := sender.Balance.Sub(req.Amount)
	receiverBalance := receiver.Balance.Add(req.Amount)
	if req.SenderID == req.ReceiverID {
		// Net change is zero; the row is already locked.
		senderBalance, receiverBalance = sender.Balance, sender.Balance
	} else {
		if err := s.updateAccountBalance(ctx, tx, sender.UserID, senderBalance, sender.Version); err != nil {
			return nil, err
		}
		if err := s.updateAccountBalance(ctx, tx, receiver.UserID, receiverBalance, receiver.Version); err != nil {
			return nil, err
		}
	}

	if s.outbox != nil {
		msg, err := outbox.NewMessage(outbox.AggregateTransfer, transfer.ID, outbox.TypeTransferCompleted, s.topic, TransferCompletedEvent{
			TransferID: transfer.ID,
			SenderID:   transfer.SenderID,
			ReceiverID: transfer.ReceiverID,
			RoomID:     transfer.RoomID,
			Amount:     transfer.Amount,
			OccurredAt: now,
		})
		if err != nil {
			return nil, err
		}
		if err := s.outbox.CreateTx(ctx, tx, msg); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &TransferResult{
		Transfer:        transfer,
		Debit:           debit,
		Credit:          credit,
		SenderBalance:   senderBalance,
		ReceiverBalance: receiverBalance,
	}, nil
}

func (s *TransferService) afterCommit(ctx context.Context, result *TransferResult) {
	t := result.Transfer
	s.audit.LogTransfer(t.ID, t.SenderID, t.ReceiverID, t.Amount, "SUCCESS")
	s.logger.Info("transfer committed",
		zap.String("transfer_id", t.ID),
		zap.String("sender_id", t.SenderID),
		zap.String("receiver_id", t.ReceiverID),
		zap.String("amount", t.Amount.String()))

	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, rankingCacheKey).Err(); err != nil {
		s.logger.Warn("failed to invalidate ranking cache", zap.Error(err))
	}
}

func (s *TransferService) entryFor(t models.Transfer, ownerID string, kind models.EntryKind) models.LedgerEntry {
	return models.LedgerEntry{
		ID:         s.newID(),
		TransferID: t.ID,
		OwnerID:    ownerID,
		SenderID:   t.SenderID,
		ReceiverID: t.ReceiverID,
		RoomID:     t.RoomID,
		Amount:     t.Amount,
		Kind:       kind,
		IsRead:     false,
		CreatedAt:  t.CreatedAt,
	}
}

func (s *TransferService) requireRoom(ctx context.Context, tx *sql.Tx, roomID string) error {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE id = $1)`, roomID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return newError(ErrNotFound, "Room not found")
	}
	return nil
}

// lockAccounts takes row locks in ascending id order so two opposing
// transfers cannot deadlock, then hands them back as sender/receiver.
func (s *TransferService) lockAccounts(ctx context.Context, tx *sql.Tx, senderID, receiverID string) (*models.Account, *models.Account, error) {
	if senderID == receiverID {
		account, err := s.lockAccount(ctx, tx, senderID)
		if err != nil {
			return nil, nil, err
		}
		return account, account, nil
	}

	firstLock, secondLock := senderID, receiverID
	if senderID > receiverID {
		firstLock, secondLock = receiverID, senderID
	}

	first, err := s.lockAccount(ctx, tx, firstLock)
	if err != nil {
		return nil, nil, err
	}
	second, err := s.lockAccount(ctx, tx, secondLock)
	if err != nil {
		return nil, nil, err
	}

	if firstLock != senderID {
		first, second = second, first
	}
	return first, second, nil
}

func (s *TransferService) lockAccount(ctx context.Context, tx *sql.Tx, userID string) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRowContext(ctx, `
		SELECT user_id, balance, version, updated_at
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE`, userID).Scan(&account.UserID, &account.Balance, &account.Version, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newError(ErrNotFound, "Sender or receiver not found")
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *TransferService) createTransfer(ctx context.Context, tx *sql.Tx, t *models.Transfer) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transfers (id, sender_id, receiver_id, room_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.SenderID, t.ReceiverID, t.RoomID, t.Amount, t.CreatedAt)
	return err
}

func (s *TransferService) createLedgerEntry(ctx context.Context, tx *sql.Tx, e *models.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, transfer_id, owner_id, sender_id, receiver_id, room_id, amount, kind, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.TransferID, e.OwnerID, e.SenderID, e.ReceiverID, e.RoomID, e.Amount, string(e.Kind), e.IsRead, e.CreatedAt)
	return err
}

func (s *TransferService) updateAccountBalance(ctx context.Context, tx *sql.Tx, userID string, newBalance decimal.Decimal, version int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE user_id = $3 AND version = $4`,
		newBalance, s.now().UTC(), userID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return newError(ErrConflict, "optimistic lock failed for account %s", userID)
	}
	return nil
}

func transferRateKey(userID string) string {
	return fmt.Sprintf("transfer:ratelimit:%s", userID)
}

// checkRateLimit counts the attempt and enforces TransfersPerMinute per
// sender. The counter is bumped before the transfer so concurrent requests
// from one sender each see their own position in the window. The window
// closes a minute after the latest attempt. A Redis outage lets the transfer
// through.
func (s *TransferService) checkRateLimit(ctx context.Context, userID string) error {
	if s.redis == nil || s.cfg.TransfersPerMinute <= 0 {
		return nil
	}

	key := transferRateKey(userID)
	pipe := s.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("transfer rate limit check failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if incr.Val() > int64(s.cfg.TransfersPerMinute) {
		return newError(ErrRateLimited, "Too many transfers, try again later")
	}
	return nil
}

func transferOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
