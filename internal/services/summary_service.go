package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/imbroke/backend/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const rankingCacheKey = "ranking:v1"

// RoomLoader resolves a room by id, returning ErrNotFound when missing.
type RoomLoader interface {
	Room(ctx context.Context, roomID string) (*models.Room, error)
}

// SummaryService builds per-room transfer summaries and the balance
// leaderboard.
type SummaryService struct {
	db           *sql.DB
	redis        *redis.Client
	rooms        RoomLoader
	cacheTTL     time.Duration
	queryTimeout time.Duration
	logger       *zap.Logger
}

func NewSummaryService(db *sql.DB, redisClient *redis.Client, rooms RoomLoader, cacheTTL, queryTimeout time.Duration, logger *zap.Logger) *SummaryService {
	return &SummaryService{
		db:           db,
		redis:        redisClient,
		rooms:        rooms,
		cacheTTL:     cacheTTL,
		queryTimeout: queryTimeout,
		logger:       logger.With(zap.String("component", "summary")),
	}
}

// summaryRow is a debit entry reduced to what the grouping needs.
type summaryRow struct {
	OwnerID    string
	SenderID   string
	ReceiverID string
	Amount     decimal.Decimal
}

// RoomSummary totals every transfer made in the room by sender/receiver pair.
// Only debit entries are read so each transfer is counted once.
func (s *SummaryService) RoomSummary(ctx context.Context, roomID string) (*models.RoomSummary, error) {
	room, err := s.rooms.Room(ctx, roomID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.loadDebits(ctx, `
		SELECT owner_id, sender_id, receiver_id, amount
		FROM ledger_entries
		WHERE room_id = $1 AND kind = 'debit'
		ORDER BY created_at, id`, roomID)
	if err != nil {
		return nil, err
	}

	return &models.RoomSummary{Room: room.Response(), Transactions: groupByPair(rows)}, nil
}

// UserRoomSummary totals userID's own debit entries in the room.
func (s *SummaryService) UserRoomSummary(ctx context.Context, userID, roomID string) (*models.RoomSummary, error) {
	room, err := s.rooms.Room(ctx, roomID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.loadDebits(ctx, `
		SELECT owner_id, sender_id, receiver_id, amount
		FROM ledger_entries
		WHERE room_id = $1 AND owner_id = $2 AND kind = 'debit'
		ORDER BY created_at, id`, roomID, userID)
	if err != nil {
		return nil, err
	}

	return &models.RoomSummary{Room: room.Response(), Transactions: groupByTriple(rows)}, nil
}

func (s *SummaryService) loadDebits(ctx context.Context, query string, args ...any) ([]summaryRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError("load room entries", err)
	}
	defer rows.Close()

	var out []summaryRow
	for rows.Next() {
		var r summaryRow
		if err := rows.Scan(&r.OwnerID, &r.SenderID, &r.ReceiverID, &r.Amount); err != nil {
			return nil, storageError("scan room entry", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("load room entries", err)
	}
	return out, nil
}

// groupByPair sums amounts per (sender, receiver), keeping the order in
// which each pair first appears.
func groupByPair(rows []summaryRow) []models.SummaryLine {
	type key struct{ sender, receiver string }
	index := make(map[key]int)
	lines := []models.SummaryLine{}
	for _, r := range rows {
		k := key{r.SenderID, r.ReceiverID}
		if i, ok := index[k]; ok {
			lines[i].Amount = lines[i].Amount.Add(r.Amount)
			continue
		}
		index[k] = len(lines)
		lines = append(lines, models.SummaryLine{SenderID: r.SenderID, ReceiverID: r.ReceiverID, Amount: r.Amount})
	}
	return lines
}

func groupByTriple(rows []summaryRow) []models.SummaryLine {
	type key struct{ sender, receiver, owner string }
	index := make(map[key]int)
	lines := []models.SummaryLine{}
	for _, r := range rows {
		k := key{r.SenderID, r.ReceiverID, r.OwnerID}
		if i, ok := index[k]; ok {
			lines[i].Amount = lines[i].Amount.Add(r.Amount)
			continue
		}
		index[k] = len(lines)
		lines = append(lines, models.SummaryLine{
			SenderID:   r.SenderID,
			ReceiverID: r.ReceiverID,
			OwnerID:    r.OwnerID,
			Amount:     r.Amount,
		})
	}
	return lines
}

// Ranking lists every user by balance, highest first, with dense ranks.
// The result is cached until the next transfer or the cache TTL.
func (s *SummaryService) Ranking(ctx context.Context) ([]models.RankingEntry, error) {
	if cached, ok := s.cachedRanking(ctx); ok {
		return cached, nil
	}

	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(qctx, `
		SELECT u.id, u.name, u.email, a.balance
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		ORDER BY a.balance DESC, u.name, u.id`)
	if err != nil {
		return nil, storageError("load ranking", err)
	}
	defer rows.Close()

	entries := []models.RankingEntry{}
	for rows.Next() {
		var e models.RankingEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.Email, &e.TotalBalance); err != nil {
			return nil, storageError("scan ranking", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("load ranking", err)
	}

	denseRank(entries)
	s.cacheRanking(ctx, entries)
	return entries, nil
}

// denseRank assigns ranks to entries already sorted by balance descending.
// Equal balances share a rank and the next distinct balance takes the
// following integer.
func denseRank(entries []models.RankingEntry) {
	rank := 0
	for i := range entries {
		if i == 0 || !entries[i].TotalBalance.Equal(entries[i-1].TotalBalance) {
			rank++
		}
		entries[i].Rank = rank
	}
}

func (s *SummaryService) cachedRanking(ctx context.Context) ([]models.RankingEntry, bool) {
	if s.redis == nil || s.cacheTTL <= 0 {
		return nil, false
	}
	data, err := s.redis.Get(ctx, rankingCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("ranking cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var entries []models.RankingEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("ranking cache corrupt", zap.Error(err))
		return nil, false
	}
	return entries, true
}

func (s *SummaryService) cacheRanking(ctx context.Context, entries []models.RankingEntry) {
	if s.redis == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, rankingCacheKey, string(data), s.cacheTTL).Err(); err != nil {
		s.logger.Warn("ranking cache write failed", zap.Error(err))
	}
}
