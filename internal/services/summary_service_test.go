package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/imbroke/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubRooms struct {
	room *models.Room
	err  error
}

func (s stubRooms) Room(context.Context, string) (*models.Room, error) {
	return s.room, s.err
}

var (
	roomDebitsSQL     = "FROM ledger_entries\\s+WHERE room_id = \\$1 AND kind = 'debit'\\s+ORDER BY created_at, id"
	userRoomDebitsSQL = "WHERE room_id = \\$1 AND owner_id = \\$2 AND kind = 'debit'"
	rankingSQL        = "FROM accounts a\\s+JOIN users u ON u.id = a.user_id\\s+ORDER BY a.balance DESC, u.name, u.id"
	debitColumns      = []string{"owner_id", "sender_id", "receiver_id", "amount"}
)

func newTestSummaryService(t *testing.T, rooms RoomLoader, rdb *redis.Client) (*SummaryService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSummaryService(db, rdb, rooms, time.Minute, time.Second, zap.NewNop()), mock
}

func testRoom() *models.Room {
	return &models.Room{ID: roomID, OwnerID: aliceID, Name: "Poker night", RateDefault: decimal.NewFromInt(1)}
}

func debitRow(owner, sender, receiver, amount string) summaryRow {
	return summaryRow{OwnerID: owner, SenderID: sender, ReceiverID: receiver, Amount: decimal.RequireFromString(amount)}
}

func TestGroupByPair(t *testing.T) {
	tests := []struct {
		name string
		rows []summaryRow
		want []models.SummaryLine
	}{
		{
			name: "empty",
			want: []models.SummaryLine{},
		},
		{
			name: "sums pairs in first-seen order",
			rows: []summaryRow{
				debitRow("a", "a", "b", "10"),
				debitRow("c", "c", "a", "5"),
				debitRow("a", "a", "b", "2.5"),
			},
			want: []models.SummaryLine{
				{SenderID: "a", ReceiverID: "b", Amount: decimal.RequireFromString("12.5")},
				{SenderID: "c", ReceiverID: "a", Amount: decimal.NewFromInt(5)},
			},
		},
		{
			name: "direction matters",
			rows: []summaryRow{
				debitRow("a", "a", "b", "1"),
				debitRow("b", "b", "a", "1"),
			},
			want: []models.SummaryLine{
				{SenderID: "a", ReceiverID: "b", Amount: decimal.NewFromInt(1)},
				{SenderID: "b", ReceiverID: "a", Amount: decimal.NewFromInt(1)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := groupByPair(tt.rows)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.Equal(t, tt.want[i].SenderID, got[i].SenderID)
				assert.Equal(t, tt.want[i].ReceiverID, got[i].ReceiverID)
				assert.Empty(t, got[i].OwnerID)
				assert.True(t, tt.want[i].Amount.Equal(got[i].Amount), "got %s", got[i].Amount)
			}
		})
	}
}

func TestGroupByTriple(t *testing.T) {
	got := groupByTriple([]summaryRow{
		debitRow("a", "a", "b", "3"),
		debitRow("a", "a", "c", "4"),
		debitRow("a", "a", "b", "3"),
	})

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].OwnerID)
	assert.Equal(t, "b", got[0].ReceiverID)
	assert.True(t, got[0].Amount.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, "c", got[1].ReceiverID)
}

func TestDenseRank(t *testing.T) {
	tests := []struct {
		balances []int64
		want     []int
	}{
		{balances: nil, want: nil},
		{balances: []int64{100, 100, 80}, want: []int{1, 1, 2}},
		{balances: []int64{50, 40, 40, 40, 10}, want: []int{1, 2, 2, 2, 3}},
		{balances: []int64{0, 0}, want: []int{1, 1}},
	}

	for _, tt := range tests {
		entries := make([]models.RankingEntry, len(tt.balances))
		for i, b := range tt.balances {
			entries[i].TotalBalance = decimal.NewFromInt(b)
		}
		denseRank(entries)

		got := make([]int, 0, len(entries))
		for _, e := range entries {
			got = append(got, e.Rank)
		}
		if tt.want == nil {
			assert.Empty(t, got)
			continue
		}
		assert.Equal(t, tt.want, got, "balances %v", tt.balances)
	}
}

func TestSummaryService_RoomSummary(t *testing.T) {
	t.Run("groups room debits", func(t *testing.T) {
		svc, mock := newTestSummaryService(t, stubRooms{room: testRoom()}, nil)
		mock.ExpectQuery(roomDebitsSQL).WithArgs(roomID).WillReturnRows(sqlmock.NewRows(debitColumns).
			AddRow(aliceID, aliceID, bobID, "10").
			AddRow(bobID, bobID, aliceID, "4").
			AddRow(aliceID, aliceID, bobID, "30"))

		summary, err := svc.RoomSummary(context.Background(), roomID)
		require.NoError(t, err)

		assert.Equal(t, "Poker night", summary.Room.Name)
		require.Len(t, summary.Transactions, 2)
		assert.True(t, summary.Transactions[0].Amount.Equal(decimal.NewFromInt(40)))
		assert.Equal(t, bobID, summary.Transactions[1].SenderID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown room", func(t *testing.T) {
		svc, mock := newTestSummaryService(t, stubRooms{err: newError(ErrNotFound, "Room not found")}, nil)

		_, err := svc.RoomSummary(context.Background(), roomID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("user summary keeps owner", func(t *testing.T) {
		svc, mock := newTestSummaryService(t, stubRooms{room: testRoom()}, nil)
		mock.ExpectQuery(userRoomDebitsSQL).WithArgs(roomID, bobID).WillReturnRows(sqlmock.NewRows(debitColumns).
			AddRow(bobID, bobID, aliceID, "4").
			AddRow(bobID, bobID, aliceID, "1"))

		summary, err := svc.UserRoomSummary(context.Background(), bobID, roomID)
		require.NoError(t, err)

		require.Len(t, summary.Transactions, 1)
		assert.Equal(t, bobID, summary.Transactions[0].OwnerID)
		assert.True(t, summary.Transactions[0].Amount.Equal(decimal.NewFromInt(5)))
	})

	t.Run("storage failure", func(t *testing.T) {
		svc, mock := newTestSummaryService(t, stubRooms{room: testRoom()}, nil)
		mock.ExpectQuery(roomDebitsSQL).WillReturnError(sql.ErrConnDone)

		_, err := svc.RoomSummary(context.Background(), roomID)
		assert.ErrorIs(t, err, ErrInternal)
	})
}

func TestSummaryService_Ranking(t *testing.T) {
	rankingColumns := []string{"id", "name", "email", "balance"}

	t.Run("dense ranks without cache", func(t *testing.T) {
		svc, mock := newTestSummaryService(t, stubRooms{}, nil)
		mock.ExpectQuery(rankingSQL).WillReturnRows(sqlmock.NewRows(rankingColumns).
			AddRow(aliceID, "Alice", "alice@example.com", "100").
			AddRow(bobID, "Bob", "bob@example.com", "100").
			AddRow("u-3", "Carol", "carol@example.com", "80"))

		entries, err := svc.Ranking(context.Background())
		require.NoError(t, err)

		require.Len(t, entries, 3)
		assert.Equal(t, []int{1, 1, 2}, []int{entries[0].Rank, entries[1].Rank, entries[2].Rank})
		assert.Equal(t, "Alice", entries[0].Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("served from cache", func(t *testing.T) {
		rdb, rmock := redismock.NewClientMock()
		svc, mock := newTestSummaryService(t, stubRooms{}, rdb)

		rmock.ExpectGet(rankingCacheKey).SetVal(`[{"userId":"u-1","name":"Alice","email":"a@x.io","totalBalance":7,"rank":1}]`)

		entries, err := svc.Ranking(context.Background())
		require.NoError(t, err)

		require.Len(t, entries, 1)
		assert.True(t, entries[0].TotalBalance.Equal(decimal.NewFromInt(7)))
		assert.NoError(t, rmock.ExpectationsWereMet())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cache miss fills cache", func(t *testing.T) {
		rdb, rmock := redismock.NewClientMock()
		svc, mock := newTestSummaryService(t, stubRooms{}, rdb)

		rmock.ExpectGet(rankingCacheKey).RedisNil()
		mock.ExpectQuery(rankingSQL).WillReturnRows(sqlmock.NewRows(rankingColumns).
			AddRow(aliceID, "Alice", "alice@example.com", "3"))
		rmock.ExpectSet(rankingCacheKey,
			`[{"userId":"`+aliceID+`","name":"Alice","email":"alice@example.com","totalBalance":3,"rank":1}]`,
			time.Minute).SetVal("OK")

		entries, err := svc.Ranking(context.Background())
		require.NoError(t, err)

		require.Len(t, entries, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, rmock.ExpectationsWereMet())
	})
}
