package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntryKind string

const (
	EntryDebit  EntryKind = "debit"
	EntryCredit EntryKind = "credit"
)

// Account is the balance row owned by a user. Version backs the
// compare-and-set update in the transfer engine.
type Account struct {
	UserID    string          `json:"userId" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Version   int             `json:"-" db:"version"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// Transfer is the header row written once per successful transfer.
type Transfer struct {
	ID         string          `json:"id" db:"id"`
	SenderID   string          `json:"senderId" db:"sender_id"`
	ReceiverID string          `json:"receiverId" db:"receiver_id"`
	RoomID     *string         `json:"roomId,omitempty" db:"room_id"`
	Amount     decimal.Decimal `json:"amount" swaggertype:"number" db:"amount"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
}

// LedgerEntry is one side of a transfer seen from OwnerID's perspective.
// Entries are immutable apart from IsRead.
// @Description Ledger entry
type LedgerEntry struct {
	ID         string          `json:"id" db:"id"`
	TransferID string          `json:"transferId" db:"transfer_id"`
	OwnerID    string          `json:"userId" db:"owner_id"`
	SenderID   string          `json:"senderId" db:"sender_id"`
	ReceiverID string          `json:"receiverId" db:"receiver_id"`
	RoomID     *string         `json:"roomId,omitempty" db:"room_id"`
	Amount     decimal.Decimal `json:"amount" swaggertype:"number" example:"25.5" db:"amount"`
	Kind       EntryKind       `json:"kind" example:"debit" db:"kind"`
	IsRead     bool            `json:"isRead" db:"is_read"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
}

// Party is the name/email pair attached to entries in listings.
type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LedgerEntryView is a LedgerEntry with its counterparties resolved
// @Description Ledger entry with sender and receiver details
type LedgerEntryView struct {
	LedgerEntry
	Sender   Party `json:"sender"`
	Receiver Party `json:"receiver"`
}

// LedgerPage is one page of a user's ledger
// @Description Paginated ledger entries
type LedgerPage struct {
	Page        int               `json:"page" example:"1"`
	PerPage     int               `json:"per_page" example:"5"`
	Total       int               `json:"total" example:"12"`
	TotalPages  int               `json:"total_pages" example:"3"`
	UnreadCount int               `json:"unreadCount" example:"2"`
	Data        []LedgerEntryView `json:"data"`
}
