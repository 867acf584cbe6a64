package models

import "github.com/shopspring/decimal"

// SummaryLine is the total moved between one pair of users.
// OwnerID is only set on per-user summaries.
type SummaryLine struct {
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	OwnerID    string          `json:"userId,omitempty"`
	Amount     decimal.Decimal `json:"amount" swaggertype:"number" example:"40"`
}

// RoomSummary groups a room's transfers by counterparty pair
// @Description Room summary
type RoomSummary struct {
	Room         RoomResponse  `json:"room"`
	Transactions []SummaryLine `json:"transactions"`
}

// RankingEntry is one row of the leaderboard
// @Description Leaderboard row
type RankingEntry struct {
	UserID       string          `json:"userId"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	TotalBalance decimal.Decimal `json:"totalBalance" swaggertype:"number" example:"100"`
	Rank         int             `json:"rank" example:"1"`
}
