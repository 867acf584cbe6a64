package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Room is a named group of users. OwnerID never changes and the owner is a
// member without a row in room_members.
type Room struct {
	ID           string          `db:"id"`
	OwnerID      string          `db:"owner_id"`
	Name         string          `db:"name"`
	PasswordHash *string         `db:"password"`
	RateDefault  decimal.Decimal `db:"rate_default"`
	CreatedAt    time.Time       `db:"created_at"`
}

// RoomResponse is the public shape of a room; the password never leaves the
// service.
// @Description Room
type RoomResponse struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	Name        string          `json:"name" example:"Friday poker"`
	HasPassword bool            `json:"hasPassword"`
	RateDefault decimal.Decimal `json:"rateDefault" swaggertype:"number" example:"0"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (r Room) Response() RoomResponse {
	return RoomResponse{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Name:        r.Name,
		HasPassword: r.PasswordHash != nil && *r.PasswordHash != "",
		RateDefault: r.RateDefault,
		CreatedAt:   r.CreatedAt,
	}
}

// RoomDetail is a room with its owner and members, each carrying a balance
// @Description Room with owner and members
type RoomDetail struct {
	RoomResponse
	Owner   UserWithBalance   `json:"owner"`
	Members []UserWithBalance `json:"users"`
}

// RoomListItem is the compact listing row.
type RoomListItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomPage is one page of the room listing
// @Description Paginated room list
type RoomPage struct {
	Page       int            `json:"page" example:"1"`
	PerPage    int            `json:"per_page" example:"5"`
	Total      int            `json:"total" example:"7"`
	TotalPages int            `json:"total_pages" example:"2"`
	Data       []RoomListItem `json:"data"`
}

// RoomInvite is a single-use invite to a room
// @Description Room invite with QR code
type RoomInvite struct {
	Code      string    `json:"code"`
	RoomID    string    `json:"roomId"`
	IssuedBy  string    `json:"issuedBy"`
	QRImage   string    `json:"qrImage,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}
