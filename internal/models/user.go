package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts go over the wire as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// User is the stored account holder. Password holds the argon2id hash and is
// never serialised; handlers respond with UserResponse instead.
type User struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Password  string    `db:"password"`
	CreatedAt time.Time `db:"created_at"`
}

// UserResponse is the public shape of a user
// @Description User without credentials
type UserResponse struct {
	ID        string    `json:"id" example:"8f14e45f-ceea-467a-9575-6f1b2c3d4e5f"`
	Name      string    `json:"name" example:"Alice"`
	Email     string    `json:"email" example:"alice@example.com"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserWithBalance is a user together with the coin balance they hold
// @Description User with balance
type UserWithBalance struct {
	UserResponse
	Coin decimal.Decimal `json:"coin" swaggertype:"number" example:"100"`
}

func (u User) Response() UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}
