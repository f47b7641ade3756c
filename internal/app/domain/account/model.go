package account

import (
	"time"

	"github.com/google/uuid"
)

// Account is a ledger participant. The username is the stable identity used
// by transfers; UserID is an immutable surrogate assigned at signup.
type Account struct {
	UserID       uuid.UUID `json:"userid"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Phone        string    `json:"phno"`
	Address      string    `json:"address"`
	Balance      int64     `json:"balance"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
