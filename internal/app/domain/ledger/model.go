// Package ledger defines the immutable transfer record appended for every
// committed balance movement.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Transfer records a single movement of value between two accounts. A record
// exists if and only if the matching debit and credit were committed; once
// written it never changes.
type Transfer struct {
	TxnID  uuid.UUID `json:"txn_id"`
	Amount int64     `json:"amount"`
	From   string    `json:"from_username"`
	To     string    `json:"to_username"`
	Time   time.Time `json:"time"`
}
