package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/vrn21/payfree/internal/app/domain/account"
	"github.com/vrn21/payfree/internal/app/domain/ledger"
)

// AccountStore persists account records and balances. Reads reflect the
// latest committed state; there is no stale-read tolerance across this
// boundary.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	GetAccount(ctx context.Context, username string) (account.Account, error)
	GetBalance(ctx context.Context, username string) (int64, error)
}

// LedgerStore reads the append-only transfer ledger. Listings are ordered by
// commit time descending.
type LedgerStore interface {
	GetTransfer(ctx context.Context, txnID uuid.UUID) (ledger.Transfer, error)
	ListTransfers(ctx context.Context, username string) ([]ledger.Transfer, error)
}

// TransferTx is a single atomic unit over two accounts and the ledger.
// Either Commit persists every mutation performed through the handle, or
// Rollback (and any error) leaves no trace. Implementations must hold both
// accounts exclusively for the lifetime of the handle, acquired in an order
// independent of transfer direction.
type TransferTx interface {
	// Balance returns the sender-visible balance of a held account.
	Balance(ctx context.Context, username string) (int64, error)
	// Debit decreases the balance only if the result stays non-negative;
	// otherwise it fails with ErrInsufficientFunds and mutates nothing.
	Debit(ctx context.Context, username string, amount int64) error
	// Credit increases the balance of a held account.
	Credit(ctx context.Context, username string, amount int64) error
	// Append stages the ledger record that shares fate with the mutations.
	Append(ctx context.Context, t ledger.Transfer) error
	// Commit makes all staged work durable, or fails with ErrConflict when a
	// concurrent writer won; the caller may retry the whole unit.
	Commit() error
	// Rollback discards all staged work. Safe to call after Commit.
	Rollback() error
}

// TransferStore is the full persistence surface the transfer engine needs.
type TransferStore interface {
	AccountStore
	LedgerStore

	// BeginTransfer opens an atomic unit holding both named accounts. It
	// fails with ErrAccountNotFound when either does not exist.
	BeginTransfer(ctx context.Context, a, b string) (TransferTx, error)
}
