package storage

import "errors"

// Sentinel errors shared by every store implementation. Services and the
// HTTP layer discriminate with errors.Is; stores wrap these with context.
var (
	// ErrAccountNotFound reports an unknown account identity.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransferNotFound reports an unknown ledger entry.
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrUsernameTaken reports a signup against an existing username.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrDuplicateTransfer reports a transaction ID that already names a
	// committed ledger entry. Entries are immutable and IDs never reused.
	ErrDuplicateTransfer = errors.New("transfer id already used")

	// ErrInsufficientFunds reports a debit that would drive a balance
	// negative. Expected and user-facing, never a system fault.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConflict reports a concurrent writer winning the commit. The
	// atomic unit left no state behind and may be retried.
	ErrConflict = errors.New("transfer conflicts with a concurrent writer")

	// ErrUnavailable reports an unreachable backing store. Fatal to the
	// call; not retried.
	ErrUnavailable = errors.New("storage unavailable")
)
