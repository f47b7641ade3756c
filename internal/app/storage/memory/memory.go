// Package memory is an in-memory implementation of the storage interfaces.
// It is safe for concurrent use and is primarily intended for tests and
// local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vrn21/payfree/internal/app/domain/account"
	"github.com/vrn21/payfree/internal/app/domain/ledger"
	"github.com/vrn21/payfree/internal/app/storage"
)

// Store keeps accounts and the ledger in process memory. Account balances
// are guarded by one mutex per account so a transfer can hold exactly the
// two accounts it touches; the maps themselves are guarded by mu.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*accountEntry

	ledgerMu      sync.RWMutex
	transfers     []ledger.Transfer
	transfersByID map[uuid.UUID]ledger.Transfer
}

type accountEntry struct {
	mu   sync.Mutex
	acct account.Account
}

var _ storage.TransferStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts:      make(map[string]*accountEntry),
		transfersByID: make(map[uuid.UUID]ledger.Transfer),
	}
}

// CreateAccount registers a new account. The username must be unused.
func (s *Store) CreateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acct.Username]; exists {
		return account.Account{}, fmt.Errorf("account %s: %w", acct.Username, storage.ErrUsernameTaken)
	}

	if acct.UserID == uuid.Nil {
		acct.UserID = uuid.New()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}

	s.accounts[acct.Username] = &accountEntry{acct: acct}
	return acct, nil
}

// GetAccount returns a snapshot of the account.
func (s *Store) GetAccount(_ context.Context, username string) (account.Account, error) {
	entry, err := s.entry(username)
	if err != nil {
		return account.Account{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.acct, nil
}

// GetBalance returns the latest committed balance.
func (s *Store) GetBalance(_ context.Context, username string) (int64, error) {
	entry, err := s.entry(username)
	if err != nil {
		return 0, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.acct.Balance, nil
}

// GetTransfer returns a ledger entry by transaction ID.
func (s *Store) GetTransfer(_ context.Context, txnID uuid.UUID) (ledger.Transfer, error) {
	s.ledgerMu.RLock()
	defer s.ledgerMu.RUnlock()

	t, ok := s.transfersByID[txnID]
	if !ok {
		return ledger.Transfer{}, fmt.Errorf("transfer %s: %w", txnID, storage.ErrTransferNotFound)
	}
	return t, nil
}

// ListTransfers returns every transfer the account participated in, newest
// first.
func (s *Store) ListTransfers(_ context.Context, username string) ([]ledger.Transfer, error) {
	s.ledgerMu.RLock()
	defer s.ledgerMu.RUnlock()

	var result []ledger.Transfer
	for i := len(s.transfers) - 1; i >= 0; i-- {
		t := s.transfers[i]
		if t.From == username || t.To == username {
			result = append(result, t)
		}
	}
	return result, nil
}

// BeginTransfer locks both accounts, always in username sort order so two
// opposing transfers cannot deadlock, and returns a handle whose mutations
// stay invisible until Commit.
func (s *Store) BeginTransfer(_ context.Context, a, b string) (storage.TransferTx, error) {
	if a == b {
		return nil, fmt.Errorf("transfer requires two distinct accounts")
	}

	first, err := s.entry(a)
	if err != nil {
		return nil, err
	}
	second, err := s.entry(b)
	if err != nil {
		return nil, err
	}

	order := []string{a, b}
	sort.Strings(order)
	entries := map[string]*accountEntry{a: first, b: second}
	for _, name := range order {
		entries[name].mu.Lock()
	}

	return &transferTx{
		store:    s,
		order:    order,
		entries:  entries,
		balances: map[string]int64{a: first.acct.Balance, b: second.acct.Balance},
	}, nil
}

func (s *Store) entry(username string) (*accountEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.accounts[username]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", username, storage.ErrAccountNotFound)
	}
	return entry, nil
}

// transferTx stages balance changes locally and applies them on Commit while
// both account locks are still held. With pessimistic locks there is no
// commit-time conflict; Commit cannot fail.
type transferTx struct {
	store    *Store
	order    []string
	entries  map[string]*accountEntry
	balances map[string]int64
	staged   []ledger.Transfer
	done     bool
}

func (tx *transferTx) Balance(_ context.Context, username string) (int64, error) {
	bal, ok := tx.balances[username]
	if !ok {
		return 0, fmt.Errorf("account %s not part of this transfer: %w", username, storage.ErrAccountNotFound)
	}
	return bal, nil
}

func (tx *transferTx) Debit(_ context.Context, username string, amount int64) error {
	bal, ok := tx.balances[username]
	if !ok {
		return fmt.Errorf("account %s not part of this transfer: %w", username, storage.ErrAccountNotFound)
	}
	if bal < amount {
		return fmt.Errorf("debit %d from %s (balance %d): %w", amount, username, bal, storage.ErrInsufficientFunds)
	}
	tx.balances[username] = bal - amount
	return nil
}

func (tx *transferTx) Credit(_ context.Context, username string, amount int64) error {
	bal, ok := tx.balances[username]
	if !ok {
		return fmt.Errorf("account %s not part of this transfer: %w", username, storage.ErrAccountNotFound)
	}
	tx.balances[username] = bal + amount
	return nil
}

func (tx *transferTx) Append(_ context.Context, t ledger.Transfer) error {
	tx.store.ledgerMu.RLock()
	_, exists := tx.store.transfersByID[t.TxnID]
	tx.store.ledgerMu.RUnlock()
	if exists {
		return fmt.Errorf("transfer %s: %w", t.TxnID, storage.ErrDuplicateTransfer)
	}
	tx.staged = append(tx.staged, t)
	return nil
}

// Commit applies the staged balances and ledger entries. A reused
// transaction ID fails the whole unit; nothing is applied.
func (tx *transferTx) Commit() error {
	if tx.done {
		return nil
	}

	if len(tx.staged) > 0 {
		tx.store.ledgerMu.Lock()
		for _, t := range tx.staged {
			if _, exists := tx.store.transfersByID[t.TxnID]; exists {
				tx.store.ledgerMu.Unlock()
				tx.release()
				return fmt.Errorf("transfer %s: %w", t.TxnID, storage.ErrDuplicateTransfer)
			}
		}
		for _, t := range tx.staged {
			tx.store.transfers = append(tx.store.transfers, t)
			tx.store.transfersByID[t.TxnID] = t
		}
		tx.store.ledgerMu.Unlock()
	}

	for name, entry := range tx.entries {
		entry.acct.Balance = tx.balances[name]
	}

	tx.release()
	return nil
}

func (tx *transferTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.release()
	return nil
}

func (tx *transferTx) release() {
	tx.done = true
	for i := len(tx.order) - 1; i >= 0; i-- {
		tx.entries[tx.order[i]].mu.Unlock()
	}
}
