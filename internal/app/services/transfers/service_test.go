package transfers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/vrn21/payfree/internal/app/domain/account"
	"github.com/vrn21/payfree/internal/app/storage"
	"github.com/vrn21/payfree/internal/app/storage/memory"
)

func newService(t *testing.T, balances map[string]int64) (*Service, *memory.Store) {
	t.Helper()

	store := memory.New()
	for username, balance := range balances {
		_, err := store.CreateAccount(context.Background(), account.Account{
			Name:     username,
			Username: username,
			Balance:  balance,
		})
		if err != nil {
			t.Fatalf("seed account %s: %v", username, err)
		}
	}
	return New(store, nil), store
}

func TestTransferMovesFundsAndAppendsLedger(t *testing.T) {
	svc, store := newService(t, map[string]int64{"alice": 100, "bob": 50})
	ctx := context.Background()

	entry, err := svc.Transfer(ctx, "alice", "bob", 30, uuid.Nil)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if entry.TxnID == uuid.Nil {
		t.Fatal("expected a transaction ID to be assigned")
	}
	if entry.Amount != 30 || entry.From != "alice" || entry.To != "bob" {
		t.Fatalf("unexpected ledger entry: %+v", entry)
	}

	if bal, _ := store.GetBalance(ctx, "alice"); bal != 70 {
		t.Fatalf("alice balance = %d, want 70", bal)
	}
	if bal, _ := store.GetBalance(ctx, "bob"); bal != 80 {
		t.Fatalf("bob balance = %d, want 80", bal)
	}

	history, err := svc.ListForAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("list transfers: %v", err)
	}
	if len(history) != 1 || history[0].TxnID != entry.TxnID {
		t.Fatalf("expected exactly the committed entry, got %+v", history)
	}
}

func TestTransferInsufficientFundsLeavesStateUntouched(t *testing.T) {
	svc, store := newService(t, map[string]int64{"alice": 10, "bob": 0})
	ctx := context.Background()

	_, err := svc.Transfer(ctx, "alice", "bob", 50, uuid.Nil)
	if !errors.Is(err, storage.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	if bal, _ := store.GetBalance(ctx, "alice"); bal != 10 {
		t.Fatalf("alice balance = %d, want 10", bal)
	}
	if bal, _ := store.GetBalance(ctx, "bob"); bal != 0 {
		t.Fatalf("bob balance = %d, want 0", bal)
	}

	history, err := svc.ListForAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("list transfers: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("failed transfer must not reach the ledger, got %+v", history)
	}
}

func TestTransferValidation(t *testing.T) {
	svc, _ := newService(t, map[string]int64{"alice": 100, "bob": 50})
	ctx := context.Background()

	if _, err := svc.Transfer(ctx, "alice", "alice", 10, uuid.Nil); !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("self transfer: expected ErrSelfTransfer, got %v", err)
	}
	if _, err := svc.Transfer(ctx, "alice", "bob", 0, uuid.Nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.Transfer(ctx, "alice", "bob", -5, uuid.Nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative amount: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.Transfer(ctx, "alice", "nobody", 10, uuid.Nil); !errors.Is(err, storage.ErrAccountNotFound) {
		t.Fatalf("unknown receiver: expected ErrAccountNotFound, got %v", err)
	}
	if _, err := svc.Transfer(ctx, "nobody", "bob", 10, uuid.Nil); !errors.Is(err, storage.ErrAccountNotFound) {
		t.Fatalf("unknown sender: expected ErrAccountNotFound, got %v", err)
	}
}

func TestTransferUsesSuppliedTxnID(t *testing.T) {
	svc, _ := newService(t, map[string]int64{"alice": 100, "bob": 50})
	ctx := context.Background()

	id := uuid.New()
	entry, err := svc.Transfer(ctx, "alice", "bob", 5, id)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if entry.TxnID != id {
		t.Fatalf("txn_id = %s, want %s", entry.TxnID, id)
	}

	got, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if got.Amount != 5 {
		t.Fatalf("amount = %d, want 5", got.Amount)
	}
}

func TestGetUnknownTransfer(t *testing.T) {
	svc, _ := newService(t, map[string]int64{"alice": 100})

	_, err := svc.Get(context.Background(), uuid.New())
	if !errors.Is(err, storage.ErrTransferNotFound) {
		t.Fatalf("expected ErrTransferNotFound, got %v", err)
	}
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	const (
		balance = 100
		amount  = 30
		workers = 20
	)
	svc, store := newService(t, map[string]int64{"alice": balance, "bob": 0})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, "alice", "bob", amount, uuid.Nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, rejections int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, storage.ErrInsufficientFunds):
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// 100 / 30: exactly three transfers can be funded.
	if successes != balance/amount {
		t.Fatalf("successes = %d, want %d", successes, balance/amount)
	}
	if rejections != workers-balance/amount {
		t.Fatalf("rejections = %d, want %d", rejections, workers-balance/amount)
	}

	aliceBal, _ := store.GetBalance(ctx, "alice")
	bobBal, _ := store.GetBalance(ctx, "bob")
	if aliceBal < 0 {
		t.Fatalf("alice overdrawn: %d", aliceBal)
	}
	if aliceBal+bobBal != balance {
		t.Fatalf("total balance = %d, want %d", aliceBal+bobBal, balance)
	}

	history, err := svc.ListForAccount(ctx, "bob")
	if err != nil {
		t.Fatalf("list transfers: %v", err)
	}
	if len(history) != successes {
		t.Fatalf("ledger entries = %d, want %d", len(history), successes)
	}
}

func TestOpposingTransfersDoNotDeadlock(t *testing.T) {
	svc, store := newService(t, map[string]int64{"alice": 1000, "bob": 1000})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := svc.Transfer(ctx, "alice", "bob", 1, uuid.Nil); err != nil {
				t.Errorf("alice to bob: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := svc.Transfer(ctx, "bob", "alice", 1, uuid.Nil); err != nil {
				t.Errorf("bob to alice: %v", err)
			}
		}()
	}
	wg.Wait()

	aliceBal, _ := store.GetBalance(ctx, "alice")
	bobBal, _ := store.GetBalance(ctx, "bob")
	if aliceBal+bobBal != 2000 {
		t.Fatalf("total balance = %d, want 2000", aliceBal+bobBal)
	}
}

func TestTransferRejectsReusedTxnID(t *testing.T) {
	svc, store := newService(t, map[string]int64{"alice": 100, "bob": 0})
	ctx := context.Background()
	id := uuid.New()

	if _, err := svc.Transfer(ctx, "alice", "bob", 10, id); err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	if _, err := svc.Transfer(ctx, "alice", "bob", 20, id); !errors.Is(err, storage.ErrDuplicateTransfer) {
		t.Fatalf("reuse: expected ErrDuplicateTransfer, got %v", err)
	}

	// The first entry is immutable and only the first movement settled.
	got, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != 10 {
		t.Fatalf("amount = %d, want the original 10", got.Amount)
	}
	if bal, _ := store.GetBalance(ctx, "alice"); bal != 90 {
		t.Fatalf("alice = %d, want 90", bal)
	}
	history, err := svc.ListForAccount(ctx, "bob")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(history))
	}
}

// conflictStore wraps the memory store and fails the next N commits with
// ErrConflict to exercise the retry loop.
type conflictStore struct {
	*memory.Store
	conflictsLeft int
	begins        int
}

func (s *conflictStore) BeginTransfer(ctx context.Context, a, b string) (storage.TransferTx, error) {
	s.begins++
	tx, err := s.Store.BeginTransfer(ctx, a, b)
	if err != nil {
		return nil, err
	}
	return &conflictTx{TransferTx: tx, store: s}, nil
}

type conflictTx struct {
	storage.TransferTx
	store *conflictStore
}

func (tx *conflictTx) Commit() error {
	if tx.store.conflictsLeft > 0 {
		tx.store.conflictsLeft--
		_ = tx.TransferTx.Rollback()
		return fmt.Errorf("commit: %w", storage.ErrConflict)
	}
	return tx.TransferTx.Commit()
}

func newConflictService(t *testing.T, conflicts int, balances map[string]int64) (*Service, *conflictStore) {
	t.Helper()

	_, mem := newService(t, balances)
	store := &conflictStore{Store: mem, conflictsLeft: conflicts}
	return New(store, nil), store
}

func TestTransferRetriesConflictThenSucceeds(t *testing.T) {
	svc, store := newConflictService(t, 2, map[string]int64{"alice": 100, "bob": 0})
	ctx := context.Background()

	if _, err := svc.Transfer(ctx, "alice", "bob", 30, uuid.Nil); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if store.begins != 3 {
		t.Fatalf("attempts = %d, want 3 (two conflicts then success)", store.begins)
	}

	if bal, _ := store.GetBalance(ctx, "alice"); bal != 70 {
		t.Fatalf("alice = %d, want 70 (moved exactly once)", bal)
	}
	history, _ := store.ListTransfers(ctx, "bob")
	if len(history) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(history))
	}
}

func TestTransferSurfacesConflictAfterRetriesExhausted(t *testing.T) {
	svc, store := newConflictService(t, 10, map[string]int64{"alice": 100, "bob": 0})
	ctx := context.Background()

	_, err := svc.Transfer(ctx, "alice", "bob", 30, uuid.Nil)
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if store.begins != 3 {
		t.Fatalf("attempts = %d, want exactly 3", store.begins)
	}

	if bal, _ := store.GetBalance(ctx, "alice"); bal != 100 {
		t.Fatalf("alice = %d, want 100 untouched", bal)
	}
	history, _ := store.ListTransfers(ctx, "bob")
	if len(history) != 0 {
		t.Fatalf("ledger entries = %d, want 0", len(history))
	}
}

func TestTransferDoesNotRetryTerminalErrors(t *testing.T) {
	svc, store := newConflictService(t, 0, map[string]int64{"alice": 10, "bob": 0})
	ctx := context.Background()

	if _, err := svc.Transfer(ctx, "alice", "bob", 50, uuid.Nil); !errors.Is(err, storage.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if store.begins != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry for a terminal error)", store.begins)
	}
}

func TestListForUnknownAccount(t *testing.T) {
	svc, _ := newService(t, map[string]int64{"alice": 100})

	_, err := svc.ListForAccount(context.Background(), "nobody")
	if !errors.Is(err, storage.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
