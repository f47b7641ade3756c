// Package transfers implements the balance-transfer engine: the sole entry
// point for moving value between accounts.
package transfers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vrn21/payfree/internal/app/domain/ledger"
	"github.com/vrn21/payfree/internal/app/metrics"
	"github.com/vrn21/payfree/internal/app/storage"
	"github.com/vrn21/payfree/pkg/logger"
)

// Errors
var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrSelfTransfer  = errors.New("sender and receiver must differ")
)

const (
	// maxAttempts bounds retries when a concurrent writer wins the commit.
	maxAttempts  = 3
	retryBackoff = 10 * time.Millisecond
)

// Service executes transfers atomically and serves ledger reads.
type Service struct {
	store storage.TransferStore
	log   *logger.Logger
}

// New constructs a transfer service.
func New(store storage.TransferStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("transfers")
	}
	return &Service{store: store, log: log}
}

// Transfer moves amount from one account to the other as one atomic unit:
// the debit, the credit and the ledger append all commit together or not at
// all. A zero txnID gets a fresh one. Conflicts with concurrent writers are
// retried up to maxAttempts before surfacing storage.ErrConflict; every
// other failure is terminal and reported unchanged.
func (s *Service) Transfer(ctx context.Context, from, to string, amount int64, txnID uuid.UUID) (ledger.Transfer, error) {
	if amount <= 0 {
		return ledger.Transfer{}, fmt.Errorf("transfer of %d: %w", amount, ErrInvalidAmount)
	}
	if from == to {
		return ledger.Transfer{}, fmt.Errorf("transfer within %s: %w", from, ErrSelfTransfer)
	}
	if txnID == uuid.Nil {
		txnID = uuid.New()
	}

	start := time.Now()
	for attempt := 1; ; attempt++ {
		t, err := s.executeOnce(ctx, from, to, amount, txnID)
		if err == nil {
			metrics.RecordTransfer("committed", attempt, time.Since(start))
			s.log.WithField("txn_id", t.TxnID).
				WithField("from", from).
				WithField("to", to).
				WithField("amount", amount).
				Info("transfer committed")
			return t, nil
		}

		if !errors.Is(err, storage.ErrConflict) {
			metrics.RecordTransfer(failureReason(err), attempt, time.Since(start))
			return ledger.Transfer{}, err
		}
		if attempt >= maxAttempts {
			metrics.RecordTransfer("conflict", attempt, time.Since(start))
			s.log.WithField("from", from).
				WithField("to", to).
				Warnf("transfer abandoned after %d attempts", attempt)
			return ledger.Transfer{}, err
		}

		select {
		case <-ctx.Done():
			return ledger.Transfer{}, ctx.Err()
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}
}

func (s *Service) executeOnce(ctx context.Context, from, to string, amount int64, txnID uuid.UUID) (ledger.Transfer, error) {
	tx, err := s.store.BeginTransfer(ctx, from, to)
	if err != nil {
		return ledger.Transfer{}, err
	}
	defer tx.Rollback()

	if err := tx.Debit(ctx, from, amount); err != nil {
		return ledger.Transfer{}, err
	}
	if err := tx.Credit(ctx, to, amount); err != nil {
		return ledger.Transfer{}, err
	}

	t := ledger.Transfer{
		TxnID:  txnID,
		Amount: amount,
		From:   from,
		To:     to,
		Time:   time.Now().UTC(),
	}
	if err := tx.Append(ctx, t); err != nil {
		return ledger.Transfer{}, err
	}

	if err := tx.Commit(); err != nil {
		return ledger.Transfer{}, err
	}
	return t, nil
}

// Get returns a ledger entry by transaction ID.
func (s *Service) Get(ctx context.Context, txnID uuid.UUID) (ledger.Transfer, error) {
	return s.store.GetTransfer(ctx, txnID)
}

// ListForAccount returns every transfer the account participated in, newest
// first. Served from a read-consistent snapshot; not part of the atomic
// unit.
func (s *Service) ListForAccount(ctx context.Context, username string) ([]ledger.Transfer, error) {
	if _, err := s.store.GetAccount(ctx, username); err != nil {
		return nil, err
	}
	return s.store.ListTransfers(ctx, username)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, storage.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, storage.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, storage.ErrDuplicateTransfer):
		return "duplicate_transfer"
	case errors.Is(err, storage.ErrUnavailable):
		return "storage_unavailable"
	default:
		return "error"
	}
}
