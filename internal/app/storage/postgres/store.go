// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/vrn21/payfree/internal/app/domain/account"
	"github.com/vrn21/payfree/internal/app/domain/ledger"
	"github.com/vrn21/payfree/internal/app/storage"
)

// Store implements the storage interfaces over a database handle.
type Store struct {
	db *sql.DB
}

var _ storage.TransferStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.UserID == uuid.Nil {
		acct.UserID = uuid.New()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (userid, name, username, phno, address, balance, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, acct.UserID, acct.Name, acct.Username, acct.Phone, acct.Address, acct.Balance, acct.PasswordHash, acct.CreatedAt)
	if err != nil {
		return account.Account{}, mapError(fmt.Sprintf("create account %s", acct.Username), err)
	}
	return acct, nil
}

func (s *Store) GetAccount(ctx context.Context, username string) (account.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT userid, name, username, phno, address, balance, password_hash, created_at
		FROM users
		WHERE username = $1
	`, username)

	var acct account.Account
	err := row.Scan(&acct.UserID, &acct.Name, &acct.Username, &acct.Phone, &acct.Address, &acct.Balance, &acct.PasswordHash, &acct.CreatedAt)
	if err != nil {
		return account.Account{}, mapError(fmt.Sprintf("get account %s", username), err)
	}
	return acct, nil
}

func (s *Store) GetBalance(ctx context.Context, username string) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT balance FROM users WHERE username = $1
	`, username)

	var balance int64
	if err := row.Scan(&balance); err != nil {
		return 0, mapError(fmt.Sprintf("get balance %s", username), err)
	}
	return balance, nil
}

func (s *Store) GetTransfer(ctx context.Context, txnID uuid.UUID) (ledger.Transfer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT txn_id, amount, from_username, to_username, time
		FROM transfers
		WHERE txn_id = $1
	`, txnID)

	var t ledger.Transfer
	if err := row.Scan(&t.TxnID, &t.Amount, &t.From, &t.To, &t.Time); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Transfer{}, fmt.Errorf("transfer %s: %w", txnID, storage.ErrTransferNotFound)
		}
		return ledger.Transfer{}, mapError(fmt.Sprintf("get transfer %s", txnID), err)
	}
	return t, nil
}

func (s *Store) ListTransfers(ctx context.Context, username string) ([]ledger.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT txn_id, amount, from_username, to_username, time
		FROM transfers
		WHERE from_username = $1 OR to_username = $1
		ORDER BY time DESC
	`, username)
	if err != nil {
		return nil, mapError(fmt.Sprintf("list transfers for %s", username), err)
	}
	defer rows.Close()

	var result []ledger.Transfer
	for rows.Next() {
		var t ledger.Transfer
		if err := rows.Scan(&t.TxnID, &t.Amount, &t.From, &t.To, &t.Time); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// BeginTransfer opens a SQL transaction and locks both account rows with
// SELECT ... FOR UPDATE, ordered by username regardless of transfer
// direction so opposing transfers cannot deadlock.
func (s *Store) BeginTransfer(ctx context.Context, a, b string) (storage.TransferTx, error) {
	if a == b {
		return nil, fmt.Errorf("transfer requires two distinct accounts")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError("begin transfer", err)
	}

	order := []string{a, b}
	sort.Strings(order)

	balances := make(map[string]int64, 2)
	for _, username := range order {
		row := tx.QueryRowContext(ctx, `
			SELECT balance FROM users WHERE username = $1 FOR UPDATE
		`, username)

		var balance int64
		if err := row.Scan(&balance); err != nil {
			_ = tx.Rollback()
			return nil, mapError(fmt.Sprintf("lock account %s", username), err)
		}
		balances[username] = balance
	}

	return &transferTx{tx: tx, balances: balances}, nil
}

type transferTx struct {
	tx       *sql.Tx
	balances map[string]int64
}

func (t *transferTx) Balance(_ context.Context, username string) (int64, error) {
	bal, ok := t.balances[username]
	if !ok {
		return 0, fmt.Errorf("account %s not locked by this transfer: %w", username, storage.ErrAccountNotFound)
	}
	return bal, nil
}

func (t *transferTx) Debit(ctx context.Context, username string, amount int64) error {
	bal, ok := t.balances[username]
	if !ok {
		return fmt.Errorf("account %s not locked by this transfer: %w", username, storage.ErrAccountNotFound)
	}
	if bal < amount {
		return fmt.Errorf("debit %d from %s (balance %d): %w", amount, username, bal, storage.ErrInsufficientFunds)
	}

	// The row is locked, so the guard cannot be raced; it backstops the
	// cached balance all the same.
	result, err := t.tx.ExecContext(ctx, `
		UPDATE users SET balance = balance - $1 WHERE username = $2 AND balance >= $1
	`, amount, username)
	if err != nil {
		return mapError(fmt.Sprintf("debit %s", username), err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("debit %d from %s: %w", amount, username, storage.ErrInsufficientFunds)
	}
	t.balances[username] = bal - amount
	return nil
}

func (t *transferTx) Credit(ctx context.Context, username string, amount int64) error {
	bal, ok := t.balances[username]
	if !ok {
		return fmt.Errorf("account %s not locked by this transfer: %w", username, storage.ErrAccountNotFound)
	}

	result, err := t.tx.ExecContext(ctx, `
		UPDATE users SET balance = balance + $1 WHERE username = $2
	`, amount, username)
	if err != nil {
		return mapError(fmt.Sprintf("credit %s", username), err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("credit %s: %w", username, storage.ErrAccountNotFound)
	}
	t.balances[username] = bal + amount
	return nil
}

func (t *transferTx) Append(ctx context.Context, transfer ledger.Transfer) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transfers (txn_id, amount, from_username, to_username, time)
		VALUES ($1, $2, $3, $4, $5)
	`, transfer.TxnID, transfer.Amount, transfer.From, transfer.To, transfer.Time)
	if err != nil {
		return mapError(fmt.Sprintf("append transfer %s", transfer.TxnID), err)
	}
	return nil
}

func (t *transferTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return mapError("commit transfer", err)
	}
	return nil
}

func (t *transferTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return mapError("rollback transfer", err)
	}
	return nil
}

// mapError translates driver failures into the shared storage sentinels.
func mapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			if pqErr.Table == "transfers" || pqErr.Constraint == "transfers_pkey" {
				return fmt.Errorf("%s: %w", op, storage.ErrDuplicateTransfer)
			}
			return fmt.Errorf("%s: %w", op, storage.ErrUsernameTaken)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w", op, storage.ErrAccountNotFound)
		case "23514": // check_violation (balance >= 0)
			return fmt.Errorf("%s: %w", op, storage.ErrInsufficientFunds)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%s: %w", op, storage.ErrConflict)
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrAccountNotFound)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w", op, storage.ErrUnavailable)
	}

	return fmt.Errorf("%s: %w", op, err)
}
