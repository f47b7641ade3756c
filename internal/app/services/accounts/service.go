// Package accounts serves profile and balance reads.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vrn21/payfree/internal/app/domain/account"
	"github.com/vrn21/payfree/internal/app/storage"
	"github.com/vrn21/payfree/pkg/logger"
)

// ErrInvalidUsername rejects empty or whitespace usernames before any
// storage access.
var ErrInvalidUsername = errors.New("username must not be empty")

// Service answers account queries.
type Service struct {
	store storage.AccountStore
	log   *logger.Logger
}

// New constructs an account service.
func New(store storage.AccountStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	return &Service{store: store, log: log}
}

// Profile returns the account owned by username.
func (s *Service) Profile(ctx context.Context, username string) (account.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return account.Account{}, ErrInvalidUsername
	}
	return s.store.GetAccount(ctx, username)
}

// Balance returns the latest committed balance for username.
func (s *Service) Balance(ctx context.Context, username string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, ErrInvalidUsername
	}

	balance, err := s.store.GetBalance(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("balance for %s: %w", username, err)
	}
	return balance, nil
}
