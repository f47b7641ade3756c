// Package auth handles account registration, credential checks and token
// issuance.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vrn21/payfree/internal/app/domain/account"
	"github.com/vrn21/payfree/internal/app/storage"
	"github.com/vrn21/payfree/pkg/logger"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrMissingField       = errors.New("required field missing")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrNegativeBalance    = errors.New("initial balance must not be negative")
)

// SignupInput carries the fields a new account is created from.
type SignupInput struct {
	Name     string
	Username string
	Phone    string
	Address  string
	Password string
	Balance  int64
}

// Service registers accounts and exchanges credentials for tokens.
type Service struct {
	store  storage.AccountStore
	tokens *TokenIssuer
	log    *logger.Logger
}

// New constructs an auth service.
func New(store storage.AccountStore, tokens *TokenIssuer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Service{store: store, tokens: tokens, log: log}
}

// Signup validates the input, hashes the password and creates the account.
func (s *Service) Signup(ctx context.Context, in SignupInput) (account.Account, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)

	switch {
	case in.Name == "":
		return account.Account{}, fmt.Errorf("name: %w", ErrMissingField)
	case in.Username == "":
		return account.Account{}, fmt.Errorf("username: %w", ErrMissingField)
	case len(in.Password) < 8:
		return account.Account{}, ErrWeakPassword
	case in.Balance < 0:
		return account.Account{}, ErrNegativeBalance
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return account.Account{}, fmt.Errorf("hash password: %w", err)
	}

	acct, err := s.store.CreateAccount(ctx, account.Account{
		Name:         in.Name,
		Username:     in.Username,
		Phone:        in.Phone,
		Address:      in.Address,
		Balance:      in.Balance,
		PasswordHash: string(hash),
	})
	if err != nil {
		return account.Account{}, err
	}

	s.log.WithField("username", acct.Username).Info("account created")
	return acct, nil
}

// Login verifies the credentials and returns a signed token. Unknown
// usernames and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	acct, err := s.store.GetAccount(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(acct.Username, time.Now())
	if err != nil {
		return "", fmt.Errorf("issue token for %s: %w", acct.Username, err)
	}
	return token, nil
}
