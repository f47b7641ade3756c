// Package app assembles storage and services into one application.
package app

import (
	"fmt"
	"time"

	"github.com/vrn21/payfree/internal/app/services/accounts"
	"github.com/vrn21/payfree/internal/app/services/auth"
	"github.com/vrn21/payfree/internal/app/services/transfers"
	"github.com/vrn21/payfree/internal/app/storage"
	"github.com/vrn21/payfree/internal/app/storage/memory"
	"github.com/vrn21/payfree/pkg/logger"
)

// Options configures the application. A nil Store selects the in-memory
// backend.
type Options struct {
	Store       storage.TransferStore
	TokenSecret []byte
	TokenExpiry time.Duration
	Log         *logger.Logger
}

// Application owns the service layer.
type Application struct {
	Accounts  *accounts.Service
	Auth      *auth.Service
	Transfers *transfers.Service
	Tokens    *auth.TokenIssuer
	Store     storage.TransferStore
	Log       *logger.Logger
}

// New wires the services together.
func New(opts Options) (*Application, error) {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("app")
	}

	store := opts.Store
	if store == nil {
		store = memory.New()
		log.Warn("no database configured, using in-memory storage")
	}

	tokens, err := auth.NewTokenIssuer(opts.TokenSecret, opts.TokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}

	return &Application{
		Accounts:  accounts.New(store, log.WithField("component", "accounts")),
		Auth:      auth.New(store, tokens, log.WithField("component", "auth")),
		Transfers: transfers.New(store, log.WithField("component", "transfers")),
		Tokens:    tokens,
		Store:     store,
		Log:       log,
	}, nil
}
