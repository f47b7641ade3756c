// Package runtime boots the service: configuration, database, migrations,
// HTTP server and graceful shutdown.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"github.com/vrn21/payfree/internal/app"
	"github.com/vrn21/payfree/internal/app/httpapi"
	"github.com/vrn21/payfree/internal/app/metrics"
	"github.com/vrn21/payfree/internal/app/storage"
	"github.com/vrn21/payfree/internal/app/storage/postgres"
	"github.com/vrn21/payfree/internal/config"
	"github.com/vrn21/payfree/internal/middleware"
	"github.com/vrn21/payfree/internal/platform/migrations"
	"github.com/vrn21/payfree/pkg/logger"
)

// Runtime holds the running server and its resources.
type Runtime struct {
	cfg     config.Config
	log     *logger.Logger
	db      *sql.DB
	limiter *middleware.RateLimit
	server  *http.Server
}

// New builds the full application stack from configuration.
func New(ctx context.Context, cfg config.Config) (*Runtime, error) {
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	var (
		db    *sql.DB
		store storage.TransferStore
	)
	if cfg.Database.DSN != "" {
		db, err = openDatabase(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := migrations.Apply(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		store = postgres.New(db)
		log.WithField("driver", cfg.Database.Driver).Info("database connected")
	}

	application, err := app.New(app.Options{
		Store:       store,
		TokenSecret: []byte(cfg.Auth.Secret),
		TokenExpiry: cfg.Auth.TokenExpiry,
		Log:         log,
	})
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	router := mux.NewRouter()
	httpapi.New(application.Accounts, application.Auth, application.Transfers, log.WithField("component", "httpapi")).Register(router)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	authMW := middleware.NewAuth(application.Tokens, "/", "/healthz", "/metrics", "/auth/")
	rateMW := middleware.NewRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	corsMW := middleware.NewCORS(cfg.CORS.AllowedOrigins)

	var handler http.Handler = router
	handler = rateMW.Handler(handler)
	handler = authMW.Handler(handler)
	handler = corsMW.Handler(handler)
	handler = metrics.InstrumentHandler(handler)

	return &Runtime{
		cfg:     cfg,
		log:     log,
		db:      db,
		limiter: rateMW,
		server: &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully.
func (rt *Runtime) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		rt.log.WithField("addr", rt.server.Addr).Info("http server listening")
		if err := rt.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		rt.close()
		return err
	case <-ctx.Done():
	}

	rt.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.Server.ShutdownTimeout)
	defer cancel()

	err := rt.server.Shutdown(shutdownCtx)
	rt.close()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (rt *Runtime) close() {
	if rt.limiter != nil {
		rt.limiter.Close()
	}
	if rt.db != nil {
		rt.db.Close()
	}
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
