package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/postgres"
	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/rest"
	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/socketio"
	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/websocket"
	"github.com/lorrc/service-desk-realtime/internal/auth"
	"github.com/lorrc/service-desk-realtime/internal/config"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/core/services"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

const (
	// pruneInterval is how often the Postgres read state is compacted.
	pruneInterval = 10 * time.Minute
	// keepMessageIDs is how many delivered message ids survive a prune.
	keepMessageIDs = 5000
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	tokens   *auth.TokenProvider
	pool     *pgxpool.Pool
	repo     *postgres.ReadStateRepository
	service  *services.RealtimeService
	loader   *services.TicketLoader
	connect  services.ConnectConfig
	hasLoad  bool
	shutdown []func()
}

// newApp loads the configuration and wires the hexagon. Callers must call
// close.
func newApp(ctx context.Context) (*app, error) {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})
	slog.SetDefault(logger)

	logger.Info("starting ticketsync",
		"version", version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	a := &app{cfg: cfg, logger: logger}

	// 3. Credential
	a.tokens, err = newTokenProvider(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}

	// 4. Read-state store
	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	// 5. Core services
	registry := services.NewSubscriptionRegistry(logger)
	manager := services.NewConnectionManager(newTransport(cfg.Realtime, logger), a.tokens, a.tokens, registry, logger)
	synchronizer := services.NewTicketSynchronizer(store, logger)
	a.service = services.NewRealtimeService(manager, synchronizer, services.NewStatsAggregator(), logger)

	restoreCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := synchronizer.Restore(restoreCtx); err != nil {
		logger.Warn("failed to restore read state", "error", err)
	}
	cancel()

	// 6. Ticket API
	if cfg.API.BaseURL != "" {
		client := rest.NewClient(cfg.API.BaseURL, a.tokens, rest.Options{
			Timeout:        cfg.API.RequestTimeout,
			RateLimitRPS:   cfg.API.RateLimitRPS,
			RateLimitBurst: cfg.API.RateLimitBurst,
		}, logger)
		a.loader = services.NewTicketLoader(client, synchronizer, cfg.API.PageSize, logger)
		a.hasLoad = true
	}

	a.connect = services.ConnectConfig{
		URL:                  cfg.Realtime.URL,
		Path:                 cfg.Realtime.Path,
		UserID:               cfg.Auth.UserID,
		HandshakeTimeout:     cfg.Realtime.HandshakeTimeout,
		BaseDelay:            cfg.Realtime.BaseDelay,
		MaxDelay:             cfg.Realtime.MaxDelay,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
	}

	return a, nil
}

func newTokenProvider(cfg config.AuthConfig, logger *slog.Logger) (*auth.TokenProvider, error) {
	var source auth.Source
	switch {
	case cfg.Token != "":
		source = auth.StaticSource(cfg.Token)
	case cfg.TokenFile != "":
		source = auth.FileSource(cfg.TokenFile)
	default:
		userID, err := uuid.Parse(cfg.UserID)
		if err != nil {
			return nil, fmt.Errorf("AUTH_USER_ID must be a UUID to sign tokens: %w", err)
		}
		orgID := uuid.Nil
		if cfg.OrgID != "" {
			if orgID, err = uuid.Parse(cfg.OrgID); err != nil {
				return nil, fmt.Errorf("invalid AUTH_ORG_ID: %w", err)
			}
		}
		logger.Warn("signing tokens locally, for development only")
		source = auth.SigningSource(auth.NewTokenManager(cfg.SigningSecret, cfg.TokenTTL), userID, orgID)
	}
	return auth.NewTokenProvider(source, cfg.RefreshLeeway, logger), nil
}

func newTransport(cfg config.RealtimeConfig, logger *slog.Logger) ports.Transport {
	if cfg.Transport == config.TransportSocketIO {
		return socketio.NewTransport(logger)
	}
	return websocket.NewTransport(cfg.PingInterval, cfg.PongWait, logger)
}

// openStore returns the Postgres read-state store when a database is
// configured, and nil (in-memory) otherwise.
func (a *app) openStore(ctx context.Context) (ports.ReadStateStore, error) {
	dbURL := a.cfg.Store.DatabaseURL
	if dbURL == "" {
		a.logger.Info("no database configured, read state is kept in memory")
		return nil, nil
	}

	if err := postgres.Migrate(a.cfg.Store.MigrationsPath, dbURL); err != nil {
		return nil, err
	}

	pool, err := postgres.NewPool(ctx, dbURL, a.cfg.Store.MaxConns)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.shutdown = append(a.shutdown, pool.Close)
	a.repo = postgres.NewReadStateRepository(pool)

	a.logger.Info("database connection established")
	return a.repo, nil
}

// start connects and loads the first ticket page. A failed first dial is
// not fatal: the manager keeps reconnecting in the background.
func (a *app) start(ctx context.Context) error {
	if a.repo != nil {
		go a.pruneLoop(ctx)
	}

	connectCtx, cancel := context.WithTimeout(ctx, a.connect.HandshakeTimeout+5*time.Second)
	err := a.service.Connect(connectCtx, a.connect)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrAuthentication), errors.Is(err, apperrors.ErrInvalidConfig):
		return err
	default:
		a.logger.Warn("initial connect failed", "error", err, "state", a.service.State().String())
	}

	if a.hasLoad {
		if _, err := a.loader.LoadPage(ctx, 1); err != nil {
			a.logger.Warn("initial ticket page failed", "error", err)
		}
	}
	return nil
}

func (a *app) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		removed, err := a.repo.Prune(ctx, keepMessageIDs)
		if err != nil {
			a.logger.Warn("read state prune failed", "error", err)
			continue
		}
		a.logger.Debug("read state pruned", "removed", removed)
	}
}

// close disconnects and releases every resource. Safe to call once the
// app is partially built.
func (a *app) close() {
	if a.service != nil {
		a.service.Disconnect()
	}
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		a.shutdown[i]()
	}
}
