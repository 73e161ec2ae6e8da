package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/practicechat/internal/auth"
	"github.com/vovakirdan/practicechat/internal/config"
	"github.com/vovakirdan/practicechat/internal/core"
	"github.com/vovakirdan/practicechat/internal/messaging"
	"github.com/vovakirdan/practicechat/internal/relay"
	"github.com/vovakirdan/practicechat/internal/safety"
	"github.com/vovakirdan/practicechat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/practicechat/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	relay           relay.Publisher
	store           *sqlite.SQLiteStore
	log             *zerolog.Logger
}

// JWTConfig builds the token settings from configuration.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	hub := core.NewHub(logger)

	pub, err := newRelay(ctx, cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var broadcaster messaging.Broadcaster = hub
	if pub != nil {
		if err := pub.Subscribe(ctx, hub); err != nil {
			_ = pub.Close()
			_ = st.Close()
			return nil, fmt.Errorf("subscribe relay: %w", err)
		}
		broadcaster = pub
	}

	svc := messaging.New(st, safety.NewKeywordFilter(), broadcaster, logger,
		messaging.WithAnnouncementSeed(cfg.AnnouncementSeed...))
	authService := auth.NewService(st, JWTConfig(cfg))
	server := transporthttp.NewServer(svc, hub, authService, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		relay:           pub,
		store:           st,
		log:             logger,
	}, nil
}

// newRelay returns nil for the local backend.
func newRelay(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (relay.Publisher, error) {
	switch cfg.Relay.Backend {
	case config.RelayNATS:
		pub, err := relay.DialNATS(cfg.Relay.NATSURL, cfg.Relay.Subject, logger)
		if err != nil {
			return nil, fmt.Errorf("init nats relay: %w", err)
		}
		logger.Info().Str("url", cfg.Relay.NATSURL).Msg("nats relay connected")
		return pub, nil
	case config.RelayRedis:
		pub, err := relay.DialRedis(ctx, cfg.Relay.RedisURL, cfg.Relay.Subject, logger)
		if err != nil {
			return nil, fmt.Errorf("init redis relay: %w", err)
		}
		logger.Info().Msg("redis relay connected")
		return pub, nil
	default:
		return nil, nil
	}
}

// Handler exposes the HTTP handler for in-process tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by Shutdown.
		a.hub.Close()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// Close releases resources without running the server.
func (a *App) Close() {
	a.hub.Close()
	a.cleanup()
}

// cleanup closes the relay, database and other resources.
func (a *App) cleanup() {
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close relay")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
