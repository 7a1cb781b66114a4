// Package relay is the main orchestrator that ties all relay components together.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jsjperu/wha-relay/relay/internal/api"
	"github.com/jsjperu/wha-relay/relay/internal/auth"
	"github.com/jsjperu/wha-relay/relay/internal/config"
	"github.com/jsjperu/wha-relay/relay/internal/registry"
	"github.com/jsjperu/wha-relay/relay/internal/router"
	"github.com/jsjperu/wha-relay/relay/internal/store"
)

// Relay is the main relay process.
type Relay struct {
	cfg    *config.Config
	store  store.Store
	router *router.Router
	api    *api.Server
	logger *slog.Logger
}

// New creates a new relay from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Relay, error) {
	db, err := store.New(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	rt := router.New(db, registry.New(), logger, router.Options{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		Policy:          cfg.Session.Policy,
		MaxMessageBytes: cfg.Session.MaxMessageBytes,
		PingInterval:    cfg.Session.PingInterval.Duration,
		RegisterTimeout: cfg.Session.RegisterTimeout.Duration,
	})
	authSvc := auth.NewService(cfg.Auth)
	apiSrv := api.NewServer(db, authSvc, rt, cfg, logger)

	r := &Relay{
		cfg:    cfg,
		store:  db,
		router: rt,
		api:    apiSrv,
		logger: logger.With("component", "relay"),
	}

	if !authSvc.Enabled() {
		logger.Warn("admin API is unauthenticated; set auth.admin_password_hash to require login")
	}
	if cfg.Auth.SendSecret == "" {
		logger.Warn("send requests are unsigned; set auth.send_secret to require X-Signature")
	}
	for _, origin := range cfg.Server.AllowedOrigins {
		if origin == "*" {
			logger.Warn("CORS allowed_origins contains wildcard '*'; restrict to specific origins in production")
			break
		}
	}
	return r, nil
}

// Run starts the relay HTTP server and blocks until the context is canceled.
func (r *Relay) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.cfg.Server.Addr)
	if err != nil {
		_ = r.store.Close()
		return fmt.Errorf("listen: %w", err)
	}
	return r.Serve(ctx, ln)
}

// Serve runs the relay on an existing listener.
func (r *Relay) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           r.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	r.api.StartBackgroundTasks(gctx)

	g.Go(func() error {
		r.logger.Info("relay listening", "addr", ln.Addr().String())
		var err error
		if r.cfg.Server.TLSCert != "" && r.cfg.Server.TLSKey != "" {
			err = srv.ServeTLS(ln, r.cfg.Server.TLSCert, r.cfg.Server.TLSKey)
		} else {
			r.logger.Warn("TLS not configured, running without encryption (development only)")
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		r.logger.Info("shutting down relay gracefully")

		// Hijacked websocket connections are not tracked by Shutdown.
		if n := r.router.CloseAll(); n > 0 {
			r.logger.Info("closed live sessions", "count", n)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			_ = srv.Close()
		} else {
			r.logger.Info("http server stopped gracefully")
		}
		return nil
	})

	err := g.Wait()

	r.logger.Info("closing store")
	_ = r.store.Close()
	r.logger.Info("shutdown complete")

	if err != nil {
		return err
	}
	return ctx.Err()
}
