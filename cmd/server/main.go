// roomboard server: OIDC login, board API and device snapshot endpoint.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roomboard/server/internal/board"
	"github.com/roomboard/server/internal/config"
	"github.com/roomboard/server/internal/device"
	"github.com/roomboard/server/internal/obs"
	"github.com/roomboard/server/internal/oidc"
	"github.com/roomboard/server/internal/ratelimit"
	"github.com/roomboard/server/internal/session"
	"github.com/roomboard/server/internal/web"
)

const (
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownTimeout   = 10 * time.Second

	// Outbound calls to the provider (discovery, token, JWKS) are
	// bounded so a hung provider cannot pin requests forever.
	providerTimeout = 10 * time.Second

	sweepInterval = 15 * time.Minute
)

func main() {
	obs.Init()
	log := obs.Pkg("main")

	addr, envFile := config.ParseFlags()
	cfg := config.MustLoadConfig(addr, envFile)
	cfg.LogStartupSummary(log)

	providerHTTP := &http.Client{Timeout: providerTimeout}
	discovery := oidc.NewDiscoveryCache(cfg.IssuerBaseURL, providerHTTP)
	client := oidc.NewClient(oidc.ClientConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
	}, discovery, providerHTTP)
	verifier := oidc.NewVerifier(cfg.ClientID, discovery, providerHTTP)

	store := session.NewStore(cfg.SessionDuration)
	sessions := session.NewManager(store, cfg.SessionSecret, cfg.RequireSecureCookies(), cfg.SessionDuration)

	boards := board.NewRegistry()
	gate := device.NewGate(cfg.DeviceAPIKeys)

	limiter := ratelimit.NewRateLimiter(ratelimit.Config{
		RPS:             cfg.RateLimitRPS,
		Burst:           cfg.RateLimitBurst,
		CleanupInterval: time.Hour,
	})
	defer limiter.Stop()

	handler := web.NewHandler(cfg, client, verifier, discovery, sessions, boards, gate, limiter)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Expired sessions and stale pending logins are swept in the
	// background; lookups also drop them lazily.
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				store.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.ListenAddr, "base_url", cfg.BaseURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
