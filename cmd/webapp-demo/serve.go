// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/oidc-webapp-demo/config"
	"github.com/hashicorp/oidc-webapp-demo/oidc"
	"github.com/hashicorp/oidc-webapp-demo/session"
	"github.com/hashicorp/oidc-webapp-demo/webapp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func newLogger(cfg *config.Config, w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "webapp-demo",
		Level:      cfg.LogLevelValue(),
		JSONFormat: cfg.LogJSON,
		Output:     w,
	})
}

// serve runs the web application until ctx is done.
func serve(ctx context.Context, cfg *config.Config, logger hclog.Logger) error {
	const op = "serve"

	pc, err := cfg.ProviderConfig()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p, err := oidc.NewProvider(pc)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer p.Done()
	if cfg.Logout.BackChannel.VerifyToken && !p.SupportsBackChannelLogout() {
		logger.Warn("provider does not advertise back-channel logout support", "issuer", p.Issuer())
	}

	store, closeStore, err := newSessionStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s, err := webapp.NewServer(cfg, p,
		webapp.WithLogger(logger),
		webapp.WithSessionStore(store),
		webapp.WithRegistry(registry),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "external_url", cfg.ExternalURL, "session_store", cfg.Session.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	select {
	case err := <-srvErr:
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: shutdown: %w", op, err)
	}
	return nil
}

// newSessionStore returns the configured store and a func releasing it.
func newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	const op = "newSessionStore"
	if cfg.Session.Store != config.StoreRedis {
		return session.NewMemoryStore(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: parse redis url: %w", op, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("%s: redis ping failed: %w", op, err)
	}
	store, err := session.NewRedisStore(client, session.WithKeyPrefix(cfg.Redis.KeyPrefix))
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return store, func() { _ = client.Close() }, nil
}
