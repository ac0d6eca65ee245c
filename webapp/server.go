// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package webapp

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/oidc-webapp-demo/cache"
	"github.com/hashicorp/oidc-webapp-demo/config"
	"github.com/hashicorp/oidc-webapp-demo/oidc"
	"github.com/hashicorp/oidc-webapp-demo/oidc/callback"
	"github.com/hashicorp/oidc-webapp-demo/security"
	"github.com/hashicorp/oidc-webapp-demo/session"
	"github.com/prometheus/client_golang/prometheus"
)

// Server serves the web application. It is an http.Handler.
type Server struct {
	cfg      *config.Config
	provider *oidc.Provider

	sessions session.Store
	cache    *cache.IntrospectionCache
	pending  *cache.PendingLogins
	events   *security.Dispatcher
	metrics  *metrics

	templates *template.Template
	logger    hclog.Logger
	now       func() time.Time

	router chi.Router
}

// NewServer creates a Server for cfg which authenticates users with p.
//
// Supported options: WithLogger, WithSessionStore, WithIntrospectionCache,
// WithPendingLogins, WithDispatcher, WithRegistry, WithNow
func NewServer(cfg *config.Config, p *oidc.Provider, opt ...Option) (*Server, error) {
	const op = "webapp.NewServer"
	if cfg == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if p == nil {
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	}
	opts := getServerOpts(opt...)
	s := &Server{
		cfg:      cfg,
		provider: p,
		sessions: opts.withSessionStore,
		cache:    opts.withIntrospectionCache,
		pending:  opts.withPendingLogins,
		events:   opts.withDispatcher,
		logger:   opts.withLogger,
		now:      opts.withNowFunc,
	}
	var err error
	if s.sessions == nil {
		s.sessions = session.NewMemoryStore(session.WithNow(s.now))
	}
	if s.cache == nil {
		if s.cache, err = cache.NewIntrospectionCache(cfg.Cache.MaxSize, cfg.Cache.TTL); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if s.pending == nil {
		if s.pending, err = cache.NewPendingLogins(cache.DefaultPendingMaxSize, cfg.OIDC.StateExpiry); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if s.events == nil {
		s.events = security.NewDispatcher(security.WithLogger(s.logger.Named("security")), security.WithNow(s.now))
	}
	registry := opts.withRegistry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	s.metrics = newMetrics(registry, s.cache)

	if err := s.events.Subscribe("log", security.LogListener(s.logger.Named("security"))); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.events.Subscribe("metrics", s.metrics.eventListener()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.templates, err = parseTemplates(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	callbackHandler, err := callback.AuthCode(p, &pendingReader{logins: s.pending}, s.loginSucceeded, s.loginFailed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog(s.logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.With(s.authenticate).Get("/code-flow", s.codeFlow)
	r.Get("/code-flow/post-logout", s.postLogout)
	r.Post("/back-channel-logout", s.backChannelLogout)
	r.Get(cfg.OIDC.RedirectPath, callbackHandler)
	r.Get("/logout", s.logout)
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())
	r.Get("/health", s.health)
	s.router = r

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// IntrospectionCache returns the server's token introspection cache.
func (s *Server) IntrospectionCache() *cache.IntrospectionCache {
	return s.cache
}

// Dispatcher returns the dispatcher security events are published to.
func (s *Server) Dispatcher() *security.Dispatcher {
	return s.events
}

func (s *Server) publish(ctx context.Context, e security.Event) {
	s.events.Publish(ctx, e)
}
