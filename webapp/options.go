// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package webapp

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/oidc-webapp-demo/cache"
	"github.com/hashicorp/oidc-webapp-demo/security"
	"github.com/hashicorp/oidc-webapp-demo/session"
	"github.com/prometheus/client_golang/prometheus"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(opts)
	}
}

type serverOptions struct {
	withLogger             hclog.Logger
	withSessionStore       session.Store
	withIntrospectionCache *cache.IntrospectionCache
	withPendingLogins      *cache.PendingLogins
	withDispatcher         *security.Dispatcher
	withRegistry           *prometheus.Registry
	withNowFunc            func() time.Time
}

func serverDefaults() serverOptions {
	return serverOptions{
		withLogger:  hclog.NewNullLogger(),
		withNowFunc: time.Now,
	}
}

func getServerOpts(opt ...Option) serverOptions {
	opts := serverDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides the logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithSessionStore provides the session store. The default is a
// session.MemoryStore.
func WithSessionStore(s session.Store) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok {
			o.withSessionStore = s
		}
	}
}

// WithIntrospectionCache provides the token introspection cache. The default
// is sized from the configuration.
func WithIntrospectionCache(c *cache.IntrospectionCache) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok {
			o.withIntrospectionCache = c
		}
	}
}

// WithPendingLogins provides the cache of logins waiting for their callback.
func WithPendingLogins(c *cache.PendingLogins) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok {
			o.withPendingLogins = c
		}
	}
}

// WithDispatcher provides the security event dispatcher. The server
// subscribes its own listeners to it.
func WithDispatcher(d *security.Dispatcher) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok {
			o.withDispatcher = d
		}
	}
}

// WithRegistry provides the prometheus registry served at /metrics.
func WithRegistry(r *prometheus.Registry) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok {
			o.withRegistry = r
		}
	}
}

// WithNow provides a time func.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok && now != nil {
			o.withNowFunc = now
		}
	}
}
