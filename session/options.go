// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import "time"

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

type sessionOptions struct {
	withSID         string
	withPrincipal   string
	withIDToken     string
	withAccessToken string
	withClaims      map[string]interface{}
	withNow         func() time.Time
}

type storeOptions struct {
	withNow       func() time.Time
	withRetention time.Duration
	withKeyPrefix string
}

func sessionDefaults() sessionOptions {
	return sessionOptions{withNow: time.Now}
}

func storeDefaults() storeOptions {
	return storeOptions{
		withNow:       time.Now,
		withRetention: DefaultExpiredRetention,
		withKeyPrefix: DefaultKeyPrefix,
	}
}

func getSessionOpts(opt ...Option) sessionOptions {
	opts := sessionDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

func getStoreOpts(opt ...Option) storeOptions {
	opts := storeDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithSID provides the provider's session ID (the id_token sid claim).
// Valid for: NewSession
func WithSID(sid string) Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok {
			o.withSID = sid
		}
	}
}

// WithPrincipal provides the principal name shown to the user.
// Valid for: NewSession
func WithPrincipal(name string) Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok {
			o.withPrincipal = name
		}
	}
}

// WithTokens provides the raw id_token and access_token of the login.
// Valid for: NewSession
func WithTokens(idToken, accessToken string) Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok {
			o.withIDToken = idToken
			o.withAccessToken = accessToken
		}
	}
}

// WithClaims provides the verified id_token claims.
// Valid for: NewSession
func WithClaims(claims map[string]interface{}) Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok {
			o.withClaims = claims
		}
	}
}

// WithNow provides a time func used for creation and expiration checks.
// Valid for: NewSession, NewMemoryStore and NewRedisStore
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch o := o.(type) {
		case *sessionOptions:
			o.withNow = now
		case *storeOptions:
			o.withNow = now
		}
	}
}

// WithExpiredRetention provides how long an expired session is kept so a
// read can tell it apart from an unknown one.
// Valid for: NewMemoryStore and NewRedisStore
func WithExpiredRetention(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok && d >= 0 {
			o.withRetention = d
		}
	}
}

// WithKeyPrefix provides the prefix of every redis key.
// Valid for: NewRedisStore
func WithKeyPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok && prefix != "" {
			o.withKeyPrefix = prefix
		}
	}
}
