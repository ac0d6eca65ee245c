// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/text/language"
)

// Request basically represents one OIDC authentication flow for a user. It
// contains the data needed to uniquely represent that one-time flow across the
// multiple interactions needed to complete the OIDC flow the user is
// attempting.
//
// State() is passed throughout the OIDC interactions to uniquely identify the
// flow's request. The State() and Nonce() cannot be equal, and will be used
// during the OIDC flow to prevent CSRF and replay attacks.
type Request interface {
	// State is a unique identifier and an opaque value used to maintain request
	// between the oidc request and the callback. State cannot equal the Nonce.
	State() string

	// Nonce is a unique nonce and a string value used to associate a Client
	// session with an ID Token, and to mitigate replay attacks. Nonce cannot
	// equal the ID.
	Nonce() string

	// IsExpired returns true if the request has expired. Implementations
	// should support a time skew (perhaps RequestExpirySkew) when checking
	// expiration.
	IsExpired() bool

	// RedirectURL is a URL where providers will redirect responses to
	// authentication requests.
	RedirectURL() string

	// PKCEVerifier returns the code verifier used for a PKCE auth code flow,
	// or an empty string when PKCE isn't used.
	PKCEVerifier() string

	// Scopes returns additional scopes for this request only.
	Scopes() []string

	// Audiences is an specific authentication attempt's list of optional
	// case-sensitive strings to use when verifying an id_token's "aud" claim.
	Audiences() []string

	// UILocales optionally specifies the End-User's preferred languages via
	// language Tags, ordered by preference.
	UILocales() []language.Tag
}

// Req represents the oidc request used for oidc flows and implements the
// Request interface.
type Req struct {
	state       string
	nonce       string
	expiration  time.Time
	redirectURL string
	verifier    string
	scopes      []string
	audiences   []string
	uiLocales   []language.Tag

	// nowFunc is an optional function that returns the current time
	nowFunc func() time.Time
}

// ensure that Req implements the Request interface.
var _ Request = (*Req)(nil)

// NewRequest creates a new Request (*Req).
//
// Supports the options:
//   - WithNow
//   - WithPKCE
//   - WithScopes
//   - WithAudiences
//   - WithUILocales
func NewRequest(expireIn time.Duration, redirectURL string, opt ...Option) (*Req, error) {
	const op = "oidc.NewRequest"
	opts := getReqOpts(opt...)
	if redirectURL == "" {
		return nil, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	nonce, err := NewID(WithPrefix("n"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's nonce: %w", op, err)
	}
	state, err := NewID(WithPrefix("st"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's state: %w", op, err)
	}
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	r := &Req{
		state:       state,
		nonce:       nonce,
		redirectURL: redirectURL,
		scopes:      opts.withScopes,
		audiences:   opts.withAudiences,
		uiLocales:   opts.withUILocales,
		nowFunc:     opts.withNowFunc,
	}
	if opts.withPKCE {
		r.verifier = oauth2.GenerateVerifier()
	}
	r.expiration = r.now().Add(expireIn)
	return r, nil
}

// State implements the Request.State() interface function.
func (r *Req) State() string { return r.state }

// Nonce implements the Request.Nonce() interface function.
func (r *Req) Nonce() string { return r.nonce }

// RedirectURL implements the Request.RedirectURL() interface function.
func (r *Req) RedirectURL() string { return r.redirectURL }

// PKCEVerifier implements the Request.PKCEVerifier() interface function.
func (r *Req) PKCEVerifier() string { return r.verifier }

// Scopes implements the Request.Scopes() interface function.
func (r *Req) Scopes() []string { return r.scopes }

// Audiences implements the Request.Audiences() interface function.
func (r *Req) Audiences() []string { return r.audiences }

// UILocales implements the Request.UILocales() interface function.
func (r *Req) UILocales() []language.Tag { return r.uiLocales }

// RequestExpirySkew defines a time skew when checking a Request's expiration.
const RequestExpirySkew = 1 * time.Second

// IsExpired returns true if the request has expired.
func (r *Req) IsExpired() bool {
	return r.expiration.Before(r.now().Add(RequestExpirySkew))
}

// now returns the current time using the optional nowFunc.
func (r *Req) now() time.Time {
	if r.nowFunc != nil {
		return r.nowFunc()
	}
	return time.Now() // fallback to this default
}

// reqOptions is the set of available options for Req functions
type reqOptions struct {
	withNowFunc   func() time.Time
	withPKCE      bool
	withScopes    []string
	withAudiences []string
	withUILocales []language.Tag
}

// reqDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func reqDefaults() reqOptions {
	return reqOptions{}
}

// getReqOpts gets the request defaults and applies the opt overrides passed in
func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithPKCE requests an authorization code flow with PKCE (S256). A code
// verifier is generated for the request and the challenge is sent with the
// auth URL.
//
// Valid for: Request
func WithPKCE() Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withPKCE = true
		}
	}
}

// WithUILocales optionally specifies End-User's preferred languages via
// language Tags, ordered by preference.
//
// Valid for: Request
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withUILocales = locales
		}
	}
}
