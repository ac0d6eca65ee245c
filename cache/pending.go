// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hashicorp/oidc-webapp-demo/oidc"
)

// DefaultPendingMaxSize bounds the number of logins in flight.
const DefaultPendingMaxSize = 10000

// PendingLogin is an authorization request waiting for the provider's
// redirect back to the callback.
type PendingLogin struct {
	Request oidc.Request
	// ReturnTo is the path the user originally asked for.
	ReturnTo string
}

// PendingLogins holds PendingLogin(s) keyed by their request state. Each
// login can be taken once. It is safe for concurrent use.
type PendingLogins struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, PendingLogin]
}

// NewPendingLogins creates a cache of at most maxSize logins which expire
// after ttl.
func NewPendingLogins(maxSize int, ttl time.Duration) (*PendingLogins, error) {
	const op = "cache.NewPendingLogins"
	if maxSize <= 0 {
		return nil, fmt.Errorf("%s: max size must be greater than zero: %w", op, ErrInvalidParameter)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%s: ttl must be greater than zero: %w", op, ErrInvalidParameter)
	}
	return &PendingLogins{
		lru: expirable.NewLRU[string, PendingLogin](maxSize, nil, ttl),
	}, nil
}

// Add remembers p under its request's state.
func (c *PendingLogins) Add(p PendingLogin) error {
	const op = "PendingLogins.Add"
	if p.Request == nil {
		return fmt.Errorf("%s: missing request: %w", op, ErrInvalidParameter)
	}
	c.lru.Add(p.Request.State(), p)
	return nil
}

// Take returns and forgets the login for state.
func (c *PendingLogins) Take(state string) (PendingLogin, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.lru.Get(state)
	if ok {
		c.lru.Remove(state)
	}
	return p, ok
}

// Len returns the number of logins in flight.
func (c *PendingLogins) Len() int {
	return c.lru.Len()
}
