// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hashicorp/oidc-webapp-demo/oidc"
)

const (
	DefaultMaxSize = 1000
	DefaultTTL     = 3 * time.Minute
)

// entry holds what is known about one access token.
type entry struct {
	introspection *oidc.Introspection
	userInfo      map[string]interface{}
}

// IntrospectionCache caches token introspection and user info results.
// Entries are keyed by the SHA-256 of the access token so raw tokens are
// never held as keys. It is safe for concurrent use.
type IntrospectionCache struct {
	// mu serializes read-modify-write of entries holding both results.
	mu  sync.Mutex
	lru *expirable.LRU[string, entry]
}

// NewIntrospectionCache creates a cache holding at most maxSize tokens for at
// most ttl each.
func NewIntrospectionCache(maxSize int, ttl time.Duration) (*IntrospectionCache, error) {
	const op = "cache.NewIntrospectionCache"
	if maxSize <= 0 {
		return nil, fmt.Errorf("%s: max size must be greater than zero: %w", op, ErrInvalidParameter)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%s: ttl must be greater than zero: %w", op, ErrInvalidParameter)
	}
	return &IntrospectionCache{
		lru: expirable.NewLRU[string, entry](maxSize, nil, ttl),
	}, nil
}

// AddIntrospection caches the introspection result for token.
func (c *IntrospectionCache) AddIntrospection(token oidc.AccessToken, i *oidc.Introspection) {
	if token == "" || i == nil {
		return
	}
	c.update(token, func(e *entry) { e.introspection = i })
}

// GetIntrospection returns the cached introspection result for token.
func (c *IntrospectionCache) GetIntrospection(token oidc.AccessToken) (*oidc.Introspection, bool) {
	e, ok := c.lru.Get(tokenKey(token))
	if !ok || e.introspection == nil {
		return nil, false
	}
	return e.introspection, true
}

// AddUserInfo caches the user info claims for token.
func (c *IntrospectionCache) AddUserInfo(token oidc.AccessToken, claims map[string]interface{}) {
	if token == "" || claims == nil {
		return
	}
	c.update(token, func(e *entry) { e.userInfo = claims })
}

// GetUserInfo returns the cached user info claims for token.
func (c *IntrospectionCache) GetUserInfo(token oidc.AccessToken) (map[string]interface{}, bool) {
	e, ok := c.lru.Get(tokenKey(token))
	if !ok || e.userInfo == nil {
		return nil, false
	}
	return e.userInfo, true
}

// Remove drops everything cached for token.
func (c *IntrospectionCache) Remove(token oidc.AccessToken) {
	c.lru.Remove(tokenKey(token))
}

// Clear drops every entry.
func (c *IntrospectionCache) Clear() {
	c.lru.Purge()
}

// Size returns the number of tokens currently cached.
func (c *IntrospectionCache) Size() int {
	return c.lru.Len()
}

func (c *IntrospectionCache) update(token oidc.AccessToken, fn func(*entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := tokenKey(token)
	e, _ := c.lru.Peek(key)
	fn(&e)
	c.lru.Add(key, e)
}

func tokenKey(token oidc.AccessToken) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
