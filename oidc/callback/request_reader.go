// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/oidc-webapp-demo/oidc"
)

// RequestReader defines an interface for finding and reading an oidc.Request
//
// Implementations must be concurrently safe, since the reader will likely be
// used within a concurrent http.Handler
type RequestReader interface {
	// Read an existing Request entry.  The returned request's State()
	// must match the state used to look it up. Implementations should
	// return an error wrapping oidc.ErrNotFound for unknown states and are
	// expected to make a request readable only once.
	Read(ctx context.Context, state string) (oidc.Request, error)
}

// SingleRequestReader implements the RequestReader interface for a single
// request which can be read once. It is concurrently safe.
type SingleRequestReader struct {
	mu      sync.Mutex
	Request oidc.Request
}

// Read() will return it's single-request if the state matches it's
// Request.State(), otherwise it returns an error of oidc.ErrNotFound. It
// satisfies the RequestReader interface.  Read() is concurrently safe.
func (sr *SingleRequestReader) Read(_ context.Context, state string) (oidc.Request, error) {
	const op = "SingleRequestReader.Read"
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.Request == nil || sr.Request.State() != state {
		return nil, fmt.Errorf("%s: %w", op, oidc.ErrNotFound)
	}
	r := sr.Request
	sr.Request = nil
	return r, nil
}
