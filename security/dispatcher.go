// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package security

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrListenerPanic    = errors.New("listener panicked")
)

// Listener receives security events.
type Listener interface {
	OnEvent(ctx context.Context, e Event) error
}

// ListenerFunc adapts a func to a Listener.
type ListenerFunc func(ctx context.Context, e Event) error

// OnEvent calls f(ctx, e).
func (f ListenerFunc) OnEvent(ctx context.Context, e Event) error { return f(ctx, e) }

type subscription struct {
	name     string
	listener Listener
}

// Dispatcher delivers events to its subscribed listeners in subscription
// order. It is safe for concurrent use.
type Dispatcher struct {
	mu            sync.RWMutex
	subscriptions []subscription

	logger  hclog.Logger
	nowFunc func() time.Time
}

// NewDispatcher creates a Dispatcher.
//
// Supported options: WithLogger, WithNow
func NewDispatcher(opt ...Option) *Dispatcher {
	opts := getDispatcherOpts(opt...)
	return &Dispatcher{
		logger:  opts.withLogger,
		nowFunc: opts.withNowFunc,
	}
}

// Subscribe registers the listener under name. Names only identify the
// listener in logs.
func (d *Dispatcher) Subscribe(name string, l Listener) error {
	const op = "Dispatcher.Subscribe"
	if name == "" {
		return fmt.Errorf("%s: missing listener name: %w", op, ErrInvalidParameter)
	}
	if l == nil {
		return fmt.Errorf("%s: missing listener: %w", op, ErrInvalidParameter)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscriptions = append(d.subscriptions, subscription{name: name, listener: l})
	return nil
}

// Publish delivers e to every listener and returns once all of them are
// done. Listener errors and panics are logged, never returned.
func (d *Dispatcher) Publish(ctx context.Context, e Event) {
	if e.Time.IsZero() {
		e.Time = d.nowFunc()
	}
	d.mu.RLock()
	subs := make([]subscription, len(d.subscriptions))
	copy(subs, d.subscriptions)
	d.mu.RUnlock()

	for _, s := range subs {
		if err := d.deliver(ctx, s, e); err != nil {
			d.logger.Warn("security event listener failed",
				"listener", s.name,
				"event", e.Type.String(),
				"error", err,
			)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, s subscription, e Event) (err error) {
	const op = "Dispatcher.deliver"
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %w: %v", op, ErrListenerPanic, r)
		}
	}()
	return s.listener.OnEvent(ctx, e)
}

// LogListener returns a Listener that logs "SecurityEvent: <type>" for every
// event.
func LogListener(logger hclog.Logger) Listener {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return ListenerFunc(func(_ context.Context, e Event) error {
		args := []interface{}{"session_id", e.SessionID}
		if e.Subject != "" {
			args = append(args, "sub", e.Subject)
		}
		logger.Info("SecurityEvent: "+e.Type.String(), args...)
		return nil
	})
}
