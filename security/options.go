// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package security

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

type dispatcherOptions struct {
	withLogger  hclog.Logger
	withNowFunc func() time.Time
}

func dispatcherDefaults() dispatcherOptions {
	return dispatcherOptions{
		withLogger:  hclog.NewNullLogger(),
		withNowFunc: time.Now,
	}
}

func getDispatcherOpts(opt ...Option) dispatcherOptions {
	opts := dispatcherDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides the logger used to report listener failures.
//
// Valid for: Dispatcher
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		if o, ok := o.(*dispatcherOptions); ok {
			o.withLogger = l
		}
	}
}

// WithNow provides the clock used to stamp events published without a Time.
//
// Valid for: Dispatcher
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		if o, ok := o.(*dispatcherOptions); ok {
			o.withNowFunc = now
		}
	}
}
