// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import "os"

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

type options struct {
	withLookupEnv func(string) (string, bool)
}

func getOpts(opt ...Option) options {
	opts := options{withLookupEnv: os.LookupEnv}
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLookupEnv provides the function used to read environment variables.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && fn != nil {
			o.withLookupEnv = fn
		}
	}
}
