// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	jose "github.com/go-jose/go-jose/v4"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type keySetOptions struct {
	withCAPEM string
	withAlgs  []jose.SignatureAlgorithm
}

func keySetDefaults() keySetOptions {
	return keySetOptions{
		withAlgs: []jose.SignatureAlgorithm{
			jose.RS256, jose.RS384, jose.RS512,
			jose.ES256, jose.ES384, jose.ES512,
			jose.PS256, jose.PS384, jose.PS512,
			jose.EdDSA,
		},
	}
}

// getKeySetOpts gets the defaults and applies the opt overrides passed
// in.
func getKeySetOpts(opt ...Option) keySetOptions {
	opts := keySetDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

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

// WithCAPEM provides PEM encoded root certificates used to verify the JWKS
// endpoint's server certificate. It is ignored when the context already
// carries an http client.
func WithCAPEM(pem string) Option {
	return func(o interface{}) {
		if v, ok := o.(*keySetOptions); ok {
			v.withCAPEM = pem
		}
	}
}

// WithAllowedAlgs restricts the signing algorithms a StaticKeySet accepts.
func WithAllowedAlgs(algs ...string) Option {
	return func(o interface{}) {
		if v, ok := o.(*keySetOptions); ok {
			v.withAlgs = make([]jose.SignatureAlgorithm, 0, len(algs))
			for _, a := range algs {
				v.withAlgs = append(v.withAlgs, jose.SignatureAlgorithm(a))
			}
		}
	}
}
