// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import (
	"crypto/rsa"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// Option configures the JWT
type Option func(*JWT) error

// WithClientSecret sets a secret and HMAC algorithm to sign the JWT with
// (client_secret_jwt).
func WithClientSecret(secret string, alg string) Option {
	const op = "WithClientSecret"
	return func(j *JWT) error {
		if err := HSAlgorithm(alg).Validate(secret); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		j.secret = secret
		j.alg = jose.SignatureAlgorithm(alg)
		return nil
	}
}

// WithRSAKey sets a private key and RSA algorithm to sign the JWT with
// (private_key_jwt).
func WithRSAKey(key *rsa.PrivateKey, alg string) Option {
	const op = "WithRSAKey"
	return func(j *JWT) error {
		if err := RSAlgorithm(alg).Validate(key); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		j.key = key
		j.alg = jose.SignatureAlgorithm(alg)
		return nil
	}
}

// WithKeyID sets the "kid" header that OIDC providers use to look up the
// public key to check the signed JWT
func WithKeyID(keyID string) Option {
	return func(j *JWT) error {
		j.headers["kid"] = keyID
		return nil
	}
}

// WithTTL sets how long each serialized assertion is valid for. The default
// is 5 minutes.
func WithTTL(ttl time.Duration) Option {
	const op = "WithTTL"
	return func(j *JWT) error {
		if ttl <= 0 {
			return fmt.Errorf("%s: %w: %s", op, ErrInvalidTTL, ttl)
		}
		j.ttl = ttl
		return nil
	}
}
