// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

type (
	// HSAlgorithm is an HMAC signature algorithm
	HSAlgorithm string
	// RSAlgorithm is an RSA signature algorithm
	RSAlgorithm string
)

// JOSE signing algorithm values as defined by RFC 7518.
// See: https://tools.ietf.org/html/rfc7518#section-3.1
const (
	HS256 HSAlgorithm = "HS256" // HMAC using SHA-256
	HS384 HSAlgorithm = "HS384" // HMAC using SHA-384
	HS512 HSAlgorithm = "HS512" // HMAC using SHA-512
	RS256 RSAlgorithm = "RS256" // RSASSA-PKCS-v1.5 using SHA-256
	RS384 RSAlgorithm = "RS384" // RSASSA-PKCS-v1.5 using SHA-384
	RS512 RSAlgorithm = "RS512" // RSASSA-PKCS-v1.5 using SHA-512
)

var hsMinSecretLen = map[HSAlgorithm]int{
	HS256: 32,
	HS384: 48,
	HS512: 64,
}

// Validate checks that the alg is supported and the secret is at least as
// long as the hash output (32, 48 or 64 bytes).
func (a HSAlgorithm) Validate(secret string) error {
	const op = "HSAlgorithm.Validate"
	expectLen, ok := hsMinSecretLen[a]
	if !ok {
		return fmt.Errorf("%s: %w %q for client secret", op, ErrUnsupportedAlgorithm, a)
	}
	if len(secret) < expectLen {
		return fmt.Errorf("%s: %w: %q needs %d bytes", op, ErrInvalidSecretLength, a, expectLen)
	}
	return nil
}

// Validate checks that the alg is supported and the key passes
// rsa.PrivateKey.Validate().
func (a RSAlgorithm) Validate(key *rsa.PrivateKey) error {
	const op = "RSAlgorithm.Validate"
	if key == nil {
		return fmt.Errorf("%s: %w", op, ErrNilPrivateKey)
	}
	switch a {
	case RS256, RS384, RS512:
	default:
		return fmt.Errorf("%s: %w %q for RSA key", op, ErrUnsupportedAlgorithm, a)
	}
	if err := key.Validate(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidPrivateKey, err)
	}
	return nil
}

// ParseRSAPrivateKeyPEM reads a PKCS #1 or PKCS #8 encoded RSA private key.
func ParseRSAPrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	const op = "ParseRSAPrivateKeyPEM"
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block found: %w", op, ErrInvalidPrivateKey)
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	raw, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidPrivateKey, err)
	}
	k, ok := raw.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: %T is not an RSA key: %w", op, raw, ErrInvalidPrivateKey)
	}
	return k, nil
}
