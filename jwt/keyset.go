// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/oauth2"
)

// KeySet represents a set of keys that can be used to verify the signatures of JWTs.
// A KeySet is expected to be backed by a set of local or remote keys.
type KeySet interface {
	// VerifySignature parses the given JWT, verifies its signature, and returns the claims in its payload.
	VerifySignature(ctx context.Context, token string) (claims map[string]interface{}, err error)
}

// JSONWebKeySet verifies JWT signatures using keys obtained from a JWKS URL.
type JSONWebKeySet struct {
	remoteJWKS oidc.KeySet
}

// NewJSONWebKeySet returns a KeySet that verifies JWT signatures using keys
// from the JSON Web Key Set (JWKS) at the given jwksURL.
//
// The keys are fetched with the http client carried by ctx (see
// oauth2.HTTPClient) when present. Otherwise a pooled client is created that
// trusts the roots supplied via WithCAPEM, or the system roots. The ctx is
// retained and used for background key refreshes.
func NewJSONWebKeySet(ctx context.Context, jwksURL string, opt ...Option) (*JSONWebKeySet, error) {
	const op = "NewJSONWebKeySet"
	if jwksURL == "" {
		return nil, fmt.Errorf("%s: missing jwks URL: %w", op, ErrInvalidParameter)
	}
	opts := getKeySetOpts(opt...)

	if _, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); !ok {
		client, err := httpClient(opts.withCAPEM)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ctx = oidc.ClientContext(ctx, client)
	}
	return &JSONWebKeySet{
		remoteJWKS: oidc.NewRemoteKeySet(ctx, jwksURL),
	}, nil
}

// VerifySignature parses the given JWT, verifies its signature using JWKS keys, and returns
// the claims in its payload. The given JWT must be of the JWS compact serialization form.
func (ks *JSONWebKeySet) VerifySignature(ctx context.Context, token string) (map[string]interface{}, error) {
	const op = "JSONWebKeySet.VerifySignature"
	payload, err := ks.remoteJWKS.VerifySignature(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidSignature, err)
	}
	return unmarshalClaims(op, payload)
}

// StaticKeySet verifies JWT signatures using local public keys.
type StaticKeySet struct {
	publicKeys []crypto.PublicKey
	algs       []jose.SignatureAlgorithm
}

// NewStaticKeySet returns a KeySet that verifies JWT signatures using the
// given public keys. Supported keys are *rsa.PublicKey, *ecdsa.PublicKey and
// ed25519.PublicKey.
func NewStaticKeySet(publicKeys []crypto.PublicKey, opt ...Option) (*StaticKeySet, error) {
	const op = "NewStaticKeySet"
	if len(publicKeys) == 0 {
		return nil, fmt.Errorf("%s: missing public keys: %w", op, ErrInvalidParameter)
	}
	for _, k := range publicKeys {
		switch k.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		default:
			return nil, fmt.Errorf("%s: unsupported public key type %T: %w", op, k, ErrInvalidPublicKey)
		}
	}
	opts := getKeySetOpts(opt...)
	return &StaticKeySet{
		publicKeys: publicKeys,
		algs:       opts.withAlgs,
	}, nil
}

// VerifySignature parses the given JWT, verifies its signature using the
// static public keys, and returns the claims in its payload. The given JWT
// must be of the JWS compact serialization form.
func (ks *StaticKeySet) VerifySignature(_ context.Context, token string) (map[string]interface{}, error) {
	const op = "StaticKeySet.VerifySignature"
	jws, err := jose.ParseSigned(token, ks.algs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrMalformedToken, err)
	}
	for _, key := range ks.publicKeys {
		payload, err := jws.Verify(key)
		if err == nil {
			return unmarshalClaims(op, payload)
		}
	}
	return nil, fmt.Errorf("%s: no known key successfully validated the token signature: %w", op, ErrInvalidSignature)
}

// ParsePublicKeyPEM is used to parse RSA, ECDSA and Ed25519 public keys from
// PEMs holding either a PKIX public key or an x509 certificate.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	const op = "ParsePublicKeyPEM"
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: data does not contain a PEM block: %w", op, ErrInvalidPublicKey)
	}
	rawKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		cert, certErr := x509.ParseCertificate(block.Bytes)
		if certErr != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidPublicKey, err)
		}
		rawKey = cert.PublicKey
	}
	switch k := rawKey.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		return k, nil
	default:
		return nil, fmt.Errorf("%s: unsupported public key type %T: %w", op, rawKey, ErrInvalidPublicKey)
	}
}

func unmarshalClaims(op string, payload []byte) (map[string]interface{}, error) {
	claims := map[string]interface{}{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%s: unable to unmarshal claims: %w: %w", op, ErrMalformedToken, err)
	}
	return claims, nil
}

// httpClient returns a pooled client configured with the root certificates
// from caPEM, or the system roots when caPEM is empty.
func httpClient(caPEM string) (*http.Client, error) {
	const op = "jwt.httpClient"
	tr := cleanhttp.DefaultPooledTransport()
	if caPEM != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value successfully: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs:    certPool,
			MinVersion: tls.VersionTLS12,
		}
	}
	return &http.Client{Transport: tr}, nil
}
