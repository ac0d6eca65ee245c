// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package clientassertion signs JWTs with a private key (private_key_jwt) or
// the client secret (client_secret_jwt) which the relying party sends as its
// client_assertion to the provider's token and introspection endpoints.
//
// Example usage:
//
//	cass, err := clientassertion.NewJWT("client-id", []string{tokenURL},
//		clientassertion.WithRSAKey(rsaPrivateKey, "RS256"),
//		clientassertion.WithKeyID("jwks-key-id"),
//	)
//	cfg, err := oidc.NewConfig(issuer, "client-id", "", algs, redirects,
//		oidc.WithClientAssertionJWT(cass),
//	)
//
// See: https://www.rfc-editor.org/rfc/rfc7523.html
package clientassertion
