// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package demo is a web application which authenticates its users with an
// OpenID Connect provider using the authorization code flow.
//
// The packages are:
//
//   - oidc: the relying party (discovery, code exchange, token verification,
//     introspection, RP-initiated and back-channel logout)
//   - oidc/callback: the authorization code callback handler
//   - oidc/clientassertion: client_secret_jwt and private_key_jwt assertions
//   - jwt: key sets verifying JWS signatures
//   - cache: token introspection and pending login caches
//   - session: server side sessions in memory or redis
//   - security: security events and their dispatcher
//   - config: YAML and environment configuration
//   - webapp: the HTTP routes
//
// The command is cmd/webapp-demo.
package demo
