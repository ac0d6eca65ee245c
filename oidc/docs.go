// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
oidc is a package for writing relying party integrations with an OIDC
provider using the authorization code flow.

Primary types provided by the package

* Request: represents one OIDC authentication flow for a user.  It contains the
data needed to uniquely represent that one-time flow across the multiple
interactions needed to complete the OIDC flow the user is attempting.  All
Requests contain an expiration for the user's OIDC flow. Optionally, Requests may
contain overrides of configured provider defaults for audiences, scopes and
a PKCE code verifier.

* Token: represents an OIDC id_token, as well as an Oauth2 access_token and
refresh_token (including the the access_token expiry)

* Config: provides the configuration for a typical 3-legged OIDC
authorization code flow (for example: client ID/Secret, redirectURL, supported
signing algorithms, additional scopes requested, etc)

* Provider: provides integration with a provider. The provider provides
capabilities like: generating an auth URL, exchanging codes for tokens,
verifying tokens, making user info requests, introspecting access tokens,
building end-session URLs and verifying back-channel logout tokens.

* Alg: represents asymmetric signing algorithms

The oidc.callback package

The callback package includes the ability to create a http.HandlerFunc which
can be used for the 3rd leg of the OIDC flow where the authorization code is
exchanged for tokens.

The oidc.clientassertion package

The clientassertion package signs the JWTs sent to the provider when the
client authenticates with client_secret_jwt or private_key_jwt.

Testing

TestProvider is a local TLS provider with discovery, authorize, token, jwks,
userinfo, introspection and end-session endpoints. It can also mint
back-channel logout tokens.
*/
package oidc
