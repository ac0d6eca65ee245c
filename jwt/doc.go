// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package jwt provides key sets that verify the signatures of JWS compact
serialized tokens and return their claims.

Keys can be fetched from a remote JSON Web Key Set (JWKS) endpoint or supplied
locally as PEM encoded public keys. Claim validation (issuer, audience, expiry,
events) is left to the caller.
*/
package jwt
