// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
)

var (
	ErrInvalidParameter               = errors.New("invalid parameter")
	ErrNilParameter                   = errors.New("nil parameter")
	ErrInvalidCACert                  = errors.New("invalid CA certificate")
	ErrInvalidIssuer                  = errors.New("invalid issuer")
	ErrExpiredRequest                 = errors.New("request is expired")
	ErrInvalidResponseState           = errors.New("invalid response state")
	ErrInvalidSignature               = errors.New("invalid signature")
	ErrInvalidSubject                 = errors.New("invalid subject")
	ErrInvalidAudience                = errors.New("invalid audience")
	ErrInvalidNonce                   = errors.New("invalid nonce")
	ErrInvalidNotBefore               = errors.New("invalid not before")
	ErrExpiredToken                   = errors.New("token is expired")
	ErrInvalidIssuedAt                = errors.New("invalid issued at (iat)")
	ErrInvalidAtHash                  = errors.New("access_token hash does not match value in id_token")
	ErrUnsupportedAlg                 = errors.New("unsupported signing algorithm")
	ErrMissingIDToken                 = errors.New("id_token is missing")
	ErrNotFound                       = errors.New("not found")
	ErrUserInfoFailed                 = errors.New("user info failed")
	ErrUnauthorizedRedirectURI        = errors.New("unauthorized redirect_uri")
	ErrIntrospectionNotSupported      = errors.New("provider does not support token introspection")
	ErrIntrospectionFailed            = errors.New("token introspection failed")
	ErrEndSessionNotSupported         = errors.New("provider does not support RP-initiated logout")
	ErrInvalidLogoutToken             = errors.New("invalid logout token")
	ErrBackChannelLogoutNotSupported  = errors.New("provider does not support back-channel logout")
	ErrClientAssertionSerializeFailed = errors.New("unable to serialize client assertion")
)
