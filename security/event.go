// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package security

import "time"

// EventType names a security event.
type EventType string

const (
	// OIDCLogin is published after a successful authorization code exchange.
	OIDCLogin EventType = "OIDC_LOGIN"

	// OIDCSessionExpired is published when a request presents a session that
	// has expired.
	OIDCSessionExpired EventType = "OIDC_SESSION_EXPIRED"

	// OIDCLogoutRPInitiated is published when the user logs out through the
	// relying party.
	OIDCLogoutRPInitiated EventType = "OIDC_LOGOUT_RP_INITIATED"

	// OIDCBackChannelLogoutInitiated is published when a verified
	// back-channel logout token is received.
	OIDCBackChannelLogoutInitiated EventType = "OIDC_BACKCHANNEL_LOGOUT_INITIATED"

	// OIDCBackChannelLogoutCompleted is published once the sessions named by
	// a back-channel logout token are removed.
	OIDCBackChannelLogoutCompleted EventType = "OIDC_BACKCHANNEL_LOGOUT_COMPLETED"

	// AuthenticationFailure is published when the callback can't complete a
	// login.
	AuthenticationFailure EventType = "AUTHENTICATION_FAILURE"

	// AccessTokenInactive is published when introspection reports a
	// session's access token inactive.
	AccessTokenInactive EventType = "ACCESS_TOKEN_INACTIVE"
)

// String returns the event type name.
func (t EventType) String() string { return string(t) }

// Event is a single security event.
type Event struct {
	Type EventType
	Time time.Time

	// SessionID is the relying party session the event applies to, if any.
	SessionID string
	// Subject is the provider's "sub" for the user, if known.
	Subject string
	// Properties holds event specific details such as the error of an
	// AuthenticationFailure.
	Properties map[string]string
}
