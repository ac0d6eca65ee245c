// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"time"
)

// Introspection is a token introspection response.
//
// See: https://www.rfc-editor.org/rfc/rfc7662.html#section-2.2
type Introspection struct {
	Active    bool     `json:"active"`
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	Username  string   `json:"username,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	Expiry    int64    `json:"exp,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
	NotBefore int64    `json:"nbf,omitempty"`
	Subject   string   `json:"sub,omitempty"`
	Audience  Audience `json:"aud,omitempty"`
	Issuer    string   `json:"iss,omitempty"`
	JTI       string   `json:"jti,omitempty"`
}

// IsActive returns true when the provider reported the token active and its
// exp (when present) hasn't passed at now.
func (i *Introspection) IsActive(now time.Time) bool {
	if i == nil || !i.Active {
		return false
	}
	if i.Expiry != 0 && now.After(time.Unix(i.Expiry, 0)) {
		return false
	}
	return true
}

// Audience is an "aud" claim which providers send as either a single string
// or an array of strings.
type Audience []string

// UnmarshalJSON accepts both the string and array forms.
func (a *Audience) UnmarshalJSON(b []byte) error {
	const op = "Audience.UnmarshalJSON"
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = Audience{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("%s: aud must be a string or an array of strings: %w", op, ErrInvalidParameter)
	}
	*a = list
	return nil
}
