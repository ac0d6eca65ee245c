// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"slices"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// BackChannelLogoutEvent is the member of a logout token's "events" claim that
// identifies it as a back-channel logout token.
const BackChannelLogoutEvent = "http://schemas.openid.net/event/backchannel-logout"

// LogoutTokenIssuedAtSkew is the leeway allowed for a logout token's iat in
// the future and its exp in the past.
const LogoutTokenIssuedAtSkew = time.Minute

// LogoutToken is a verified back-channel logout token.
//
// See: https://openid.net/specs/openid-connect-backchannel-1_0.html#LogoutToken
type LogoutToken struct {
	Issuer    string
	Subject   string
	SessionID string
	Audience  []string
	IssuedAt  time.Time
	Expiry    time.Time
	JTI       string
}

// VerifyLogoutToken verifies a back-channel logout token sent by the provider
// and returns it.
//
// It verifies:
//   - signature (with one of the config's SupportedSigningAlgs)
//   - issuer (iss)
//   - audience (aud) contains the client_id
//   - issued at (iat) is present
//   - expiration (exp) when present
//   - events contains the back-channel logout member
//   - subject (sub) or session id (sid) is present
//   - nonce is absent
func (p *Provider) VerifyLogoutToken(ctx context.Context, token string) (*LogoutToken, error) {
	const op = "Provider.VerifyLogoutToken"
	if token == "" {
		return nil, fmt.Errorf("%s: logout token is empty: %w", op, ErrInvalidParameter)
	}
	if p.keySet == nil {
		return nil, fmt.Errorf("%s: provider has no key set: %w", op, ErrBackChannelLogoutNotSupported)
	}

	algs := make([]jose.SignatureAlgorithm, 0, len(supportedAlgorithms))
	for a := range supportedAlgorithms {
		algs = append(algs, jose.SignatureAlgorithm(a))
	}
	jws, err := jose.ParseSigned(token, algs)
	if err != nil {
		return nil, fmt.Errorf("%s: malformed logout token: %w: %w", op, ErrInvalidLogoutToken, err)
	}
	if alg := Alg(jws.Signatures[0].Header.Algorithm); !slices.Contains(p.config.SupportedSigningAlgs, alg) {
		return nil, fmt.Errorf("%s: %s: %w", op, alg, ErrUnsupportedAlg)
	}

	claims, err := p.keySet.VerifySignature(HTTPClientContext(ctx, p.client), token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidSignature, err)
	}

	lt := &LogoutToken{}
	lt.Issuer, _ = claims["iss"].(string)
	if lt.Issuer != p.config.Issuer {
		return nil, fmt.Errorf("%s: issuer %q doesn't match %q: %w", op, lt.Issuer, p.config.Issuer, ErrInvalidIssuer)
	}

	switch aud := claims["aud"].(type) {
	case string:
		lt.Audience = []string{aud}
	case []interface{}:
		for _, a := range aud {
			if s, ok := a.(string); ok {
				lt.Audience = append(lt.Audience, s)
			}
		}
	}
	if !slices.Contains(lt.Audience, p.config.ClientID) {
		return nil, fmt.Errorf("%s: audiences don't contain client_id %s: %w", op, p.config.ClientID, ErrInvalidAudience)
	}

	now := p.config.Now()
	iat, ok := claims["iat"].(float64)
	if !ok {
		return nil, fmt.Errorf("%s: missing iat: %w", op, ErrInvalidIssuedAt)
	}
	lt.IssuedAt = time.Unix(int64(iat), 0)
	if lt.IssuedAt.After(now.Add(LogoutTokenIssuedAtSkew)) {
		return nil, fmt.Errorf("%s: iat is in the future: %w", op, ErrInvalidIssuedAt)
	}
	if exp, ok := claims["exp"].(float64); ok {
		lt.Expiry = time.Unix(int64(exp), 0)
		if now.After(lt.Expiry.Add(LogoutTokenIssuedAtSkew)) {
			return nil, fmt.Errorf("%s: %w", op, ErrExpiredToken)
		}
	}

	events, _ := claims["events"].(map[string]interface{})
	if _, ok := events[BackChannelLogoutEvent].(map[string]interface{}); !ok {
		return nil, fmt.Errorf("%s: events claim is missing %s: %w", op, BackChannelLogoutEvent, ErrInvalidLogoutToken)
	}

	lt.Subject, _ = claims["sub"].(string)
	lt.SessionID, _ = claims["sid"].(string)
	if lt.Subject == "" && lt.SessionID == "" {
		return nil, fmt.Errorf("%s: sub and sid are both missing: %w", op, ErrInvalidLogoutToken)
	}
	if _, ok := claims["nonce"]; ok {
		return nil, fmt.Errorf("%s: nonce is prohibited: %w", op, ErrInvalidLogoutToken)
	}
	lt.JTI, _ = claims["jti"].(string)
	return lt, nil
}
