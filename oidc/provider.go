// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/oidc-webapp-demo/jwt"
	"golang.org/x/oauth2"
)

// Provider provides integration with an OIDC provider.
//
// It's primary capabilities include:
//   - Kicking off a user authentication via either the authorization code flow
//     (with optional PKCE) and creating an appropriate auth URL.
//   - Exchanging an auth code for tokens and verifying the returned id_token.
//   - Retrieving a user's OAuth claims from the provider's UserInfo endpoint.
//   - Introspecting access tokens.
//   - Building end-session URLs for RP-initiated logout and verifying
//     back-channel logout tokens.
type Provider struct {
	config   *Config
	provider *oidc.Provider
	metadata providerMetadata
	keySet   jwt.KeySet

	// client uses a pooled transport that uses the config's ProviderCA if
	// provided, otherwise it will use the installed system CA chain.  This
	// client's idle connections are closed in Provider.Done()
	client *http.Client

	mu sync.Mutex

	// backgroundCtx is the context used by the provider for background
	// activities like: refreshing JWKs Key sets, refreshing tokens, etc
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// providerMetadata holds the discovery document fields that go-oidc doesn't
// expose directly.
type providerMetadata struct {
	Issuer                            string `json:"issuer"`
	JWKSURL                           string `json:"jwks_uri"`
	EndSessionURL                     string `json:"end_session_endpoint"`
	IntrospectionURL                  string `json:"introspection_endpoint"`
	BackChannelLogoutSupported        bool   `json:"backchannel_logout_supported"`
	BackChannelLogoutSessionSupported bool   `json:"backchannel_logout_session_supported"`
}

// NewProvider creates and initializes a Provider.  Intializing the provider,
// includes making an http request to the provider's issuer.
//
// See Provider.Done() which must be called to release provider resources.
func NewProvider(c *Config) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Provider with it's background ctx/cancel will
	// allow us to use p.Done() to release any resources when returning errors
	// from this function.
	p := &Provider{
		config:              c,
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}

	client, err := c.HTTPClient()
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	p.client = client
	clientCtx := HTTPClientContext(p.backgroundCtx, p.client)

	provider, err := oidc.NewProvider(clientCtx, c.Issuer) // makes http req to issuer for discovery
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		// we don't know what's causing the problem, so we won't classify the
		// error with a Kind
		return nil, fmt.Errorf("%s: unable to create provider: %w", op, err)
	}
	p.provider = provider

	if err := provider.Claims(&p.metadata); err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to read provider discovery metadata: %w", op, err)
	}
	switch {
	case c.LogoutTokenKeySet != nil:
		p.keySet = c.LogoutTokenKeySet
	case p.metadata.JWKSURL != "":
		ks, err := jwt.NewJSONWebKeySet(clientCtx, p.metadata.JWKSURL)
		if err != nil {
			p.Done()
			return nil, fmt.Errorf("%s: unable to create provider key set: %w", op, err)
		}
		p.keySet = ks
	}
	return p, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	// checking for nil here prevents a panic when developers neglect to check
	// the for an error before deferring a call to p.Done():
	// p, err := NewProvider(...)
	// defer p.Done()
	// if err != nil { ... }
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}

	// release the http.Client's pooled connections
	if p.client != nil {
		p.client.CloseIdleConnections()
	}
}

// Issuer returns the provider's configured issuer.
func (p *Provider) Issuer() string { return p.config.Issuer }

// ClientID returns the relying party's client id.
func (p *Provider) ClientID() string { return p.config.ClientID }

// SupportsBackChannelLogout reports whether the provider's discovery document
// advertises back-channel logout.
func (p *Provider) SupportsBackChannelLogout() bool { return p.metadata.BackChannelLogoutSupported }

// AuthURL will generate a URL the caller can use to kick off an OIDC
// authorization code flow with an IdP.
//
// See NewRequest() to create an oidc flow Request with a valid state and Nonce
// that will uniquely identify the user's authentication attempt throughout
// the flow.
func (p *Provider) AuthURL(ctx context.Context, oidcRequest Request) (url string, e error) {
	const op = "Provider.AuthURL"
	if oidcRequest == nil {
		return "", fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if oidcRequest.State() == oidcRequest.Nonce() {
		return "", fmt.Errorf("%s: request id and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	if err := p.validRedirect(oidcRequest.RedirectURL()); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	oauth2Config := p.oauth2Config(oidcRequest)
	authCodeOpts := []oauth2.AuthCodeOption{
		oidc.Nonce(oidcRequest.Nonce()),
	}
	if v := oidcRequest.PKCEVerifier(); v != "" {
		authCodeOpts = append(authCodeOpts, oauth2.S256ChallengeOption(v))
	}
	if locales := oidcRequest.UILocales(); len(locales) > 0 {
		tags := make([]string, 0, len(locales))
		for _, l := range locales {
			tags = append(tags, l.String())
		}
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("ui_locales", strings.Join(tags, " ")))
	}
	return oauth2Config.AuthCodeURL(oidcRequest.State(), authCodeOpts...), nil
}

// Exchange will request a token from the oidc token endpoint, using the
// authorizationCode and authorizationState it received in an earlier
// successful oidc authentication response.
//
// Exchange will use PKCE when the request has a code verifier.
//
// It will also validate the authorizationState it receives against the
// existing Request for the user's oidc authentication flow.
//
// On success, the Token returned will include an IDToken and may
// include an AccessToken and RefreshToken.
func (p *Provider) Exchange(ctx context.Context, oidcRequest Request, authorizationState string, authorizationCode string) (*Tk, error) {
	const op = "Provider.Exchange"
	if p.config == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if oidcRequest == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if oidcRequest.State() != authorizationState {
		return nil, fmt.Errorf("%s: authentication request state and authorization state are not equal: %w", op, ErrInvalidResponseState)
	}
	if err := p.validRedirect(oidcRequest.RedirectURL()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if oidcRequest.IsExpired() {
		return nil, fmt.Errorf("%s: authentication request is expired: %w", op, ErrExpiredRequest)
	}

	oidcCtx := HTTPClientContext(ctx, p.client)
	oauth2Config := p.oauth2Config(oidcRequest)

	var exchangeOpts []oauth2.AuthCodeOption
	if v := oidcRequest.PKCEVerifier(); v != "" {
		exchangeOpts = append(exchangeOpts, oauth2.VerifierOption(v))
	}
	assertionOpts, err := p.clientAssertionParams()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for k, v := range assertionOpts {
		exchangeOpts = append(exchangeOpts, oauth2.SetAuthURLParam(k, v))
	}

	oauth2Token, err := oauth2Config.Exchange(oidcCtx, authorizationCode, exchangeOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w", op, p.convertError(err))
	}

	idToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("%s: id_token is missing from auth code exchange: %w", op, ErrMissingIDToken)
	}
	t, err := NewToken(IDToken(idToken), oauth2Token, WithNow(p.config.NowFunc))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create new id_token: %w", op, err)
	}
	claims, err := p.VerifyIDToken(ctx, t.IDToken(), oidcRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
	}
	if t.AccessToken() != "" {
		if _, ok := claims["at_hash"]; ok {
			if err := p.verifyAtHash(ctx, t.IDToken(), t.AccessToken()); err != nil {
				return nil, fmt.Errorf("%s: access_token failed verification: %w", op, err)
			}
		}
	}
	return t, nil
}

// VerifyIDToken will verify the inbound IDToken and return its claims.
//
// It verifies:
//   - signature (including if a supported signing algorithm was used)
//   - issuer (iss)
//   - expiration (exp)
//   - issued at (iat) (with a leeway of 1 min)
//   - not before (nbf) (with a leeway of 1 min)
//   - nonce (nonce)
//   - audience (aud) contains all audiences required from the provider's config
//   - when there are multiple audiences (aud), then one of them must equal
//     the client_id
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (p *Provider) VerifyIDToken(ctx context.Context, t IDToken, oidcRequest Request) (map[string]interface{}, error) {
	const op = "Provider.VerifyIDToken"
	if t == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if oidcRequest == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if oidcRequest.Nonce() == "" {
		return nil, fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}

	oidcIDToken, err := p.idTokenVerifier().Verify(HTTPClientContext(ctx, p.client), string(t))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, p.convertError(err))
	}
	if oidcIDToken.Nonce != oidcRequest.Nonce() {
		return nil, fmt.Errorf("%s: invalid id_token nonce: %w", op, ErrInvalidNonce)
	}

	audiences := p.config.Audiences
	if len(oidcRequest.Audiences()) > 0 {
		audiences = oidcRequest.Audiences()
	}
	if len(audiences) > 0 {
		if !slices.ContainsFunc(audiences, func(a string) bool { return slices.Contains(oidcIDToken.Audience, a) }) {
			return nil, fmt.Errorf("%s: invalid id_token audiences: %w", op, ErrInvalidAudience)
		}
	}
	if len(oidcIDToken.Audience) > 1 && !slices.Contains(oidcIDToken.Audience, p.config.ClientID) {
		return nil, fmt.Errorf("%s: invalid id_token: multiple audiences and one of them is not equal client_id (%s): %w", op, p.config.ClientID, ErrInvalidAudience)
	}

	var claims map[string]interface{}
	if err := oidcIDToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to get id_token claims: %w", op, err)
	}
	return claims, nil
}

// UserInfo gets the UserInfo claims from the provider using the token produced
// by the tokenSource. Only JSON user info responses are supported (signed JWT
// responses are not). The WithAudiences option is not supported.
//
// The validSubject parameter is required and must match the "sub" claim of the
// user info response.
func (p *Provider) UserInfo(ctx context.Context, tokenSource oauth2.TokenSource, validSubject string, claims interface{}) error {
	const op = "Provider.UserInfo"
	if tokenSource == nil {
		return fmt.Errorf("%s: token source is nil: %w", op, ErrNilParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	if validSubject == "" {
		return fmt.Errorf("%s: valid subject is empty: %w", op, ErrInvalidParameter)
	}

	userinfo, err := p.provider.UserInfo(HTTPClientContext(ctx, p.client), tokenSource)
	if err != nil {
		return fmt.Errorf("%s: provider UserInfo request failed: %w", op, p.convertError(err))
	}
	if userinfo.Subject != validSubject {
		return fmt.Errorf("%s: %w", op, ErrInvalidSubject)
	}
	if err := userinfo.Claims(claims); err != nil {
		return fmt.Errorf("%s: failed to get UserInfo claims: %w", op, err)
	}
	return nil
}

// Introspect asks the provider whether the token is still active using the
// provider's introspection endpoint.
//
// See: https://www.rfc-editor.org/rfc/rfc7662.html
func (p *Provider) Introspect(ctx context.Context, token AccessToken) (*Introspection, error) {
	const op = "Provider.Introspect"
	if token == "" {
		return nil, fmt.Errorf("%s: token is empty: %w", op, ErrInvalidParameter)
	}
	if p.metadata.IntrospectionURL == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrIntrospectionNotSupported)
	}

	form := url.Values{
		"token":           {string(token)},
		"token_type_hint": {"access_token"},
	}
	assertionParams, err := p.clientAssertionParams()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for k, v := range assertionParams {
		form.Set(k, v)
	}
	if len(assertionParams) > 0 {
		form.Set("client_id", p.config.ClientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.metadata.IntrospectionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create introspection request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if len(assertionParams) == 0 {
		req.SetBasicAuth(url.QueryEscape(p.config.ClientID), url.QueryEscape(string(p.config.ClientSecret)))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrIntrospectionFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read introspection response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: provider responded %d: %s: %w", op, resp.StatusCode, body, ErrIntrospectionFailed)
	}
	var result Introspection
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%s: unable to decode introspection response: %w", op, err)
	}
	return &result, nil
}

// EndSessionURL builds the provider's end-session URL used for RP-initiated
// logout. The idTokenHint and state are optional.
//
// See: https://openid.net/specs/openid-connect-rpinitiated-1_0.html
func (p *Provider) EndSessionURL(idTokenHint IDToken, postLogoutRedirectURL, state string) (string, error) {
	const op = "Provider.EndSessionURL"
	if p.metadata.EndSessionURL == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEndSessionNotSupported)
	}
	u, err := url.Parse(p.metadata.EndSessionURL)
	if err != nil {
		return "", fmt.Errorf("%s: invalid end_session_endpoint: %w", op, err)
	}
	q := u.Query()
	q.Set("client_id", p.config.ClientID)
	if idTokenHint != "" {
		q.Set("id_token_hint", string(idTokenHint))
	}
	if postLogoutRedirectURL != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirectURL)
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *Provider) oauth2Config(oidcRequest Request) oauth2.Config {
	// Add the "openid" scope, which is a required scope for oidc flows
	scopes := []string{oidc.ScopeOpenID}
	switch {
	case len(oidcRequest.Scopes()) > 0:
		scopes = append(scopes, oidcRequest.Scopes()...)
	default:
		scopes = append(scopes, p.config.Scopes...)
	}
	endpoint := p.provider.Endpoint()
	secret := string(p.config.ClientSecret)
	if p.config.ClientAssertion != nil {
		endpoint.AuthStyle = oauth2.AuthStyleInParams
		secret = ""
	}
	return oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: secret,
		RedirectURL:  oidcRequest.RedirectURL(),
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
}

func (p *Provider) clientAssertionParams() (map[string]string, error) {
	const op = "Provider.clientAssertionParams"
	if p.config.ClientAssertion == nil {
		return nil, nil
	}
	assertion, err := p.config.ClientAssertion.Serialize()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrClientAssertionSerializeFailed, err)
	}
	return map[string]string{
		"client_assertion_type": ClientAssertionType,
		"client_assertion":      assertion,
	}, nil
}

func (p *Provider) idTokenVerifier() *oidc.IDTokenVerifier {
	algs := make([]string, 0, len(p.config.SupportedSigningAlgs))
	for _, a := range p.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	return p.provider.Verifier(&oidc.Config{
		ClientID:             p.config.ClientID,
		SupportedSigningAlgs: algs,
		Now:                  p.config.Now,
	})
}

func (p *Provider) verifyAtHash(ctx context.Context, t IDToken, accessToken AccessToken) error {
	const op = "Provider.verifyAtHash"
	oidcIDToken, err := p.idTokenVerifier().Verify(HTTPClientContext(ctx, p.client), string(t))
	if err != nil {
		return fmt.Errorf("%s: %w", op, p.convertError(err))
	}
	if err := oidcIDToken.VerifyAccessToken(string(accessToken)); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidAtHash, err)
	}
	return nil
}

// validRedirect checks whether uri is in allowed using special handling for
// loopback uris.
// Ref: https://tools.ietf.org/html/rfc8252#section-7.3
func (p *Provider) validRedirect(uri string) error {
	const op = "Provider.validRedirect"
	if len(p.config.AllowedRedirectURLs) == 0 {
		return nil
	}
	inputURI, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%s: redirect URI %s is an invalid URI %s: %w", op, uri, err.Error(), ErrInvalidParameter)
	}

	// if uri isn't a loopback, just string search the allowed list
	if !slices.Contains([]string{"localhost", "127.0.0.1", "::1"}, inputURI.Hostname()) {
		if !slices.Contains(p.config.AllowedRedirectURLs, uri) {
			return fmt.Errorf("%s: redirect URI %s: %w", op, uri, ErrUnauthorizedRedirectURI)
		}
		return nil
	}

	// otherwise, search for a match in a port-agnostic manner, per the OAuth RFC.
	inputURI.Host = inputURI.Hostname()
	for _, a := range p.config.AllowedRedirectURLs {
		allowedURI, err := url.Parse(a)
		if err != nil {
			return fmt.Errorf("%s: allowed redirect URI %s is an invalid URI %s: %w", op, allowedURI, err.Error(), ErrInvalidParameter)
		}
		allowedURI.Host = allowedURI.Hostname()
		if inputURI.String() == allowedURI.String() {
			return nil
		}
	}
	return fmt.Errorf("%s: redirect URI %s: %w", op, uri, ErrUnauthorizedRedirectURI)
}

// convertError is used to convert errors from the go-oidc package into our
// package's errors where possible.
func (p *Provider) convertError(e error) error {
	switch {
	case e == nil:
		return nil
	case strings.Contains(e.Error(), "id token issued by a different provider"):
		return fmt.Errorf("%w: %w", ErrInvalidIssuer, e)
	case strings.Contains(e.Error(), "signed with unsupported algorithm"):
		return fmt.Errorf("%w: %w", ErrUnsupportedAlg, e)
	case strings.Contains(e.Error(), "before the nbf (not before) time"):
		return fmt.Errorf("%w: %w", ErrInvalidNotBefore, e)
	case strings.Contains(e.Error(), "token is expired"):
		return fmt.Errorf("%w: %w", ErrExpiredToken, e)
	case strings.Contains(e.Error(), "failed to verify signature"),
		strings.Contains(e.Error(), "malformed jwt"):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, e)
	case strings.Contains(e.Error(), "expected audience"):
		return fmt.Errorf("%w: %w", ErrInvalidAudience, e)
	case strings.Contains(e.Error(), "user info endpoint is not supported"):
		return fmt.Errorf("%w: %w", ErrUserInfoFailed, e)
	default:
		return e
	}
}
