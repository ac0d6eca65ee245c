// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"
)

// TestProvider is local server that supports test provider capabilities which
// make writing tests much easier.  Most of this is from Consul's oauthtest
// package with a few changes so it could become part of this package's public
// testing API.  A big thanks to the original contributors to Consul's oauthtest
// package.
//
// TestProvider supports the authorization code flow (with optional PKCE),
// user info, token introspection, RP-initiated logout and can mint signed
// back-channel logout tokens.
//
// The following endpoints are served:
//   - /.well-known/openid-configuration
//   - /.well-known/jwks.json
//   - /authorize
//   - /token
//   - /userinfo
//   - /introspect
//   - /logout
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string
	client     *http.Client

	t *testing.T

	mu                   sync.Mutex
	clientID             string
	clientSecret         string
	clientAssertionKey   interface{}
	allowedRedirectURIs  []string
	replySubject         string
	replySessionID       string
	replyUserinfo        map[string]interface{}
	replyExpiry          time.Duration
	expectedAuthCode     string
	customClaims         map[string]interface{}
	customAudience       []string
	omitIDToken          bool
	omitAccessToken      bool
	disableUserInfo      bool
	disableIntrospection bool
	disableEndSession    bool
	nowFunc              func() time.Time

	privKey crypto.PrivateKey
	pubKey  crypto.PublicKey
	alg     Alg
	keyID   string

	// pending holds the nonce and pkce challenge per issued auth code.
	pending map[string]testPendingAuth
	// accessTokens holds the active state per issued access token.
	accessTokens    map[string]bool
	endSessionCalls []url.Values
}

type testPendingAuth struct {
	nonce     string
	challenge string
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
	if p.client != nil {
		p.client.CloseIdleConnections()
	}
}

// StartTestProvider creates and starts a running TestProvider http server. The
// WithTestPort option is supported.  The TestProvider will be shutdown when the
// test and all it's subtests complete via a function registered with
// t.Cleanup(...).
func StartTestProvider(t *testing.T, opt ...Option) *TestProvider {
	t.Helper()
	require := require.New(t)
	opts := getTestProviderOpts(opt...)

	v, err := NewID()
	require.NoError(err)

	p := &TestProvider{
		t: t,
		allowedRedirectURIs: []string{
			"https://example.com",
		},
		replySubject:   "alice@example.com",
		replySessionID: "sid_" + v,
		replyUserinfo: map[string]interface{}{
			"preferred_username": "alice",
			"email":              "alice@example.com",
		},
		replyExpiry:  5 * time.Minute,
		nowFunc:      time.Now,
		alg:          ES256,
		keyID:        "test-kid",
		pending:      map[string]testPendingAuth{},
		accessTokens: map[string]bool{},
	}
	p.pubKey, p.privKey = TestGenerateKeys(t)

	p.httpServer = httptestNewUnstartedServerWithPort(t, p, opts.withPort)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.Stop)

	cert := p.httpServer.Certificate()

	var buf bytes.Buffer
	err = pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()
	p.client = p.httpServer.Client()

	return p
}

// testProviderOptions is the set of available options for TestProvider
// functions
type testProviderOptions struct {
	withPort int
}

// testProviderDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func testProviderDefaults() testProviderOptions {
	return testProviderOptions{}
}

// getTestProviderOpts gets the test provider defaults and applies the opt
// overrides passed in
func getTestProviderOpts(opt ...Option) testProviderOptions {
	opts := testProviderDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTestPort provides an optional port for the test provider.
//
// Valid for: TestProvider.StartTestProvider
func WithTestPort(port int) Option {
	return func(o interface{}) {
		if o, ok := o.(*testProviderOptions); ok {
			o.withPort = port
		}
	}
}

// HTTPClient returns an http.Client that trusts the provider's certificate.
func (p *TestProvider) HTTPClient() *http.Client {
	return p.client
}

// SetClientCreds is for configuring the relying party client ID and client
// secret information required for the OIDC workflows.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// ClientCreds returns the relying party client information required for the
// OIDC workflows.
func (p *TestProvider) ClientCreds() (clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID, p.clientSecret
}

// SetClientAssertionKey configures the key used to verify client assertions:
// a []byte for HMAC algs or a public key. When unset, client assertions are
// verified with the client secret.
func (p *TestProvider) SetClientAssertionKey(key interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientAssertionKey = key
}

// SetExpectedAuthCode configures the auth code to return from /authorize and
// the allowed auth code for /token. When unset, a unique code is issued for
// every authorization request.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs for
// the OIDC workflow. If not configured a sample of "https://example.com" is
// used.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetExpectedSubject is for configuring the expected subject for
// OIDC id_tokens, user info and introspection responses.
func (p *TestProvider) SetExpectedSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// ExpectedSessionID returns the "sid" claim issued in id_tokens.
func (p *TestProvider) ExpectedSessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.replySessionID
}

// SetExpectedSessionID configures the "sid" claim issued in id_tokens.
func (p *TestProvider) SetExpectedSessionID(sid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySessionID = sid
}

// SetExpectedExpiry is for configuring the expected expiry for any JWTs issued
// by the provider (the default is 5 minutes)
func (p *TestProvider) SetExpectedExpiry(exp time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyExpiry = exp
}

// SetUserInfoReply sets the UserInfo endpoint response. The "sub" claim is
// always set to the expected subject.
func (p *TestProvider) SetUserInfoReply(resp map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserinfo = resp
}

// SetCustomClaims lets you set claims to return in the JWT issued by the OIDC
// workflow.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience configures what audience value to embed in the JWT issued
// by the OIDC workflow.
func (p *TestProvider) SetCustomAudience(customAudiences ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = customAudiences
}

// SetNowFunc configures how the test provider will determine the current time.
// The default is time.Now()
func (p *TestProvider) SetNowFunc(n func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotNilf(p.t, n, "TestProvider.SetNowFunc: time func is nil")
	p.nowFunc = n
}

// SetOmitIDTokens turn on/off the omitting of id_tokens from the /token
// endpoint.  If set to true, the test provider will not omit (issue) id_tokens
// from the /token endpoint.
func (p *TestProvider) SetOmitIDTokens(omitIDTokens bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = omitIDTokens
}

// SetOmitAccessTokens turn on/off the omitting of access_tokens from the /token
// endpoint.
func (p *TestProvider) SetOmitAccessTokens(omitAccessTokens bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitAccessToken = omitAccessTokens
}

// SetDisableUserInfo makes the userinfo endpoint return 404 and omits it from
// the discovery config.
func (p *TestProvider) SetDisableUserInfo(disable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = disable
}

// SetDisableIntrospection makes the introspection endpoint return 404 and
// omits it from the discovery config.
func (p *TestProvider) SetDisableIntrospection(disable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableIntrospection = disable
}

// SetDisableEndSession makes the end session endpoint return 404 and omits it
// from the discovery config.
func (p *TestProvider) SetDisableEndSession(disable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableEndSession = disable
}

// DeactivateAccessTokens makes every access token issued so far inactive for
// introspection.
func (p *TestProvider) DeactivateAccessTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.accessTokens {
		p.accessTokens[k] = false
	}
}

// EndSessionCalls returns the query of every /logout request received.
func (p *TestProvider) EndSessionCalls() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.endSessionCalls)
}

// Addr returns the current base URL for the test provider's running webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the test provider's keys used to sign JWTs, its Alg
// and Key ID.
func (p *TestProvider) SigningKeys() (crypto.PrivateKey, crypto.PublicKey, Alg, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.privKey, p.pubKey, p.alg, p.keyID
}

// SetSigningKeys sets the test provider's keys and alg used to sign JWTs.
func (p *TestProvider) SetSigningKeys(privKey crypto.PrivateKey, pubKey crypto.PublicKey, alg Alg, keyID string) {
	const op = "TestProvider.SetSigningKeys"
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotNilf(p.t, privKey, "%s: private key is nil", op)
	require.NotNilf(p.t, pubKey, "%s: public key is nil", op)
	require.NotEmptyf(p.t, alg, "%s: alg is missing", op)
	require.NotEmptyf(p.t, keyID, "%s: key id is missing", op)
	p.privKey = privKey
	p.pubKey = pubKey
	p.alg = alg
	p.keyID = keyID
}

// LogoutToken mints a signed back-channel logout token for the configured
// client, subject and session id. Entries in overrides replace the default
// claims and a nil value removes the claim.
func (p *TestProvider) LogoutToken(overrides map[string]interface{}) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	jti, err := NewID()
	require.NoError(p.t, err)
	now := p.nowFunc()
	claims := map[string]interface{}{
		"iss": p.Addr(),
		"aud": []string{p.clientID},
		"iat": now.Unix(),
		"exp": now.Add(p.replyExpiry).Unix(),
		"jti": jti,
		"sub": p.replySubject,
		"sid": p.replySessionID,
		"events": map[string]interface{}{
			BackChannelLogoutEvent: map[string]interface{}{},
		},
	}
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return TestSignJWT(p.t, p.privKey, p.alg, claims, []byte(p.keyID))
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

// writeAuthErrorResponse writes a standard OIDC authentication error response.
// See: https://openid.net/specs/openid-connect-core-1_0.html#AuthError
func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

// writeTokenErrorResponse writes a standard OIDC token error response.
// See: https://openid.net/specs/openid-connect-core-1_0.html#TokenErrorResponse
func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}

	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()
	require := require.New(p.t)

	const (
		openidConfiguration = "/.well-known/openid-configuration"
		authorize           = "/authorize"
		token               = "/token"
		userInfo            = "/userinfo"
		introspect          = "/introspect"
		endSession          = "/logout"
		wellKnownJwks       = "/.well-known/jwks.json"
	)

	switch req.URL.Path {
	case openidConfiguration:
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reply := struct {
			Issuer                            string   `json:"issuer"`
			AuthEndpoint                      string   `json:"authorization_endpoint"`
			TokenEndpoint                     string   `json:"token_endpoint"`
			JWKSURI                           string   `json:"jwks_uri"`
			UserinfoEndpoint                  string   `json:"userinfo_endpoint,omitempty"`
			IntrospectionEndpoint             string   `json:"introspection_endpoint,omitempty"`
			EndSessionEndpoint                string   `json:"end_session_endpoint,omitempty"`
			BackChannelLogoutSupported        bool     `json:"backchannel_logout_supported"`
			BackChannelLogoutSessionSupported bool     `json:"backchannel_logout_session_supported"`
			CodeChallengeMethods              []string `json:"code_challenge_methods_supported"`
			SigningAlgs                       []Alg    `json:"id_token_signing_alg_values_supported"`
		}{
			Issuer:                            p.Addr(),
			AuthEndpoint:                      p.Addr() + authorize,
			TokenEndpoint:                     p.Addr() + token,
			JWKSURI:                           p.Addr() + wellKnownJwks,
			UserinfoEndpoint:                  p.Addr() + userInfo,
			IntrospectionEndpoint:             p.Addr() + introspect,
			EndSessionEndpoint:                p.Addr() + endSession,
			BackChannelLogoutSupported:        true,
			BackChannelLogoutSessionSupported: true,
			CodeChallengeMethods:              []string{"S256"},
			SigningAlgs:                       []Alg{p.alg},
		}
		if p.disableUserInfo {
			reply.UserinfoEndpoint = ""
		}
		if p.disableIntrospection {
			reply.IntrospectionEndpoint = ""
		}
		if p.disableEndSession {
			reply.EndSessionEndpoint = ""
		}
		w.Header().Set("Content-Type", "application/json")
		err := p.writeJSON(w, &reply)
		require.NoErrorf(err, "%s: internal error: %s", openidConfiguration, err)

	case authorize:
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		switch {
		case qv.Get("response_type") != "code":
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		case !slices.Contains(strings.Fields(qv.Get("scope")), "openid"):
			p.writeAuthErrorResponse(w, req, "invalid_scope", "")
			return
		case qv.Get("client_id") != p.clientID:
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "")
			return
		case qv.Get("state") == "":
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		case qv.Get("redirect_uri") == "":
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing redirect_uri parameter")
			return
		case qv.Get("code_challenge") != "" && qv.Get("code_challenge_method") != "S256":
			p.writeAuthErrorResponse(w, req, "invalid_request", "unsupported code_challenge_method")
			return
		}

		code := p.expectedAuthCode
		if code == "" {
			var err error
			code, err = NewID(WithPrefix("code"))
			require.NoErrorf(err, "%s: internal error: %s", authorize, err)
		}
		p.pending[code] = testPendingAuth{
			nonce:     qv.Get("nonce"),
			challenge: qv.Get("code_challenge"),
		}

		redirectURI := qv.Get("redirect_uri") +
			"?state=" + url.QueryEscape(qv.Get("state")) +
			"&code=" + url.QueryEscape(code)
		http.Redirect(w, req, redirectURI, http.StatusFound)

	case wellKnownJwks:
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		jwks := jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{
				{
					Key:       p.pubKey,
					KeyID:     p.keyID,
					Algorithm: string(p.alg),
					Use:       "sig",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		err := p.writeJSON(w, &jwks)
		require.NoErrorf(err, "%s: internal error: %s", wellKnownJwks, err)

	case token:
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if !p.authenticateClient(req) {
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return
		}
		code := req.FormValue("code")
		pending, ok := p.pending[code]
		switch {
		case req.FormValue("grant_type") != "authorization_code":
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
			return
		case !slices.Contains(p.allowedRedirectURIs, req.FormValue("redirect_uri")):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		case !ok:
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected auth code")
			return
		case pending.challenge != "" && pkceChallenge(req.FormValue("code_verifier")) != pending.challenge:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "code_verifier mismatch")
			return
		}
		delete(p.pending, code)

		accessToken, err := NewID(WithPrefix("at"))
		require.NoErrorf(err, "%s: internal error: %s", token, err)
		p.accessTokens[accessToken] = true

		reply := struct {
			AccessToken string `json:"access_token,omitempty"`
			IDToken     string `json:"id_token,omitempty"`
			TokenType   string `json:"token_type"`
			ExpiresIn   int64  `json:"expires_in"`
		}{
			AccessToken: accessToken,
			IDToken:     p.issueIDToken(pending.nonce),
			TokenType:   "Bearer",
			ExpiresIn:   int64(p.replyExpiry.Seconds()),
		}
		if p.omitIDToken {
			reply.IDToken = ""
		}
		if p.omitAccessToken {
			reply.AccessToken = ""
		}
		err = p.writeJSON(w, &reply)
		require.NoErrorf(err, "%s: internal error: %s", token, err)

	case userInfo:
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		bearer := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		if !p.accessTokens[bearer] {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply := map[string]interface{}{}
		for k, v := range p.replyUserinfo {
			reply[k] = v
		}
		reply["sub"] = p.replySubject
		w.Header().Set("Content-Type", "application/json")
		err := p.writeJSON(w, reply)
		require.NoErrorf(err, "%s: internal error: %s", userInfo, err)

	case introspect:
		if p.disableIntrospection {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if !p.authenticateClient(req) {
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return
		}
		reply := map[string]interface{}{"active": false}
		if p.accessTokens[req.FormValue("token")] {
			now := p.nowFunc()
			reply = map[string]interface{}{
				"active":     true,
				"sub":        p.replySubject,
				"client_id":  p.clientID,
				"aud":        p.clientID,
				"iss":        p.Addr(),
				"token_type": "Bearer",
				"iat":        now.Unix(),
				"exp":        now.Add(p.replyExpiry).Unix(),
			}
		}
		err := p.writeJSON(w, reply)
		require.NoErrorf(err, "%s: internal error: %s", introspect, err)

	case endSession:
		if p.disableEndSession {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		p.endSessionCalls = append(p.endSessionCalls, qv)
		if redirect := qv.Get("post_logout_redirect_uri"); redirect != "" {
			u, err := url.Parse(redirect)
			require.NoErrorf(err, "%s: internal error: %s", endSession, err)
			if state := qv.Get("state"); state != "" {
				q := u.Query()
				q.Set("state", state)
				u.RawQuery = q.Encode()
			}
			http.Redirect(w, req, u.String(), http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("logged out"))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// issueIDToken must be called while holding p.mu.
func (p *TestProvider) issueIDToken(nonce string) string {
	now := p.nowFunc()
	claims := map[string]interface{}{
		"sub": p.replySubject,
		"iss": p.Addr(),
		"nbf": now.Add(-10 * time.Second).Unix(),
		"iat": now.Unix(),
		"exp": now.Add(p.replyExpiry).Unix(),
		"aud": []string{p.clientID},
		"sid": p.replySessionID,
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	if len(p.customAudience) > 0 {
		claims["aud"] = append(claims["aud"].([]string), p.customAudience...)
	}
	for k, v := range p.customClaims {
		claims[k] = v
	}
	return TestSignJWT(p.t, p.privKey, p.alg, claims, []byte(p.keyID))
}

// authenticateClient checks the client_secret_basic, client_secret_post and
// client assertion methods.  It must be called while holding p.mu.
func (p *TestProvider) authenticateClient(req *http.Request) bool {
	if assertion := req.FormValue("client_assertion"); assertion != "" {
		if req.FormValue("client_assertion_type") != ClientAssertionType {
			return false
		}
		return p.verifyClientAssertion(assertion)
	}
	id, secret, ok := req.BasicAuth()
	if ok {
		id, _ = url.QueryUnescape(id)
		secret, _ = url.QueryUnescape(secret)
	} else {
		id, secret = req.FormValue("client_id"), req.FormValue("client_secret")
	}
	return id == p.clientID && subtle.ConstantTimeCompare([]byte(secret), []byte(p.clientSecret)) == 1
}

func (p *TestProvider) verifyClientAssertion(assertion string) bool {
	jws, err := jose.ParseSigned(assertion, []jose.SignatureAlgorithm{
		jose.HS256, jose.HS384, jose.HS512,
		jose.RS256, jose.RS384, jose.RS512,
		jose.ES256, jose.ES384, jose.ES512,
	})
	if err != nil {
		return false
	}
	key := p.clientAssertionKey
	if key == nil {
		key = []byte(p.clientSecret)
	}
	payload, err := jws.Verify(key)
	if err != nil {
		return false
	}
	var claims struct {
		Issuer  string   `json:"iss"`
		Subject string   `json:"sub"`
		Aud     Audience `json:"aud"`
		Expiry  int64    `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return false
	}
	switch {
	case claims.Issuer != p.clientID, claims.Subject != p.clientID:
		return false
	case claims.Expiry != 0 && p.nowFunc().After(time.Unix(claims.Expiry, 0)):
		return false
	case !slices.ContainsFunc(claims.Aud, func(a string) bool { return strings.HasPrefix(a, p.Addr()) }):
		return false
	}
	return true
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// httptestNewUnstartedServerWithPort is roughly the same as
// httptest.NewUnstartedServer() but allows the caller to explicitly choose the
// port if desired.
func httptestNewUnstartedServerWithPort(t *testing.T, handler http.Handler, port int) *httptest.Server {
	t.Helper()
	require := require.New(t)
	if port == 0 {
		return httptest.NewUnstartedServer(handler)
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	l, err := net.Listen("tcp", addr)
	require.NoError(err)

	return &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
}
