// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package webapp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/oidc-webapp-demo/config"
	"github.com/hashicorp/oidc-webapp-demo/oidc"
	"github.com/hashicorp/oidc-webapp-demo/security"
	"github.com/hashicorp/oidc-webapp-demo/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yhat/scrape"
	"golang.org/x/net/html"
)

// syncBuffer collects log output written by the server's goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	t        *testing.T
	tp       *oidc.TestProvider
	cfg      *config.Config
	server   *Server
	ts       *httptest.Server
	store    *session.MemoryStore
	clock    *testClock
	logs     *syncBuffer
	client   *http.Client
	noFollow *http.Client
}

// newTestEnv starts a test provider and a web application using it. The
// provider's id_tokens carry preferred_username "alice".
func newTestEnv(t *testing.T, modify func(*config.Config), opt ...Option) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil, modify, opt...)
}

// newTestEnvWith is newTestEnv with a chance to set up the provider before
// discovery.
func newTestEnvWith(t *testing.T, setup func(*oidc.TestProvider), modify func(*config.Config), opt ...Option) *testEnv {
	t.Helper()
	require := require.New(t)

	tp := oidc.StartTestProvider(t)
	tp.SetCustomClaims(map[string]interface{}{"preferred_username": "alice"})
	if setup != nil {
		setup(tp)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)

	_, _, alg, _ := tp.SigningKeys()
	clientID, clientSecret := tp.ClientCreds()
	cfg := config.Default()
	cfg.Addr = l.Addr().String()
	cfg.ExternalURL = "http://" + l.Addr().String()
	cfg.OIDC.Issuer = tp.Addr()
	cfg.OIDC.ClientID = clientID
	cfg.OIDC.ClientSecret = clientSecret
	cfg.OIDC.SigningAlgs = []string{string(alg)}
	if modify != nil {
		modify(cfg)
	}
	require.NoError(cfg.Validate())
	tp.SetAllowedRedirectURIs([]string{cfg.RedirectURL()})

	pc, err := cfg.ProviderConfig(oidc.WithProviderCA(tp.CACert()))
	require.NoError(err)
	p, err := oidc.NewProvider(pc)
	require.NoError(err)
	t.Cleanup(p.Done)

	logs := &syncBuffer{}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "webapp",
		Output: logs,
		Level:  hclog.Trace,
	})
	clock := &testClock{now: time.Now()}
	store := session.NewMemoryStore(session.WithNow(clock.Now))

	opts := append([]Option{WithLogger(logger), WithSessionStore(store), WithNow(clock.Now)}, opt...)
	s, err := NewServer(cfg, p, opts...)
	require.NoError(err)

	ts := httptest.NewUnstartedServer(s)
	ts.Listener.Close()
	ts.Listener = l
	ts.Start()
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(err)
	transport := tp.HTTPClient().Transport
	return &testEnv{
		t:      t,
		tp:     tp,
		cfg:    cfg,
		server: s,
		ts:     ts,
		store:  store,
		clock:  clock,
		logs:   logs,
		client: &http.Client{Transport: transport, Jar: jar},
		noFollow: &http.Client{
			Transport: transport,
			Jar:       jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (e *testEnv) url(path string) string {
	return e.ts.URL + path
}

// get returns the status and body of a GET request.
func (e *testEnv) get(c *http.Client, path string) (*http.Response, string) {
	e.t.Helper()
	resp, err := c.Get(e.url(path))
	require.NoError(e.t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	return resp, string(b)
}

// login runs the authorization code flow and returns the rendered
// /code-flow page.
func (e *testEnv) login() string {
	e.t.Helper()
	resp, body := e.get(e.client, "/code-flow")
	require.Equal(e.t, http.StatusOK, resp.StatusCode, body)
	return body
}

func (e *testEnv) sessionCookie() *http.Cookie {
	e.t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.ts.URL, nil)
	require.NoError(e.t, err)
	for _, c := range e.client.Jar.Cookies(req.URL) {
		if c.Name == e.cfg.Session.CookieName {
			return c
		}
	}
	return nil
}

func findText(t *testing.T, body, id string) string {
	t.Helper()
	root, err := html.Parse(strings.NewReader(body))
	require.NoError(t, err)
	n, ok := scrape.Find(root, scrape.ById(id))
	require.Truef(t, ok, "element %q not found in %s", id, body)
	return scrape.Text(n)
}

func TestNewServer(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	_, err := NewServer(nil, nil)
	assert.ErrorIs(t, err, ErrNilParameter)
	_, err = NewServer(env.cfg, nil)
	assert.ErrorIs(t, err, ErrNilParameter)

	assert.NotNil(t, env.server.IntrospectionCache())
	assert.NotNil(t, env.server.Dispatcher())
}

func TestServer_CodeFlow(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	env := newTestEnv(t, nil)

	for _, at := range []oidc.AccessToken{"at-1", "at-2", "at-3"} {
		env.server.IntrospectionCache().AddIntrospection(at, &oidc.Introspection{Active: true})
	}

	body := env.login()
	assert.Equal("alice", findText(t, body, "name"))
	assert.Equal("3", findText(t, body, "cache-size"))
	assert.Contains(body, "alice")
	assert.Contains(env.logs.String(), "Hello alice, cache size: 3")
	assert.Contains(env.logs.String(), "SecurityEvent: OIDC_LOGIN")

	c := env.sessionCookie()
	require.NotNil(c)
	sess, err := env.store.Read(context.Background(), c.Value)
	require.NoError(err)
	assert.Equal("alice@example.com", sess.Subject)
	assert.Equal(env.tp.ExpectedSessionID(), sess.SID)
	assert.Equal("alice", sess.Principal)
	assert.NotEmpty(sess.AccessToken)
	assert.NotEmpty(sess.IDToken)

	// the session is reused without visiting the provider
	resp, body := env.get(env.noFollow, "/code-flow")
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal("alice", findText(t, body, "name"))
}

func TestServer_Unauthenticated(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		modify func(*config.Config)
		check  func(*testing.T, *testEnv, *http.Response)
	}{
		{
			name: "redirects-to-authorize",
			check: func(t *testing.T, env *testEnv, resp *http.Response) {
				loc, err := resp.Location()
				require.NoError(t, err)
				assert.Equal(t, env.cfg.OIDC.ClientID, loc.Query().Get("client_id"))
				assert.Equal(t, env.cfg.RedirectURL(), loc.Query().Get("redirect_uri"))
				assert.NotEmpty(t, loc.Query().Get("state"))
				assert.NotEmpty(t, loc.Query().Get("nonce"))
				assert.Empty(t, loc.Query().Get("code_challenge"))
			},
		},
		{
			name: "pkce-and-locales",
			modify: func(c *config.Config) {
				c.OIDC.PKCE = true
				c.OIDC.UILocales = []string{"fr", "en"}
			},
			check: func(t *testing.T, env *testEnv, resp *http.Response) {
				loc, err := resp.Location()
				require.NoError(t, err)
				assert.NotEmpty(t, loc.Query().Get("code_challenge"))
				assert.Equal(t, "S256", loc.Query().Get("code_challenge_method"))
				assert.Equal(t, "fr en", loc.Query().Get("ui_locales"))
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, tt.modify)
			resp, _ := env.get(env.noFollow, "/code-flow")
			assert.Equal(t, http.StatusFound, resp.StatusCode)
			assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), env.tp.Addr()+"/authorize?"), resp.Header.Get("Location"))
			assert.NotContains(t, env.logs.String(), "Hello")
			tt.check(t, env, resp)
		})
	}
}

func TestServer_ReturnsToRequestedPath(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	resp, _ := env.get(env.client, "/code-flow?tab=1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/code-flow", resp.Request.URL.Path)
	assert.Equal(t, "tab=1", resp.Request.URL.RawQuery)
}

func TestServer_FailingListener(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	env := newTestEnv(t, nil)
	require.NoError(env.server.Dispatcher().Subscribe("panics", security.ListenerFunc(func(context.Context, security.Event) error {
		panic("boom")
	})))
	require.NoError(env.server.Dispatcher().Subscribe("fails", security.ListenerFunc(func(context.Context, security.Event) error {
		return errors.New("listener error")
	})))

	body := env.login()
	assert.Equal("alice", findText(t, body, "name"))

	logs := env.logs.String()
	assert.Contains(logs, "SecurityEvent: OIDC_LOGIN")
	assert.Contains(logs, "listener=panics")
	assert.Contains(logs, "listener=fails")
	assert.Contains(logs, "boom")
}

func TestServer_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/code-flow"},
		{http.MethodPost, "/code-flow/post-logout"},
		{http.MethodGet, "/back-channel-logout"},
		{http.MethodPut, "/back-channel-logout"},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(tt.method, env.url(tt.path), nil)
		require.NoError(t, err)
		resp, err := env.noFollow.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equalf(t, http.StatusMethodNotAllowed, resp.StatusCode, "%s %s", tt.method, tt.path)
	}
}
