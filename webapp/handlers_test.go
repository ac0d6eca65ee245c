// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package webapp

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/hashicorp/oidc-webapp-demo/config"
	"github.com/hashicorp/oidc-webapp-demo/oidc"
	"github.com/hashicorp/oidc-webapp-demo/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_PostLogout(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	for i := 0; i < 2; i++ {
		resp, body := env.get(env.noFollow, "/code-flow/post-logout")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, PostLogoutResult, findText(t, body, "result"))
		assert.Contains(t, body, "All sessions was removed!")
	}

	// a logged in user sees the same page
	env.login()
	resp, body := env.get(env.noFollow, "/code-flow/post-logout")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, PostLogoutResult, findText(t, body, "result"))
}

func (e *testEnv) postBackChannel(contentType string, body io.Reader) *http.Response {
	e.t.Helper()
	t := e.t
	resp, err := e.noFollow.Post(e.url("/back-channel-logout"), contentType, body)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, b)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	return resp
}

func logoutForm(token string) io.Reader {
	return strings.NewReader(url.Values{"logout_token": {token}}.Encode())
}

const formContentType = "application/x-www-form-urlencoded"

func TestServer_BackChannelLogout(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.login()

	env.postBackChannel(formContentType, logoutForm(env.tp.LogoutToken(nil)))
	env.postBackChannel(formContentType, logoutForm("not-a-jwt"))
	env.postBackChannel("application/json", strings.NewReader(`{"hello":"world"}`))
	env.postBackChannel("", nil)

	logs := env.logs.String()
	assert.Equal(t, 4, strings.Count(logs, "backChannelLogout: Logout invoked!"))
	assert.NotContains(t, logs, "OIDC_BACKCHANNEL_LOGOUT")

	// without verification sessions are kept
	resp, _ := env.get(env.noFollow, "/code-flow")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, metrics := env.get(env.noFollow, "/metrics")
	assert.Contains(t, metrics, `webapp_back_channel_logouts_total{outcome="ignored"} 4`)
}

func TestServer_BackChannelLogoutVerified(t *testing.T) {
	t.Parallel()
	verify := func(c *config.Config) { c.Logout.BackChannel.VerifyToken = true }

	tests := []struct {
		name        string
		token       func(env *testEnv) string
		wantOutcome string
		wantRemoved bool
	}{
		{
			name:        "by-sid",
			token:       func(env *testEnv) string { return env.tp.LogoutToken(nil) },
			wantOutcome: outcomeCompleted,
			wantRemoved: true,
		},
		{
			name: "by-subject",
			token: func(env *testEnv) string {
				return env.tp.LogoutToken(map[string]interface{}{"sid": nil})
			},
			wantOutcome: outcomeCompleted,
			wantRemoved: true,
		},
		{
			name: "other-session",
			token: func(env *testEnv) string {
				return env.tp.LogoutToken(map[string]interface{}{"sid": "someone-else"})
			},
			wantOutcome: outcomeCompleted,
		},
		{
			name: "wrong-audience",
			token: func(env *testEnv) string {
				return env.tp.LogoutToken(map[string]interface{}{"aud": "another-client"})
			},
			wantOutcome: outcomeInvalidToken,
		},
		{
			name: "with-nonce",
			token: func(env *testEnv) string {
				return env.tp.LogoutToken(map[string]interface{}{"nonce": "n"})
			},
			wantOutcome: outcomeInvalidToken,
		},
		{
			name:        "missing",
			token:       func(*testEnv) string { return "" },
			wantOutcome: outcomeMissingToken,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			env := newTestEnv(t, verify)
			env.login()
			c := env.sessionCookie()
			require.NotNil(c)

			token := tt.token(env)
			// repeated notifications get the same answer
			env.postBackChannel(formContentType, logoutForm(token))
			env.postBackChannel(formContentType, logoutForm(token))

			_, err := env.store.Read(context.Background(), c.Value)
			resp, _ := env.get(env.noFollow, "/code-flow")
			if tt.wantRemoved {
				assert.ErrorIs(err, session.ErrNotFound)
				assert.Equal(http.StatusFound, resp.StatusCode)
				assert.Contains(env.logs.String(), "SecurityEvent: OIDC_BACKCHANNEL_LOGOUT_INITIATED")
				assert.Contains(env.logs.String(), "SecurityEvent: OIDC_BACKCHANNEL_LOGOUT_COMPLETED")
			} else {
				assert.NoError(err)
				assert.Equal(http.StatusOK, resp.StatusCode)
			}
			_, metrics := env.get(env.noFollow, "/metrics")
			assert.Contains(metrics, `webapp_back_channel_logouts_total{outcome="`+tt.wantOutcome+`"} 2`)
		})
	}
}

func TestServer_Logout(t *testing.T) {
	t.Parallel()
	t.Run("end-session", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		env := newTestEnv(t, nil)
		env.login()
		c := env.sessionCookie()
		require.NotNil(c)
		sess, err := env.store.Read(context.Background(), c.Value)
		require.NoError(err)

		resp, _ := env.get(env.noFollow, "/logout")
		assert.Equal(http.StatusFound, resp.StatusCode)
		loc, err := resp.Location()
		require.NoError(err)
		assert.True(strings.HasPrefix(loc.String(), env.tp.Addr()+"/logout?"))
		assert.Equal(sess.IDToken, loc.Query().Get("id_token_hint"))
		assert.Equal(env.cfg.PostLogoutURL(), loc.Query().Get("post_logout_redirect_uri"))
		assert.Nil(env.sessionCookie())
		_, err = env.store.Read(context.Background(), c.Value)
		assert.ErrorIs(err, session.ErrNotFound)
		assert.Contains(env.logs.String(), "SecurityEvent: OIDC_LOGOUT_RP_INITIATED")

		// following the provider lands on the post-logout page
		resp, body := env.get(env.client, "/logout")
		assert.Equal(http.StatusOK, resp.StatusCode)
		assert.Equal(PostLogoutResult, findText(t, body, "result"))
		assert.Len(env.tp.EndSessionCalls(), 1)
	})
	t.Run("no-end-session-endpoint", func(t *testing.T) {
		t.Parallel()
		env := newTestEnvWith(t, func(tp *oidc.TestProvider) { tp.SetDisableEndSession(true) }, nil)
		env.login()
		resp, _ := env.get(env.noFollow, "/logout")
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/code-flow/post-logout", resp.Header.Get("Location"))
		assert.Nil(t, env.sessionCookie())
		assert.Empty(t, env.tp.EndSessionCalls())
	})
	t.Run("without-session", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, nil)
		resp, body := env.get(env.client, "/logout")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, PostLogoutResult, findText(t, body, "result"))
		assert.NotContains(t, env.logs.String(), "OIDC_LOGOUT_RP_INITIATED")
	})
}

func TestServer_Health(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	resp, body := env.get(env.noFollow, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)

	_, metrics := env.get(env.noFollow, "/metrics")
	assert.Contains(t, metrics, "webapp_introspection_cache_size 0")
}
