// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_StartTestProvider(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	port := func() int {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(err)
		defer l.Close()
		return l.Addr().(*net.TCPAddr).Port
	}()

	tp := StartTestProvider(t, WithTestPort(port))
	u, err := url.Parse(tp.Addr())
	require.NoError(err)
	assert.Equal(strconv.Itoa(port), u.Port())

	resp, err := tp.HTTPClient().Get(tp.Addr() + "/.well-known/jwks.json")
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
}

func Test_WithTestPort(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	opts := getTestProviderOpts(WithTestPort(8080))
	testOpts := testProviderDefaults()
	testOpts.withPort = 8080
	assert.Equal(opts, testOpts)
}

func TestTestProvider_Discovery(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	tp.SetDisableUserInfo(true)

	resp, err := tp.HTTPClient().Get(tp.Addr() + "/.well-known/openid-configuration")
	require.NoError(err)
	defer resp.Body.Close()
	var got map[string]interface{}
	require.NoError(json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(tp.Addr(), got["issuer"])
	assert.Equal(tp.Addr()+"/logout", got["end_session_endpoint"])
	assert.Equal(tp.Addr()+"/introspect", got["introspection_endpoint"])
	assert.Equal(true, got["backchannel_logout_supported"])
	assert.NotContains(got, "userinfo_endpoint")
}

func TestTestProvider_Setters(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	tp := StartTestProvider(t)

	tp.SetClientCreds("alice", "bob")
	gotClientID, gotClientSecret := tp.ClientCreds()
	assert.Equal("alice", gotClientID)
	assert.Equal("bob", gotClientSecret)

	tp.SetExpectedExpiry(time.Hour)
	assert.Equal(time.Hour, tp.replyExpiry)

	tp.SetExpectedSessionID("sid-1")
	assert.Equal("sid-1", tp.ExpectedSessionID())

	pub, priv := TestGenerateKeys(t)
	tp.SetSigningKeys(priv, pub, ES256, "kid-2")
	_, gotPub, gotAlg, gotKid := tp.SigningKeys()
	assert.Equal(pub, gotPub)
	assert.Equal(ES256, gotAlg)
	assert.Equal("kid-2", gotKid)
}

func TestTestProvider_EndSession(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	client := *tp.HTTPClient()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	q := url.Values{
		"post_logout_redirect_uri": {"https://rp.example.com/code-flow/post-logout"},
		"state":                    {"st_1"},
	}
	resp, err := client.Get(tp.Addr() + "/logout?" + q.Encode())
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusFound, resp.StatusCode)
	assert.Equal("https://rp.example.com/code-flow/post-logout?state=st_1", resp.Header.Get("Location"))

	calls := tp.EndSessionCalls()
	require.Len(calls, 1)
	assert.Equal("st_1", calls[0].Get("state"))
}

func TestTestProvider_LogoutToken(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	tp.SetClientCreds("client", "secret")

	raw := tp.LogoutToken(map[string]interface{}{"sid": nil, "extra": "x"})
	require.Len(strings.Split(raw, "."), 3)
	var claims map[string]interface{}
	require.NoError(UnmarshalClaims(raw, &claims))
	assert.Equal(tp.Addr(), claims["iss"])
	assert.Equal([]interface{}{"client"}, claims["aud"])
	assert.Equal("x", claims["extra"])
	assert.NotContains(claims, "sid")
	assert.Contains(claims["events"], BackChannelLogoutEvent)
}
