// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func testEnv(vars map[string]string) Option {
	return WithLookupEnv(func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	})
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const testYAML = `
addr: "127.0.0.1:9090"
external-url: https://webapp.example.com/
log-level: debug
oidc:
  issuer: https://idp.example.com/realms/quarkus
  client-id: webapp
  client-secret: yaml-secret
  pkce: true
  ui-locales: [en-US, fr]
  principal-claim: email
session:
  max-age: 10m
  cookie-secure: true
cache:
  max-size: 50
  ttl: 1m
logout:
  back-channel:
    verify-token: true
`

func TestLoad(t *testing.T) {
	t.Parallel()
	yamlPath := writeFile(t, "webapp.yaml", testYAML)

	tests := []struct {
		name      string
		path      string
		env       map[string]string
		check     func(*testing.T, *Config)
		wantErrIs error
		wantErr   []string
	}{
		{
			name: "env-only",
			env: map[string]string{
				"OIDC_ISSUER":        "https://idp.example.com",
				"OIDC_CLIENT_ID":     "webapp",
				"OIDC_CLIENT_SECRET": "secret",
			},
			check: func(t *testing.T, c *Config) {
				assert := assert.New(t)
				assert.Equal(":8080", c.Addr)
				assert.Equal("http://localhost:8080", c.ExternalURL)
				assert.Equal("q_session", c.Session.CookieName)
				assert.Equal(30*time.Minute, c.Session.MaxAge)
				assert.Equal(5*time.Minute, c.OIDC.StateExpiry)
				assert.Equal(1000, c.Cache.MaxSize)
				assert.Equal(3*time.Minute, c.Cache.TTL)
				assert.Equal([]string{"RS256"}, c.OIDC.SigningAlgs)
				assert.Equal(StoreMemory, c.Session.Store)
				assert.Equal(hclog.Info, c.LogLevelValue())
				assert.Equal("http://localhost:8080/callback", c.RedirectURL())
				assert.Equal("http://localhost:8080/code-flow/post-logout", c.PostLogoutURL())
			},
		},
		{
			name: "yaml",
			path: yamlPath,
			check: func(t *testing.T, c *Config) {
				assert := assert.New(t)
				assert.Equal("127.0.0.1:9090", c.Addr)
				assert.Equal("yaml-secret", c.OIDC.ClientSecret)
				assert.True(c.OIDC.PKCE)
				assert.Equal("email", c.OIDC.PrincipalClaim)
				assert.Equal(10*time.Minute, c.Session.MaxAge)
				assert.True(c.Session.CookieSecure)
				assert.Equal(50, c.Cache.MaxSize)
				assert.Equal(time.Minute, c.Cache.TTL)
				assert.True(c.Logout.BackChannel.VerifyToken)
				assert.Equal(hclog.Debug, c.LogLevelValue())
				assert.Equal("https://webapp.example.com/callback", c.RedirectURL())
				tags, err := c.OIDC.Locales()
				require.NoError(t, err)
				assert.Equal([]language.Tag{language.AmericanEnglish, language.French}, tags)
			},
		},
		{
			name: "env-overrides-yaml",
			path: yamlPath,
			env: map[string]string{
				"OIDC_CLIENT_SECRET":               "env-secret",
				"WEBAPP_BACK_CHANNEL_VERIFY_TOKEN": "false",
				"WEBAPP_SESSION_MAX_AGE":           "1h",
				"WEBAPP_CACHE_MAX_SIZE":            "7",
				"OIDC_SIGNING_ALGS":                "RS256, ES256",
			},
			check: func(t *testing.T, c *Config) {
				assert := assert.New(t)
				assert.Equal("env-secret", c.OIDC.ClientSecret)
				assert.False(c.Logout.BackChannel.VerifyToken)
				assert.Equal(time.Hour, c.Session.MaxAge)
				assert.Equal(7, c.Cache.MaxSize)
				assert.Equal([]string{"RS256", "ES256"}, c.OIDC.SigningAlgs)
			},
		},
		{
			name:      "missing-file",
			path:      filepath.Join(t.TempDir(), "missing.yaml"),
			wantErrIs: os.ErrNotExist,
		},
		{
			name:      "bad-yaml",
			path:      writeFile(t, "bad.yaml", "addr: [unterminated"),
			wantErrIs: ErrInvalidConfig,
		},
		{
			name: "bad-env",
			env: map[string]string{
				"OIDC_PKCE":        "maybe",
				"WEBAPP_CACHE_TTL": "soon",
			},
			wantErrIs: ErrInvalidConfig,
			wantErr:   []string{"OIDC_PKCE", "WEBAPP_CACHE_TTL"},
		},
		{
			name: "all-problems-reported",
			env: map[string]string{
				"OIDC_ISSUER":          "not a url",
				"OIDC_SIGNING_ALGS":    "none",
				"OIDC_UI_LOCALES":      "!!",
				"WEBAPP_SESSION_STORE": "redis",
				"WEBAPP_LOG_LEVEL":     "loud",
			},
			wantErrIs: ErrInvalidConfig,
			wantErr: []string{
				"Config.OIDC.Issuer",
				"Config.OIDC.ClientID",
				"Config.OIDC.ClientSecret",
				"Config.OIDC.SigningAlgs",
				"Config.OIDC.UILocales",
				"Config.Redis.URL",
				"Config.LogLevel",
			},
		},
		{
			name: "private-key-jwt-needs-key-file",
			env: map[string]string{
				"OIDC_ISSUER":             "https://idp.example.com",
				"OIDC_CLIENT_ID":          "webapp",
				"OIDC_CLIENT_AUTH_METHOD": PrivateKeyJWT,
			},
			wantErrIs: ErrInvalidConfig,
			wantErr:   []string{"Config.OIDC.PrivateKeyFile"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := Load(tt.path, testEnv(tt.env))
			if tt.wantErrIs != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantErrIs)
				for _, want := range tt.wantErr {
					assert.Contains(err.Error(), want)
				}
				return
			}
			require.NoError(err)
			tt.check(t, got)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	var c *Config
	assert.ErrorIs(t, c.Validate(), ErrInvalidParameter)

	c = Default()
	c.ExternalURL = "https://webapp.example.com"
	c.OIDC.Issuer = "https://idp.example.com"
	c.OIDC.ClientID = "webapp"
	c.OIDC.ClientSecret = "secret"
	require.NoError(t, c.Validate())

	c.Addr = "8080"
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
}

func TestDefaultExternalURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr string
		want string
	}{
		{":8080", "http://localhost:8080"},
		{"0.0.0.0:80", "http://localhost:80"},
		{"127.0.0.1:9000", "http://127.0.0.1:9000"},
		{"[::1]:9000", "http://[::1]:9000"},
		{"bad", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, defaultExternalURL(tt.addr), tt.addr)
	}
}
