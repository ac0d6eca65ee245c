// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/oidc-webapp-demo/config"
	"github.com/hashicorp/oidc-webapp-demo/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConfig(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
external-url: https://webapp.example.com
oidc:
  issuer: https://idp.example.com
  client-id: webapp
  client-secret: secret
`), 0o600))
	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte(`
session:
  store: disk
`), 0o600))

	tests := []struct {
		name    string
		args    []string
		wantOut string
		wantErr string
	}{
		{
			name:    "valid",
			args:    []string{"check-config", "--config", valid},
			wantOut: "configuration is valid: issuer=https://idp.example.com client_id=webapp redirect_url=https://webapp.example.com/callback store=memory",
		},
		{
			name:    "invalid",
			args:    []string{"check-config", "-c", invalid},
			wantErr: "Config.Session.Store",
		},
		{
			name:    "unexpected-arg",
			args:    []string{"check-config", "extra"},
			wantErr: "unknown command",
		},
		{
			name:    "serve-invalid",
			args:    []string{"serve", "--config", invalid, "--addr", "127.0.0.1:0"},
			wantErr: "Config.Session.Store",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			var out bytes.Buffer
			cmd := newRootCmd()
			cmd.SetArgs(tt.args)
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			err := cmd.ExecuteContext(context.Background())
			if tt.wantErr != "" {
				require.Error(err)
				assert.Contains(err.Error(), tt.wantErr)
				return
			}
			require.NoError(err)
			assert.Contains(out.String(), tt.wantOut)
		})
	}
}

func TestNewSessionStore(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	store, closeFn, err := newSessionStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &session.MemoryStore{}, store)

	cfg.Session.Store = config.StoreRedis
	cfg.Redis.URL = "not-a-redis-url"
	_, _, err = newSessionStore(context.Background(), cfg)
	assert.Error(t, err)
}
