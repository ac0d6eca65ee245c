// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestRedactedTokens(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		tk   interface {
			fmt.Stringer
			json.Marshaler
		}
		want string
	}{
		{"access_token", AccessToken("super secret token"), RedactedAccessToken},
		{"refresh_token", RefreshToken("super secret token"), RedactedRefreshToken},
		{"id_token", IDToken("super secret token"), RedactedIDToken},
		{"client_secret", ClientSecret("super secret"), RedactedClientSecret},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			assert.Equal(tt.want, tt.tk.String())
			got, err := tt.tk.MarshalJSON()
			require.NoError(err)
			assert.Equal(fmt.Sprintf("%q", tt.want), string(got))
		})
	}
}

func TestNewToken(t *testing.T) {
	t.Parallel()
	now := time.Now()
	nowFn := func() time.Time { return now }
	tests := []struct {
		name        string
		idToken     IDToken
		underlying  *oauth2.Token
		wantErrIs   error
		wantValid   bool
		wantExpired bool
	}{
		{
			name:       "valid",
			idToken:    "id",
			underlying: &oauth2.Token{AccessToken: "at", Expiry: now.Add(time.Hour)},
			wantValid:  true,
		},
		{
			name:        "expired-within-skew",
			idToken:     "id",
			underlying:  &oauth2.Token{AccessToken: "at", Expiry: now.Add(TokenExpirySkew / 2)},
			wantExpired: true,
		},
		{
			name:       "no-expiry",
			idToken:    "id",
			underlying: &oauth2.Token{AccessToken: "at"},
			wantValid:  true,
		},
		{
			name:    "no-access-token",
			idToken: "id",
		},
		{
			name:      "missing-id-token",
			wantErrIs: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NewToken(tt.idToken, tt.underlying, WithNow(nowFn))
			if tt.wantErrIs != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantErrIs)
				return
			}
			require.NoError(err)
			assert.Equal(tt.idToken, got.IDToken())
			assert.Equal(tt.wantValid, got.Valid())
			assert.Equal(tt.wantExpired, got.IsExpired())
			if tt.underlying == nil {
				assert.Empty(got.AccessToken())
				assert.Nil(got.StaticTokenSource())
				return
			}
			assert.Equal(AccessToken(tt.underlying.AccessToken), got.AccessToken())
			assert.NotNil(got.StaticTokenSource())
		})
	}
}
