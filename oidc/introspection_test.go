// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntrospection_Unmarshal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		in        string
		want      Audience
		wantErrIs error
	}{
		{"aud-string", `{"active":true,"aud":"client"}`, Audience{"client"}, nil},
		{"aud-array", `{"active":true,"aud":["client","api"]}`, Audience{"client", "api"}, nil},
		{"aud-missing", `{"active":false}`, nil, nil},
		{"aud-number", `{"active":true,"aud":42}`, nil, ErrInvalidParameter},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			var got Introspection
			err := json.Unmarshal([]byte(tt.in), &got)
			if tt.wantErrIs != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantErrIs)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got.Audience)
		})
	}
}

func TestIntrospection_IsActive(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tests := []struct {
		name string
		in   *Introspection
		want bool
	}{
		{"nil", nil, false},
		{"inactive", &Introspection{Active: false}, false},
		{"active-no-exp", &Introspection{Active: true}, true},
		{"active-future-exp", &Introspection{Active: true, Expiry: now.Add(time.Minute).Unix()}, true},
		{"active-past-exp", &Introspection{Active: true, Expiry: now.Add(-time.Minute).Unix()}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.in.IsActive(now))
		})
	}
}
