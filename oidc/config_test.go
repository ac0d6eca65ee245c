// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/x509"
	"net/http"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type testAssertion struct{}

func (testAssertion) Serialize() (string, error) { return "assertion", nil }

func TestNewConfig(t *testing.T) {
	t.Parallel()
	_, testCaPem := TestGenerateCA(t, []string{"localhost"})
	testNow := func() time.Time { return time.Now().Add(-1 * time.Minute) }

	type args struct {
		issuer              string
		clientID            string
		clientSecret        ClientSecret
		supported           []Alg
		allowedRedirectURLs []string
		opt                 []Option
	}
	valid := func() args {
		return args{
			issuer:              "https://www.alice.com",
			clientID:            "client-id",
			clientSecret:        "client-secret",
			supported:           []Alg{RS512},
			allowedRedirectURLs: []string{"http://localhost/callback"},
		}
	}
	tests := []struct {
		name      string
		args      func() args
		want      func(*testing.T, *Config)
		wantErrIs error
	}{
		{
			name: "valid-with-all-options",
			args: func() args {
				a := valid()
				a.opt = []Option{
					WithProviderCA(testCaPem),
					WithScopes("email", "profile"),
					WithAudiences("your_company"),
					WithNow(testNow),
				}
				return a
			},
			want: func(t *testing.T, c *Config) {
				assert := assert.New(t)
				assert.Equal(testCaPem, c.ProviderCA)
				assert.Equal([]string{"email", "profile"}, c.Scopes)
				assert.Equal([]string{"your_company"}, c.Audiences)
				assert.Equal([]Alg{RS512}, c.SupportedSigningAlgs)
				assert.WithinDuration(testNow(), c.Now(), time.Second)
			},
		},
		{
			name: "client-assertion-without-secret",
			args: func() args {
				a := valid()
				a.clientSecret = ""
				a.opt = []Option{WithClientAssertionJWT(testAssertion{})}
				return a
			},
			want: func(t *testing.T, c *Config) {
				assert.NotNil(t, c.ClientAssertion)
			},
		},
		{
			name: "missing-secret-and-assertion",
			args: func() args {
				a := valid()
				a.clientSecret = ""
				return a
			},
			wantErrIs: ErrInvalidParameter,
		},
		{
			name: "missing-client-id",
			args: func() args {
				a := valid()
				a.clientID = ""
				return a
			},
			wantErrIs: ErrInvalidParameter,
		},
		{
			name: "missing-issuer",
			args: func() args {
				a := valid()
				a.issuer = ""
				return a
			},
			wantErrIs: ErrInvalidParameter,
		},
		{
			name: "bad-issuer-scheme",
			args: func() args {
				a := valid()
				a.issuer = "ftp://www.alice.com"
				return a
			},
			wantErrIs: ErrInvalidIssuer,
		},
		{
			name: "missing-algs",
			args: func() args {
				a := valid()
				a.supported = nil
				return a
			},
			wantErrIs: ErrInvalidParameter,
		},
		{
			name: "unsupported-alg",
			args: func() args {
				a := valid()
				a.supported = []Alg{"HS256"}
				return a
			},
			wantErrIs: ErrInvalidParameter,
		},
		{
			name: "bad-redirect",
			args: func() args {
				a := valid()
				a.allowedRedirectURLs = []string{"%%%%"}
				return a
			},
			wantErrIs: ErrInvalidParameter,
		},
		{
			name: "bad-ca",
			args: func() args {
				a := valid()
				a.opt = []Option{WithProviderCA("bad-ca")}
				return a
			},
			wantErrIs: ErrInvalidCACert,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require := require.New(t)
			a := tt.args()
			got, err := NewConfig(a.issuer, a.clientID, a.clientSecret, a.supported, a.allowedRedirectURLs, a.opt...)
			if tt.wantErrIs != nil {
				require.Error(err)
				require.ErrorIs(err, tt.wantErrIs)
				return
			}
			require.NoError(err)
			tt.want(t, got)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	var c *Config
	assert.ErrorIs(t, c.Validate(), ErrNilParameter)
}

func TestConfig_Now(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Config{NowFunc: func() time.Time { return fixed }}
	assert.Equal(fixed, c.Now())
	c = &Config{}
	assert.WithinDuration(time.Now(), c.Now(), time.Second)
}

func TestConfig_HTTPClient(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	_, testCaPem := TestGenerateCA(t, []string{"localhost"})

	c := &Config{ProviderCA: testCaPem}
	client, err := c.HTTPClient()
	require.NoError(err)
	tr, ok := client.Transport.(*http.Transport)
	require.True(ok)
	require.NotNil(tr.TLSClientConfig)
	assert.NotNil(tr.TLSClientConfig.RootCAs)

	c = &Config{ProviderCA: "bad"}
	_, err = c.HTTPClient()
	assert.ErrorIs(err, ErrInvalidCACert)

	ctx := HTTPClientContext(context.Background(), client)
	assert.Equal(client, ctx.Value(oauth2.HTTPClient))
	assert.Equal(oidc.ClientContext(context.Background(), client).Value(oauth2.HTTPClient), ctx.Value(oauth2.HTTPClient))
}

func TestEncodeCertificates(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	cert1, pem1 := TestGenerateCA(t, []string{"localhost"})
	cert2, pem2 := TestGenerateCA(t, []string{"127.0.0.1"})

	got, err := EncodeCertificates(cert1, cert2)
	require.NoError(err)
	assert.Equal(pem1+pem2, got)

	_, err = EncodeCertificates()
	assert.ErrorIs(err, ErrInvalidParameter)
	_, err = EncodeCertificates(cert1, (*x509.Certificate)(nil))
	assert.ErrorIs(err, ErrNilParameter)
}
