// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/oidc-webapp-demo/oidc"
	"github.com/hashicorp/oidc-webapp-demo/oidc/clientassertion"
)

// ProviderConfig converts the OIDC section into an oidc.Config. Files named
// by the configuration (provider CA, private key) are read here.
func (c *Config) ProviderConfig(opt ...oidc.Option) (*oidc.Config, error) {
	const op = "Config.ProviderConfig"
	algs, err := oidc.ParseAlgs(c.OIDC.SigningAlgs...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := []oidc.Option{
		oidc.WithScopes(c.OIDC.Scopes...),
		oidc.WithAudiences(c.OIDC.Audiences...),
	}
	if c.OIDC.ProviderCAFile != "" {
		pem, err := os.ReadFile(c.OIDC.ProviderCAFile)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read provider CA: %w", op, err)
		}
		opts = append(opts, oidc.WithProviderCA(string(pem)))
	}

	secret := oidc.ClientSecret(c.OIDC.ClientSecret)
	var assertionOpts []clientassertion.Option
	switch c.OIDC.ClientAuthMethod {
	case ClientSecretJWT:
		alg := c.OIDC.ClientAssertAlg
		if alg == "" {
			alg = string(clientassertion.HS256)
		}
		assertionOpts = append(assertionOpts, clientassertion.WithClientSecret(c.OIDC.ClientSecret, alg))
	case PrivateKeyJWT:
		b, err := os.ReadFile(c.OIDC.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read private key: %w", op, err)
		}
		key, err := clientassertion.ParseRSAPrivateKeyPEM(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		alg := c.OIDC.ClientAssertAlg
		if alg == "" {
			alg = string(clientassertion.RS256)
		}
		assertionOpts = append(assertionOpts, clientassertion.WithRSAKey(key, alg))
		if c.OIDC.PrivateKeyID != "" {
			assertionOpts = append(assertionOpts, clientassertion.WithKeyID(c.OIDC.PrivateKeyID))
		}
		// the client authenticates with its key only
		secret = ""
	}
	if assertionOpts != nil {
		j, err := clientassertion.NewJWT(c.OIDC.ClientID, []string{c.OIDC.Issuer}, assertionOpts...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		opts = append(opts, oidc.WithClientAssertionJWT(j))
	}

	opts = append(opts, opt...)
	pc, err := oidc.NewConfig(c.OIDC.Issuer, c.OIDC.ClientID, secret, algs, []string{c.RedirectURL()}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pc, nil
}
