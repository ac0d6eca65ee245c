// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package config loads the web application's configuration.

Values come from, in order of precedence: environment variables, an optional
YAML file, and the defaults. A loaded Config is validated as a whole and every
problem is reported at once.

Example YAML:

	addr: ":8080"
	external-url: https://webapp.example.com
	log-level: info
	oidc:
	  issuer: https://idp.example.com/realms/quarkus
	  client-id: webapp
	  client-secret: secret
	  pkce: true
	  verify-access-token: true
	session:
	  max-age: 30m
	logout:
	  back-channel:
	    verify-token: true
*/
package config
