// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package webapp is the HTTP surface of the OIDC code-flow web application.

Routes:

	GET  /code-flow              greeting for the authenticated user
	GET  /code-flow/post-logout  confirmation shown after logout
	POST /back-channel-logout    back-channel logout notifications from the provider
	GET  /callback               authorization code redirect from the provider
	GET  /logout                 RP-initiated logout
	GET  /metrics                prometheus metrics
	GET  /health                 liveness

Requests to /code-flow pass through an authentication gate which starts the
authorization code flow when the browser has no valid session. Security
relevant moments of a session's life are published to a security.Dispatcher.
*/
package webapp
