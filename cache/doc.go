// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package cache provides the bounded, expiring caches used by the web
// application: token introspection and user info results keyed by access
// token, and the pending logins keyed by their OIDC state.
package cache
