// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package session holds the server side sessions of authenticated browser
users. A Session is created after a successful authorization code exchange
and is found again via the opaque ID carried in the session cookie.

Sessions are indexed by the provider's session ID (sid) and by subject so a
back-channel logout can remove every session it names.

Two stores are provided: MemoryStore for a single instance and RedisStore for
instances sharing state.
*/
package session
