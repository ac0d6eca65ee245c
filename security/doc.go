// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package security carries the lifecycle events of browser sessions (login,
expiry, RP-initiated and back-channel logout, authentication failures) to
listeners subscribed on a Dispatcher.

Publishing is synchronous and every listener is isolated: an error or a panic
in one listener is logged and never reaches the publisher or the other
listeners.
*/
package security
