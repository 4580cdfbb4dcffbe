// Package sso implements the browser-facing endpoints of the login flow:
// flow start, provider callback, logout and the unified auth check.
//
// The flow keeps no server-side login state. The PKCE verifier travels in a
// signed short-lived cookie and the OAuth state value is a signed
// self-contained blob, so any instance can serve the callback.
package sso
