// Package middleware provides the HTTP request guards that run ahead of
// business logic: the org scope guard for tenant consistency, unified user
// resolution, and login-endpoint rate limiting.
//
// The org scope guard is deliberately independent of authentication: it
// compares the tenant identifier embedded in the request path against the
// one supplied in the X-Organization-UUID header and rejects any mismatch
// before a handler can touch cross-tenant data.
package middleware
