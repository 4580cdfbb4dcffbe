// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and the outermost request middleware
// (request IDs, access logging, panic recovery).
//
// Error responses carry a stable machine-readable code in the "error" field
// so browser frontends can branch on outcomes without parsing prose.
package httputil
