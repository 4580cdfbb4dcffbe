// Package config loads service configuration from AUTHD_-prefixed
// environment variables and validates it before the server starts.
package config
