// Package identity merges the legacy credential system and the SSO session
// system into one per-request user resolution, so the legacy path can be
// deleted cleanly once the migration window closes.
package identity

import (
	"context"

	"github.com/moldovancsaba/cardmass-sub001/pkg/permission"
)

// AuthSource records which credential system authenticated the user.
type AuthSource string

const (
	SourceLegacy AuthSource = "legacy"
	SourceSSO    AuthSource = "sso"
)

// UnifiedUser is the merged identity computed per request. It is ephemeral
// and never persisted.
type UnifiedUser struct {
	ID         string          `json:"id"`
	Name       string          `json:"name,omitempty"`
	Email      string          `json:"email,omitempty"`
	Role       permission.Role `json:"role"`
	AuthSource AuthSource      `json:"auth_source"`
}

// Credentials carries whatever tokens the request presented. Either field
// may be empty.
type Credentials struct {
	LegacyToken  string
	SSOSessionID string
}

// Source resolves one credential system. Returning (nil, nil) means the
// credentials do not authenticate a user in this system.
type Source interface {
	Resolve(ctx context.Context, creds Credentials) (*UnifiedUser, error)
}
