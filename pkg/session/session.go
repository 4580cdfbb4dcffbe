// Package session maintains server-side sessions referencing provider
// tokens. Sessions are persisted keyed by session ID and owned exclusively
// by this package; multiple concurrent sessions per subject are permitted.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/moldovancsaba/cardmass-sub001/pkg/oauth"
	"github.com/moldovancsaba/cardmass-sub001/pkg/permission"
)

// Session is one authenticated browser session. The permission snapshot is
// fixed at creation time; revocation takes effect on the next login or
// refresh-triggered re-resolution.
type Session struct {
	ID         string                   `json:"id"`
	SubjectID  string                   `json:"subject_id"`
	Tokens     oauth.Tokens             `json:"tokens"`
	Claims     oauth.IdentityClaims     `json:"claims"`
	Permission permission.AppPermission `json:"permission"`
	CreatedAt  time.Time                `json:"created_at"`
}

// ErrReauthRequired signals that the session could not be refreshed and the
// user must be sent back through the login flow.
var ErrReauthRequired = errors.New("session: re-authentication required")

// Store persists sessions. Get returns (nil, nil) on a missing ID; Delete on
// a missing ID is a no-op.
type Store interface {
	Put(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error

	// AcquireRefreshLock takes the per-session refresh lock so only one
	// refresh is in flight even if the provider enforces single-use refresh
	// tokens. Returns false if another refresh holds the lock.
	AcquireRefreshLock(ctx context.Context, id string, ttl time.Duration) (bool, error)
	ReleaseRefreshLock(ctx context.Context, id string) error
}
