// Package permission resolves per-application access-permission records from
// the identity platform. The resolver only reads and creates pending records;
// approval and revocation are external administrative actions visible on the
// next fetch.
package permission

import (
	"errors"
	"time"
)

// Status is the access state of a subject for one application.
type Status string

const (
	StatusNone     Status = "none"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRevoked  Status = "revoked"
)

// Role is the application-level role carried by an approved permission.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// AppPermission is this application's record of a subject's access status and
// role, one record per (user, application). Status transitions follow
// none → pending → {approved, revoked}; a revoked record requires separate
// administrative re-approval.
type AppPermission struct {
	UserID    string    `json:"user_id"`
	AppID     string    `json:"app_id"`
	Status    Status    `json:"status"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasAccess is true iff the record is approved.
func (p *AppPermission) HasAccess() bool {
	return p != nil && p.Status == StatusApproved
}

// IsPending reports whether the record awaits administrative approval.
func (p *AppPermission) IsPending() bool {
	return p != nil && p.Status == StatusPending
}

// IsRevoked reports whether access has been administratively revoked.
func (p *AppPermission) IsRevoked() bool {
	return p != nil && p.Status == StatusRevoked
}

// ErrBackendUnavailable indicates the permission backend is unreachable or
// returned a payload that cannot be trusted.
var ErrBackendUnavailable = errors.New("permission: backend unavailable")

func validStatus(s Status) bool {
	switch s {
	case StatusNone, StatusPending, StatusApproved, StatusRevoked:
		return true
	}
	return false
}

func validRole(r Role) bool {
	switch r {
	case "", RoleUser, RoleAdmin, RoleSuperadmin:
		return true
	}
	return false
}
