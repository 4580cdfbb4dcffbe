package identity

import (
	"context"
	"fmt"

	"github.com/moldovancsaba/cardmass-sub001/pkg/permission"
	"github.com/moldovancsaba/cardmass-sub001/pkg/session"
)

// SessionReader is the subset of the session manager the SSO source needs.
type SessionReader interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	IsValid(s *session.Session) bool
}

// SSOSource resolves identities from SSO sessions. The session's permission
// snapshot gates access: only an approved snapshot yields a user.
type SSOSource struct {
	sessions SessionReader
}

// NewSSOSource creates the SSO identity source.
func NewSSOSource(sessions SessionReader) *SSOSource {
	return &SSOSource{sessions: sessions}
}

// Resolve builds a UnifiedUser from a valid, access-approved SSO session.
func (s *SSOSource) Resolve(ctx context.Context, creds Credentials) (*UnifiedUser, error) {
	if creds.SSOSessionID == "" {
		return nil, nil
	}

	sess, err := s.sessions.Get(ctx, creds.SSOSessionID)
	if err != nil {
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}
	if sess == nil || !s.sessions.IsValid(sess) {
		return nil, nil
	}
	if !sess.Permission.HasAccess() {
		return nil, nil
	}

	role := sess.Permission.Role
	if role == "" {
		role = permission.RoleUser
	}

	return &UnifiedUser{
		ID:         sess.SubjectID,
		Name:       sess.Claims.Name,
		Email:      sess.Claims.Email,
		Role:       role,
		AuthSource: SourceSSO,
	}, nil
}
