package identity

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/moldovancsaba/cardmass-sub001/pkg/permission"
)

// LegacyStore validates tokens from the pre-SSO credential system against
// the local database. Tokens are stored hashed; the plaintext never touches
// the database.
type LegacyStore struct {
	db *sql.DB
}

// NewLegacyStore creates a store over the legacy credential database.
func NewLegacyStore(db *sql.DB) *LegacyStore {
	return &LegacyStore{db: db}
}

// hashToken computes the SHA-256 hex digest used as the lookup key.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Lookup resolves a legacy token to its user, or (nil, nil) if the token is
// unknown or expired.
func (s *LegacyStore) Lookup(ctx context.Context, token string) (*UnifiedUser, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.name, u.email, u.role
		FROM legacy_sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1 AND s.expires_at > NOW()
	`, hashToken(token))

	var user UnifiedUser
	var role string
	err := row.Scan(&user.ID, &user.Name, &user.Email, &role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("legacy session lookup failed: %w", err)
	}

	user.Role = permission.Role(role)
	user.AuthSource = SourceLegacy
	return &user, nil
}

// LegacySource adapts the legacy store to the identity source interface.
type LegacySource struct {
	store *LegacyStore
}

// NewLegacySource creates the legacy identity source.
func NewLegacySource(store *LegacyStore) *LegacySource {
	return &LegacySource{store: store}
}

// Resolve validates the legacy token against the local credential store.
func (s *LegacySource) Resolve(ctx context.Context, creds Credentials) (*UnifiedUser, error) {
	if creds.LegacyToken == "" {
		return nil, nil
	}
	return s.store.Lookup(ctx, creds.LegacyToken)
}
