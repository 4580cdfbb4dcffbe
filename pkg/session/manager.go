package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/moldovancsaba/cardmass-sub001/pkg/oauth"
	"github.com/moldovancsaba/cardmass-sub001/pkg/permission"
)

// TokenRefresher is the subset of the token exchange client the manager
// needs for refresh.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth.Tokens, error)
}

// ManagerConfig holds session lifecycle settings.
type ManagerConfig struct {
	// RefreshWindow: access tokens expiring inside this window are refreshed
	// eagerly on Refresh.
	RefreshWindow time.Duration
	// RefreshLockTTL bounds how long a crashed refresh can hold the lock.
	RefreshLockTTL time.Duration
}

// Manager owns the session lifecycle: create, get, validity, refresh and
// destroy.
type Manager struct {
	store     Store
	refresher TokenRefresher
	config    ManagerConfig
	logger    *logrus.Logger
}

// NewManager creates a session manager over the given store.
func NewManager(store Store, refresher TokenRefresher, config ManagerConfig, logger *logrus.Logger) *Manager {
	if config.RefreshWindow <= 0 {
		config.RefreshWindow = 2 * time.Minute
	}
	if config.RefreshLockTTL <= 0 {
		config.RefreshLockTTL = 30 * time.Second
	}
	return &Manager{store: store, refresher: refresher, config: config, logger: logger}
}

// Create persists a new session with a unique ID and a permission snapshot
// fixed at creation time, and returns it for cookie issuance.
func (m *Manager) Create(ctx context.Context, tokens oauth.Tokens, claims oauth.IdentityClaims, perm permission.AppPermission) (*Session, error) {
	session := &Session{
		ID:         uuid.NewString(),
		SubjectID:  claims.SubjectID,
		Tokens:     tokens,
		Claims:     claims,
		Permission: perm,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.Put(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	return session, nil
}

// Get returns the session or (nil, nil) if it does not exist.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	return m.store.Get(ctx, id)
}

// IsValid reports whether the session's tokens are unexpired or refreshable.
func (m *Manager) IsValid(session *Session) bool {
	if session == nil {
		return false
	}
	if !session.Tokens.Expired() {
		return true
	}
	return session.Tokens.RefreshToken != ""
}

// Destroy removes the session. Idempotent: destroying a missing ID succeeds.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return m.store.Delete(ctx, id)
}

// Refresh renews near-expiry access tokens and updates the stored record.
// On refresh failure the session is destroyed and ErrReauthRequired is
// returned so the caller redirects to re-authentication. If another refresh
// already holds the per-session lock the freshly stored session is returned.
func (m *Manager) Refresh(ctx context.Context, session *Session) (*Session, error) {
	if session == nil {
		return nil, ErrReauthRequired
	}
	if !session.Tokens.ExpiresWithin(m.config.RefreshWindow) {
		return session, nil
	}
	if session.Tokens.RefreshToken == "" {
		if err := m.Destroy(ctx, session.ID); err != nil {
			m.logger.WithError(err).Warn("failed to destroy unrefreshable session")
		}
		return nil, ErrReauthRequired
	}

	acquired, err := m.store.AcquireRefreshLock(ctx, session.ID, m.config.RefreshLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to take refresh lock: %w", err)
	}
	if !acquired {
		// Someone else is refreshing; serve whatever they stored.
		current, err := m.store.Get(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ErrReauthRequired
		}
		return current, nil
	}
	defer func() {
		if err := m.store.ReleaseRefreshLock(ctx, session.ID); err != nil {
			m.logger.WithError(err).Warn("failed to release refresh lock")
		}
	}()

	tokens, err := m.refresher.Refresh(ctx, session.Tokens.RefreshToken)
	if err != nil {
		if errors.Is(err, oauth.ErrRefreshFailed) {
			m.logger.WithField("subject_id", session.SubjectID).Info("token refresh rejected, destroying session")
			if destroyErr := m.Destroy(ctx, session.ID); destroyErr != nil {
				m.logger.WithError(destroyErr).Warn("failed to destroy session after refresh failure")
			}
			return nil, fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}
		return nil, err
	}

	refreshed := *session
	refreshed.Tokens = *tokens
	if err := m.store.Put(ctx, &refreshed); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed session: %w", err)
	}
	return &refreshed, nil
}
