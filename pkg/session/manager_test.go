package session

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moldovancsaba/cardmass-sub001/pkg/oauth"
	"github.com/moldovancsaba/cardmass-sub001/pkg/permission"
)

// fakeRefresher scripts the token exchange client's refresh behavior.
type fakeRefresher struct {
	tokens *oauth.Tokens
	err    error
	calls  int
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth.Tokens, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tokens, nil
}

func newTestManager(refresher TokenRefresher) (*Manager, *MemoryStore) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := NewMemoryStore(time.Hour)
	manager := NewManager(store, refresher, ManagerConfig{
		RefreshWindow:  2 * time.Minute,
		RefreshLockTTL: time.Second,
	}, logger)
	return manager, store
}

func testIdentity() (oauth.Tokens, oauth.IdentityClaims, permission.AppPermission) {
	tokens := oauth.Tokens{
		AccessToken:  "access",
		RefreshToken: "refresh",
		IDToken:      "h.p.s",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	claims := oauth.IdentityClaims{SubjectID: "subject-1", Email: "user@example.com"}
	perm := permission.AppPermission{UserID: "subject-1", AppID: "cardmass", Status: permission.StatusApproved, Role: permission.RoleUser}
	return tokens, claims, perm
}

func TestManager_CreateGet(t *testing.T) {
	manager, _ := newTestManager(&fakeRefresher{})
	ctx := context.Background()

	tokens, claims, perm := testIdentity()
	created, err := manager.Create(ctx, tokens, claims, perm)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "subject-1", created.SubjectID)

	got, err := manager.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
}

func TestManager_ConcurrentSessionsPerSubject(t *testing.T) {
	manager, _ := newTestManager(&fakeRefresher{})
	ctx := context.Background()

	tokens, claims, perm := testIdentity()
	first, err := manager.Create(ctx, tokens, claims, perm)
	require.NoError(t, err)
	second, err := manager.Create(ctx, tokens, claims, perm)
	require.NoError(t, err)

	// No single-session-per-subject invariant: both remain valid.
	assert.NotEqual(t, first.ID, second.ID)
	got, err := manager.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestManager_DestroyIdempotent(t *testing.T) {
	manager, _ := newTestManager(&fakeRefresher{})
	ctx := context.Background()

	tokens, claims, perm := testIdentity()
	created, err := manager.Create(ctx, tokens, claims, perm)
	require.NoError(t, err)

	require.NoError(t, manager.Destroy(ctx, created.ID))

	got, err := manager.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, manager.Destroy(ctx, created.ID))
	require.NoError(t, manager.Destroy(ctx, ""))
}

func TestManager_IsValid(t *testing.T) {
	manager, _ := newTestManager(&fakeRefresher{})

	tests := []struct {
		name    string
		session *Session
		want    bool
	}{
		{name: "nil session", session: nil, want: false},
		{
			name:    "live tokens",
			session: &Session{Tokens: oauth.Tokens{AccessToken: "a", ExpiresAt: time.Now().Add(time.Hour)}},
			want:    true,
		},
		{
			name:    "expired but refreshable",
			session: &Session{Tokens: oauth.Tokens{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(-time.Hour)}},
			want:    true,
		},
		{
			name:    "expired and unrefreshable",
			session: &Session{Tokens: oauth.Tokens{AccessToken: "a", ExpiresAt: time.Now().Add(-time.Hour)}},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, manager.IsValid(tt.session))
		})
	}
}

func TestManager_Refresh_NotNeeded(t *testing.T) {
	refresher := &fakeRefresher{}
	manager, _ := newTestManager(refresher)
	ctx := context.Background()

	tokens, claims, perm := testIdentity()
	created, err := manager.Create(ctx, tokens, claims, perm)
	require.NoError(t, err)

	got, err := manager.Refresh(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Zero(t, refresher.calls)
}

func TestManager_Refresh_Renews(t *testing.T) {
	refresher := &fakeRefresher{tokens: &oauth.Tokens{
		AccessToken:  "access-new",
		RefreshToken: "refresh-new",
		ExpiresAt:    time.Now().Add(time.Hour),
	}}
	manager, store := newTestManager(refresher)
	ctx := context.Background()

	tokens, claims, perm := testIdentity()
	tokens.ExpiresAt = time.Now().Add(30 * time.Second) // inside refresh window
	created, err := manager.Create(ctx, tokens, claims, perm)
	require.NoError(t, err)

	refreshed, err := manager.Refresh(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, "access-new", refreshed.Tokens.AccessToken)

	// The stored record was updated.
	stored, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-new", stored.Tokens.AccessToken)

	// The permission snapshot is untouched by refresh.
	assert.Equal(t, permission.StatusApproved, refreshed.Permission.Status)
}

func TestManager_Refresh_FailureDestroysSession(t *testing.T) {
	refresher := &fakeRefresher{err: oauth.ErrRefreshFailed}
	manager, store := newTestManager(refresher)
	ctx := context.Background()

	tokens, claims, perm := testIdentity()
	tokens.ExpiresAt = time.Now().Add(-time.Minute)
	created, err := manager.Create(ctx, tokens, claims, perm)
	require.NoError(t, err)

	_, err = manager.Refresh(ctx, created)
	assert.ErrorIs(t, err, ErrReauthRequired)

	stored, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestManager_Refresh_NoRefreshToken(t *testing.T) {
	manager, store := newTestManager(&fakeRefresher{})
	ctx := context.Background()

	tokens, claims, perm := testIdentity()
	tokens.RefreshToken = ""
	tokens.ExpiresAt = time.Now().Add(-time.Minute)
	created, err := manager.Create(ctx, tokens, claims, perm)
	require.NoError(t, err)

	_, err = manager.Refresh(ctx, created)
	assert.ErrorIs(t, err, ErrReauthRequired)

	stored, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestManager_Refresh_LockHeldServesStored(t *testing.T) {
	refresher := &fakeRefresher{tokens: &oauth.Tokens{AccessToken: "a", ExpiresAt: time.Now().Add(time.Hour)}}
	manager, store := newTestManager(refresher)
	ctx := context.Background()

	tokens, claims, perm := testIdentity()
	tokens.ExpiresAt = time.Now().Add(-time.Minute)
	created, err := manager.Create(ctx, tokens, claims, perm)
	require.NoError(t, err)

	// Simulate a concurrent refresh holding the lock.
	held, err := store.AcquireRefreshLock(ctx, created.ID, time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	got, err := manager.Refresh(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Zero(t, refresher.calls)
}
