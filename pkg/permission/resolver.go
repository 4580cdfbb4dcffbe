package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

// ResolverConfig holds the permission backend settings.
type ResolverConfig struct {
	// BaseURL is the identity platform's API root.
	BaseURL string
	// AppID identifies this application in the platform.
	AppID string
	// CacheTTL bounds how stale a cached read may be. Zero disables caching.
	CacheTTL time.Duration
	// CacheSize is the max number of cached records.
	CacheSize int
}

// Resolver reads and creates per-app access records over the identity
// platform's permission API. Reads go through a short-TTL LRU cache so hot
// request paths do not hammer the backend.
type Resolver struct {
	baseURL    string
	appID      string
	httpClient *http.Client
	cache      *lru.LRU[string, *AppPermission]
	logger     *logrus.Logger
}

// NewResolver creates a resolver for the given backend.
func NewResolver(config ResolverConfig, logger *logrus.Logger) (*Resolver, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("permission backend base URL is required")
	}
	if config.AppID == "" {
		return nil, fmt.Errorf("app ID is required")
	}

	var cache *lru.LRU[string, *AppPermission]
	if config.CacheTTL > 0 {
		size := config.CacheSize
		if size <= 0 {
			size = 1024
		}
		cache = lru.NewLRU[string, *AppPermission](size, nil, config.CacheTTL)
	}

	return &Resolver{
		baseURL:    config.BaseURL,
		appID:      config.AppID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache,
		logger:     logger,
	}, nil
}

// Get reads the current access record for the subject. A subject with no
// record yet yields a record with StatusNone.
func (r *Resolver) Get(ctx context.Context, subjectID, accessToken string) (*AppPermission, error) {
	if cached, ok := r.cacheGet(subjectID); ok {
		return cached, nil
	}

	perm, err := r.do(ctx, http.MethodGet, subjectID, accessToken)
	if err != nil {
		return nil, err
	}
	r.cacheSet(subjectID, perm)
	return perm, nil
}

// Request creates a pending access record if none exists. The backend is the
// authority: an existing record is returned unchanged.
func (r *Resolver) Request(ctx context.Context, subjectID, accessToken string) (*AppPermission, error) {
	perm, err := r.do(ctx, http.MethodPost, subjectID, accessToken)
	if err != nil {
		return nil, err
	}
	// The record just changed; drop any stale cached read.
	if r.cache != nil {
		r.cache.Remove(subjectID)
		r.cacheSet(subjectID, perm)
	}
	return perm, nil
}

func (r *Resolver) do(ctx context.Context, method, subjectID, accessToken string) (*AppPermission, error) {
	endpoint := fmt.Sprintf("%s/v1/apps/%s/permissions/%s",
		r.baseURL, url.PathEscape(r.appID), url.PathEscape(subjectID))

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return &AppPermission{UserID: subjectID, AppID: r.appID, Status: StatusNone}, nil
	case resp.StatusCode >= 300:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: backend returned status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	return parsePermission(resp.Body, subjectID, r.appID)
}

// parsePermission decodes and validates a permission payload. Partially
// shaped data is rejected instead of trusted.
func parsePermission(body io.Reader, subjectID, appID string) (*AppPermission, error) {
	var wire struct {
		UserID    string    `json:"user_id"`
		AppID     string    `json:"app_id"`
		Status    Status    `json:"status"`
		Role      Role      `json:"role"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := json.NewDecoder(body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: invalid response body: %v", ErrBackendUnavailable, err)
	}
	if !validStatus(wire.Status) {
		return nil, fmt.Errorf("%w: unknown permission status %q", ErrBackendUnavailable, wire.Status)
	}
	if !validRole(wire.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrBackendUnavailable, wire.Role)
	}
	if wire.UserID == "" {
		wire.UserID = subjectID
	}
	if wire.AppID == "" {
		wire.AppID = appID
	}

	return &AppPermission{
		UserID:    wire.UserID,
		AppID:     wire.AppID,
		Status:    wire.Status,
		Role:      wire.Role,
		CreatedAt: wire.CreatedAt,
		UpdatedAt: wire.UpdatedAt,
	}, nil
}

func (r *Resolver) cacheGet(subjectID string) (*AppPermission, bool) {
	if r.cache == nil {
		return nil, false
	}
	return r.cache.Get(subjectID)
}

func (r *Resolver) cacheSet(subjectID string, perm *AppPermission) {
	if r.cache != nil {
		r.cache.Add(subjectID, perm)
	}
}
