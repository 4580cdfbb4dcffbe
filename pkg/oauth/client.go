package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// ProviderConfig holds the static relying-party configuration for the
// identity provider.
type ProviderConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Validate checks that all required provider settings are present.
func (c *ProviderConfig) Validate() error {
	if c.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	if len(c.Scopes) == 0 {
		return fmt.Errorf("scopes are required")
	}
	for _, scope := range c.Scopes {
		if scope == oidc.ScopeOpenID {
			return nil
		}
	}
	return fmt.Errorf("%q scope is required", oidc.ScopeOpenID)
}

// providerEndpoints are the optional endpoints read from provider discovery
// metadata beyond what go-oidc exposes directly.
type providerEndpoints struct {
	RevocationEndpoint string `json:"revocation_endpoint"`
	EndSessionEndpoint string `json:"end_session_endpoint"`
}

// Client performs the back-channel calls of the authorization code flow:
// code exchange, token refresh and best-effort revocation.
type Client struct {
	oauth2Config  *oauth2.Config
	verifier      *Verifier
	revocationURL string
	endSessionURL string
	httpClient    *http.Client
	logger        *logrus.Logger
}

// NewClient discovers the provider's endpoints and key set and returns a
// ready client. Discovery failure is fatal: the flow cannot run without the
// provider metadata.
func NewClient(ctx context.Context, config *ProviderConfig, logger *logrus.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover provider: %w", err)
	}

	var endpoints providerEndpoints
	if err := provider.Claims(&endpoints); err != nil {
		return nil, fmt.Errorf("failed to parse provider metadata: %w", err)
	}

	oauth2Config := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  config.RedirectURL,
		Scopes:       config.Scopes,
	}

	verifier := newVerifier(provider.Verifier(&oidc.Config{ClientID: config.ClientID}))

	return &Client{
		oauth2Config:  oauth2Config,
		verifier:      verifier,
		revocationURL: endpoints.RevocationEndpoint,
		endSessionURL: endpoints.EndSessionEndpoint,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
	}, nil
}

// Verifier returns the ID token verifier bound to this provider's key set.
func (c *Client) Verifier() *Verifier {
	return c.verifier
}

// EndSessionURL returns the provider's logout endpoint, or empty if the
// provider does not advertise one.
func (c *Client) EndSessionURL() string {
	return c.endSessionURL
}

// AuthCodeURL composes the provider authorize URL with the PKCE challenge
// and state value. Pure composition; no I/O.
func (c *Client) AuthCodeURL(pair PKCEPair, state string, prompt string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(pair.Verifier),
	}
	if prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", prompt))
	}
	return c.oauth2Config.AuthCodeURL(state, opts...)
}

// Exchange redeems an authorization code with the PKCE verifier for provider
// tokens. A non-success response, network error or structurally invalid body
// fails with ErrTokenExchangeFailed; a malformed payload is never partially
// trusted.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (*Tokens, error) {
	token, err := c.oauth2Config.Exchange(c.withHTTPClient(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}

	tokens, err := tokensFromOAuth2(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	if tokens.IDToken == "" {
		return nil, fmt.Errorf("%w: missing id_token in response", ErrTokenExchangeFailed)
	}
	return tokens, nil
}

// Refresh redeems a refresh token for a new token set. On ErrRefreshFailed
// the caller must destroy the session and force re-authentication.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", ErrRefreshFailed)
	}

	source := c.oauth2Config.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	tokens, err := tokensFromOAuth2(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	// Providers may rotate the refresh token; keep the old one if they don't.
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

// Revoke invalidates a refresh token at the provider. The returned error
// reports the upstream outcome; callers treat it as best effort because
// logout must complete locally regardless of revocation success. Revoking
// an empty token, or against a provider without a revocation endpoint, is
// a no-op.
func (c *Client) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if c.revocationURL == "" {
		c.logger.Debug("provider does not advertise a revocation endpoint, skipping revoke")
		return nil
	}

	form := url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build token revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(c.oauth2Config.ClientID), url.QueryEscape(c.oauth2Config.ClientSecret))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token revocation request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider rejected token revocation: status %d", resp.StatusCode)
	}
	return nil
}

// withHTTPClient pins the oauth2 transport to this client's HTTP client so
// timeouts apply to exchange and refresh calls.
func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// tokensFromOAuth2 maps and validates an oauth2 token response.
func tokensFromOAuth2(token *oauth2.Token) (*Tokens, error) {
	if token.AccessToken == "" {
		return nil, fmt.Errorf("missing access token in response")
	}
	tokens := &Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if raw, ok := token.Extra("id_token").(string); ok {
		tokens.IDToken = raw
	}
	return tokens, nil
}
