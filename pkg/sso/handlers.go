package sso

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/moldovancsaba/cardmass-sub001/pkg/httputil"
	"github.com/moldovancsaba/cardmass-sub001/pkg/identity"
	"github.com/moldovancsaba/cardmass-sub001/pkg/middleware"
	"github.com/moldovancsaba/cardmass-sub001/pkg/oauth"
	"github.com/moldovancsaba/cardmass-sub001/pkg/observability"
	"github.com/moldovancsaba/cardmass-sub001/pkg/permission"
	"github.com/moldovancsaba/cardmass-sub001/pkg/session"
)

// OAuthClient is the subset of the token exchange client the handlers use.
type OAuthClient interface {
	AuthCodeURL(pair oauth.PKCEPair, state string, prompt string) string
	Exchange(ctx context.Context, code, verifier string) (*oauth.Tokens, error)
	Revoke(ctx context.Context, refreshToken string) error
	EndSessionURL() string
}

// TokenVerifier validates ID tokens from the provider.
type TokenVerifier interface {
	Parse(ctx context.Context, rawIDToken string) (*oauth.IdentityClaims, error)
}

// PermissionAPI reads and requests per-app access records.
type PermissionAPI interface {
	Get(ctx context.Context, subjectID, accessToken string) (*permission.AppPermission, error)
	Request(ctx context.Context, subjectID, accessToken string) (*permission.AppPermission, error)
}

// SessionManager is the session lifecycle surface the handlers use.
type SessionManager interface {
	Create(ctx context.Context, tokens oauth.Tokens, claims oauth.IdentityClaims, perm permission.AppPermission) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	Refresh(ctx context.Context, s *session.Session) (*session.Session, error)
	Destroy(ctx context.Context, id string) error
}

// CookieConfig describes the cookies the flow issues.
type CookieConfig struct {
	// SessionName is the long-lived session cookie.
	SessionName string
	// SessionTTL bounds the session cookie lifetime.
	SessionTTL time.Duration
	// VerifierName is the short-lived flow ticket cookie holding the signed
	// PKCE verifier between start and callback.
	VerifierName string
	// VerifierTTL bounds the login flow's time budget.
	VerifierTTL time.Duration
	// Legacy names the legacy credential cookie read by the auth check.
	Legacy string
	// Secure marks cookies Secure; off only for local development.
	Secure bool
}

// Config holds handler settings beyond the collaborators.
type Config struct {
	Cookies CookieConfig

	// LoginPath receives flow failures as ?error=<code> redirects.
	LoginPath string
	// PendingPath is where users with a pending access request land.
	PendingPath string
	// RevokedPath is where users with revoked access land.
	RevokedPath string
}

// Handlers implements the login flow endpoints.
type Handlers struct {
	client   OAuthClient
	verifier TokenVerifier
	codec    *oauth.StateCodec
	perms    PermissionAPI
	sessions SessionManager
	resolver *identity.Resolver
	metrics  *observability.Metrics
	config   Config
	logger   *logrus.Logger
}

// NewHandlers wires the login flow endpoints.
func NewHandlers(
	client OAuthClient,
	verifier TokenVerifier,
	codec *oauth.StateCodec,
	perms PermissionAPI,
	sessions SessionManager,
	resolver *identity.Resolver,
	metrics *observability.Metrics,
	config Config,
	logger *logrus.Logger,
) *Handlers {
	if config.LoginPath == "" {
		config.LoginPath = "/login"
	}
	if config.PendingPath == "" {
		config.PendingPath = "/access-pending"
	}
	if config.RevokedPath == "" {
		config.RevokedPath = "/access-revoked"
	}
	return &Handlers{
		client:   client,
		verifier: verifier,
		codec:    codec,
		perms:    perms,
		sessions: sessions,
		resolver: resolver,
		metrics:  metrics,
		config:   config,
		logger:   logger,
	}
}

// RegisterRoutes registers the login flow routes. loginMiddleware applies
// only to the interactive /login endpoints, which is where rate limiting
// belongs.
func (h *Handlers) RegisterRoutes(router *mux.Router, loginMiddleware ...mux.MiddlewareFunc) {
	login := router.PathPrefix("/login").Subrouter()
	for _, mw := range loginMiddleware {
		login.Use(mw)
	}
	login.HandleFunc("/start", h.startLogin).Methods(http.MethodGet)
	login.HandleFunc("/callback", h.handleCallback).Methods(http.MethodGet)

	router.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	router.HandleFunc("/auth/check", h.authCheck).Methods(http.MethodGet)
}

// startLogin begins the authorization code flow: a fresh PKCE pair per
// attempt, the verifier sealed into a short-lived cookie, and a signed state
// carrying the CSRF token and return target.
func (h *Handlers) startLogin(w http.ResponseWriter, r *http.Request) {
	returnTo := sanitizeReturnTo(httputil.ParseQueryString(r, "returnTo", ""))
	prompt := httputil.ParseQueryString(r, "prompt", "")

	pair := oauth.GeneratePKCE()

	ticket, err := h.codec.EncodeTicket(pair.Verifier)
	if err != nil {
		h.logger.WithError(err).Error("failed to seal flow ticket")
		httputil.WriteInternalError(w)
		return
	}
	state, err := h.codec.Encode(returnTo)
	if err != nil {
		h.logger.WithError(err).Error("failed to seal state")
		httputil.WriteInternalError(w)
		return
	}

	h.setVerifierCookie(w, ticket)
	h.metrics.LoginStartedTotal.Inc()

	http.Redirect(w, r, h.client.AuthCodeURL(pair, state, prompt), http.StatusFound)
}

// handleCallback finishes the flow. The verifier cookie is cleared
// unconditionally: each login attempt gets exactly one exchange try.
func (h *Handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.clearVerifierCookie(w)

	if errCode := r.URL.Query().Get("error"); errCode != "" {
		h.logger.WithField("provider_error", errCode).Info("provider denied authorization")
		h.failLogin(w, r, "provider_denied")
		return
	}

	state, err := h.codec.Decode(r.URL.Query().Get("state"))
	if err != nil {
		h.logger.WithError(err).Warn("state validation failed")
		h.failLogin(w, r, "invalid_state")
		return
	}

	ticketCookie, err := r.Cookie(h.config.Cookies.VerifierName)
	if err != nil {
		h.failLogin(w, r, "flow_expired")
		return
	}
	ticket, err := h.codec.DecodeTicket(ticketCookie.Value)
	if err != nil {
		h.logger.WithError(err).Warn("flow ticket validation failed")
		h.failLogin(w, r, "flow_expired")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.failLogin(w, r, "invalid_state")
		return
	}

	tokens, err := h.client.Exchange(ctx, code, ticket.Verifier)
	if err != nil {
		h.logger.WithError(err).Warn("code exchange failed")
		h.metrics.TokenExchangesTotal.WithLabelValues("failure").Inc()
		h.failLogin(w, r, "exchange_failed")
		return
	}
	h.metrics.TokenExchangesTotal.WithLabelValues("success").Inc()

	claims, err := h.verifier.Parse(ctx, tokens.IDToken)
	if err != nil {
		h.logger.WithError(err).Warn("id token rejected")
		h.failLogin(w, r, "invalid_token")
		return
	}

	perm, err := h.resolvePermission(ctx, claims.SubjectID, tokens.AccessToken)
	if err != nil {
		h.logger.WithError(err).Error("permission backend unavailable during login")
		h.failLogin(w, r, "permission_unavailable")
		return
	}

	switch {
	case perm.HasAccess():
		sess, err := h.sessions.Create(ctx, *tokens, *claims, *perm)
		if err != nil {
			h.logger.WithError(err).Error("failed to create session")
			h.failLogin(w, r, "session_unavailable")
			return
		}
		h.setSessionCookie(w, sess.ID)
		h.metrics.LoginCompletedTotal.WithLabelValues("approved").Inc()
		h.metrics.SessionsCreatedTotal.Inc()
		h.metrics.SessionsActive.Inc()

		target := state.ReturnTo
		if target == "" {
			target = "/"
		}
		http.Redirect(w, r, target, http.StatusFound)

	case perm.IsRevoked():
		h.metrics.LoginCompletedTotal.WithLabelValues("revoked").Inc()
		http.Redirect(w, r, h.config.RevokedPath, http.StatusFound)

	default:
		// No session cookie until access is approved.
		h.metrics.LoginCompletedTotal.WithLabelValues("pending").Inc()
		http.Redirect(w, r, h.config.PendingPath, http.StatusFound)
	}
}

// resolvePermission reads the subject's access record, filing a pending
// request on first contact so admins see the user in their queue.
func (h *Handlers) resolvePermission(ctx context.Context, subjectID, accessToken string) (*permission.AppPermission, error) {
	perm, err := h.perms.Get(ctx, subjectID, accessToken)
	if err != nil {
		return nil, err
	}
	if perm.Status != permission.StatusNone {
		return perm, nil
	}
	return h.perms.Request(ctx, subjectID, accessToken)
}

// logout destroys the local session and revokes the refresh token upstream.
// Always succeeds locally; revocation is best effort.
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if cookie, err := r.Cookie(h.config.Cookies.SessionName); err == nil && cookie.Value != "" {
		sess, err := h.sessions.Get(ctx, cookie.Value)
		if err != nil {
			h.logger.WithError(err).Warn("session lookup failed during logout")
		}
		if sess != nil {
			if rt := sess.Tokens.RefreshToken; rt != "" {
				status := "success"
				if err := h.client.Revoke(ctx, rt); err != nil {
					h.logger.WithError(err).Warn("refresh token revocation failed")
					status = "failure"
				}
				h.metrics.TokenRevocationsTotal.WithLabelValues(status).Inc()
			}
			if err := h.sessions.Destroy(ctx, sess.ID); err != nil {
				h.logger.WithError(err).Warn("failed to destroy session during logout")
			}
			h.metrics.SessionsDestroyedTotal.WithLabelValues("logout").Inc()
			h.metrics.SessionsActive.Dec()
		}
	}

	h.clearSessionCookie(w)
	h.metrics.LogoutTotal.Inc()

	// Providers advertising an end-session endpoint get the chance to clear
	// their own cookie too.
	if endSession := h.client.EndSessionURL(); endSession != "" {
		http.Redirect(w, r, endSession, http.StatusSeeOther)
		return
	}
	httputil.WriteNoContent(w)
}

// authCheckResponse is the unified auth check body.
type authCheckResponse struct {
	Authenticated bool                  `json:"authenticated"`
	User          *identity.UnifiedUser `json:"user,omitempty"`
}

// authCheck reports the request's merged identity across both credential
// systems. Near-expiry SSO sessions are refreshed inline so a polling
// frontend keeps sessions alive without a dedicated refresh endpoint.
func (h *Handlers) authCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	creds := middleware.CredentialsFromRequest(r, middleware.CookieNames{
		SSOSession: h.config.Cookies.SessionName,
		Legacy:     h.config.Cookies.Legacy,
	})

	if creds.SSOSessionID != "" {
		if err := h.refreshSession(ctx, creds.SSOSessionID); err != nil {
			h.clearSessionCookie(w)
			creds.SSOSessionID = ""
		}
	}

	user := h.resolver.ResolveUser(ctx, creds)
	httputil.WriteSuccess(w, authCheckResponse{
		Authenticated: user != nil,
		User:          user,
	})
}

// refreshSession renews the session's tokens if they are near expiry.
// Returns an error only when re-authentication is required.
func (h *Handlers) refreshSession(ctx context.Context, sessionID string) error {
	sess, err := h.sessions.Get(ctx, sessionID)
	if err != nil || sess == nil {
		// Store trouble degrades to unauthenticated; missing means expired.
		return nil
	}
	if _, err := h.sessions.Refresh(ctx, sess); err != nil {
		if errors.Is(err, session.ErrReauthRequired) {
			h.metrics.SessionsDestroyedTotal.WithLabelValues("refresh_failed").Inc()
			h.metrics.SessionsActive.Dec()
			return err
		}
		h.logger.WithError(err).Warn("session refresh failed transiently")
	}
	return nil
}

// failLogin redirects a failed flow back to the login page with a stable
// error code. Codes never carry provider detail.
func (h *Handlers) failLogin(w http.ResponseWriter, r *http.Request, code string) {
	h.metrics.LoginCompletedTotal.WithLabelValues("error").Inc()
	redirect := h.config.LoginPath + "?error=" + url.QueryEscape(code)
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Cookies.SessionName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(h.config.Cookies.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Cookies.SessionName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) setVerifierCookie(w http.ResponseWriter, ticket string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Cookies.VerifierName,
		Value:    ticket,
		Path:     "/login",
		MaxAge:   int(h.config.Cookies.VerifierTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearVerifierCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Cookies.VerifierName,
		Value:    "",
		Path:     "/login",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sanitizeReturnTo restricts post-login redirect targets to same-origin
// paths. Anything else becomes "/" so the flow cannot be used as an open
// redirector.
func sanitizeReturnTo(target string) string {
	if target == "" {
		return ""
	}
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	if strings.Contains(target, "\\") {
		return "/"
	}
	return target
}
