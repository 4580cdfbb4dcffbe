package middleware

import (
	"net/http"

	"github.com/moldovancsaba/cardmass-sub001/pkg/contextkeys"
	"github.com/moldovancsaba/cardmass-sub001/pkg/httputil"
	"github.com/moldovancsaba/cardmass-sub001/pkg/identity"
)

// CookieNames tells the middleware where each credential system keeps its
// token.
type CookieNames struct {
	SSOSession string
	Legacy     string
}

// CredentialsFromRequest extracts whatever auth cookies the request carries.
func CredentialsFromRequest(r *http.Request, cookies CookieNames) identity.Credentials {
	var creds identity.Credentials
	if c, err := r.Cookie(cookies.SSOSession); err == nil {
		creds.SSOSessionID = c.Value
	}
	if c, err := r.Cookie(cookies.Legacy); err == nil {
		creds.LegacyToken = c.Value
	}
	return creds
}

// ResolveUser runs the unified auth resolver on every request and attaches
// the result, if any, to the context. It never rejects: anonymous requests
// pass through so public routes keep working.
func ResolveUser(resolver *identity.Resolver, cookies CookieNames) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := CredentialsFromRequest(r, cookies)
			if user := resolver.ResolveUser(r.Context(), creds); user != nil {
				r = r.WithContext(contextkeys.WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUser extracts the resolved user from the request, or nil.
func GetUser(r *http.Request) *identity.UnifiedUser {
	user, ok := r.Context().Value(contextkeys.UserKey).(*identity.UnifiedUser)
	if !ok {
		return nil
	}
	return user
}

// RequireUser rejects unauthenticated requests with a 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUser(r) == nil {
			httputil.WriteErrorCode(w, http.StatusUnauthorized, "authentication_required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
