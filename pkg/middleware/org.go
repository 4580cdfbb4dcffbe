package middleware

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/moldovancsaba/cardmass-sub001/pkg/contextkeys"
	"github.com/moldovancsaba/cardmass-sub001/pkg/httputil"
)

// OrgHeader is the required tenant header on org-scoped requests. Its value
// must equal the path's tenant segment exactly (case-sensitive).
const OrgHeader = "X-Organization-UUID"

// OrgIDVar is the mux route variable holding the tenant path segment.
const OrgIDVar = "orgID"

var (
	// ErrInvalidOrgID indicates the path segment is not a well-formed tenant
	// identifier.
	ErrInvalidOrgID = errors.New("invalid organization id")
	// ErrMissingOrgHeader indicates the tenant header is absent or malformed.
	ErrMissingOrgHeader = errors.New("missing organization header")
	// ErrOrgScopeMismatch indicates the path and header identify different
	// tenants.
	ErrOrgScopeMismatch = errors.New("organization scope mismatch")
)

// CheckOrgScope is the pure tenant-consistency check: the path segment must
// be a canonical UUID and the header must match it exactly. It is
// independent of identity; it prevents a request authenticated for one
// tenant from addressing another.
func CheckOrgScope(pathSegment, headerValue string) error {
	if !isCanonicalUUID(pathSegment) {
		return ErrInvalidOrgID
	}
	if headerValue == "" || !isCanonicalUUID(headerValue) {
		return ErrMissingOrgHeader
	}
	if pathSegment != headerValue {
		return ErrOrgScopeMismatch
	}
	return nil
}

// isCanonicalUUID accepts only the 36-character hyphenated form; uuid.Parse
// alone also admits braced, URN and compact variants.
func isCanonicalUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// OrgScope guards tenant-scoped routes. It runs ahead of any business logic
// and rejects with a structured 4xx before handlers see the request. On
// success the validated tenant id is added to the request context. onReject,
// if non-nil, observes each rejection's error code.
func OrgScope(onReject func(code string)) func(http.Handler) http.Handler {
	reject := func(w http.ResponseWriter, status int, code string) {
		if onReject != nil {
			onReject(code)
		}
		httputil.WriteErrorCode(w, status, code)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID, err := httputil.ParsePathString(r, OrgIDVar)
			if err != nil {
				reject(w, http.StatusBadRequest, "invalid_org_id")
				return
			}

			switch err := CheckOrgScope(orgID, r.Header.Get(OrgHeader)); {
			case errors.Is(err, ErrInvalidOrgID):
				reject(w, http.StatusBadRequest, "invalid_org_id")
				return
			case errors.Is(err, ErrMissingOrgHeader):
				reject(w, http.StatusBadRequest, "missing_org_header")
				return
			case errors.Is(err, ErrOrgScopeMismatch):
				reject(w, http.StatusForbidden, "org_scope_mismatch")
				return
			}

			ctx := contextkeys.WithOrgID(r.Context(), orgID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
