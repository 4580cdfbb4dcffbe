package oauth

import "errors"

var (
	// ErrInvalidState indicates a state value that is malformed, has a bad
	// signature, or is expired.
	ErrInvalidState = errors.New("oauth: invalid state")

	// ErrInvalidToken indicates an ID token that failed signature or claim
	// verification.
	ErrInvalidToken = errors.New("oauth: invalid token")

	// ErrTokenExchangeFailed indicates the authorization_code grant failed or
	// returned a structurally invalid response.
	ErrTokenExchangeFailed = errors.New("oauth: token exchange failed")

	// ErrRefreshFailed indicates the refresh_token grant failed. Callers must
	// invalidate the session and force re-authentication.
	ErrRefreshFailed = errors.New("oauth: token refresh failed")
)
