package oauth

import "time"

// Tokens holds the provider tokens owned by a session. RefreshToken is
// sensitive and must never be exposed to the client or logged.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry.
func (t *Tokens) Expired() bool {
	return !t.ExpiresAt.IsZero() && time.Now().After(t.ExpiresAt)
}

// ExpiresWithin reports whether the access token expires inside the window.
func (t *Tokens) ExpiresWithin(window time.Duration) bool {
	return !t.ExpiresAt.IsZero() && time.Now().Add(window).After(t.ExpiresAt)
}

// IdentityClaims is the identity asserted by a verified ID token. Instances
// must only ever be derived from Verifier.Parse.
type IdentityClaims struct {
	SubjectID string    `json:"subject_id"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
