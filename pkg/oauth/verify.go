package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Verifier verifies ID token signatures against the provider's published,
// rotating key set and validates the standard claims. Key sets are cached;
// on an unrecognized key id the set is refetched exactly once before the
// token is rejected (go-oidc's remote key set behavior).
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

func newVerifier(v *oidc.IDTokenVerifier) *Verifier {
	return &Verifier{verifier: v}
}

// NewVerifier builds a Verifier over an explicit issuer and key set. Used
// when the key set is constructed separately from provider discovery.
func NewVerifier(issuerURL, clientID string, keySet oidc.KeySet) *Verifier {
	return newVerifier(oidc.NewVerifier(issuerURL, keySet, &oidc.Config{ClientID: clientID}))
}

// idTokenClaims is the subset of ID token claims this application consumes.
type idTokenClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Parse verifies the token's signature, issuer, audience, expiry and
// not-before, and returns the asserted identity. Any failure wraps
// ErrInvalidToken; a token that fails here must never be used for an
// authorization decision.
func (v *Verifier) Parse(ctx context.Context, rawIDToken string) (*IdentityClaims, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", ErrInvalidToken, err)
	}
	if idToken.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &IdentityClaims{
		SubjectID: idToken.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		IssuedAt:  idToken.IssuedAt,
		ExpiresAt: idToken.Expiry,
	}, nil
}

// ParseUnsafe decodes a token payload without any verification. Diagnostics
// only: the result must never feed identity or permission logic.
func ParseUnsafe(rawIDToken string) (*IdentityClaims, error) {
	parts := strings.Split(rawIDToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: not a compact JWT", ErrInvalidToken)
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid payload encoding", ErrInvalidToken)
	}

	var claims struct {
		Subject   string `json:"sub"`
		Email     string `json:"email"`
		Name      string `json:"name"`
		IssuedAt  int64  `json:"iat"`
		ExpiresAt int64  `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: invalid payload", ErrInvalidToken)
	}

	return &IdentityClaims{
		SubjectID: claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		IssuedAt:  time.Unix(claims.IssuedAt, 0),
		ExpiresAt: time.Unix(claims.ExpiresAt, 0),
	}, nil
}
