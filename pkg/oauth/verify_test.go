package oauth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://provider.example.com"
	testClientID = "cardmass-web"
)

// signToken builds a compact RS256 JWS over the given claims.
func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims map[string]interface{}) string {
	t.Helper()

	header := map[string]string{"alg": "RS256", "typ": "JWT", "kid": kid}
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)
	claimsJSON, err := json.Marshal(claims)
	require.NoError(t, err)

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." +
		base64.RawURLEncoding.EncodeToString(claimsJSON)

	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// serveJWKS returns an httptest server publishing the given keys as a JWKS
// document.
func serveJWKS(t *testing.T, keys map[string]*rsa.PrivateKey) *httptest.Server {
	t.Helper()

	type jwk struct {
		Kty string `json:"kty"`
		Alg string `json:"alg"`
		Use string `json:"use"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	for kid, key := range keys {
		doc.Keys = append(doc.Keys, jwk{
			Kty: "RSA",
			Alg: "RS256",
			Use: "sig",
			Kid: kid,
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   "AQAB",
		})
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}))
}

func defaultClaims() map[string]interface{} {
	now := time.Now()
	return map[string]interface{}{
		"iss":   testIssuer,
		"aud":   testClientID,
		"sub":   "subject-123",
		"email": "user@example.com",
		"name":  "Test User",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
}

func TestVerifier_Parse_Valid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := serveJWKS(t, map[string]*rsa.PrivateKey{"key-1": key})
	defer jwks.Close()

	verifier := NewVerifier(testIssuer, testClientID, oidc.NewRemoteKeySet(context.Background(), jwks.URL))

	raw := signToken(t, key, "key-1", defaultClaims())
	claims, err := verifier.Parse(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "subject-123", claims.SubjectID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "Test User", claims.Name)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, time.Minute)
}

func TestVerifier_Parse_UnknownSigningKey(t *testing.T) {
	published, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rogue, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := serveJWKS(t, map[string]*rsa.PrivateKey{"key-1": published})
	defer jwks.Close()

	verifier := NewVerifier(testIssuer, testClientID, oidc.NewRemoteKeySet(context.Background(), jwks.URL))

	// Syntactically valid token signed by a key absent from the key set.
	raw := signToken(t, rogue, "key-2", defaultClaims())
	_, err = verifier.Parse(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_Parse_Expired(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := serveJWKS(t, map[string]*rsa.PrivateKey{"key-1": key})
	defer jwks.Close()

	verifier := NewVerifier(testIssuer, testClientID, oidc.NewRemoteKeySet(context.Background(), jwks.URL))

	claims := defaultClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()

	// Signature is valid; expiry alone must fail it.
	raw := signToken(t, key, "key-1", claims)
	_, err = verifier.Parse(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_Parse_WrongAudience(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := serveJWKS(t, map[string]*rsa.PrivateKey{"key-1": key})
	defer jwks.Close()

	verifier := NewVerifier(testIssuer, testClientID, oidc.NewRemoteKeySet(context.Background(), jwks.URL))

	claims := defaultClaims()
	claims["aud"] = "some-other-app"
	raw := signToken(t, key, "key-1", claims)

	_, err = verifier.Parse(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_Parse_WrongIssuer(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := serveJWKS(t, map[string]*rsa.PrivateKey{"key-1": key})
	defer jwks.Close()

	verifier := NewVerifier(testIssuer, testClientID, oidc.NewRemoteKeySet(context.Background(), jwks.URL))

	claims := defaultClaims()
	claims["iss"] = "https://evil.example.com"
	raw := signToken(t, key, "key-1", claims)

	_, err = verifier.Parse(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_Parse_Garbage(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := serveJWKS(t, map[string]*rsa.PrivateKey{"key-1": key})
	defer jwks.Close()

	verifier := NewVerifier(testIssuer, testClientID, oidc.NewRemoteKeySet(context.Background(), jwks.URL))

	for _, raw := range []string{"", "not-a-jwt", "a.b", "a.b.c.d"} {
		_, err := verifier.Parse(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", raw)
	}
}

func TestParseUnsafe(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	raw := signToken(t, key, "unknown-key", defaultClaims())

	claims, err := ParseUnsafe(raw)
	require.NoError(t, err)
	assert.Equal(t, "subject-123", claims.SubjectID)
	assert.Equal(t, "user@example.com", claims.Email)
}

func TestParseUnsafe_Malformed(t *testing.T) {
	for _, raw := range []string{"", "one.two", "a.!!!.c", fmt.Sprintf("h.%s.s", base64.RawURLEncoding.EncodeToString([]byte("not json")))} {
		_, err := ParseUnsafe(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", raw)
	}
}
