package oauth

import (
	"golang.org/x/oauth2"
)

// MethodS256 is the only code challenge method this client uses.
const MethodS256 = "S256"

// PKCEPair binds an authorization code to the client that requested it.
// The verifier is single-use, travels only in a short-lived httpOnly cookie
// and must never be logged.
type PKCEPair struct {
	Verifier  string
	Challenge string
	Method    string
}

// GeneratePKCE produces a fresh verifier/challenge pair. The verifier is
// 32 bytes of cryptographic randomness, base64url encoded; the challenge is
// base64url(SHA-256(verifier)). Entropy-source failure is fatal.
func GeneratePKCE() PKCEPair {
	verifier := oauth2.GenerateVerifier()
	return PKCEPair{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		Method:    MethodS256,
	}
}
