// Package oauth implements the relying-party side of the OAuth2
// Authorization Code flow with PKCE against a delegated identity provider.
//
// It covers four concerns:
//
//   - PKCE verifier/challenge generation (GeneratePKCE)
//   - opaque, tamper-evident state and flow-ticket encoding (StateCodec)
//   - the back-channel token exchange, refresh and revocation calls (Client)
//   - cryptographic ID token verification against the provider's rotating
//     key set (Verifier)
//
// All provider responses are parsed strictly: a structurally invalid payload
// is rejected rather than partially trusted. Verification failures are never
// downgraded; an unverified token must not feed an authorization decision.
package oauth
