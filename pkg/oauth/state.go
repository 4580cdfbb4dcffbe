package oauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// minSecretLen is the minimum HMAC secret length in bytes.
const minSecretLen = 32

// State is the decoded content of an OAuth state value. It is self-contained
// and never persisted server-side.
type State struct {
	CSRF     string    `json:"csrf"`
	ReturnTo string    `json:"return_to,omitempty"`
	IssuedAt time.Time `json:"issued_at"`
}

// FlowTicket is the signed content of the verifier cookie: the PKCE verifier
// plus an explicit flow-start timestamp so the login's time budget does not
// depend solely on cookie garbage collection.
type FlowTicket struct {
	Verifier  string    `json:"verifier"`
	StartedAt time.Time `json:"started_at"`
}

// StateCodec encodes and decodes tamper-evident, expiring blobs. The wire
// format is base64url(JSON) + "." + base64url(HMAC-SHA256).
type StateCodec struct {
	secret []byte
	maxAge time.Duration
}

// NewStateCodec creates a codec. The secret must be at least 32 bytes.
func NewStateCodec(secret []byte, maxAge time.Duration) (*StateCodec, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("state secret must be at least %d bytes, got %d", minSecretLen, len(secret))
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("state max age must be positive")
	}
	return &StateCodec{secret: secret, maxAge: maxAge}, nil
}

// Encode packs a random CSRF token, the optional return target and the issue
// time into a single opaque string.
func (c *StateCodec) Encode(returnTo string) (string, error) {
	csrf := make([]byte, 16)
	if _, err := rand.Read(csrf); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return c.seal(State{
		CSRF:     base64.RawURLEncoding.EncodeToString(csrf),
		ReturnTo: returnTo,
		IssuedAt: time.Now().UTC(),
	})
}

// Decode validates and unpacks a state value. It fails with ErrInvalidState
// if the encoding is malformed, the signature does not match, or the value
// is older than the codec's max age.
func (c *StateCodec) Decode(value string) (*State, error) {
	var state State
	if err := c.open(value, &state); err != nil {
		return nil, err
	}
	if state.CSRF == "" {
		return nil, fmt.Errorf("%w: missing csrf token", ErrInvalidState)
	}
	if c.expired(state.IssuedAt) {
		return nil, fmt.Errorf("%w: expired", ErrInvalidState)
	}
	return &state, nil
}

// EncodeTicket seals a PKCE verifier with the flow-start timestamp for
// storage in the verifier cookie.
func (c *StateCodec) EncodeTicket(verifier string) (string, error) {
	return c.seal(FlowTicket{Verifier: verifier, StartedAt: time.Now().UTC()})
}

// DecodeTicket validates and unpacks a verifier cookie value.
func (c *StateCodec) DecodeTicket(value string) (*FlowTicket, error) {
	var ticket FlowTicket
	if err := c.open(value, &ticket); err != nil {
		return nil, err
	}
	if ticket.Verifier == "" {
		return nil, fmt.Errorf("%w: missing verifier", ErrInvalidState)
	}
	if c.expired(ticket.StartedAt) {
		return nil, fmt.Errorf("%w: flow expired", ErrInvalidState)
	}
	return &ticket, nil
}

func (c *StateCodec) seal(v interface{}) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state payload: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + c.sign(encoded), nil
}

func (c *StateCodec) open(value string, dest interface{}) error {
	encoded, sig, ok := strings.Cut(value, ".")
	if !ok || encoded == "" || sig == "" {
		return fmt.Errorf("%w: malformed encoding", ErrInvalidState)
	}
	expected := c.sign(encoded)
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidState)
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("%w: invalid payload encoding", ErrInvalidState)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("%w: invalid payload", ErrInvalidState)
	}
	return nil
}

func (c *StateCodec) sign(encoded string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (c *StateCodec) expired(issuedAt time.Time) bool {
	if issuedAt.IsZero() {
		return true
	}
	return time.Since(issuedAt) > c.maxAge
}
