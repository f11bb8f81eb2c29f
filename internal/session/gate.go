package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 2 * time.Hour

const tokenBytes = 32

// Options configures a Gate. SecretHash takes precedence over Secret.
type Options struct {
	Secret     string
	SecretHash string
	TTL        time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Gate holds the single active session.
type Gate struct {
	secret     []byte
	secretHash string
	ttl        time.Duration
	now        func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewGate creates a gate with no active session.
func NewGate(opts Options) *Gate {
	g := &Gate{
		secretHash: opts.SecretHash,
		ttl:        opts.TTL,
		now:        opts.Now,
	}
	if opts.SecretHash == "" && opts.Secret != "" {
		g.secret = []byte(opts.Secret)
	}
	if g.ttl <= 0 {
		g.ttl = DefaultTTL
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Enabled reports whether a secret is configured.
func (g *Gate) Enabled() bool {
	return g.secretHash != "" || len(g.secret) > 0
}

// TTL returns the session lifetime.
func (g *Gate) TTL() time.Duration {
	return g.ttl
}

// Login checks secret and, on a match, issues a new token that replaces
// any active session. On failure the active session is left untouched.
func (g *Gate) Login(secret string) (string, error) {
	if !g.Enabled() {
		return "", ErrDisabled
	}
	ok, err := g.verify(secret)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidSecret
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	g.token = token
	g.expiry = g.now().Add(g.ttl)
	g.mu.Unlock()
	return token, nil
}

// Logout clears the active session. It is safe to call when logged out.
func (g *Gate) Logout() {
	g.mu.Lock()
	g.token = ""
	g.expiry = time.Time{}
	g.mu.Unlock()
}

// IsAuthorized reports whether token is the active token and has not
// expired. An expired session is cleared.
func (g *Gate) IsAuthorized(token string) bool {
	if token == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token == "" {
		return false
	}
	if !g.now().Before(g.expiry) {
		g.token = ""
		g.expiry = time.Time{}
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(g.token)) == 1
}

// Expiry returns the active session's expiry, if any.
func (g *Gate) Expiry() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token == "" || !g.now().Before(g.expiry) {
		return time.Time{}, false
	}
	return g.expiry, true
}

func (g *Gate) verify(secret string) (bool, error) {
	if g.secretHash != "" {
		return VerifySecret(secret, g.secretHash)
	}
	return subtle.ConstantTimeCompare([]byte(secret), g.secret) == 1, nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
