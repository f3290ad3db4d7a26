// Package auth implements the Auth & Session Gate (§4.F): optional PIN
// login, opaque session tokens, and bridge-token recognition for the
// bridge WebSocket's first frame.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/model"
)

// sessionTTL matches §4.F's "7-day expiry".
const sessionTTL = 7 * 24 * time.Hour

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// PersistPIN is the one thing the gate needs durable (the PIN hash and
// salt), declared here to avoid a direct dependency on internal/store (which would otherwise create
// an import cycle once store callers include auth-adjacent endpoints).
type PersistPIN interface {
	LoadPIN() (hash, salt string, err error)
	SavePIN(hash, salt string) error
}

// Gate owns PIN verification and the in-memory session table.
type Gate struct {
	store PersistPIN

	mu       sync.RWMutex
	pinHash  []byte
	pinSalt  []byte
	sessions map[string]model.AuthSession

	bridgeTokens func() map[string]string // bridgeID -> sha256(token) hex, refreshed by caller
}

func New(store PersistPIN) (*Gate, error) {
	g := &Gate{store: store, sessions: make(map[string]model.AuthSession)}
	hashHex, saltHex, err := store.LoadPIN()
	if err != nil {
		return nil, err
	}
	if hashHex != "" {
		h, err := hex.DecodeString(hashHex)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "corrupt pin hash")
		}
		s, err := hex.DecodeString(saltHex)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "corrupt pin salt")
		}
		g.pinHash, g.pinSalt = h, s
	}
	return g, nil
}

// PinSet reports whether a PIN has been configured (§4.F /auth/status).
func (g *Gate) PinSet() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.pinHash) > 0
}

func hashPIN(pin string, salt []byte) []byte {
	return argon2.IDKey([]byte(pin), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// SetPIN installs or replaces the PIN (4+ digits enforced by the caller's
// HTTP validation layer).
func (g *Gate) SetPIN(pin string) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return apperr.Wrap(apperr.Internal, err, "generate pin salt")
	}
	hash := hashPIN(pin, salt)

	g.mu.Lock()
	g.pinHash, g.pinSalt = hash, salt
	g.mu.Unlock()

	return g.store.SavePIN(hex.EncodeToString(hash), hex.EncodeToString(salt))
}

// IssueSession mints a session token unconditionally, bypassing PIN
// verification — used by the pairing flow, where a redeemed single-use QR
// token already proves physical possession of the device.
func (g *Gate) IssueSession() model.AuthSession {
	return g.newSession()
}

// Login verifies pin and, on success, issues a new session token.
func (g *Gate) Login(pin string) (model.AuthSession, error) {
	g.mu.RLock()
	hash, salt := g.pinHash, g.pinSalt
	g.mu.RUnlock()

	if len(hash) == 0 {
		return g.newSession(), nil // no PIN configured: first-use window (§4.F)
	}
	candidate := hashPIN(pin, salt)
	if subtle.ConstantTimeCompare(candidate, hash) != 1 {
		return model.AuthSession{}, apperr.New(apperr.Unauthorized, "invalid pin")
	}
	return g.newSession(), nil
}

func (g *Gate) newSession() model.AuthSession {
	token := randomToken()
	sess := model.AuthSession{
		Token:     token,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(sessionTTL),
	}
	g.mu.Lock()
	g.sessions[token] = sess
	g.mu.Unlock()
	return sess
}

func randomToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Authenticate validates a session cookie token, returning Unauthorized if
// missing/expired. If no PIN is configured, every token (including empty)
// passes — the documented first-use window.
func (g *Gate) Authenticate(token string) error {
	if !g.PinSet() {
		return nil
	}
	g.mu.RLock()
	sess, ok := g.sessions[token]
	g.mu.RUnlock()
	if !ok || time.Now().After(sess.ExpiresAt) {
		return apperr.New(apperr.Unauthorized, "session expired or missing")
	}
	return nil
}

// Logout revokes a session token.
func (g *Gate) Logout(token string) {
	g.mu.Lock()
	delete(g.sessions, token)
	g.mu.Unlock()
}

// SweepExpired drops expired sessions; intended to run on a periodic ticker
// alongside the registry's poll loop.
func (g *Gate) SweepExpired() {
	now := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	for tok, sess := range g.sessions {
		if now.After(sess.ExpiresAt) {
			delete(g.sessions, tok)
		}
	}
}

// SetBridgeTokenLookup wires a lookup from bridgeId to its hashed token, so
// AuthenticateBridge can validate the reverse-WebSocket's first frame
// without importing internal/store directly (avoids a cycle with bridge
// records living in the State Store).
func (g *Gate) SetBridgeTokenLookup(lookup func() map[string]string) {
	g.mu.Lock()
	g.bridgeTokens = lookup
	g.mu.Unlock()
}

// AuthenticateBridge checks a bridge token against the configured set,
// returning the matching bridgeId (§4.D bridge auth, §4.F "bridge tokens are
// not session tokens").
func (g *Gate) AuthenticateBridge(token string) (bridgeID string, ok bool) {
	g.mu.RLock()
	lookup := g.bridgeTokens
	g.mu.RUnlock()
	if lookup == nil {
		return "", false
	}
	hashed := hashBridgeToken(token)
	for id, want := range lookup() {
		if subtle.ConstantTimeCompare([]byte(hashed), []byte(want)) == 1 {
			return id, true
		}
	}
	return "", false
}

// hashBridgeToken is a plain digest, not the PIN's argon2 path: bridge
// tokens are already high-entropy random values, so a memory-hard KDF buys
// nothing and would make every reconnect attempt needlessly expensive.
func hashBridgeToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewBridgeToken mints a plaintext bridge token and its stored digest. The
// plaintext is returned to the caller exactly once, at bridge creation.
func NewBridgeToken() (token, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", apperr.Wrap(apperr.Internal, err, "generate bridge token")
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, hashBridgeToken(token), nil
}
