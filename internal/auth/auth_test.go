package auth

import (
	"testing"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
)

type memPINStore struct {
	hash, salt string
}

func (m *memPINStore) LoadPIN() (string, string, error) { return m.hash, m.salt, nil }
func (m *memPINStore) SavePIN(hash, salt string) error {
	m.hash, m.salt = hash, salt
	return nil
}

func TestGate_NoPINConfigured_AuthenticatesAnyToken(t *testing.T) {
	g, err := New(&memPINStore{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.PinSet() {
		t.Fatal("expected PinSet false with no stored pin")
	}
	if err := g.Authenticate(""); err != nil {
		t.Fatalf("expected first-use window to authenticate, got %v", err)
	}
}

func TestGate_Login_WrongPINIsUnauthorized(t *testing.T) {
	store := &memPINStore{}
	g, err := New(store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := g.SetPIN("1234"); err != nil {
		t.Fatalf("SetPIN: %v", err)
	}

	if _, err := g.Login("0000"); apperr.KindOf(err) != apperr.Unauthorized {
		t.Fatalf("expected Unauthorized for wrong pin, got %v", err)
	}
	sess, err := g.Login("1234")
	if err != nil {
		t.Fatalf("expected correct pin to succeed, got %v", err)
	}
	if sess.Token == "" {
		t.Fatal("expected a non-empty session token")
	}
}

func TestGate_Authenticate_UnknownTokenAfterPINSetIsUnauthorized(t *testing.T) {
	g, err := New(&memPINStore{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := g.SetPIN("1234"); err != nil {
		t.Fatalf("SetPIN: %v", err)
	}
	if err := g.Authenticate("bogus-token"); apperr.KindOf(err) != apperr.Unauthorized {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
}

func TestGate_Authenticate_ValidSessionSucceeds(t *testing.T) {
	g, err := New(&memPINStore{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := g.SetPIN("1234"); err != nil {
		t.Fatalf("SetPIN: %v", err)
	}
	sess, err := g.Login("1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := g.Authenticate(sess.Token); err != nil {
		t.Fatalf("expected valid session to authenticate, got %v", err)
	}
}

func TestGate_Logout_RevokesSession(t *testing.T) {
	g, err := New(&memPINStore{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := g.SetPIN("1234"); err != nil {
		t.Fatalf("SetPIN: %v", err)
	}
	sess, err := g.Login("1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	g.Logout(sess.Token)
	if err := g.Authenticate(sess.Token); apperr.KindOf(err) != apperr.Unauthorized {
		t.Fatalf("expected Unauthorized after logout, got %v", err)
	}
}

func TestGate_IssueSession_BypassesPIN(t *testing.T) {
	g, err := New(&memPINStore{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := g.SetPIN("1234"); err != nil {
		t.Fatalf("SetPIN: %v", err)
	}
	sess := g.IssueSession()
	if err := g.Authenticate(sess.Token); err != nil {
		t.Fatalf("expected pairing-issued session to authenticate, got %v", err)
	}
}

func TestGate_AuthenticateBridge_MatchesHashedToken(t *testing.T) {
	g, err := New(&memPINStore{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	token, hash, err := NewBridgeToken()
	if err != nil {
		t.Fatalf("NewBridgeToken: %v", err)
	}
	g.SetBridgeTokenLookup(func() map[string]string {
		return map[string]string{"bridge-1": hash}
	})

	id, ok := g.AuthenticateBridge(token)
	if !ok || id != "bridge-1" {
		t.Fatalf("expected (bridge-1, true), got (%q, %v)", id, ok)
	}

	if _, ok := g.AuthenticateBridge("wrong-token"); ok {
		t.Fatal("expected wrong token to fail authentication")
	}
}

func TestGate_AuthenticateBridge_NoLookupConfiguredFails(t *testing.T) {
	g, err := New(&memPINStore{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := g.AuthenticateBridge("anything"); ok {
		t.Fatal("expected no lookup configured to fail")
	}
}

func TestNewBridgeToken_PlaintextDoesNotEqualHash(t *testing.T) {
	token, hash, err := NewBridgeToken()
	if err != nil {
		t.Fatalf("NewBridgeToken: %v", err)
	}
	if token == "" || hash == "" {
		t.Fatal("expected non-empty token and hash")
	}
	if token == hash {
		t.Fatal("expected plaintext token and digest to differ")
	}
}
