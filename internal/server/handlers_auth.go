package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
)

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "malformed request body")
	}
	return nil
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]bool{"pinSet": s.gate.PinSet()})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PIN string `json:"pin"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	sess, err := s.gate.Login(req.PIN)
	if err != nil {
		writeErr(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name: sessionCookie, Value: sess.Token, Path: "/",
		HttpOnly: true, SameSite: http.SameSiteLaxMode, Expires: sess.ExpiresAt,
	})
	writeJSONResponse(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.gate.Logout(tokenFromRequest(r))
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSetPIN(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PIN string `json:"pin"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if len(req.PIN) < 4 {
		writeErr(w, apperr.New(apperr.InvalidArgument, "pin must be at least 4 characters"))
		return
	}
	if err := s.gate.SetPIN(req.PIN); err != nil {
		writeErr(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePairQR(w http.ResponseWriter, r *http.Request) {
	png, err := s.issuePairingQR(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) issuePairingQR(r *http.Request) ([]byte, error) {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	_, png, err := s.pairing.Issue(func(token string) string {
		return fmt.Sprintf("%s://%s/auth/pair?token=%s", scheme, r.Host, token)
	})
	return png, err
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if !s.pairing.Redeem(req.Token) {
		writeErr(w, apperr.New(apperr.Unauthorized, "pairing token invalid or expired"))
		return
	}
	sess := s.gate.IssueSession()
	http.SetCookie(w, &http.Cookie{
		Name: sessionCookie, Value: sess.Token, Path: "/",
		HttpOnly: true, SameSite: http.SameSiteLaxMode, Expires: sess.ExpiresAt,
	})
	writeJSONResponse(w, http.StatusOK, sess)
}
