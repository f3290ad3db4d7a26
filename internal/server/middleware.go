package server

import (
	"net/http"
)

const sessionCookie = "tmuxdeck_session"

// tokenFromRequest reads the bearer session token from the Authorization
// header, the session cookie, or a "token" query parameter. The query
// parameter is accepted on every request; it exists for WS upgrades, since
// browsers can't set headers on the handshake.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		return h[7:]
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// requireAuth wraps a handler with §4.F's session check. When no PIN is
// configured, Gate.Authenticate passes every request through unconditionally.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.gate.Authenticate(tokenFromRequest(r)); err != nil {
			writeErr(w, err)
			return
		}
		next(w, r)
	})
}
