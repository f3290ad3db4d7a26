package server

import (
	"net/http"
	"strconv"

	"github.com/msbrogli/tmuxdeck/internal/adapter"
	"github.com/msbrogli/tmuxdeck/internal/apperr"
)

func target(containerID, sessionName string, windowIndex int) adapter.Target {
	return adapter.Target{ContainerID: containerID, SessionName: sessionName, WindowIndex: windowIndex}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sessions, err := s.registry.ListSessions(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	a, err := s.registry.Adapter(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.CreateSession(r.Context(), id, req.Name); err != nil {
		writeErr(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleKillSession(w http.ResponseWriter, r *http.Request) {
	id, name := r.PathValue("id"), r.PathValue("name")
	a, err := s.registry.Adapter(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.KillSession(r.Context(), id, name); err != nil {
		writeErr(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	id, name := r.PathValue("id"), r.PathValue("name")
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	a, err := s.registry.Adapter(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.RenameSession(r.Context(), id, name, req.Name); err != nil {
		writeErr(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCreateWindow(w http.ResponseWriter, r *http.Request) {
	id, name := r.PathValue("id"), r.PathValue("name")
	a, err := s.registry.Adapter(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.CreateWindow(r.Context(), id, name); err != nil {
		writeErr(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleKillWindow(w http.ResponseWriter, r *http.Request) {
	id, name := r.PathValue("id"), r.PathValue("name")
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeErr(w, apperr.New(apperr.InvalidArgument, "invalid window index"))
		return
	}
	a, err := s.registry.Adapter(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.KillWindow(r.Context(), id, name, idx); err != nil {
		writeErr(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSwapWindows(w http.ResponseWriter, r *http.Request) {
	id, name := r.PathValue("id"), r.PathValue("name")
	var req struct {
		I int `json:"i"`
		J int `json:"j"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	a, err := s.registry.Adapter(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.SwapWindows(r.Context(), id, name, req.I, req.J); err != nil {
		writeErr(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleCapturePane backs the tmuxdeckctl `capture`/`screenshot` subcommands
// (§6 CLI surface): a plain-text pane snapshot, optionally with ANSI escapes
// preserved via ?ansi=1.
func (s *Server) handleCapturePane(w http.ResponseWriter, r *http.Request) {
	id, name := r.PathValue("id"), r.PathValue("name")
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeErr(w, apperr.New(apperr.InvalidArgument, "invalid window index"))
		return
	}
	ansi := r.URL.Query().Get("ansi") == "1" || r.URL.Query().Get("ansi") == "true"
	a, err := s.registry.Adapter(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	out, err := a.CapturePane(r.Context(), target(id, name, idx), ansi)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(out)
}

// handleClearWindowStatus is the only thing that clears a window's sticky
// bell/activity flags (§9 "Bell/activity auto-clear on focus").
func (s *Server) handleClearWindowStatus(w http.ResponseWriter, r *http.Request) {
	id, name := r.PathValue("id"), r.PathValue("name")
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeErr(w, apperr.New(apperr.InvalidArgument, "invalid window index"))
		return
	}
	a, err := s.registry.Adapter(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.ClearWindowStatus(r.Context(), target(id, name, idx)); err != nil {
		writeErr(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleMoveWindow(w http.ResponseWriter, r *http.Request) {
	id, srcSession := r.PathValue("id"), r.PathValue("name")
	var req struct {
		Index         int    `json:"index"`
		TargetSession string `json:"targetSession"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	a, err := s.registry.Adapter(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.MoveWindow(r.Context(), id, srcSession, req.Index, req.TargetSession); err != nil {
		writeErr(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}
