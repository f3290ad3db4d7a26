package server

import (
	"net/http"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
)

func (s *Server) handleListContainers(w http.ResponseWriter, r *http.Request) {
	containers, dockerErr := s.registry.List(r.Context())
	resp := map[string]any{"containers": containers}
	if dockerErr != nil {
		resp["dockerError"] = dockerErr.Error()
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (s *Server) handleCreateContainer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID  string            `json:"templateId"`
		Name        string            `json:"name"`
		Env         map[string]string `json:"env"`
		Volumes     map[string]string `json:"volumes"`
		MountSSH    bool              `json:"mountSSH"`
		MountClaude bool              `json:"mountClaude"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	events, err := s.registry.Create(r.Context(), req.TemplateID, req.Name, req.Env, req.Volumes, req.MountSSH, req.MountClaude)
	if err != nil {
		writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, _ := w.(http.Flusher)
	enc := newStreamEncoder(w)
	for ev := range events {
		enc.Encode(ev)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleStartContainer(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Start(r.Context(), r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStopContainer(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Stop(r.Context(), r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRenameContainer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Name == "" {
		writeErr(w, apperr.New(apperr.InvalidArgument, "name is required"))
		return
	}
	if err := s.registry.Rename(r.Context(), r.PathValue("id"), req.Name); err != nil {
		writeErr(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRemoveContainer(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Remove(r.Context(), r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}
