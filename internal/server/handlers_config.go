package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/auth"
	"github.com/msbrogli/tmuxdeck/internal/model"
	"github.com/msbrogli/tmuxdeck/internal/store"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.LoadTemplates()
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.Internal, err, "load templates"))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"templates": doc.Templates})
}

func (s *Server) handleSaveTemplates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Templates []model.Template `json:"templates"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	doc, err := s.store.LoadTemplates()
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.Internal, err, "load templates"))
		return
	}
	for i := range req.Templates {
		if req.Templates[i].ID == "" {
			req.Templates[i].ID = uuid.NewString()
		}
		if req.Templates[i].CreatedAt.IsZero() {
			req.Templates[i].CreatedAt = time.Now()
		}
	}
	doc.Templates = req.Templates
	if err := s.store.SaveTemplates(doc); err != nil {
		writeErr(w, apperr.Wrap(apperr.Internal, err, "save templates"))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"templates": doc.Templates})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.LoadSettings()
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.Internal, err, "load settings"))
		return
	}
	writeJSONResponse(w, http.StatusOK, settings)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req store.Settings
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Version == 0 {
		req.Version = 1
	}
	if err := s.store.SaveSettings(req); err != nil {
		writeErr(w, apperr.Wrap(apperr.Internal, err, "save settings"))
		return
	}
	writeJSONResponse(w, http.StatusOK, req)
}

func (s *Server) handleListBridges(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.LoadBridges()
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.Internal, err, "load bridges"))
		return
	}
	for i := range doc.Bridges {
		doc.Bridges[i].Connected = s.hub.Connected(doc.Bridges[i].ID)
		doc.Bridges[i].LastSeen = s.hub.LastSeen(doc.Bridges[i].ID)
		doc.Bridges[i].TokenHash = "" // never echo the hash back
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"bridges": doc.Bridges})
}

func (s *Server) handleCreateBridge(w http.ResponseWriter, r *http.Request) {
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
	doc, err := s.store.LoadBridges()
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.Internal, err, "load bridges"))
		return
	}
	token, hash, err := auth.NewBridgeToken()
	if err != nil {
		writeErr(w, err)
		return
	}
	rec := model.BridgeRecord{
		ID: uuid.NewString(), Name: req.Name, TokenHash: hash,
		Enabled: true, CreatedAt: time.Now(),
	}
	doc.Bridges = append(doc.Bridges, rec)
	if err := s.store.SaveBridges(doc); err != nil {
		writeErr(w, apperr.Wrap(apperr.Internal, err, "save bridges"))
		return
	}
	// the plaintext token is only ever shown once, at creation (§4.D/§4.F).
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"id": rec.ID, "name": rec.Name, "token": token, "createdAt": rec.CreatedAt,
	})
}

func (s *Server) handleDeleteBridge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := s.store.LoadBridges()
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.Internal, err, "load bridges"))
		return
	}
	kept := doc.Bridges[:0]
	for _, b := range doc.Bridges {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	doc.Bridges = kept
	if err := s.store.SaveBridges(doc); err != nil {
		writeErr(w, apperr.Wrap(apperr.Internal, err, "save bridges"))
		return
	}
	// Deleting the record cascades to closing any live connection for it
	// (§3); the synthesized container disappears on the registry's next
	// poll once the record is gone.
	if s.hub != nil {
		s.hub.Disconnect(id)
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListTelegramChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.LoadTelegramChats()
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.Internal, err, "load telegram chats"))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"chatIds": chats})
}

func (s *Server) handleAddTelegramChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID string `json:"chatId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.ChatID == "" {
		writeErr(w, apperr.New(apperr.InvalidArgument, "chatId is required"))
		return
	}
	chats, err := s.store.LoadTelegramChats()
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.Internal, err, "load telegram chats"))
		return
	}
	for _, c := range chats {
		if c == req.ChatID {
			writeJSONResponse(w, http.StatusOK, map[string]any{"chatIds": chats})
			return
		}
	}
	chats = append(chats, req.ChatID)
	if err := s.store.SaveTelegramChats(chats); err != nil {
		writeErr(w, apperr.Wrap(apperr.Internal, err, "save telegram chats"))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"chatIds": chats})
}

func (s *Server) handleRemoveTelegramChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	chats, err := s.store.LoadTelegramChats()
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.Internal, err, "load telegram chats"))
		return
	}
	kept := chats[:0]
	for _, c := range chats {
		if c != id {
			kept = append(kept, c)
		}
	}
	if err := s.store.SaveTelegramChats(kept); err != nil {
		writeErr(w, apperr.Wrap(apperr.Internal, err, "save telegram chats"))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"chatIds": kept})
}
