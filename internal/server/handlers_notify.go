package server

import (
	"bufio"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/model"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{"notifications": s.notifier.Pending()})
}

func (s *Server) handlePostNotification(w http.ResponseWriter, r *http.Request) {
	var req model.Notification
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.ContainerID == "" || req.SessionName == "" || req.Kind == "" {
		writeErr(w, apperr.New(apperr.InvalidArgument, "containerId, sessionName and kind are required"))
		return
	}
	n := s.notifier.Publish(r.Context(), req)
	writeJSONResponse(w, http.StatusOK, n)
}

func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContainerID string `json:"containerId"`
		SessionName string `json:"sessionName"`
		WindowIndex *int   `json:"windowIndex,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	s.notifier.Dismiss(req.ContainerID, req.SessionName, req.WindowIndex)
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleNotificationStream is the SSE endpoint web/os clients hold open to
// receive Router.Publish/Dismiss broadcasts (§4.E).
func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, apperr.New(apperr.Internal, "streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.notifier.Subscribe()
	defer cancel()

	bw := bufio.NewWriter(w)
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			data, err := marshalSSE(n)
			if err != nil {
				continue
			}
			fmt.Fprintf(bw, "data: %s\n\n", data)
			bw.Flush()
			flusher.Flush()
		}
	}
}

func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	var sub webpush.Subscription
	if err := decodeJSON(r, &sub); err != nil {
		writeErr(w, err)
		return
	}
	s.push.Subscribe(&sub)
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	s.push.Unsubscribe(req.Endpoint)
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleVAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"publicKey": s.push.VAPIDPublicKey()})
}

func (s *Server) handleGetDebugLog(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{"entries": s.ring.Snapshot()})
}

func (s *Server) handlePostDebugLog(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level   model.DebugLevel `json:"level"`
		Source  string           `json:"source"`
		Message string           `json:"message"`
		Detail  string           `json:"detail"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Level == "" {
		req.Level = model.DebugInfo
	}
	entry := s.ring.Append(req.Level, req.Source, req.Message, req.Detail)
	writeJSONResponse(w, http.StatusOK, entry)
}

func (s *Server) handleClearDebugLog(w http.ResponseWriter, r *http.Request) {
	s.ring.Clear()
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}
