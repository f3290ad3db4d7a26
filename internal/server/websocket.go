package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/msbrogli/tmuxdeck/internal/adapter"
	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/broker"
	"github.com/msbrogli/tmuxdeck/internal/metrics"
)

// wsOriginPatterns matches kojo's accepted origins (Tailscale + local dev).
var wsOriginPatterns = []string{"100.*.*.*", "*.ts.net", "localhost:*", "127.0.0.1:*"}

// wsSink adapts a *websocket.Conn to broker.Sink: binary frames carry raw
// pane bytes, text frames carry control/warning strings (§4.C).
type wsSink struct {
	ws  *websocket.Conn
	log *slog.Logger
}

func (s *wsSink) WriteBinary(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.ws.Write(ctx, websocket.MessageBinary, data)
}

func (s *wsSink) WriteControl(text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.ws.Write(ctx, websocket.MessageText, []byte(text))
}

func (s *wsSink) Fault(reason string, code int) {
	s.log.Warn("terminal channel faulted", "reason", reason, "code", code)
	_ = s.ws.Close(websocket.StatusCode(code), reason)
}

// handleTerminalWS serves the per-pane terminal WebSocket (§4.C/§6). Close
// codes: 4401 (this handler, pre-upgrade auth has already run via
// requireAuth), 4404 (target missing), 4410 (source gone), 1011 (internal).
func (s *Server) handleTerminalWS(w http.ResponseWriter, r *http.Request) {
	containerID := r.PathValue("containerId")
	sessionName := r.PathValue("sessionName")
	windowIndex, err := strconv.Atoi(r.PathValue("windowIndex"))
	if err != nil {
		writeErr(w, apperr.New(apperr.InvalidArgument, "invalid window index"))
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: wsOriginPatterns})
	if err != nil {
		s.logger.Error("terminal websocket accept failed", "err", err)
		return
	}
	defer ws.CloseNow()
	ws.SetReadLimit(256 * 1024)

	metrics.TerminalChannels.Inc()
	defer metrics.TerminalChannels.Dec()

	sink := &wsSink{ws: ws, log: s.logger}
	channel := broker.NewChannel(s.registry.Adapter, sink, s.logger)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	target := adapter.Target{ContainerID: containerID, SessionName: sessionName, WindowIndex: windowIndex}
	if err := channel.Open(ctx, target); err != nil {
		sink.Fault(err.Error(), wsCloseCodeFor(err))
		return
	}
	defer channel.Close()

	for {
		msgType, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		switch msgType {
		case websocket.MessageBinary:
			if err := channel.HandleBinary(ctx, data); err != nil {
				s.logger.Debug("terminal binary write failed", "err", err)
			}
		case websocket.MessageText:
			if err := channel.HandleText(ctx, string(data)); err != nil {
				s.logger.Debug("terminal control handling failed", "err", err)
			}
		}
	}
}

func wsCloseCodeFor(err error) int {
	if ae, ok := err.(*apperr.Error); ok {
		return ae.WSCloseCode()
	}
	return 1011
}

// handleBridgeWS accepts a reverse WebSocket dial from a bridge agent. Auth
// happens inside Hub.Accept via the first (auth) frame, not requireAuth —
// the agent authenticates with its own bridge token, never a PIN session.
func (s *Server) handleBridgeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: wsOriginPatterns})
	if err != nil {
		s.logger.Error("bridge websocket accept failed", "err", err)
		return
	}
	defer ws.CloseNow()
	ws.SetReadLimit(1 << 20)

	metrics.BridgeConnections.Inc()
	defer metrics.BridgeConnections.Dec()

	if err := s.hub.Accept(r.Context(), ws, s.authenticateBridge); err != nil {
		s.logger.Warn("bridge connection ended", "err", err)
	}
}

// authenticateBridge adapts auth.Gate.AuthenticateBridge to bridge.Validator.
func (s *Server) authenticateBridge(token string) (string, bool) {
	return s.gate.AuthenticateBridge(token)
}
