// Package bridgeagent is the client side of the Bridge Hub protocol
// (§4.D): it dials the hub's reverse WebSocket, authenticates with a bridge
// token, answers op RPCs against a local tmux socket, and multiplexes pane
// byte streams over the same connection. Reconnect/backoff is grounded on
// agent-commander's agents/agentd/internal/ws/client.go; wire framing
// mirrors internal/bridge/hub.go exactly since both ends share that package.
package bridgeagent

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/msbrogli/tmuxdeck/internal/adapter"
	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/bridge"
	"github.com/msbrogli/tmuxdeck/internal/model"
)

// backoff is the reconnect delay ladder, in the same shape as
// agent-commander's configurable c.backoff slice.
var backoff = []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second}

// Agent is one named bridge connection to a TmuxDeck hub.
type Agent struct {
	URL            string
	Token          string
	Name           string
	Adapter        *adapter.LocalAdapter
	ReportInterval time.Duration
	Logger         *slog.Logger
}

// Run dials the hub and serves the connection until ctx is cancelled,
// reconnecting with backoff whenever the socket drops.
func (a *Agent) Run(ctx context.Context) error {
	log := a.Logger
	if log == nil {
		log = slog.Default()
	}
	attempt := 0
	for ctx.Err() == nil {
		if err := a.runSession(ctx); err != nil {
			log.Warn("bridge session ended", "err", err, "attempt", attempt)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay := backoff[min(attempt, len(backoff)-1)]
		attempt++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return ctx.Err()
}

// openStream is one locally-attached pane the hub has asked us to stream.
type openStream struct {
	target adapter.Target
	handle adapter.StreamHandle
}

type session struct {
	ws     *websocket.Conn
	agent  *Agent
	log    *slog.Logger
	mu     sync.Mutex // guards writes to ws
	chMu   sync.Mutex
	chans  map[uint16]*openStream
}

func (a *Agent) runSession(ctx context.Context) error {
	log := a.Logger
	if log == nil {
		log = slog.Default()
	}

	ws, _, err := websocket.Dial(ctx, a.URL, nil)
	if err != nil {
		return apperr.Wrap(apperr.SourceUnavailable, err, "dial bridge hub")
	}
	defer ws.CloseNow()

	authData, err := json.Marshal(bridge.AuthFrame{Auth: a.Token, Name: a.Name})
	if err != nil {
		return err
	}
	if err := ws.Write(ctx, websocket.MessageText, authData); err != nil {
		return apperr.Wrap(apperr.SourceUnavailable, err, "send auth frame")
	}

	s := &session{ws: ws, agent: a, log: log, chans: make(map[uint16]*openStream)}

	interval := a.ReportInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	reportCtx, cancelReport := context.WithCancel(ctx)
	defer cancelReport()
	go s.reportLoop(reportCtx, interval)

	log.Info("connected to bridge hub", "url", a.URL, "name", a.Name)
	return s.readLoop(ctx)
}

func (s *session) writeEnvelope(ctx context.Context, env bridge.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.Write(ctx, websocket.MessageText, data)
}

func (s *session) writeBinary(ctx context.Context, chanID uint16, payload []byte) error {
	frame := make([]byte, 2+len(payload))
	frame[0] = byte(chanID >> 8)
	frame[1] = byte(chanID)
	copy(frame[2:], payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.Write(ctx, websocket.MessageBinary, frame)
}

func (s *session) reportLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sendReport(ctx)
		}
	}
}

func (s *session) sendReport(ctx context.Context) {
	sessions, err := s.agent.Adapter.ListSessions(ctx, "")
	if err != nil {
		s.log.Debug("list sessions for report", "err", err)
		return
	}
	payload, _ := json.Marshal(bridge.SessionReportPayload{Sessions: toReportedSessions(sessions)})
	_ = s.writeEnvelope(ctx, bridge.Envelope{Type: bridge.TypeSessionReport, Payload: payload})
}

func toReportedSessions(sessions []model.TmuxSession) []bridge.ReportedSession {
	out := make([]bridge.ReportedSession, 0, len(sessions))
	for _, sess := range sessions {
		windows := make([]bridge.ReportedWindow, 0, len(sess.Windows))
		for _, w := range sess.Windows {
			windows = append(windows, bridge.ReportedWindow{
				Index: w.Index, Name: w.Name, Active: w.Active,
				PaneCount: w.PaneCount, Bell: w.Bell, Activity: w.Activity,
				Command: w.Command, PaneStatus: w.PaneStatus,
			})
		}
		out = append(out, bridge.ReportedSession{Session: sess.Name, Windows: windows})
	}
	return out
}

func (s *session) readLoop(ctx context.Context) error {
	defer s.closeAllStreams()
	for {
		msgType, data, err := s.ws.Read(ctx)
		if err != nil {
			return err
		}
		if msgType == websocket.MessageBinary {
			s.handleBinary(ctx, data)
			continue
		}
		var env bridge.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case bridge.TypeOp:
			go s.handleOp(ctx, env)
		case bridge.TypeOpenStream:
			go s.handleOpenStream(ctx, env)
		case bridge.TypeCloseStream:
			s.handleCloseStream(env.ChannelID)
		}
	}
}

func (s *session) handleBinary(ctx context.Context, data []byte) {
	if len(data) < 2 {
		return
	}
	chanID := uint16(data[0])<<8 | uint16(data[1])
	s.chMu.Lock()
	os := s.chans[chanID]
	s.chMu.Unlock()
	if os == nil {
		return
	}
	_, _ = os.handle.Write(data[2:])
}

func (s *session) handleCloseStream(chanID uint16) {
	s.chMu.Lock()
	os := s.chans[chanID]
	delete(s.chans, chanID)
	s.chMu.Unlock()
	if os != nil {
		_ = os.handle.Close()
	}
}

func (s *session) closeAllStreams() {
	s.chMu.Lock()
	chans := s.chans
	s.chans = make(map[uint16]*openStream)
	s.chMu.Unlock()
	for _, os := range chans {
		_ = os.handle.Close()
	}
}

func (s *session) handleOpenStream(ctx context.Context, env bridge.Envelope) {
	var payload bridge.OpenStreamPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		_ = s.writeEnvelope(ctx, bridge.Envelope{Type: bridge.TypeCloseStream, ChannelID: env.ChannelID})
		return
	}
	target := adapter.Target{ContainerID: payload.ContainerID, SessionName: payload.SessionName, WindowIndex: payload.WindowIndex}

	streamCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	handle, err := s.agent.Adapter.OpenStream(streamCtx, target)
	cancel()
	if err != nil {
		s.log.Warn("open_stream failed", "session", payload.SessionName, "err", err)
		_ = s.writeEnvelope(ctx, bridge.Envelope{Type: bridge.TypeCloseStream, ChannelID: env.ChannelID})
		return
	}

	os := &openStream{target: target, handle: handle}
	s.chMu.Lock()
	s.chans[env.ChannelID] = os
	s.chMu.Unlock()

	if err := s.writeEnvelope(ctx, bridge.Envelope{Type: bridge.TypeStreamOpened, ChannelID: env.ChannelID}); err != nil {
		s.handleCloseStream(env.ChannelID)
		return
	}

	go s.pumpStream(ctx, env.ChannelID, os)
}

func (s *session) pumpStream(ctx context.Context, chanID uint16, os *openStream) {
	buf := make([]byte, 32*1024)
	for {
		n, err := os.handle.Read(buf)
		if n > 0 {
			if werr := s.writeBinary(ctx, chanID, buf[:n]); werr != nil {
				break
			}
		}
		if err != nil {
			break
		}
	}
	s.handleCloseStream(chanID)
	_ = s.writeEnvelope(ctx, bridge.Envelope{Type: bridge.TypeCloseStream, ChannelID: chanID})
}

func (s *session) handleOp(ctx context.Context, env bridge.Envelope) {
	var payload bridge.OpPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.replyErr(ctx, env.RequestID, apperr.New(apperr.InvalidArgument, "malformed op frame"))
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	result, err := s.dispatchOp(opCtx, payload.Op, payload.Args)
	if err != nil {
		s.replyErr(ctx, env.RequestID, err)
		return
	}
	s.replyOK(ctx, env.RequestID, result)
}

func (s *session) replyOK(ctx context.Context, reqID int64, result any) {
	payload, _ := json.Marshal(result)
	_ = s.writeEnvelope(ctx, bridge.Envelope{Type: bridge.TypeOpResult, RequestID: reqID, OK: true, Payload: payload})
}

func (s *session) replyErr(ctx context.Context, reqID int64, err error) {
	_ = s.writeEnvelope(ctx, bridge.Envelope{Type: bridge.TypeOpResult, RequestID: reqID, OK: false, Error: bridge.EncodeAgentErr(err)})
}

// dispatchOp runs one adapter op by name, mirroring the arg shapes
// internal/adapter/bridge.go's BridgeAdapter encodes on the hub side.
func (s *session) dispatchOp(ctx context.Context, op string, args json.RawMessage) (any, error) {
	a := s.agent.Adapter
	switch op {
	case "ListSessions":
		return a.ListSessions(ctx, "")
	case "CreateSession":
		var in struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "decode args")
		}
		return nil, a.CreateSession(ctx, "", in.Name)
	case "KillSession":
		var in struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "decode args")
		}
		return nil, a.KillSession(ctx, "", in.Name)
	case "RenameSession":
		var in struct {
			OldName string `json:"oldName"`
			NewName string `json:"newName"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "decode args")
		}
		return nil, a.RenameSession(ctx, "", in.OldName, in.NewName)
	case "CreateWindow":
		var in struct {
			Session string `json:"session"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "decode args")
		}
		return nil, a.CreateWindow(ctx, "", in.Session)
	case "SwapWindows":
		var in struct {
			Session string `json:"session"`
			I       int    `json:"i"`
			J       int    `json:"j"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "decode args")
		}
		return nil, a.SwapWindows(ctx, "", in.Session, in.I, in.J)
	case "MoveWindow":
		var in struct {
			SrcSession string `json:"srcSession"`
			Idx        int    `json:"idx"`
			DstSession string `json:"dstSession"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "decode args")
		}
		return nil, a.MoveWindow(ctx, "", in.SrcSession, in.Idx, in.DstSession)
	case "KillWindow":
		var in struct {
			Session string `json:"session"`
			Idx     int    `json:"idx"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "decode args")
		}
		return nil, a.KillWindow(ctx, "", in.Session, in.Idx)
	case "SendKeys":
		var in struct {
			Session string `json:"session"`
			Window  int    `json:"window"`
			Data    []byte `json:"data"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "decode args")
		}
		return nil, a.SendKeys(ctx, adapter.Target{SessionName: in.Session, WindowIndex: in.Window}, in.Data)
	case "CapturePane":
		var in struct {
			Session string `json:"session"`
			Window  int    `json:"window"`
			Ansi    bool   `json:"ansi"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "decode args")
		}
		return a.CapturePane(ctx, adapter.Target{SessionName: in.Session, WindowIndex: in.Window}, in.Ansi)
	case "AckScroll":
		var in struct {
			Session   string `json:"session"`
			Window    int    `json:"window"`
			Direction string `json:"direction"`
			Lines     int    `json:"lines"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "decode args")
		}
		return nil, a.AckScroll(ctx, adapter.Target{SessionName: in.Session, WindowIndex: in.Window}, in.Direction, in.Lines)
	case "MouseEnabled":
		var in struct {
			Session string `json:"session"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "decode args")
		}
		return a.MouseEnabled(ctx, adapter.Target{SessionName: in.Session})
	case "SetMouseEnabled":
		var in struct {
			Session string `json:"session"`
			On      bool   `json:"on"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "decode args")
		}
		return nil, a.SetMouseEnabled(ctx, adapter.Target{SessionName: in.Session}, in.On)
	case "ClearWindowStatus":
		var in struct {
			Session string `json:"session"`
			Window  int    `json:"window"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "decode args")
		}
		return nil, a.ClearWindowStatus(ctx, adapter.Target{SessionName: in.Session, WindowIndex: in.Window})
	case "ResizeWindow":
		var in struct {
			Session string `json:"session"`
			Cols    int    `json:"cols"`
			Rows    int    `json:"rows"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, err, "decode args")
		}
		return nil, s.resizeBySession(in.Session, in.Cols, in.Rows)
	default:
		return nil, apperr.New(apperr.InvalidArgument, "unknown op %q", op)
	}
}

// resizeBySession resizes every locally open stream attached to session,
// matching the hub's Stream.Resize call, which names only the session.
func (s *session) resizeBySession(session string, cols, rows int) error {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	var last error
	found := false
	for _, os := range s.chans {
		if os.target.SessionName != session {
			continue
		}
		found = true
		if err := os.handle.Resize(cols, rows); err != nil {
			last = err
		}
	}
	if !found {
		return apperr.New(apperr.TargetMissing, "no open stream for session %q", session)
	}
	return last
}
