package bridge

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
)

// opTimeout bounds every RPC to an agent (§5: "bridge op RPC 30s").
const opTimeout = 30 * time.Second

// Validator resolves a bridge auth token to a bridge id, enforcing
// tokenHash match and enabled=true (§4.D). Implemented by
// auth.Gate.AuthenticateBridge, adapted in internal/server.
type Validator func(token string) (bridgeID string, ok bool)

// SessionReportFunc receives an agent's session snapshot for the registry
// to merge into its container/session map (§4.B/§4.D).
type SessionReportFunc func(bridgeID string, report SessionReportPayload)

// LogFunc forwards an agent log line into the Debug Ring (§4.G).
type LogFunc func(bridgeID, level, message string)

// Hub accepts reverse WebSocket connections from remote bridge agents and
// multiplexes control RPCs and binary pane streams over each one (§4.D).
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Connection // keyed by BridgeRecord.ID

	OnSessionReport SessionReportFunc
	OnLog           LogFunc
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*Connection)}
}

// opResult is the decoded reply to a pending op RPC.
type opResult struct {
	ok    bool
	value json.RawMessage
	err   error
}

// Connection is one authenticated agent's multiplexed socket.
type Connection struct {
	id   string
	name string
	ws   *websocket.Conn

	writeMu sync.Mutex

	seq       atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]chan opResult

	nextChannel atomic.Uint32
	chanMu      sync.Mutex
	channels    map[uint16]*streamChannel

	lastSeenMu sync.Mutex
	lastSeen   time.Time

	closed    chan struct{}
	closeOnce sync.Once
}

func (c *Connection) touch() {
	c.lastSeenMu.Lock()
	c.lastSeen = time.Now()
	c.lastSeenMu.Unlock()
}

func (c *Connection) LastSeen() time.Time {
	c.lastSeenMu.Lock()
	defer c.lastSeenMu.Unlock()
	return c.lastSeen
}

// streamChannel backs one open pane stream multiplexed over the connection.
type streamChannel struct {
	id        uint16
	data      chan []byte
	opened    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	cancelled atomic.Bool
}

// Accept takes over an upgraded WebSocket, reads the auth frame, validates
// it, and — if valid — registers the connection and runs its read loop
// until the socket closes. Blocks until the connection ends.
func (h *Hub) Accept(ctx context.Context, ws *websocket.Conn, validate Validator) error {
	_, data, err := ws.Read(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Unauthorized, err, "bridge auth frame not received")
	}
	var auth AuthFrame
	if err := json.Unmarshal(data, &auth); err != nil {
		ws.Close(websocket.StatusPolicyViolation, "malformed auth frame")
		return apperr.Wrap(apperr.InvalidArgument, err, "malformed bridge auth frame")
	}
	bridgeID, ok := validate(auth.Auth)
	if !ok {
		ws.Close(websocket.StatusPolicyViolation, "invalid bridge token")
		return apperr.New(apperr.Unauthorized, "invalid bridge token")
	}

	conn := &Connection{
		id: bridgeID, name: auth.Name, ws: ws,
		pending:  make(map[int64]chan opResult),
		channels: make(map[uint16]*streamChannel),
		closed:   make(chan struct{}),
	}
	conn.touch()

	// Last-writer-wins: a prior authenticated connection for the same
	// BridgeRecord is closed with 1012 (§4.D).
	h.mu.Lock()
	if prior, exists := h.conns[bridgeID]; exists {
		h.mu.Unlock()
		prior.closeWithCode(websocket.StatusCode(1012), "superseded by new connection")
		h.mu.Lock()
	}
	h.conns[bridgeID] = conn
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if h.conns[bridgeID] == conn {
			delete(h.conns, bridgeID)
		}
		h.mu.Unlock()
		conn.shutdown()
	}()

	return conn.readLoop(ctx, h)
}

func (c *Connection) closeWithCode(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close(code, reason)
	})
}

func (c *Connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	c.pendingMu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = nil
	c.pendingMu.Unlock()

	c.chanMu.Lock()
	for _, sc := range c.channels {
		sc.closeOnce.Do(func() { close(sc.closed) })
	}
	c.channels = nil
	c.chanMu.Unlock()
}

func (c *Connection) readLoop(ctx context.Context, h *Hub) error {
	for {
		msgType, data, err := c.ws.Read(ctx)
		if err != nil {
			return err
		}
		c.touch()

		if msgType == websocket.MessageBinary {
			c.dispatchBinary(data)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case TypeSessionReport:
			var payload SessionReportPayload
			if json.Unmarshal(env.Payload, &payload) == nil && h.OnSessionReport != nil {
				h.OnSessionReport(c.id, payload)
			}
		case TypeOpResult:
			c.resolveOp(env)
		case TypeStreamOpened:
			c.markOpened(env.ChannelID)
		case TypeLog:
			var payload LogPayload
			if json.Unmarshal(env.Payload, &payload) == nil && h.OnLog != nil {
				h.OnLog(c.id, payload.Level, payload.Message)
			}
		case TypeCloseStream:
			c.closeChannel(env.ChannelID)
		}
	}
}

func (c *Connection) dispatchBinary(data []byte) {
	if len(data) < 2 {
		return
	}
	chanID := binary.BigEndian.Uint16(data[:2])
	if chanID == 0 {
		return
	}
	c.chanMu.Lock()
	sc := c.channels[chanID]
	c.chanMu.Unlock()
	if sc == nil {
		return
	}
	payload := make([]byte, len(data)-2)
	copy(payload, data[2:])
	select {
	case sc.data <- payload:
	case <-sc.closed:
	}
}

func (c *Connection) resolveOp(env Envelope) {
	c.pendingMu.Lock()
	ch, ok := c.pending[env.RequestID]
	if ok {
		delete(c.pending, env.RequestID)
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	res := opResult{ok: env.OK, value: env.Payload}
	if !env.OK {
		res.err = decodeAgentErr(env.Error)
	}
	ch <- res
}

func (c *Connection) markOpened(chanID uint16) {
	c.chanMu.Lock()
	sc := c.channels[chanID]
	c.chanMu.Unlock()
	if sc == nil {
		return
	}
	if sc.cancelled.Load() {
		// "receipt of stream_opened for an already-cancelled channel is
		// answered with an immediate close_stream" (§4.D). The agent won't
		// echo a close_stream back for one it never asked to close, so the
		// hub must reap its own entry here rather than waiting for one.
		c.sendCloseStream(chanID)
		c.closeChannel(chanID)
		return
	}
	select {
	case <-sc.opened:
	default:
		close(sc.opened)
	}
}

func (c *Connection) closeChannel(chanID uint16) {
	c.chanMu.Lock()
	sc := c.channels[chanID]
	delete(c.channels, chanID)
	c.chanMu.Unlock()
	if sc != nil {
		sc.closeOnce.Do(func() { close(sc.closed) })
	}
}

func (c *Connection) sendCloseStream(chanID uint16) {
	_ = c.writeEnvelope(Envelope{Type: TypeCloseStream, ChannelID: chanID})
}

func (c *Connection) writeEnvelope(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *Connection) writeBinary(chanID uint16, payload []byte) error {
	frame := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(frame[:2], chanID)
	copy(frame[2:], payload)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageBinary, frame)
}

// EncodeAgentErr/decodeAgentErr round-trip an apperr.Kind through the
// op_result "error" string field as "KIND: message". EncodeAgentErr is used
// by cmd/tmuxdeck-agent when replying to a failed op.
func EncodeAgentErr(err error) string {
	return fmt.Sprintf("%s: %v", apperr.KindOf(err), err)
}

func decodeAgentErr(s string) error {
	parts := strings.SplitN(s, ": ", 2)
	msg := s
	kind := apperr.Internal
	if len(parts) == 2 {
		msg = parts[1]
		switch parts[0] {
		case "Unauthorized":
			kind = apperr.Unauthorized
		case "TargetMissing":
			kind = apperr.TargetMissing
		case "TargetGone":
			kind = apperr.TargetGone
		case "SourceUnavailable":
			kind = apperr.SourceUnavailable
		case "NameConflict":
			kind = apperr.NameConflict
		case "InvalidArgument":
			kind = apperr.InvalidArgument
		}
	}
	return apperr.New(kind, "%s", msg)
}

// Connected reports whether bridgeID currently has a live connection.
func (h *Hub) Connected(bridgeID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[bridgeID]
	return ok
}

// LastSeen returns the last-activity time for a connected bridge, or the
// zero time if not connected.
func (h *Hub) LastSeen(bridgeID string) time.Time {
	h.mu.RLock()
	conn, ok := h.conns[bridgeID]
	h.mu.RUnlock()
	if !ok {
		return time.Time{}
	}
	return conn.LastSeen()
}

// Disconnect closes bridgeID's live connection, if any (§3: deleting a
// BridgeRecord "cascades to closing an active connection"). A no-op when
// the bridge isn't currently connected.
func (h *Hub) Disconnect(bridgeID string) {
	h.mu.RLock()
	conn, ok := h.conns[bridgeID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	conn.closeWithCode(websocket.StatusCode(1000), "bridge deleted")
}

func (h *Hub) get(bridgeID string) (*Connection, error) {
	h.mu.RLock()
	conn, ok := h.conns[bridgeID]
	h.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.SourceUnavailable, "bridge %q not connected", bridgeID)
	}
	return conn, nil
}

// SendOp issues an adapter operation RPC to the named bridge and waits for
// its result (§4.A bridge-proxied variant, §4.D "op"/"op_result").
func (h *Hub) SendOp(ctx context.Context, bridgeID, op string, args any) (json.RawMessage, error) {
	conn, err := h.get(bridgeID)
	if err != nil {
		return nil, err
	}
	return conn.doOp(ctx, op, args)
}

func (conn *Connection) doOp(ctx context.Context, op string, args any) (json.RawMessage, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidArgument, err, "invalid op args")
	}
	reqID := conn.seq.Add(1)
	payload, _ := json.Marshal(OpPayload{Op: op, Args: argsJSON})

	resCh := make(chan opResult, 1)
	conn.pendingMu.Lock()
	conn.pending[reqID] = resCh
	conn.pendingMu.Unlock()

	if err := conn.writeEnvelope(Envelope{Type: TypeOp, RequestID: reqID, Payload: payload}); err != nil {
		conn.pendingMu.Lock()
		delete(conn.pending, reqID)
		conn.pendingMu.Unlock()
		return nil, apperr.Wrap(apperr.SourceUnavailable, err, "bridge write failed")
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	select {
	case res, ok := <-resCh:
		if !ok {
			return nil, apperr.New(apperr.SourceUnavailable, "bridge %q disconnected", conn.id)
		}
		if !res.ok {
			return nil, res.err
		}
		return res.value, nil
	case <-ctx.Done():
		return nil, apperr.New(apperr.SourceUnavailable, "bridge op %q timed out", op)
	}
}

// Stream is a StreamHandle backed by a bridge-multiplexed binary channel.
type Stream struct {
	conn    *Connection
	sc      *streamChannel
	id      uint16
	session string
}

func (s *Stream) Read(p []byte) (int, error) {
	select {
	case data, ok := <-s.sc.data:
		if !ok {
			return 0, fmt.Errorf("bridge stream closed")
		}
		n := copy(p, data)
		return n, nil
	case <-s.sc.closed:
		return 0, fmt.Errorf("bridge stream closed")
	}
}

func (s *Stream) Write(p []byte) (int, error) {
	if err := s.conn.writeBinary(s.id, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Resize issues a ResizeWindow op through the normal control-frame RPC path
// (not the binary data channel) against the session this stream is attached to.
func (s *Stream) Resize(cols, rows int) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_, err := s.conn.doOp(ctx, "ResizeWindow", map[string]any{"session": s.session, "cols": cols, "rows": rows})
	return err
}

func (s *Stream) Close() error {
	s.conn.chanMu.Lock()
	delete(s.conn.channels, s.id)
	s.conn.chanMu.Unlock()
	s.sc.closeOnce.Do(func() { close(s.sc.closed) })
	return s.conn.sendCloseStreamErr(s.id)
}

func (c *Connection) sendCloseStreamErr(chanID uint16) error {
	return c.writeEnvelope(Envelope{Type: TypeCloseStream, ChannelID: chanID})
}

// OpenStream opens a new multiplexed binary channel for target on bridgeID,
// per §4.D's open_stream/stream_opened handshake.
func (h *Hub) OpenStream(ctx context.Context, bridgeID string, target OpenStreamPayload) (*Stream, error) {
	conn, err := h.get(bridgeID)
	if err != nil {
		return nil, err
	}

	chanID := conn.allocChannel()
	sc := &streamChannel{id: chanID, data: make(chan []byte, 64), opened: make(chan struct{}), closed: make(chan struct{})}
	conn.chanMu.Lock()
	conn.channels[chanID] = sc
	conn.chanMu.Unlock()

	payload, _ := json.Marshal(target)
	if err := conn.writeEnvelope(Envelope{Type: TypeOpenStream, ChannelID: chanID, Payload: payload}); err != nil {
		conn.chanMu.Lock()
		delete(conn.channels, chanID)
		conn.chanMu.Unlock()
		return nil, apperr.Wrap(apperr.SourceUnavailable, err, "bridge write failed")
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	select {
	case <-sc.opened:
		return &Stream{conn: conn, sc: sc, id: chanID, session: target.SessionName}, nil
	case <-sc.closed:
		return nil, apperr.New(apperr.TargetGone, "bridge stream closed before opening")
	case <-ctx.Done():
		// Leave the channel entry in place rather than deleting it here: a
		// late stream_opened or close_stream from the agent still needs to
		// find it (markOpened/dispatchBinary/closeChannel all key off
		// conn.channels), and allocChannel must not hand this id to a new
		// stream while that race is still possible. It's reaped by
		// markOpened's cancelled branch, by a late close_stream, or by
		// Connection.shutdown() if the whole connection goes away first.
		sc.cancelled.Store(true)
		return nil, apperr.New(apperr.SourceUnavailable, "bridge open_stream timed out")
	}
}

func (c *Connection) allocChannel() uint16 {
	for {
		n := c.nextChannel.Add(1)
		id := uint16(n % 65536)
		if id == 0 {
			continue
		}
		c.chanMu.Lock()
		_, taken := c.channels[id]
		c.chanMu.Unlock()
		if !taken {
			return id
		}
	}
}

// SweepStale marks bridges silent for longer than maxAge as disconnected by
// forcibly closing them; the registry (§4.B) observes Connected()==false on
// its next poll and reports SourceUnavailable. Run periodically (cron).
func (h *Hub) SweepStale(maxAge time.Duration) {
	h.mu.RLock()
	stale := make([]*Connection, 0)
	for _, conn := range h.conns {
		if time.Since(conn.LastSeen()) > maxAge {
			stale = append(stale, conn)
		}
	}
	h.mu.RUnlock()
	for _, conn := range stale {
		conn.closeWithCode(websocket.StatusCode(1001), "liveness timeout")
	}
}
