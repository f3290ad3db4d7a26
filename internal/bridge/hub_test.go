package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
)

// dialBridge spins up an httptest server running Hub.Accept and dials an
// agent-side client against it, returning once the hub reports the bridge
// connected.
func dialBridge(t *testing.T, hub *Hub, bridgeID, token string) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = hub.Accept(r.Context(), ws, func(tok string) (string, bool) {
			return bridgeID, tok == token
		})
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientCtx := context.Background()
	conn, _, err := websocket.Dial(clientCtx, wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	auth, _ := json.Marshal(AuthFrame{Auth: token, Name: "agent"})
	if err := conn.Write(clientCtx, websocket.MessageText, auth); err != nil {
		srv.Close()
		t.Fatalf("write auth: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !hub.Connected(bridgeID) {
		if time.Now().After(deadline) {
			srv.Close()
			t.Fatal("bridge never reported connected")
		}
		time.Sleep(5 * time.Millisecond)
	}

	return conn, func() {
		conn.Close(websocket.StatusNormalClosure, "")
		srv.Close()
	}
}

// TestOpenStream_TimeoutParksChannelThenLateStreamOpenedCleansUp exercises the
// full "open_stream never answered" path: OpenStream must time out without
// deleting the channel entry, and a late stream_opened for the same channel
// id must be answered with close_stream and reap the parked entry (§4.D).
func TestOpenStream_TimeoutParksChannelThenLateStreamOpenedCleansUp(t *testing.T) {
	hub := NewHub()
	conn, cleanup := dialBridge(t, hub, "bridge-1", "secret")
	defer cleanup()

	openCtx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err := hub.OpenStream(openCtx, "bridge-1", OpenStreamPayload{SessionName: "work"})
	if apperr.KindOf(err) != apperr.SourceUnavailable {
		t.Fatalf("expected SourceUnavailable on timeout, got %v", err)
	}

	_, data, err := conn.Read(context.Background())
	if err != nil {
		t.Fatalf("read open_stream frame: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != TypeOpenStream {
		t.Fatalf("expected open_stream envelope, got %s (err=%v)", data, err)
	}
	chanID := env.ChannelID

	hub.mu.RLock()
	hconn := hub.conns["bridge-1"]
	hub.mu.RUnlock()

	hconn.chanMu.Lock()
	sc, parked := hconn.channels[chanID]
	hconn.chanMu.Unlock()
	if !parked {
		t.Fatal("expected channel entry to remain parked after timeout")
	}
	if !sc.cancelled.Load() {
		t.Fatal("expected channel to be marked cancelled")
	}

	lateEnv, _ := json.Marshal(Envelope{Type: TypeStreamOpened, ChannelID: chanID})
	if err := conn.Write(context.Background(), websocket.MessageText, lateEnv); err != nil {
		t.Fatalf("write late stream_opened: %v", err)
	}

	_, respData, err := conn.Read(context.Background())
	if err != nil {
		t.Fatalf("read close_stream reply: %v", err)
	}
	var resp Envelope
	if err := json.Unmarshal(respData, &resp); err != nil {
		t.Fatalf("unmarshal close_stream reply: %v", err)
	}
	if resp.Type != TypeCloseStream || resp.ChannelID != chanID {
		t.Fatalf("expected close_stream for channel %d, got %+v", chanID, resp)
	}

	deadline := time.Now().Add(1 * time.Second)
	for {
		hconn.chanMu.Lock()
		_, stillThere := hconn.channels[chanID]
		hconn.chanMu.Unlock()
		if !stillThere {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("hub never reaped the cancelled channel entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestAllocChannel_SkipsTakenAndZero asserts id reuse avoidance: a parked
// (cancelled but not yet reaped) entry still counts as taken.
func TestAllocChannel_SkipsTakenAndZero(t *testing.T) {
	c := &Connection{channels: make(map[uint16]*streamChannel)}
	first := c.allocChannel()
	if first == 0 {
		t.Fatal("allocChannel must never hand out id 0")
	}
	c.channels[first] = &streamChannel{id: first}

	second := c.allocChannel()
	if second == first {
		t.Fatalf("allocChannel reused a still-parked id %d", first)
	}
}

// TestMarkOpened_NotCancelledSignalsOpened covers the ordinary (non-race)
// handshake: a stream_opened for a live channel just unblocks OpenStream's
// waiter, it must not close or remove the entry.
func TestMarkOpened_NotCancelledSignalsOpened(t *testing.T) {
	c := &Connection{channels: make(map[uint16]*streamChannel)}
	sc := &streamChannel{id: 7, opened: make(chan struct{}), closed: make(chan struct{})}
	c.channels[7] = sc

	c.markOpened(7)

	select {
	case <-sc.opened:
	default:
		t.Fatal("expected opened channel to be closed/signaled")
	}
	if _, ok := c.channels[7]; !ok {
		t.Fatal("non-cancelled markOpened must not remove the channel entry")
	}
}

// TestCloseChannel_RemovesAndSignalsClosed covers the normal close_stream
// path used by both the agent-initiated close and markOpened's cancelled
// branch.
func TestCloseChannel_RemovesAndSignalsClosed(t *testing.T) {
	c := &Connection{channels: make(map[uint16]*streamChannel)}
	sc := &streamChannel{id: 3, closed: make(chan struct{})}
	c.channels[3] = sc

	c.closeChannel(3)

	if _, ok := c.channels[3]; ok {
		t.Fatal("expected channel entry removed")
	}
	select {
	case <-sc.closed:
	default:
		t.Fatal("expected sc.closed to be closed")
	}
}

func TestDispatchBinary_RoutesToOpenChannelAndIgnoresUnknown(t *testing.T) {
	c := &Connection{channels: make(map[uint16]*streamChannel)}
	sc := &streamChannel{id: 9, data: make(chan []byte, 1), closed: make(chan struct{})}
	c.channels[9] = sc

	frame := make([]byte, 4)
	frame[0], frame[1] = 0, 9
	copy(frame[2:], []byte("hi"))
	c.dispatchBinary(frame)

	select {
	case got := <-sc.data:
		if string(got) != "hi" {
			t.Fatalf("expected payload %q, got %q", "hi", got)
		}
	default:
		t.Fatal("expected payload delivered to channel 9")
	}

	// Unknown channel id must not panic and must simply be dropped.
	unknown := make([]byte, 4)
	unknown[0], unknown[1] = 0, 250
	c.dispatchBinary(unknown)
}

func TestResolveOp_DeliversAndRemovesPending(t *testing.T) {
	c := &Connection{pending: make(map[int64]chan opResult)}
	ch := make(chan opResult, 1)
	c.pending[42] = ch

	c.resolveOp(Envelope{RequestID: 42, OK: true, Payload: json.RawMessage(`{"a":1}`)})

	select {
	case res := <-ch:
		if !res.ok {
			t.Fatal("expected ok result")
		}
	default:
		t.Fatal("expected a result delivered on the pending channel")
	}
	if _, ok := c.pending[42]; ok {
		t.Fatal("expected pending entry removed after resolve")
	}
}

func TestDecodeAgentErr_RoundTripsKind(t *testing.T) {
	err := apperr.New(apperr.TargetMissing, "session %q gone", "work")
	encoded := EncodeAgentErr(err)
	decoded := decodeAgentErr(encoded)
	if apperr.KindOf(decoded) != apperr.TargetMissing {
		t.Fatalf("expected TargetMissing to round-trip, got %v", apperr.KindOf(decoded))
	}
}

func TestHub_DisconnectUnknownBridgeIsNoop(t *testing.T) {
	hub := NewHub()
	hub.Disconnect("never-connected")
}

func TestHub_DisconnectClosesLiveConnection(t *testing.T) {
	hub := NewHub()
	conn, cleanup := dialBridge(t, hub, "bridge-2", "secret")
	defer cleanup()

	hub.Disconnect("bridge-2")

	deadline := time.Now().Add(2 * time.Second)
	for hub.Connected("bridge-2") {
		if time.Now().After(deadline) {
			t.Fatal("expected bridge to disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, _, err := conn.Read(context.Background())
	if err == nil {
		t.Fatal("expected client read to observe the server-initiated close")
	}
}
