// Package broker implements the Terminal Session Broker (§4.C): per-client
// channel state machine, wire framing, resize coalescing, mouse-mode
// detection, and bounded back-pressure between one client and one pane.
//
// This package is transport-agnostic — internal/server wires coder/websocket
// frames to a Channel via the Sink interface, the way kojo's
// internal/session holds PTY/tmux logic independent of internal/server's
// WebSocket plumbing.
package broker

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/msbrogli/tmuxdeck/internal/adapter"
	"github.com/msbrogli/tmuxdeck/internal/apperr"
)

// State is the per-channel state machine (§4.C).
type State int

const (
	StateOpening State = iota
	StateAttached
	StateSwitching
	StateFaulted
	StateClosing
	StateClosed
)

// Resolver resolves a containerId to the adapter backing it, implemented by
// internal/registry.Registry.Adapter.
type Resolver func(containerID string) (adapter.Adapter, error)

// Sink is the client-facing half of a channel: writing pane bytes and
// control messages out to the WebSocket. Implemented by internal/server.
type Sink interface {
	WriteBinary(data []byte) error
	WriteControl(msg string) error
	// Fault is called exactly once when the channel must close; reason is a
	// human-readable notice (written before close per §4.C) and code is the
	// WS close code to use (§4.C/§6/§7).
	Fault(reason string, code int)
}

// backpressureSlots sizes sourcePump's in-flight token channel. Each chunk
// (up to 32 KiB) is written to the sink synchronously and its token is
// released before the next source read, so at most one chunk is in flight
// and the source is not read while a client write blocks; tmux's own buffer
// absorbs the rest.
const backpressureSlots = 64

// mouseTickInterval is the ≤1Hz mouse-mode poll cadence (§4.C).
const mouseTickInterval = 1 * time.Second

// Channel is one client↔pane terminal connection (§3 TerminalChannel).
type Channel struct {
	resolve Resolver
	sink    Sink
	log     *slog.Logger

	mu          sync.Mutex
	state       State
	target      adapter.Target
	stream      adapter.StreamHandle
	lastCols    int
	lastRows    int
	mouseOn     bool
	cancel      context.CancelFunc
	pumpDone    chan struct{}
	closeOnce   sync.Once
}

func NewChannel(resolve Resolver, sink Sink, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{resolve: resolve, sink: sink, log: log, state: StateOpening}
}

// Open resolves the target's adapter and opens a pane stream, transitioning
// Opening→Attached on first successful read. Failure to locate the target
// at open time is TargetMissing (WS 4404 at the server layer).
func (c *Channel) Open(ctx context.Context, target adapter.Target) error {
	a, err := c.resolve(target.ContainerID)
	if err != nil {
		return err
	}
	stream, err := a.OpenStream(ctx, target)
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.target = target
	c.stream = stream
	c.cancel = cancel
	c.pumpDone = make(chan struct{})
	c.mu.Unlock()

	go c.sourcePump(streamCtx, a, stream)
	go c.mouseTicker(streamCtx, a, target)
	return nil
}

// sourcePump reads from the pane stream and forwards to the client sink.
// On first successful read it flips Opening→Attached (§4.C).
func (c *Channel) sourcePump(ctx context.Context, a adapter.Adapter, stream adapter.StreamHandle) {
	defer close(c.pumpDone)
	buf := make([]byte, 32*1024)
	first := true
	inflight := make(chan struct{}, backpressureSlots)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := stream.Read(buf)
		if err != nil {
			c.mu.Lock()
			switch c.state {
			case StateClosing, StateClosed:
				c.mu.Unlock()
				return
			default:
				c.state = StateFaulted
				c.mu.Unlock()
			}
			c.sink.Fault("terminal source disappeared", 4410)
			return
		}
		if n == 0 {
			continue
		}
		if first {
			c.mu.Lock()
			if c.state == StateOpening {
				c.state = StateAttached
			}
			c.mu.Unlock()
			first = false
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])

		// Bounded back-pressure: block (stop reading the source) once the
		// client is slow, per §4.C.
		select {
		case inflight <- struct{}{}:
		case <-ctx.Done():
			return
		}
		if err := c.sink.WriteBinary(chunk); err != nil {
			<-inflight
			return
		}
		<-inflight
	}
}

// mouseTicker polls tmux's mouse option ≤1Hz and emits MOUSE_WARNING on
// change (§4.C).
func (c *Channel) mouseTicker(ctx context.Context, a adapter.Adapter, target adapter.Target) {
	ticker := time.NewTicker(mouseTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		on, err := a.MouseEnabled(ctx, target)
		if err != nil {
			continue
		}
		c.mu.Lock()
		changed := on != c.mouseOn
		c.mouseOn = on
		c.mu.Unlock()
		if changed {
			msg := "MOUSE_WARNING:off"
			if on {
				msg = "MOUSE_WARNING:on"
			}
			_ = c.sink.WriteControl(msg)
		}
	}
}

// HandleBinary forwards raw client bytes to the pane as literal input.
func (c *Channel) HandleBinary(ctx context.Context, data []byte) error {
	_, stream := c.currentAdapterStream()
	if stream == nil {
		return apperr.New(apperr.Internal, "channel not attached")
	}
	_, err := stream.Write(data)
	return err
}

func (c *Channel) currentAdapterStream() (adapter.Adapter, adapter.StreamHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, _ := c.resolve(c.target.ContainerID)
	return a, c.stream
}

// HandleText dispatches a text frame: control message if it matches
// "<letter>:...", otherwise literal pane input (§4.C).
func (c *Channel) HandleText(ctx context.Context, text string) error {
	if !isControlMessage(text) {
		return c.HandleBinary(ctx, []byte(text))
	}
	idx := strings.IndexByte(text, ':')
	verb, rest := text[:idx], text[idx+1:]
	switch verb {
	case "RESIZE":
		return c.handleResize(ctx, rest)
	case "SCROLL":
		return c.handleScroll(ctx, rest)
	case "SELECT_WINDOW":
		return c.handleSelectWindow(ctx, rest)
	case "DISABLE_MOUSE":
		return c.handleDisableMouse(ctx)
	default:
		return nil // unknown control verbs are ignored, not fatal
	}
}

func isControlMessage(text string) bool {
	if len(text) < 2 {
		return false
	}
	c0 := text[0]
	isLetter := (c0 >= 'A' && c0 <= 'Z') || (c0 >= 'a' && c0 <= 'z')
	return isLetter && strings.IndexByte(text, ':') >= 0
}

// handleResize applies RESIZE:cols:rows, coalescing consecutive identical
// values before they reach tmux (§4.C, round-trip law in §8).
func (c *Channel) handleResize(ctx context.Context, rest string) error {
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return nil
	}
	cols, err1 := strconv.Atoi(parts[0])
	rows, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return nil
	}
	c.mu.Lock()
	if cols == c.lastCols && rows == c.lastRows {
		c.mu.Unlock()
		return nil
	}
	c.lastCols, c.lastRows = cols, rows
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return nil
	}
	return stream.Resize(cols, rows)
}

func (c *Channel) handleScroll(ctx context.Context, rest string) error {
	a, _ := c.currentAdapterStream()
	c.mu.Lock()
	target := c.target
	c.mu.Unlock()
	if rest == "exit" {
		return a.AckScroll(ctx, target, "exit", 0)
	}
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return nil
	}
	lines, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil
	}
	return a.AckScroll(ctx, target, parts[0], lines)
}

// handleSelectWindow tears down the prior stream and opens a new one to the
// same session but a different window index, without reconnecting the
// client WebSocket (§4.C).
func (c *Channel) handleSelectWindow(ctx context.Context, rest string) error {
	idx, err := strconv.Atoi(rest)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	c.state = StateSwitching
	prevCancel := c.cancel
	prevDone := c.pumpDone
	newTarget := c.target
	newTarget.WindowIndex = idx
	c.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if prevDone != nil {
		<-prevDone
	}

	if err := c.Open(ctx, newTarget); err != nil {
		c.mu.Lock()
		c.state = StateFaulted
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	c.state = StateAttached
	c.mu.Unlock()
	return nil
}

func (c *Channel) handleDisableMouse(ctx context.Context) error {
	a, _ := c.currentAdapterStream()
	c.mu.Lock()
	target := c.target
	c.mu.Unlock()
	return a.SetMouseEnabled(ctx, target, false)
}

// Close tears the channel down (client disconnect, per §4.C Closing→Closed).
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosing
		cancel := c.cancel
		stream := c.stream
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if stream != nil {
			_ = stream.Close()
		}
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
	})
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
