package broker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/msbrogli/tmuxdeck/internal/adapter"
	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/model"
)

type fakeStream struct {
	mu       sync.Mutex
	data     chan []byte
	closed   bool
	resizes  [][2]int
	writeErr error
}

func newFakeStream() *fakeStream {
	return &fakeStream{data: make(chan []byte, 8)}
}

func (f *fakeStream) Read(p []byte) (int, error) {
	chunk, ok := <-f.data
	if !ok {
		return 0, io.EOF
	}
	return copy(p, chunk), nil
}

func (f *fakeStream) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return len(p), nil
}

func (f *fakeStream) Resize(cols, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes = append(f.resizes, [2]int{cols, rows})
	return nil
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.data)
	}
	return nil
}

type fakeAdapter struct {
	stream      *fakeStream
	openErr     error
	mouseOn     bool
	mouseCalled chan struct{}
}

func (a *fakeAdapter) Variant() adapter.Variant { return adapter.VariantLocal }
func (a *fakeAdapter) ListSessions(ctx context.Context, containerID string) ([]model.TmuxSession, error) {
	return nil, nil
}
func (a *fakeAdapter) CreateSession(ctx context.Context, containerID, name string) error { return nil }
func (a *fakeAdapter) KillSession(ctx context.Context, containerID, name string) error   { return nil }
func (a *fakeAdapter) RenameSession(ctx context.Context, containerID, oldName, newName string) error {
	return nil
}
func (a *fakeAdapter) CreateWindow(ctx context.Context, containerID, session string) error { return nil }
func (a *fakeAdapter) SwapWindows(ctx context.Context, containerID, session string, i, j int) error {
	return nil
}
func (a *fakeAdapter) MoveWindow(ctx context.Context, containerID, srcSession string, idx int, dstSession string) error {
	return nil
}
func (a *fakeAdapter) KillWindow(ctx context.Context, containerID, session string, idx int) error {
	return nil
}
func (a *fakeAdapter) SendKeys(ctx context.Context, target adapter.Target, data []byte) error {
	return nil
}
func (a *fakeAdapter) CapturePane(ctx context.Context, target adapter.Target, withAnsi bool) ([]byte, error) {
	return nil, nil
}
func (a *fakeAdapter) OpenStream(ctx context.Context, target adapter.Target) (adapter.StreamHandle, error) {
	if a.openErr != nil {
		return nil, a.openErr
	}
	return a.stream, nil
}
func (a *fakeAdapter) AckScroll(ctx context.Context, target adapter.Target, direction string, lines int) error {
	return nil
}
func (a *fakeAdapter) ClearWindowStatus(ctx context.Context, target adapter.Target) error {
	return nil
}
func (a *fakeAdapter) MouseEnabled(ctx context.Context, target adapter.Target) (bool, error) {
	if a.mouseCalled != nil {
		select {
		case a.mouseCalled <- struct{}{}:
		default:
		}
	}
	return a.mouseOn, nil
}
func (a *fakeAdapter) SetMouseEnabled(ctx context.Context, target adapter.Target, on bool) error {
	a.mouseOn = on
	return nil
}

type fakeSink struct {
	mu       sync.Mutex
	binaries [][]byte
	controls []string
	faulted  bool
	reason   string
	code     int
	done     chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{done: make(chan struct{})}
}

func (s *fakeSink) WriteBinary(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.binaries = append(s.binaries, cp)
	return nil
}

func (s *fakeSink) WriteControl(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls = append(s.controls, msg)
	return nil
}

func (s *fakeSink) Fault(reason string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.faulted {
		s.faulted = true
		s.reason = reason
		s.code = code
		close(s.done)
	}
}

func waitBinaryCount(t *testing.T, sink *fakeSink, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		sink.mu.Lock()
		got := len(sink.binaries)
		sink.mu.Unlock()
		if got >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected at least %d binary writes, got %d", n, got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestChannel_Open_AttachesOnFirstRead(t *testing.T) {
	stream := newFakeStream()
	a := &fakeAdapter{stream: stream}
	sink := newFakeSink()
	resolve := func(containerID string) (adapter.Adapter, error) { return a, nil }

	ch := NewChannel(resolve, sink, nil)
	if ch.State() != StateOpening {
		t.Fatalf("expected initial state Opening, got %v", ch.State())
	}

	if err := ch.Open(context.Background(), adapter.Target{ContainerID: "c1", SessionName: "work"}); err != nil {
		t.Fatalf("Open: %v", err)
	}

	stream.data <- []byte("hello")
	waitBinaryCount(t, sink, 1)

	deadline := time.Now().Add(2 * time.Second)
	for ch.State() != StateAttached {
		if time.Now().After(deadline) {
			t.Fatalf("expected state Attached, got %v", ch.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	ch.Close()
}

func TestChannel_Open_ResolveErrorIsReturned(t *testing.T) {
	wantErr := apperr.New(apperr.TargetMissing, "no such container")
	resolve := func(containerID string) (adapter.Adapter, error) { return nil, wantErr }
	ch := NewChannel(resolve, newFakeSink(), nil)

	err := ch.Open(context.Background(), adapter.Target{ContainerID: "missing"})
	if apperr.KindOf(err) != apperr.TargetMissing {
		t.Fatalf("expected TargetMissing, got %v", err)
	}
}

func TestChannel_SourcePump_FaultsOnReadError(t *testing.T) {
	stream := newFakeStream()
	a := &fakeAdapter{stream: stream}
	sink := newFakeSink()
	resolve := func(containerID string) (adapter.Adapter, error) { return a, nil }

	ch := NewChannel(resolve, sink, nil)
	if err := ch.Open(context.Background(), adapter.Target{ContainerID: "c1", SessionName: "work"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	stream.Close() // read() now returns io.EOF

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected sink.Fault to be called")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.code != 4410 {
		t.Fatalf("expected fault code 4410, got %d", sink.code)
	}
}

func TestChannel_HandleText_ResizeCoalescesIdenticalValues(t *testing.T) {
	stream := newFakeStream()
	a := &fakeAdapter{stream: stream}
	sink := newFakeSink()
	resolve := func(containerID string) (adapter.Adapter, error) { return a, nil }

	ch := NewChannel(resolve, sink, nil)
	if err := ch.Open(context.Background(), adapter.Target{ContainerID: "c1", SessionName: "work"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()

	if err := ch.HandleText(context.Background(), "RESIZE:80:24"); err != nil {
		t.Fatalf("first resize: %v", err)
	}
	if err := ch.HandleText(context.Background(), "RESIZE:80:24"); err != nil {
		t.Fatalf("repeat resize: %v", err)
	}
	if err := ch.HandleText(context.Background(), "RESIZE:100:30"); err != nil {
		t.Fatalf("changed resize: %v", err)
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()
	if len(stream.resizes) != 2 {
		t.Fatalf("expected 2 resize calls (coalesced repeat dropped), got %d: %v", len(stream.resizes), stream.resizes)
	}
}

func TestChannel_HandleText_UnknownControlVerbIsIgnored(t *testing.T) {
	stream := newFakeStream()
	a := &fakeAdapter{stream: stream}
	sink := newFakeSink()
	resolve := func(containerID string) (adapter.Adapter, error) { return a, nil }

	ch := NewChannel(resolve, sink, nil)
	if err := ch.Open(context.Background(), adapter.Target{ContainerID: "c1", SessionName: "work"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()

	if err := ch.HandleText(context.Background(), "BOGUS:1"); err != nil {
		t.Fatalf("expected unknown verb to be ignored, got err %v", err)
	}
}

func TestChannel_HandleBinary_WritesToStream(t *testing.T) {
	stream := newFakeStream()
	a := &fakeAdapter{stream: stream}
	sink := newFakeSink()
	resolve := func(containerID string) (adapter.Adapter, error) { return a, nil }

	ch := NewChannel(resolve, sink, nil)
	if err := ch.Open(context.Background(), adapter.Target{ContainerID: "c1", SessionName: "work"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()

	if err := ch.HandleBinary(context.Background(), []byte("abc")); err != nil {
		t.Fatalf("HandleBinary: %v", err)
	}
}

func TestChannel_HandleBinary_BeforeOpenIsInternalError(t *testing.T) {
	resolve := func(containerID string) (adapter.Adapter, error) { return nil, errors.New("unused") }
	ch := NewChannel(resolve, newFakeSink(), nil)
	err := ch.HandleBinary(context.Background(), []byte("x"))
	if apperr.KindOf(err) != apperr.Internal {
		t.Fatalf("expected Internal before Open, got %v", err)
	}
}

func TestChannel_Close_IsIdempotent(t *testing.T) {
	stream := newFakeStream()
	a := &fakeAdapter{stream: stream}
	sink := newFakeSink()
	resolve := func(containerID string) (adapter.Adapter, error) { return a, nil }

	ch := NewChannel(resolve, sink, nil)
	if err := ch.Open(context.Background(), adapter.Target{ContainerID: "c1", SessionName: "work"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	ch.Close()
	ch.Close()
	if ch.State() != StateClosed {
		t.Fatalf("expected Closed, got %v", ch.State())
	}
}
