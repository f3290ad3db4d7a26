package debugring

import (
	"fmt"
	"testing"

	"github.com/msbrogli/tmuxdeck/internal/model"
)

func TestAppendAndSnapshot_OldestFirst(t *testing.T) {
	r := New(nil)
	r.Info("registry", "poll ok")
	r.Warn("bridge", "agent stale")
	r.Error("auth", "bad pin")

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap))
	}
	if snap[0].Level != model.DebugInfo || snap[1].Level != model.DebugWarn || snap[2].Level != model.DebugError {
		t.Fatalf("expected oldest-first ordering, got %+v", snap)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	r := New(nil)
	r.Info("x", "one")
	snap := r.Snapshot()
	snap[0].Message = "mutated"

	again := r.Snapshot()
	if again[0].Message != "one" {
		t.Fatalf("mutating a snapshot must not affect the ring, got %q", again[0].Message)
	}
}

func TestClear(t *testing.T) {
	r := New(nil)
	r.Info("x", "one")
	r.Clear()
	if len(r.Snapshot()) != 0 {
		t.Fatal("expected empty ring after Clear")
	}
}

func TestAppend_EvictsOldestAtCapacity(t *testing.T) {
	r := New(nil)
	for i := 0; i < capacity+5; i++ {
		r.Info("x", fmt.Sprintf("entry-%d", i))
	}
	snap := r.Snapshot()
	if len(snap) != capacity {
		t.Fatalf("expected ring to cap at %d entries, got %d", capacity, len(snap))
	}
	if snap[0].Message != "entry-5" {
		t.Fatalf("expected oldest surviving entry to be entry-5, got %q", snap[0].Message)
	}
	if snap[len(snap)-1].Message != fmt.Sprintf("entry-%d", capacity+4) {
		t.Fatalf("expected newest entry preserved, got %q", snap[len(snap)-1].Message)
	}
}

func TestNewSlackWebhookSink_EmptyURLReturnsNil(t *testing.T) {
	if NewSlackWebhookSink("") != nil {
		t.Fatal("expected nil sink for empty url")
	}
}

type fakeSink struct {
	posted []model.DebugEntry
	done   chan struct{}
}

func (f *fakeSink) Post(entry model.DebugEntry) error {
	f.posted = append(f.posted, entry)
	close(f.done)
	return nil
}

func TestAppend_OnlyErrorLevelPostsToSink(t *testing.T) {
	sink := &fakeSink{done: make(chan struct{})}
	r := New(sink)
	r.Info("x", "not an error")
	r.Error("x", "boom")
	<-sink.done
	if len(sink.posted) != 1 || sink.posted[0].Message != "boom" {
		t.Fatalf("expected only the error entry posted, got %+v", sink.posted)
	}
}
