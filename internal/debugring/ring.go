// Package debugring implements the Debug Ring (§4.G): a fixed-capacity,
// concurrency-safe log of server, bridge, and client events, with an
// optional Slack webhook sink for error-level entries.
package debugring

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"

	"github.com/msbrogli/tmuxdeck/internal/model"
)

// capacity is the ring's fixed size (§4.G: 2000 entries).
const capacity = 2000

// SlackSink posts error-level entries to an operator-configured webhook,
// orthogonal to the client-facing Notification Router.
type SlackSink interface {
	Post(entry model.DebugEntry) error
}

type webhookSink struct {
	url string
}

// NewSlackWebhookSink posts via slack.PostWebhook; returns nil if url is empty.
func NewSlackWebhookSink(url string) SlackSink {
	if url == "" {
		return nil
	}
	return &webhookSink{url: url}
}

func (s *webhookSink) Post(entry model.DebugEntry) error {
	text := fmt.Sprintf("[%s] %s: %s", entry.Source, entry.Message, entry.Detail)
	return slack.PostWebhook(s.url, &slack.WebhookMessage{Text: text})
}

// Ring is a fixed-capacity circular buffer of DebugEntry values. Writes are
// serialized; reads return a consistent snapshot (§4.G).
type Ring struct {
	mu      sync.Mutex
	entries []model.DebugEntry // append-ordered, oldest first; trimmed at capacity
	sink    SlackSink
}

func New(sink SlackSink) *Ring {
	return &Ring{entries: make([]model.DebugEntry, 0, capacity), sink: sink}
}

// Append adds an entry, evicting the oldest once capacity is reached.
func (r *Ring) Append(level model.DebugLevel, source, message, detail string) model.DebugEntry {
	entry := model.DebugEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Level:     level,
		Source:    source,
		Message:   message,
		Detail:    detail,
	}

	r.mu.Lock()
	if len(r.entries) >= capacity {
		r.entries = append(r.entries[1:], entry)
	} else {
		r.entries = append(r.entries, entry)
	}
	r.mu.Unlock()

	if level == model.DebugError && r.sink != nil {
		go func() {
			_ = r.sink.Post(entry)
		}()
	}
	return entry
}

func (r *Ring) Info(source, message string)  { r.Append(model.DebugInfo, source, message, "") }
func (r *Ring) Warn(source, message string)  { r.Append(model.DebugWarn, source, message, "") }
func (r *Ring) Error(source, message string) { r.Append(model.DebugError, source, message, "") }

// Snapshot returns a consistent copy of every currently-held entry, oldest first.
func (r *Ring) Snapshot() []model.DebugEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.DebugEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Clear empties the ring (DELETE endpoint, §4.G).
func (r *Ring) Clear() {
	r.mu.Lock()
	r.entries = r.entries[:0]
	r.mu.Unlock()
}
