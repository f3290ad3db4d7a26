// Package notify implements the Notification Router (§4.E): deduplicated
// per-target notifications fanned out to web/os (SSE + Web Push) and an
// optional Telegram fallback.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msbrogli/tmuxdeck/internal/model"
)

// defaultTelegramTimeout matches §4.E's documented default.
const defaultTelegramTimeout = 60 * time.Second

// TelegramSender abstracts telegram.Client so Router doesn't need the
// concrete bot token at construction time.
type TelegramSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Pusher abstracts notify.PushManager (its own file — distinct concern from
// the Router's dedup/delivery logic).
type Pusher interface {
	Send(payload []byte)
}

type Router struct {
	mu      sync.Mutex
	pending map[model.DedupKey]*model.Notification
	timers  map[model.DedupKey]*time.Timer

	subsMu sync.Mutex
	subs   map[chan model.Notification]struct{}

	telegram        TelegramSender
	push            Pusher
	telegramTimeout time.Duration
	chatIDs         func() []string

	log *slog.Logger
}

func NewRouter(telegramClient TelegramSender, push Pusher, chatIDs func() []string, telegramTimeoutSecs int, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	timeout := defaultTelegramTimeout
	if telegramTimeoutSecs > 0 {
		timeout = time.Duration(telegramTimeoutSecs) * time.Second
	}
	if chatIDs == nil {
		chatIDs = func() []string { return nil }
	}
	return &Router{
		pending:         make(map[model.DedupKey]*model.Notification),
		timers:          make(map[model.DedupKey]*time.Timer),
		subs:            make(map[chan model.Notification]struct{}),
		telegram:        telegramClient,
		push:            push,
		telegramTimeout: timeout,
		chatIDs:         chatIDs,
		log:             log,
	}
}

// Subscribe registers a new SSE client. The caller must read from the
// returned channel and call cancel on disconnect. The channel holds 32
// notifications; when it is full, broadcast drops further notifications
// for that subscriber rather than block, so a slow reader misses them.
func (r *Router) Subscribe() (ch <-chan model.Notification, cancel func()) {
	c := make(chan model.Notification, 32)
	r.subsMu.Lock()
	r.subs[c] = struct{}{}
	r.subsMu.Unlock()
	return c, func() {
		r.subsMu.Lock()
		delete(r.subs, c)
		r.subsMu.Unlock()
		close(c)
	}
}

func (r *Router) broadcast(n model.Notification) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for c := range r.subs {
		select {
		case c <- n:
		default:
			// slow subscriber: drop rather than block the router (§5
			// ordering guarantees don't cover SSE fan-out delivery).
		}
	}
}

// Publish creates or merges a notification under its dedup key (§4.E) and
// delivers it on every requested channel.
func (r *Router) Publish(ctx context.Context, in model.Notification) model.Notification {
	key := in.DedupKey()

	r.mu.Lock()
	existing, ok := r.pending[key]
	if ok {
		existing.Message = in.Message
		existing.WindowIndex = in.WindowIndex
		existing.CreatedAt = time.Now()
		existing.Channels = in.Channels
		n := *existing
		r.mu.Unlock()
		r.broadcast(n)
		return n
	}

	n := in
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now()
	n.Status = model.NotificationPending
	cp := n
	r.pending[key] = &cp
	r.mu.Unlock()

	r.broadcast(n)
	r.deliver(ctx, key, n)
	return n
}

func hasChannel(channels []model.NotificationChannel, want model.NotificationChannel) bool {
	for _, c := range channels {
		if c == want {
			return true
		}
	}
	return false
}

// deliver applies §4.E's per-channel rules for a freshly created
// notification. web/os ride the broadcast above (and Web Push, for os);
// telegram is timer-gated unless web is absent.
func (r *Router) deliver(ctx context.Context, key model.DedupKey, n model.Notification) {
	if hasChannel(n.Channels, model.ChannelOS) && r.push != nil {
		if payload, err := json.Marshal(n); err == nil {
			r.push.Send(payload)
		}
	}

	if !hasChannel(n.Channels, model.ChannelTelegram) {
		return
	}
	if hasChannel(n.Channels, model.ChannelWeb) {
		r.armTelegramTimer(key)
		return
	}
	r.sendTelegram(ctx, n)
}

func (r *Router) armTelegramTimer(key model.DedupKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[key]; ok {
		t.Stop()
	}
	r.timers[key] = time.AfterFunc(r.telegramTimeout, func() {
		r.fireTelegramTimeout(key)
	})
}

func (r *Router) fireTelegramTimeout(key model.DedupKey) {
	r.mu.Lock()
	delete(r.timers, key)
	n, ok := r.pending[key]
	if !ok || n.Status != model.NotificationPending {
		r.mu.Unlock()
		return
	}
	cp := *n
	r.mu.Unlock()

	r.sendTelegram(context.Background(), cp)
}

// sendTelegram sends n to every configured chat and records the outcome:
// a successful send marks the notification delivered (§8 scenario 3);
// TimedOut is reserved for the case where there was nothing to send to —
// no Telegram client configured, or no chat ids known by send time. If
// every attempted send fails, the status stays pending.
func (r *Router) sendTelegram(ctx context.Context, n model.Notification) {
	text := n.Title
	if n.Message != "" {
		text = n.Title + "\n" + n.Message
	}

	delivered, attempted := false, false
	if r.telegram != nil {
		for _, chatID := range r.chatIDs() {
			attempted = true
			if err := r.telegram.SendMessage(ctx, chatID, text); err != nil {
				r.log.Warn("telegram send failed", "chat", chatID, "err", err)
				continue
			}
			delivered = true
		}
	}

	r.mu.Lock()
	key := n.DedupKey()
	if p, ok := r.pending[key]; ok && p.ID == n.ID {
		switch {
		case delivered:
			p.Status = model.NotificationDelivered
		case !attempted:
			p.Status = model.NotificationTimedOut
		}
	}
	r.mu.Unlock()
}

// Dismiss marks matching pending notifications dismissed and cancels their
// Telegram timers atomically with the status change (§4.E invariant).
func (r *Router) Dismiss(containerID, sessionName string, windowIndex *int) {
	r.mu.Lock()
	var dismissed []model.Notification
	for key, n := range r.pending {
		if key.ContainerID != containerID || key.SessionName != sessionName {
			continue
		}
		if windowIndex != nil && n.WindowIndex != *windowIndex {
			continue
		}
		if n.Status != model.NotificationPending {
			continue
		}
		if t, ok := r.timers[key]; ok {
			t.Stop()
			delete(r.timers, key)
		}
		n.Status = model.NotificationDismissed
		dismissed = append(dismissed, *n)
	}
	r.mu.Unlock()

	for _, n := range dismissed {
		r.broadcast(n)
	}
}

// Pending returns a snapshot of all currently pending notifications.
func (r *Router) Pending() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Notification, 0, len(r.pending))
	for _, n := range r.pending {
		if n.Status == model.NotificationPending {
			out = append(out, *n)
		}
	}
	return out
}
