package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/msbrogli/tmuxdeck/internal/model"
)

type fakeTelegram struct {
	mu       sync.Mutex
	sent     []string
	failAll  bool
	failOnce map[string]bool
}

func (f *fakeTelegram) SendMessage(ctx context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll || f.failOnce[chatID] {
		return errors.New("telegram unavailable")
	}
	f.sent = append(f.sent, chatID+":"+text)
	return nil
}

func newTestRouter(tg TelegramSender, chatIDs []string, timeoutSecs int) *Router {
	return NewRouter(tg, nil, func() []string { return chatIDs }, timeoutSecs, nil)
}

// waitStatus polls r.Pending()/internal state for n's dedup key until it
// reaches want or the deadline passes.
func waitStatus(t *testing.T, r *Router, key model.DedupKey, want model.NotificationStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		r.mu.Lock()
		n, ok := r.pending[key]
		var got model.NotificationStatus
		if ok {
			got = n.Status
		}
		r.mu.Unlock()
		if ok && got == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("status for %+v never reached %q (last=%q, present=%v)", key, want, got, ok)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestSendTelegram_SuccessfulSendMarksDelivered covers spec.md §8 scenario 3:
// a notification with no web channel goes straight to telegram, and a
// successful send must land on "delivered", never "timed_out".
func TestSendTelegram_SuccessfulSendMarksDelivered(t *testing.T) {
	tg := &fakeTelegram{}
	r := newTestRouter(tg, []string{"chat-1"}, 60)

	n := model.Notification{
		ContainerID: "c1", SessionName: "work", Kind: model.NotifyBell,
		Title: "bell", Channels: []model.NotificationChannel{model.ChannelTelegram},
	}
	out := r.Publish(context.Background(), n)

	waitStatus(t, r, out.DedupKey(), model.NotificationDelivered)

	tg.mu.Lock()
	defer tg.mu.Unlock()
	if len(tg.sent) != 1 {
		t.Fatalf("expected exactly one telegram send, got %d: %v", len(tg.sent), tg.sent)
	}
}

// TestSendTelegram_NoChatIDsIsTimedOut covers the other half of the fix: with
// telegram "configured" but no chat ids to reach, the notification must end
// up timed_out rather than delivered.
func TestSendTelegram_NoChatIDsIsTimedOut(t *testing.T) {
	tg := &fakeTelegram{}
	r := newTestRouter(tg, nil, 60)

	n := model.Notification{
		ContainerID: "c1", SessionName: "work", Kind: model.NotifyBell,
		Title: "bell", Channels: []model.NotificationChannel{model.ChannelTelegram},
	}
	out := r.Publish(context.Background(), n)

	waitStatus(t, r, out.DedupKey(), model.NotificationTimedOut)
}

// TestSendTelegram_NoClientConfiguredIsTimedOut mirrors the no-chat-ids case
// for the "telegram never wired up" configuration.
func TestSendTelegram_NoClientConfiguredIsTimedOut(t *testing.T) {
	r := newTestRouter(nil, []string{"chat-1"}, 60)

	n := model.Notification{
		ContainerID: "c1", SessionName: "work", Kind: model.NotifyBell,
		Title: "bell", Channels: []model.NotificationChannel{model.ChannelTelegram},
	}
	out := r.Publish(context.Background(), n)

	waitStatus(t, r, out.DedupKey(), model.NotificationTimedOut)
}

// TestArmTelegramTimer_FiresAndDelivers exercises the web+telegram timer
// path: the timer fires after the configured delay and a successful send
// still lands on delivered, not timed_out.
func TestArmTelegramTimer_FiresAndDelivers(t *testing.T) {
	tg := &fakeTelegram{}
	r := newTestRouter(tg, []string{"chat-1"}, 0) // 0 -> defaultTelegramTimeout (60s), too slow for a test
	r.telegramTimeout = 50 * time.Millisecond

	n := model.Notification{
		ContainerID: "c1", SessionName: "work", Kind: model.NotifyAlert,
		Title: "alert",
		Channels: []model.NotificationChannel{
			model.ChannelWeb, model.ChannelTelegram,
		},
	}
	out := r.Publish(context.Background(), n)

	waitStatus(t, r, out.DedupKey(), model.NotificationDelivered)
}

// TestDismiss_CancelsArmedTimerBeforeItFires ensures a dismissed notification
// never flips to delivered/timed_out after the fact.
func TestDismiss_CancelsArmedTimerBeforeItFires(t *testing.T) {
	tg := &fakeTelegram{}
	r := newTestRouter(tg, []string{"chat-1"}, 0)
	r.telegramTimeout = 50 * time.Millisecond

	n := model.Notification{
		ContainerID: "c1", SessionName: "work", Kind: model.NotifyAlert,
		Title: "alert",
		Channels: []model.NotificationChannel{
			model.ChannelWeb, model.ChannelTelegram,
		},
	}
	r.Publish(context.Background(), n)
	r.Dismiss("c1", "work", nil)

	time.Sleep(100 * time.Millisecond)

	tg.mu.Lock()
	defer tg.mu.Unlock()
	if len(tg.sent) != 0 {
		t.Fatalf("expected no telegram send after dismiss, got %v", tg.sent)
	}
}
