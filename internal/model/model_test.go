package model

import "testing"

func TestBridgeContainerID(t *testing.T) {
	if got := BridgeContainerID("abc123"); got != "bridge:abc123" {
		t.Fatalf("got %q", got)
	}
}

func TestNotificationDedupKey(t *testing.T) {
	n := Notification{ContainerID: "host", SessionName: "work", Kind: NotifyBell, WindowIndex: 2}
	key := n.DedupKey()
	want := DedupKey{ContainerID: "host", SessionName: "work", Kind: NotifyBell}
	if key != want {
		t.Fatalf("got %+v want %+v", key, want)
	}
}

func TestDedupKeyIgnoresWindowIndex(t *testing.T) {
	a := Notification{ContainerID: "c", SessionName: "s", Kind: NotifyActivity, WindowIndex: 0}
	b := Notification{ContainerID: "c", SessionName: "s", Kind: NotifyActivity, WindowIndex: 7}
	if a.DedupKey() != b.DedupKey() {
		t.Fatal("dedup key must be independent of window index so bells on different windows of the same session collapse")
	}
}
