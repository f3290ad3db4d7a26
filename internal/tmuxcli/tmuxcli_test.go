package tmuxcli

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseWindows_FullFields(t *testing.T) {
	line := strings.Join([]string{"0", "main", "1", "3", "1", "0", "bash", "ok"}, FieldSep)
	got := ParseWindows([]byte(line + "\n"))
	want := []RawWindow{{Index: 0, Name: "main", Active: true, PaneCount: 3, Bell: true, Activity: false, Command: "bash", PaneStatus: "ok"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestParseWindows_MissingTrailingFields(t *testing.T) {
	// Older tmux without pane_status: only 7 fields present.
	line := strings.Join([]string{"1", "logs", "0", "0", "0", "1", "tail"}, FieldSep)
	got := ParseWindows([]byte(line + "\n"))
	if len(got) != 1 {
		t.Fatalf("expected 1 window, got %d", len(got))
	}
	w := got[0]
	if w.PaneStatus != "" {
		t.Fatalf("expected empty PaneStatus for missing field, got %q", w.PaneStatus)
	}
	if w.PaneCount != 1 {
		t.Fatalf("expected PaneCount to default to 1 when field is 0/missing, got %d", w.PaneCount)
	}
}

func TestParseWindows_EmptyOutput(t *testing.T) {
	if got := ParseWindows([]byte("")); len(got) != 0 {
		t.Fatalf("expected no windows from empty output, got %+v", got)
	}
}

func TestParseSessions(t *testing.T) {
	out := strings.Join([]string{"$1", "work", "1"}, FieldSep) + "\n" +
		strings.Join([]string{"$2", "scratch", "0"}, FieldSep) + "\n"
	got := ParseSessions([]byte(out))
	want := []RawSession{
		{ID: "$1", Name: "work", Attached: true},
		{ID: "$2", Name: "scratch", Attached: false},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"abc":   "'abc'",
		"it's":  `'it'\''s'`,
		"":      "''",
		"a'b'c": `'a'\''b'\''c'`,
	}
	for in, want := range cases {
		if got := ShellQuote(in); got != want {
			t.Errorf("ShellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSwapWindowArgs(t *testing.T) {
	got := SwapWindowArgs("work", 1, 2)
	want := []string{"swap-window", "-s", "work:1", "-t", "work:2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestMoveWindowArgs(t *testing.T) {
	got := MoveWindowArgs("work", 0, "scratch")
	want := []string{"move-window", "-s", "work:0", "-t", "scratch"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestAckScrollArgs_ExitLeavesCopyMode(t *testing.T) {
	got := AckScrollArgs("work:0", "exit", 0)
	want := [][]string{{"send-keys", "-t", "work:0", "-X", "cancel"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestAckScrollArgs_UpEntersCopyModeThenScrolls(t *testing.T) {
	got := AckScrollArgs("work:0", "up", 2)
	want := [][]string{
		{"copy-mode", "-t", "work:0"},
		{"send-keys", "-t", "work:0", "-X", "cursor-up"},
		{"send-keys", "-t", "work:0", "-X", "cursor-up"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestAckScrollArgs_Down(t *testing.T) {
	got := AckScrollArgs("work:0", "down", 1)
	want := [][]string{
		{"copy-mode", "-t", "work:0"},
		{"send-keys", "-t", "work:0", "-X", "cursor-down"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestCapturePaneArgs(t *testing.T) {
	if got := CapturePaneArgs("work:0", false); !reflect.DeepEqual(got, []string{"capture-pane", "-t", "work:0", "-p"}) {
		t.Fatalf("got %v", got)
	}
	if got := CapturePaneArgs("work:0", true); !reflect.DeepEqual(got, []string{"capture-pane", "-t", "work:0", "-p", "-e"}) {
		t.Fatalf("got %v", got)
	}
}

func TestSetMouseOptionArgs(t *testing.T) {
	if got := SetMouseOptionArgs("work", true); got[len(got)-1] != "on" {
		t.Fatalf("got %v", got)
	}
	if got := SetMouseOptionArgs("work", false); got[len(got)-1] != "off" {
		t.Fatalf("got %v", got)
	}
}

func TestResizeWindowArgs(t *testing.T) {
	got := ResizeWindowArgs("work", 80, 24)
	want := []string{"resize-window", "-t", "work", "-x", "80", "-y", "24"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestConfigureNewSessionArgs(t *testing.T) {
	got := ConfigureNewSessionArgs("work")
	if len(got) != 3 {
		t.Fatalf("expected 3 follow-up commands, got %d", len(got))
	}
	for _, cmd := range got {
		if cmd[0] != "set-option" {
			t.Errorf("expected set-option, got %v", cmd)
		}
	}
}
