// Package tmuxcli builds tmux argument vectors and parses tmux `-F` output
// the same way across every adapter variant (local process, container-exec,
// bridge-proxied) in internal/adapter — this is the one place that knows
// what tmux's CLI actually looks like.
//
// Field delimiter is the ASCII unit separator (\x1f), which cannot appear in
// a tmux-legal session/window name, so it never needs escaping.
package tmuxcli

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// FieldSep separates fields within one -F formatted line.
	FieldSep = "\x1f"
	// Bin is the tmux executable name; adapters may override via PATH or -S.
	Bin = "tmux"
)

// Runner abstracts "run this tmux argv and give me stdout", so the same
// parsing code works whether the argv is executed by os/exec (local
// adapter) or docker exec (container-exec adapter). The bridge adapter
// ships an operation name and arguments in its `op` frame, not an argv;
// the agent runs that operation through its own local adapter.
type Runner interface {
	Run(args []string) (stdout []byte, err error)
}

// WindowFields is the -F format string for window enumeration. Tolerant
// parsing (see ParseWindows) means a tmux version that omits a trailing
// field degrades gracefully instead of erroring — this resolves the open
// question on format-string skew across tmux versions.
const WindowFields = "#{window_index}" + FieldSep +
	"#{window_name}" + FieldSep +
	"#{window_active}" + FieldSep +
	"#{window_panes}" + FieldSep +
	"#{window_bell_flag}" + FieldSep +
	"#{window_activity_flag}" + FieldSep +
	"#{pane_current_command}" + FieldSep +
	"#{pane_status}"

// SessionFields is the -F format string for session enumeration.
const SessionFields = "#{session_id}" + FieldSep +
	"#{session_name}" + FieldSep +
	"#{session_attached}"

// RawWindow is one positionally-parsed -F line before type conversion.
type RawWindow struct {
	Index      int
	Name       string
	Active     bool
	PaneCount  int
	Bell       bool
	Activity   bool
	Command    string
	PaneStatus string
}

// ParseWindows parses WindowFields-formatted output tolerant of missing
// trailing fields (a field present in a newer tmux but absent in an older
// one just comes back empty rather than failing the parse).
func ParseWindows(out []byte) []RawWindow {
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	windows := make([]RawWindow, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		fields := strings.Split(line, FieldSep)
		w := RawWindow{}
		get := func(i int) string {
			if i < len(fields) {
				return fields[i]
			}
			return ""
		}
		w.Index, _ = strconv.Atoi(get(0))
		w.Name = get(1)
		w.Active = get(2) == "1"
		w.PaneCount, _ = strconv.Atoi(get(3))
		if w.PaneCount == 0 {
			w.PaneCount = 1
		}
		w.Bell = get(4) == "1"
		w.Activity = get(5) == "1"
		w.Command = get(6)
		w.PaneStatus = get(7)
		windows = append(windows, w)
	}
	return windows
}

// RawSession is one positionally-parsed session -F line.
type RawSession struct {
	ID       string
	Name     string
	Attached bool
}

// ParseSessions parses SessionFields-formatted output.
func ParseSessions(out []byte) []RawSession {
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	sessions := make([]RawSession, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		fields := strings.Split(line, FieldSep)
		s := RawSession{}
		get := func(i int) string {
			if i < len(fields) {
				return fields[i]
			}
			return ""
		}
		s.ID = get(0)
		s.Name = get(1)
		s.Attached = get(2) == "1"
		sessions = append(sessions, s)
	}
	return sessions
}

// ShellQuote wraps s in single quotes, escaping embedded single quotes,
// for building arguments passed through an outer shell (e.g. pipe-pane's
// `exec cat > path` command string).
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ListSessionsArgs builds the argv for §4.A ListSessions.
func ListSessionsArgs() []string {
	return []string{"list-sessions", "-F", SessionFields}
}

// ListWindowsArgs builds the argv for enumerating a session's windows.
func ListWindowsArgs(session string) []string {
	return []string{"list-windows", "-t", session, "-F", WindowFields}
}

// NewSessionArgs builds the argv for §4.A CreateSession. It sets no
// options; the activity-without-bell options come from
// ConfigureNewSessionArgs, issued after the session exists.
func NewSessionArgs(session, workDir string) []string {
	args := []string{"new-session", "-d", "-s", session}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	return args
}

// ConfigureNewSessionArgs returns the follow-up option-setting commands
// CreateSession must issue after the session exists: monitor-activity on,
// activity-action none, remain-on-exit off.
func ConfigureNewSessionArgs(session string) [][]string {
	return [][]string{
		{"set-option", "-t", session, "monitor-activity", "on"},
		{"set-option", "-t", session, "activity-action", "none"},
		{"set-option", "-t", session, "remain-on-exit", "off"},
	}
}

func KillSessionArgs(session string) []string {
	return []string{"kill-session", "-t", session}
}

func RenameSessionArgs(session, newName string) []string {
	return []string{"rename-session", "-t", session, newName}
}

func NewWindowArgs(session string) []string {
	return []string{"new-window", "-t", session}
}

func SwapWindowArgs(session string, i, j int) []string {
	return []string{"swap-window", "-s", fmt.Sprintf("%s:%d", session, i), "-t", fmt.Sprintf("%s:%d", session, j)}
}

func MoveWindowArgs(srcSession string, idx int, dstSession string) []string {
	return []string{"move-window", "-s", fmt.Sprintf("%s:%d", srcSession, idx), "-t", dstSession}
}

func KillWindowArgs(session string, idx int) []string {
	return []string{"kill-window", "-t", fmt.Sprintf("%s:%d", session, idx)}
}

func HasSessionArgs(session string) []string {
	return []string{"has-session", "-t", session}
}

func CapturePaneArgs(target string, withAnsi bool) []string {
	args := []string{"capture-pane", "-t", target, "-p"}
	if withAnsi {
		args = append(args, "-e")
	}
	return args
}

// AckScrollArgs builds the copy-mode scroll commands for §4.A AckScroll.
// direction is "up" or "down"; "exit" leaves copy-mode.
func AckScrollArgs(target, direction string, lines int) [][]string {
	if direction == "exit" {
		return [][]string{{"send-keys", "-t", target, "-X", "cancel"}}
	}
	cmds := [][]string{{"copy-mode", "-t", target}}
	key := "cursor-up"
	if direction == "down" {
		key = "cursor-down"
	}
	for i := 0; i < lines; i++ {
		cmds = append(cmds, []string{"send-keys", "-t", target, "-X", key})
	}
	return cmds
}

func AttachArgs(session string) []string {
	return []string{"attach-session", "-t", session}
}

func GetMouseOptionArgs(session string) []string {
	return []string{"show-options", "-t", session, "mouse"}
}

func SetMouseOptionArgs(session string, on bool) []string {
	val := "off"
	if on {
		val = "on"
	}
	return []string{"set-option", "-t", session, "mouse", val}
}

func ResizeWindowArgs(session string, cols, rows int) []string {
	return []string{"resize-window", "-t", session, "-x", strconv.Itoa(cols), "-y", strconv.Itoa(rows)}
}

// ClearWindowStatusArgs builds the commands that reset a window's sticky
// bell/activity flags (§9 "Bell/activity auto-clear on focus": clients ack
// via clear-status, which is the only thing that clears them). Toggling
// monitor-bell/monitor-activity off then back on is what actually resets
// tmux's #{window_bell_flag}/#{window_activity_flag} for that window.
func ClearWindowStatusArgs(target string) [][]string {
	return [][]string{
		{"set-window-option", "-t", target, "monitor-bell", "off"},
		{"set-window-option", "-t", target, "monitor-bell", "on"},
		{"set-window-option", "-t", target, "monitor-activity", "off"},
		{"set-window-option", "-t", target, "monitor-activity", "on"},
	}
}

func SendKeysLiteralArgs(target string) []string {
	// Caller appends the literal payload as the final "-l" argument value.
	return []string{"send-keys", "-t", target, "-l"}
}
