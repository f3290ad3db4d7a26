package adapter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	pty "github.com/creack/pty/v2"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/model"
	"github.com/msbrogli/tmuxdeck/internal/tmuxcli"
)

// commandTimeout bounds every tmux CLI invocation per §5 ("tmux command
// invocations 10s").
const commandTimeout = 10 * time.Second

// LocalAdapter runs tmux directly against a socket path: used for both the
// `host` container (the operator's real tmux socket) and the `local`
// container (a TmuxDeck-private socket), distinguished only by Socket.
// Grounded on kojo's internal/session/tmux.go.
type LocalAdapter struct {
	// Socket is passed to tmux via -S. Empty means the default socket.
	Socket string
}

func NewLocalAdapter(socket string) *LocalAdapter {
	return &LocalAdapter{Socket: socket}
}

func (a *LocalAdapter) Variant() Variant { return VariantLocal }

func (a *LocalAdapter) argv(args []string) []string {
	if a.Socket == "" {
		return args
	}
	full := make([]string, 0, len(args)+2)
	full = append(full, "-S", a.Socket)
	full = append(full, args...)
	return full
}

func (a *LocalAdapter) run(ctx context.Context, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, tmuxcli.Bin, a.argv(args)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.Bytes(), classifyExecErr(err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// classifyExecErr maps tmux CLI failures onto §4.A's error kinds.
func classifyExecErr(err error, stderr string) error {
	low := strings.ToLower(stderr)
	switch {
	case strings.Contains(low, "no server running"), strings.Contains(low, "error connecting"):
		return apperr.Wrap(apperr.SourceUnavailable, err, "tmux server unavailable")
	case strings.Contains(low, "can't find"), strings.Contains(low, "session not found"), strings.Contains(low, "window not found"):
		return apperr.Wrap(apperr.TargetMissing, err, "tmux target not found")
	case strings.Contains(low, "duplicate session"), strings.Contains(low, "already exists"):
		return apperr.Wrap(apperr.NameConflict, err, "tmux name conflict")
	default:
		return apperr.Wrap(apperr.Internal, err, "tmux command failed: %s", strings.TrimSpace(stderr))
	}
}

func sessionTarget(session string, idx int) string {
	return fmt.Sprintf("%s:%d", session, idx)
}

func (a *LocalAdapter) ListSessions(ctx context.Context, containerID string) ([]model.TmuxSession, error) {
	out, err := a.run(ctx, tmuxcli.ListSessionsArgs())
	if err != nil {
		if apperr.KindOf(err) == apperr.SourceUnavailable {
			// No server running at all is a valid empty result, not an error,
			// per §4.A ("Empty session list is a valid result, not an error").
			return nil, nil
		}
		return nil, err
	}
	raw := tmuxcli.ParseSessions(out)
	sessions := make([]model.TmuxSession, 0, len(raw))
	for _, rs := range raw {
		wout, werr := a.run(ctx, tmuxcli.ListWindowsArgs(rs.Name))
		var windows []model.Window
		if werr == nil {
			for _, rw := range tmuxcli.ParseWindows(wout) {
				windows = append(windows, model.Window{
					Index: rw.Index, Name: rw.Name, Active: rw.Active,
					PaneCount: rw.PaneCount, Bell: rw.Bell, Activity: rw.Activity,
					Command: rw.Command, PaneStatus: rw.PaneStatus,
				})
			}
		}
		sessions = append(sessions, model.TmuxSession{
			ID: rs.ID, Name: rs.Name, Attached: rs.Attached,
			Windows: windows, ContainerID: containerID,
		})
	}
	return sessions, nil
}

func (a *LocalAdapter) CreateSession(ctx context.Context, containerID, name string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.New(apperr.InvalidArgument, "session name must not be empty")
	}
	if _, err := a.run(ctx, tmuxcli.NewSessionArgs(name, "")); err != nil {
		return err
	}
	for _, args := range tmuxcli.ConfigureNewSessionArgs(name) {
		if _, err := a.run(ctx, args); err != nil {
			return err
		}
	}
	return nil
}

func (a *LocalAdapter) KillSession(ctx context.Context, containerID, name string) error {
	_, err := a.run(ctx, tmuxcli.KillSessionArgs(name))
	return err
}

func (a *LocalAdapter) RenameSession(ctx context.Context, containerID, oldName, newName string) error {
	_, err := a.run(ctx, tmuxcli.RenameSessionArgs(oldName, newName))
	return err
}

func (a *LocalAdapter) CreateWindow(ctx context.Context, containerID, session string) error {
	_, err := a.run(ctx, tmuxcli.NewWindowArgs(session))
	return err
}

func (a *LocalAdapter) SwapWindows(ctx context.Context, containerID, session string, i, j int) error {
	_, err := a.run(ctx, tmuxcli.SwapWindowArgs(session, i, j))
	return err
}

func (a *LocalAdapter) MoveWindow(ctx context.Context, containerID, srcSession string, idx int, dstSession string) error {
	_, err := a.run(ctx, tmuxcli.MoveWindowArgs(srcSession, idx, dstSession))
	return err
}

func (a *LocalAdapter) KillWindow(ctx context.Context, containerID, session string, idx int) error {
	_, err := a.run(ctx, tmuxcli.KillWindowArgs(session, idx))
	return err
}

func (a *LocalAdapter) SendKeys(ctx context.Context, target Target, data []byte) error {
	args := tmuxcli.SendKeysLiteralArgs(sessionTarget(target.SessionName, target.WindowIndex))
	args = append(args, string(data))
	_, err := a.run(ctx, args)
	return err
}

func (a *LocalAdapter) CapturePane(ctx context.Context, target Target, withAnsi bool) ([]byte, error) {
	return a.run(ctx, tmuxcli.CapturePaneArgs(sessionTarget(target.SessionName, target.WindowIndex), withAnsi))
}

func (a *LocalAdapter) AckScroll(ctx context.Context, target Target, direction string, lines int) error {
	t := sessionTarget(target.SessionName, target.WindowIndex)
	for _, args := range tmuxcli.AckScrollArgs(t, direction, lines) {
		if _, err := a.run(ctx, args); err != nil {
			return err
		}
	}
	return nil
}

func (a *LocalAdapter) MouseEnabled(ctx context.Context, target Target) (bool, error) {
	out, err := a.run(ctx, tmuxcli.GetMouseOptionArgs(target.SessionName))
	if err != nil {
		return false, err
	}
	return strings.Contains(string(out), "on"), nil
}

func (a *LocalAdapter) SetMouseEnabled(ctx context.Context, target Target, on bool) error {
	_, err := a.run(ctx, tmuxcli.SetMouseOptionArgs(target.SessionName, on))
	return err
}

func (a *LocalAdapter) ClearWindowStatus(ctx context.Context, target Target) error {
	t := sessionTarget(target.SessionName, target.WindowIndex)
	for _, args := range tmuxcli.ClearWindowStatusArgs(t) {
		if _, err := a.run(ctx, args); err != nil {
			return err
		}
	}
	return nil
}

// OpenStream attaches a PTY to the target session, per §4.A("implemented via
// tmux attach/pipe-pane/exec depending on variant"). Grounded on kojo's
// startTmuxAttach / creack/pty usage.
func (a *LocalAdapter) OpenStream(ctx context.Context, target Target) (StreamHandle, error) {
	if !a.hasSession(ctx, target.SessionName) {
		return nil, apperr.New(apperr.TargetMissing, "session %q not found", target.SessionName)
	}
	args := a.argv([]string{"attach-session", "-t", sessionTarget(target.SessionName, target.WindowIndex)})
	cmd := exec.Command(tmuxcli.Bin, args...)
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 40, Cols: 120})
	if err != nil {
		return nil, apperr.Wrap(apperr.SourceUnavailable, err, "tmux attach failed")
	}
	return &localStream{ptmx: ptmx, cmd: cmd}, nil
}

func (a *LocalAdapter) hasSession(ctx context.Context, name string) bool {
	_, err := a.run(ctx, tmuxcli.HasSessionArgs(name))
	return err == nil
}

type localStream struct {
	ptmx *os.File
	cmd  *exec.Cmd
}

func (s *localStream) Read(p []byte) (int, error)  { return s.ptmx.Read(p) }
func (s *localStream) Write(p []byte) (int, error) { return s.ptmx.Write(p) }
func (s *localStream) Close() error {
	err := s.ptmx.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	return err
}
func (s *localStream) Resize(cols, rows int) error {
	return pty.Setsize(s.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}
