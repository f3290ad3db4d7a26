package adapter

import (
	"context"
	"strings"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/dockerclient"
	"github.com/msbrogli/tmuxdeck/internal/model"
	"github.com/msbrogli/tmuxdeck/internal/tmuxcli"
)

// ContainerExecAdapter runs every tmux operation via the Docker Engine's
// exec API instead of a local process. Grounded on
// STRML-claude-cells/internal/docker (ExecInContainer) and
// internal/tui/pty.go (ContainerExecAttach hijacked streaming).
type ContainerExecAdapter struct {
	Docker      *dockerclient.Client
	ContainerID string
}

func NewContainerExecAdapter(docker *dockerclient.Client, containerID string) *ContainerExecAdapter {
	return &ContainerExecAdapter{Docker: docker, ContainerID: containerID}
}

func (a *ContainerExecAdapter) Variant() Variant { return VariantContainerExec }

func (a *ContainerExecAdapter) exec(ctx context.Context, args []string) ([]byte, error) {
	argv := append([]string{tmuxcli.Bin}, args...)
	stdout, stderr, err := a.Docker.Exec(ctx, a.ContainerID, argv)
	if err != nil {
		return stdout, classifyExecInContainerErr(err, string(stderr))
	}
	return stdout, nil
}

func classifyExecInContainerErr(err error, stderr string) error {
	low := strings.ToLower(stderr)
	switch {
	case strings.Contains(low, "no server running"):
		return apperr.Wrap(apperr.SourceUnavailable, err, "tmux server unavailable in container")
	case strings.Contains(low, "can't find"), strings.Contains(low, "not found"):
		return apperr.Wrap(apperr.TargetMissing, err, "tmux target not found")
	case strings.Contains(low, "duplicate session"), strings.Contains(low, "already exists"):
		return apperr.Wrap(apperr.NameConflict, err, "tmux name conflict")
	default:
		if apperr.KindOf(err) != apperr.Internal {
			return err
		}
		return apperr.Wrap(apperr.Internal, err, "tmux exec failed: %s", strings.TrimSpace(stderr))
	}
}

func (a *ContainerExecAdapter) ListSessions(ctx context.Context, containerID string) ([]model.TmuxSession, error) {
	out, err := a.exec(ctx, tmuxcli.ListSessionsArgs())
	if err != nil {
		if apperr.KindOf(err) == apperr.SourceUnavailable {
			return nil, nil
		}
		return nil, err
	}
	raw := tmuxcli.ParseSessions(out)
	sessions := make([]model.TmuxSession, 0, len(raw))
	for _, rs := range raw {
		wout, werr := a.exec(ctx, tmuxcli.ListWindowsArgs(rs.Name))
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

func (a *ContainerExecAdapter) CreateSession(ctx context.Context, containerID, name string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.New(apperr.InvalidArgument, "session name must not be empty")
	}
	if _, err := a.exec(ctx, tmuxcli.NewSessionArgs(name, "")); err != nil {
		return err
	}
	for _, args := range tmuxcli.ConfigureNewSessionArgs(name) {
		if _, err := a.exec(ctx, args); err != nil {
			return err
		}
	}
	return nil
}

func (a *ContainerExecAdapter) KillSession(ctx context.Context, containerID, name string) error {
	_, err := a.exec(ctx, tmuxcli.KillSessionArgs(name))
	return err
}

func (a *ContainerExecAdapter) RenameSession(ctx context.Context, containerID, oldName, newName string) error {
	_, err := a.exec(ctx, tmuxcli.RenameSessionArgs(oldName, newName))
	return err
}

func (a *ContainerExecAdapter) CreateWindow(ctx context.Context, containerID, session string) error {
	_, err := a.exec(ctx, tmuxcli.NewWindowArgs(session))
	return err
}

func (a *ContainerExecAdapter) SwapWindows(ctx context.Context, containerID, session string, i, j int) error {
	_, err := a.exec(ctx, tmuxcli.SwapWindowArgs(session, i, j))
	return err
}

func (a *ContainerExecAdapter) MoveWindow(ctx context.Context, containerID, srcSession string, idx int, dstSession string) error {
	_, err := a.exec(ctx, tmuxcli.MoveWindowArgs(srcSession, idx, dstSession))
	return err
}

func (a *ContainerExecAdapter) KillWindow(ctx context.Context, containerID, session string, idx int) error {
	_, err := a.exec(ctx, tmuxcli.KillWindowArgs(session, idx))
	return err
}

func (a *ContainerExecAdapter) SendKeys(ctx context.Context, target Target, data []byte) error {
	args := tmuxcli.SendKeysLiteralArgs(sessionTarget(target.SessionName, target.WindowIndex))
	args = append(args, string(data))
	_, err := a.exec(ctx, args)
	return err
}

func (a *ContainerExecAdapter) CapturePane(ctx context.Context, target Target, withAnsi bool) ([]byte, error) {
	return a.exec(ctx, tmuxcli.CapturePaneArgs(sessionTarget(target.SessionName, target.WindowIndex), withAnsi))
}

func (a *ContainerExecAdapter) AckScroll(ctx context.Context, target Target, direction string, lines int) error {
	t := sessionTarget(target.SessionName, target.WindowIndex)
	for _, args := range tmuxcli.AckScrollArgs(t, direction, lines) {
		if _, err := a.exec(ctx, args); err != nil {
			return err
		}
	}
	return nil
}

func (a *ContainerExecAdapter) MouseEnabled(ctx context.Context, target Target) (bool, error) {
	out, err := a.exec(ctx, tmuxcli.GetMouseOptionArgs(target.SessionName))
	if err != nil {
		return false, err
	}
	return strings.Contains(string(out), "on"), nil
}

func (a *ContainerExecAdapter) SetMouseEnabled(ctx context.Context, target Target, on bool) error {
	_, err := a.exec(ctx, tmuxcli.SetMouseOptionArgs(target.SessionName, on))
	return err
}

func (a *ContainerExecAdapter) ClearWindowStatus(ctx context.Context, target Target) error {
	t := sessionTarget(target.SessionName, target.WindowIndex)
	for _, args := range tmuxcli.ClearWindowStatusArgs(t) {
		if _, err := a.exec(ctx, args); err != nil {
			return err
		}
	}
	return nil
}

// OpenStream attaches via a TTY exec session running `tmux attach-session`,
// returning a hijacked read/write connection as the StreamHandle.
func (a *ContainerExecAdapter) OpenStream(ctx context.Context, target Target) (StreamHandle, error) {
	argv := append([]string{tmuxcli.Bin}, tmuxcli.AttachArgs(sessionTarget(target.SessionName, target.WindowIndex))...)
	rw, resize, err := a.Docker.ExecAttachTTY(ctx, a.ContainerID, argv, 120, 40)
	if err != nil {
		return nil, err
	}
	return &containerExecStream{rw: rw, resize: resize}, nil
}

type containerExecStream struct {
	rw     interface {
		Read([]byte) (int, error)
		Write([]byte) (int, error)
		Close() error
	}
	resize func(cols, rows uint) error
}

func (s *containerExecStream) Read(p []byte) (int, error)  { return s.rw.Read(p) }
func (s *containerExecStream) Write(p []byte) (int, error) { return s.rw.Write(p) }
func (s *containerExecStream) Close() error                { return s.rw.Close() }
func (s *containerExecStream) Resize(cols, rows int) error {
	return s.resize(uint(cols), uint(rows))
}
