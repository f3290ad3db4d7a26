// Package dockerclient wraps the Docker Engine API for the Container/Source
// Registry's docker backend (§4.B) and the Tmux Source Adapter's
// container-exec variant (§4.A). Adapted from STRML-claude-cells'
// internal/docker package: same client/container split, generalized from
// one hardcoded mount set to a Template (§3, added).
package dockerclient

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/model"
)

// Client wraps the Docker SDK client with the operations TmuxDeck needs.
type Client struct {
	cli    *client.Client
	prefix string
}

// New creates a Docker client using environment defaults (or the DOCKER_SOCKET
// override via client.WithHost), negotiating the API version like the
// teacher does.
func New(socket, namePrefix string) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if socket != "" {
		opts = append(opts, client.WithHost("unix://"+socket))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.SourceUnavailable, err, "docker client init failed")
	}
	return &Client{cli: cli, prefix: namePrefix}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.cli.Ping(ctx)
	if err != nil {
		return apperr.Wrap(apperr.SourceUnavailable, err, "docker daemon unreachable")
	}
	return nil
}

func (c *Client) Close() error { return c.cli.Close() }

// CreateOpts mirrors §4.B's Create(templateId, name, env, volumes, mountSSH, mountClaude).
type CreateOpts struct {
	Template    model.Template
	Name        string
	Env         map[string]string
	Volumes     map[string]string // hostPath -> containerPath
	MountSSH    bool
	MountClaude bool
	SSHDir      string
	ClaudeDir   string
}

// CreateContainer creates (but does not start) a container from a Template,
// generalizing STRML's hardcoded ContainerConfig mounts into Template-driven
// ones plus arbitrary extra volumes.
func (c *Client) CreateContainer(ctx context.Context, opts CreateOpts) (string, error) {
	env := make([]string, 0, len(opts.Template.Env)+len(opts.Env))
	for k, v := range opts.Template.Env {
		env = append(env, k+"="+v)
	}
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	containerCfg := &container.Config{
		Image: opts.Template.Image,
		Env:   env,
		Tty:   true,
		Cmd:   []string{"sleep", "infinity"},
	}

	var mounts []mount.Mount
	for host, target := range opts.Volumes {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: host, Target: target})
	}
	if opts.MountSSH && opts.SSHDir != "" {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: opts.SSHDir, Target: "/root/.ssh", ReadOnly: true})
	}
	if opts.MountClaude && opts.ClaudeDir != "" {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: opts.ClaudeDir, Target: "/root/.claude"})
	}

	hostCfg := &container.HostConfig{Mounts: mounts}

	name := c.prefix + opts.Name
	resp, err := c.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already in use") {
			return "", apperr.Wrap(apperr.NameConflict, err, "container name %q in use", name)
		}
		return "", apperr.Wrap(apperr.Internal, err, "container create failed")
	}
	return resp.ID, nil
}

func (c *Client) StartContainer(ctx context.Context, id string) error {
	if err := c.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return classifyDockerErr(err)
	}
	return nil
}

func (c *Client) StopContainer(ctx context.Context, id string) error {
	timeout := 10
	if err := c.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return classifyDockerErr(err)
	}
	return nil
}

func (c *Client) RemoveContainer(ctx context.Context, id string) error {
	if err := c.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		return classifyDockerErr(err)
	}
	return nil
}

func (c *Client) RenameContainer(ctx context.Context, id, newName string) error {
	if err := c.cli.ContainerRename(ctx, id, c.prefix+newName); err != nil {
		return classifyDockerErr(err)
	}
	return nil
}

func classifyDockerErr(err error) error {
	low := strings.ToLower(err.Error())
	switch {
	case strings.Contains(low, "no such container"):
		return apperr.Wrap(apperr.TargetMissing, err, "container not found")
	case strings.Contains(low, "connection refused"), strings.Contains(low, "cannot connect"):
		return apperr.Wrap(apperr.SourceUnavailable, err, "docker daemon unreachable")
	default:
		return apperr.Wrap(apperr.Internal, err, "docker operation failed")
	}
}

type Info struct {
	ID      string
	Name    string
	State   string
	Image   string
	Created time.Time
}

// List returns every container carrying the configured name prefix.
func (c *Client) List(ctx context.Context) ([]Info, error) {
	fa := filters.NewArgs()
	fa.Add("name", c.prefix)
	containers, err := c.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: fa})
	if err != nil {
		return nil, classifyDockerErr(err)
	}
	out := make([]Info, 0, len(containers))
	for _, ct := range containers {
		name := ""
		if len(ct.Names) > 0 {
			name = strings.TrimPrefix(ct.Names[0], "/")
		}
		out = append(out, Info{
			ID: ct.ID, Name: name, State: ct.State, Image: ct.Image,
			Created: time.Unix(ct.Created, 0),
		})
	}
	return out, nil
}

func (c *Client) IsRunning(ctx context.Context, id string) (bool, error) {
	info, err := c.cli.ContainerInspect(ctx, id)
	if err != nil {
		return false, classifyDockerErr(err)
	}
	return info.State.Running, nil
}

// Exec runs argv inside the container and returns combined stdout+stderr,
// the non-interactive counterpart to the adapter's ContainerExecAttach
// streaming path (internal/adapter/containerexec.go).
func (c *Client) Exec(ctx context.Context, containerID string, argv []string) ([]byte, []byte, error) {
	execCfg := container.ExecOptions{Cmd: argv, AttachStdout: true, AttachStderr: true}
	execID, err := c.cli.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return nil, nil, classifyDockerErr(err)
	}
	resp, err := c.cli.ContainerExecAttach(ctx, execID.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, nil, classifyDockerErr(err)
	}
	defer resp.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, resp.Reader); err != nil && err != io.EOF {
		return nil, nil, apperr.Wrap(apperr.Internal, err, "exec stream copy failed")
	}

	inspect, err := c.cli.ContainerExecInspect(ctx, execID.ID)
	if err == nil && inspect.ExitCode != 0 {
		return stdout.Bytes(), stderr.Bytes(), apperr.New(apperr.Internal, "exec exited %d: %s", inspect.ExitCode, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

// ExecAttachTTY starts an interactive, TTY-attached exec session and returns
// the hijacked connection, used by the container-exec adapter variant's
// OpenStream to attach a pane. Grounded on STRML-claude-cells' internal/tui/pty.go.
func (c *Client) ExecAttachTTY(ctx context.Context, containerID string, argv []string, cols, rows uint) (io.ReadWriteCloser, func(cols, rows uint) error, error) {
	execCfg := container.ExecOptions{
		Cmd: argv, Tty: true,
		AttachStdin: true, AttachStdout: true, AttachStderr: true,
		ConsoleSize: &[2]uint{rows, cols},
	}
	execID, err := c.cli.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return nil, nil, classifyDockerErr(err)
	}
	hijacked, err := c.cli.ContainerExecAttach(ctx, execID.ID, container.ExecStartOptions{Tty: true})
	if err != nil {
		return nil, nil, classifyDockerErr(err)
	}

	resize := func(cols, rows uint) error {
		return c.cli.ContainerExecResize(ctx, execID.ID, container.ResizeOptions{Width: cols, Height: rows})
	}
	return &hijackedRW{hijacked: hijacked}, resize, nil
}

// hijackedRW adapts the Docker SDK's types.HijackedResponse (separate Reader
// and Conn) to a single io.ReadWriteCloser for the adapter's StreamHandle.
type hijackedRW struct {
	hijacked types.HijackedResponse
}

func (h *hijackedRW) Read(p []byte) (int, error)  { return h.hijacked.Reader.Read(p) }
func (h *hijackedRW) Write(p []byte) (int, error) { return h.hijacked.Conn.Write(p) }
func (h *hijackedRW) Close() error                { h.hijacked.Close(); return nil }
