// Package adapter implements the Tmux Source Adapter (§4.A): one operation
// set, three concrete variants (tagged by Variant, not subclass dispatch,
// per §9's redesign note).
package adapter

import (
	"context"
	"io"

	"github.com/msbrogli/tmuxdeck/internal/model"
)

// Variant tags which concrete implementation backs an Adapter value.
type Variant int

const (
	VariantLocal Variant = iota
	VariantContainerExec
	VariantBridge
)

// Target addresses a single pane: (containerId, sessionName, windowIndex).
type Target struct {
	ContainerID string
	SessionName string
	WindowIndex int
}

// StreamHandle is a full-duplex byte stream bound to one pane (§4.A
// OpenStream). Resize is a no-op on variants where it doesn't apply.
type StreamHandle interface {
	io.Reader
	io.Writer
	Resize(cols, rows int) error
	Close() error
}

// Adapter is the uniform operation set every source kind presents.
// Errors are always *apperr.Error per §4.A's classification contract.
type Adapter interface {
	Variant() Variant

	ListSessions(ctx context.Context, containerID string) ([]model.TmuxSession, error)
	CreateSession(ctx context.Context, containerID, name string) error
	KillSession(ctx context.Context, containerID, name string) error
	RenameSession(ctx context.Context, containerID, oldName, newName string) error
	CreateWindow(ctx context.Context, containerID, session string) error
	SwapWindows(ctx context.Context, containerID, session string, i, j int) error
	MoveWindow(ctx context.Context, containerID, srcSession string, idx int, dstSession string) error
	KillWindow(ctx context.Context, containerID, session string, idx int) error

	SendKeys(ctx context.Context, target Target, data []byte) error
	CapturePane(ctx context.Context, target Target, withAnsi bool) ([]byte, error)
	OpenStream(ctx context.Context, target Target) (StreamHandle, error)
	AckScroll(ctx context.Context, target Target, direction string, lines int) error

	// ClearWindowStatus resets target's sticky bell/activity flags (§9).
	ClearWindowStatus(ctx context.Context, target Target) error

	// MouseEnabled reports tmux's current `mouse` option for the session
	// backing target, used by the broker's ≤1Hz mouse-mode poll (§4.C).
	MouseEnabled(ctx context.Context, target Target) (bool, error)
	SetMouseEnabled(ctx context.Context, target Target, on bool) error
}
