package adapter

import (
	"context"
	"encoding/json"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/bridge"
	"github.com/msbrogli/tmuxdeck/internal/model"
)

// BridgeAdapter forwards every operation as an `op` RPC frame to a remote
// bridge agent through the Bridge Hub (§4.A variant 3, §4.D).
type BridgeAdapter struct {
	Hub      *bridge.Hub
	BridgeID string
}

func NewBridgeAdapter(hub *bridge.Hub, bridgeID string) *BridgeAdapter {
	return &BridgeAdapter{Hub: hub, BridgeID: bridgeID}
}

func (a *BridgeAdapter) Variant() Variant { return VariantBridge }

func (a *BridgeAdapter) call(ctx context.Context, op string, args any, out any) error {
	raw, err := a.Hub.SendOp(ctx, a.BridgeID, op, args)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.Internal, err, "malformed bridge op reply")
	}
	return nil
}

func (a *BridgeAdapter) ListSessions(ctx context.Context, containerID string) ([]model.TmuxSession, error) {
	var sessions []model.TmuxSession
	if err := a.call(ctx, "ListSessions", map[string]any{}, &sessions); err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].ContainerID = containerID
	}
	return sessions, nil
}

func (a *BridgeAdapter) CreateSession(ctx context.Context, containerID, name string) error {
	return a.call(ctx, "CreateSession", map[string]any{"name": name}, nil)
}

func (a *BridgeAdapter) KillSession(ctx context.Context, containerID, name string) error {
	return a.call(ctx, "KillSession", map[string]any{"name": name}, nil)
}

func (a *BridgeAdapter) RenameSession(ctx context.Context, containerID, oldName, newName string) error {
	return a.call(ctx, "RenameSession", map[string]any{"oldName": oldName, "newName": newName}, nil)
}

func (a *BridgeAdapter) CreateWindow(ctx context.Context, containerID, session string) error {
	return a.call(ctx, "CreateWindow", map[string]any{"session": session}, nil)
}

func (a *BridgeAdapter) SwapWindows(ctx context.Context, containerID, session string, i, j int) error {
	return a.call(ctx, "SwapWindows", map[string]any{"session": session, "i": i, "j": j}, nil)
}

func (a *BridgeAdapter) MoveWindow(ctx context.Context, containerID, srcSession string, idx int, dstSession string) error {
	return a.call(ctx, "MoveWindow", map[string]any{"srcSession": srcSession, "idx": idx, "dstSession": dstSession}, nil)
}

func (a *BridgeAdapter) KillWindow(ctx context.Context, containerID, session string, idx int) error {
	return a.call(ctx, "KillWindow", map[string]any{"session": session, "idx": idx}, nil)
}

func (a *BridgeAdapter) SendKeys(ctx context.Context, target Target, data []byte) error {
	return a.call(ctx, "SendKeys", map[string]any{
		"session": target.SessionName, "window": target.WindowIndex, "data": data,
	}, nil)
}

func (a *BridgeAdapter) CapturePane(ctx context.Context, target Target, withAnsi bool) ([]byte, error) {
	var out []byte
	err := a.call(ctx, "CapturePane", map[string]any{
		"session": target.SessionName, "window": target.WindowIndex, "ansi": withAnsi,
	}, &out)
	return out, err
}

func (a *BridgeAdapter) AckScroll(ctx context.Context, target Target, direction string, lines int) error {
	return a.call(ctx, "AckScroll", map[string]any{
		"session": target.SessionName, "window": target.WindowIndex,
		"direction": direction, "lines": lines,
	}, nil)
}

func (a *BridgeAdapter) MouseEnabled(ctx context.Context, target Target) (bool, error) {
	var on bool
	err := a.call(ctx, "MouseEnabled", map[string]any{"session": target.SessionName}, &on)
	return on, err
}

func (a *BridgeAdapter) SetMouseEnabled(ctx context.Context, target Target, on bool) error {
	return a.call(ctx, "SetMouseEnabled", map[string]any{"session": target.SessionName, "on": on}, nil)
}

func (a *BridgeAdapter) ClearWindowStatus(ctx context.Context, target Target) error {
	return a.call(ctx, "ClearWindowStatus", map[string]any{
		"session": target.SessionName, "window": target.WindowIndex,
	}, nil)
}

// OpenStream requests the agent attach a pane and returns a StreamHandle
// backed by the hub's multiplexed binary channel (§4.D).
func (a *BridgeAdapter) OpenStream(ctx context.Context, target Target) (StreamHandle, error) {
	s, err := a.Hub.OpenStream(ctx, a.BridgeID, bridge.OpenStreamPayload{
		ContainerID: target.ContainerID,
		SessionName: target.SessionName,
		WindowIndex: target.WindowIndex,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
