package server

import (
	"github.com/msbrogli/tmuxdeck/internal/bridge"
	"github.com/msbrogli/tmuxdeck/internal/model"
)

// wireCollaborators connects components that would otherwise need to import
// each other directly: the bridge hub's inbound session reports feed the
// registry's cache, its log lines feed the debug ring, and the auth gate's
// bridge-token check reads live off the store's bridge records.
func (s *Server) wireCollaborators() {
	if s.hub != nil && s.registry != nil {
		s.hub.OnSessionReport = func(bridgeID string, report bridge.SessionReportPayload) {
			s.registry.ApplyBridgeReport(bridgeID, convertReportedSessions(bridgeID, report.Sessions))
		}
	}
	if s.hub != nil && s.ring != nil {
		s.hub.OnLog = func(bridgeID, level, message string) {
			s.ring.Append(debugLevelFor(level), "bridge:"+bridgeID, message, "")
		}
	}
	if s.gate != nil && s.store != nil {
		s.gate.SetBridgeTokenLookup(func() map[string]string {
			doc, err := s.store.LoadBridges()
			if err != nil {
				return nil
			}
			out := make(map[string]string, len(doc.Bridges))
			for _, b := range doc.Bridges {
				if b.Enabled {
					out[b.ID] = b.TokenHash
				}
			}
			return out
		})
	}
}

// convertReportedSessions projects a bridge agent's wire-shape session
// report onto the registry's shared model.TmuxSession, tagging every
// session with its synthesized bridge:<id> container id (§4.B/§4.D).
func convertReportedSessions(bridgeID string, sessions []bridge.ReportedSession) []model.TmuxSession {
	containerID := model.BridgeContainerID(bridgeID)
	out := make([]model.TmuxSession, 0, len(sessions))
	for _, rs := range sessions {
		windows := make([]model.Window, 0, len(rs.Windows))
		for _, rw := range rs.Windows {
			windows = append(windows, model.Window{
				Index: rw.Index, Name: rw.Name, Active: rw.Active,
				PaneCount: rw.PaneCount, Bell: rw.Bell, Activity: rw.Activity,
				Command: rw.Command, PaneStatus: rw.PaneStatus,
			})
		}
		out = append(out, model.TmuxSession{
			ID: containerID + ":" + rs.Session, Name: rs.Session,
			Windows: windows, ContainerID: containerID,
		})
	}
	return out
}

func debugLevelFor(level string) model.DebugLevel {
	switch level {
	case "warn", "warning":
		return model.DebugWarn
	case "error":
		return model.DebugError
	default:
		return model.DebugInfo
	}
}
