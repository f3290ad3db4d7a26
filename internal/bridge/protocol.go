// Package bridge implements the Bridge Hub (§4.D): the server side of the
// reverse-WebSocket connection to remote bridge agents, multiplexing a JSON
// control channel with binary per-pane byte channels over one socket.
package bridge

import "encoding/json"

// Envelope is the control-frame (text, JSON) shape every message on the
// wire shares; Payload is re-decoded per Type by the caller.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID int64           `json:"requestId,omitempty"`
	ChannelID uint16          `json:"channelId,omitempty"`
	OK        bool            `json:"ok,omitempty"`
	Error     string          `json:"error,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

const (
	TypeAuth          = "auth"
	TypeSessionReport = "session_report"
	TypeOp            = "op"
	TypeOpResult      = "op_result"
	TypeOpenStream    = "open_stream"
	TypeStreamOpened  = "stream_opened"
	TypeCloseStream   = "close_stream"
	TypeLog           = "log"
)

// AuthFrame is the agent's first frame on connect (§4.D / §6).
type AuthFrame struct {
	Auth string `json:"auth"`
	Name string `json:"name"`
}

// OpPayload carries one adapter operation (§4.A) as an RPC (hub→agent).
type OpPayload struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args"`
}

// OpenStreamPayload names the pane the agent should attach (hub→agent).
type OpenStreamPayload struct {
	ContainerID string `json:"containerId"`
	SessionName string `json:"sessionName"`
	WindowIndex int    `json:"windowIndex"`
}

// SessionReportPayload is the agent's periodic/on-change snapshot (agent→hub).
type SessionReportPayload struct {
	Sessions []ReportedSession `json:"sessions"`
}

type ReportedSession struct {
	Session string           `json:"session"`
	Windows []ReportedWindow `json:"windows"`
}

type ReportedWindow struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Active     bool   `json:"active"`
	PaneCount  int    `json:"paneCount"`
	Bell       bool   `json:"bell"`
	Activity   bool   `json:"activity"`
	Command    string `json:"command,omitempty"`
	PaneStatus string `json:"paneStatus,omitempty"`
}

// LogPayload forwards a remote log line into the Debug Ring (§4.D, §4.G).
type LogPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}
