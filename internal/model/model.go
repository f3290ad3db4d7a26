// Package model holds the shared data types from §3: the server core's
// vocabulary, independent of any one component's internals.
package model

import "time"

// ContainerKind distinguishes the four source kinds a Container can map to.
type ContainerKind string

const (
	KindDocker ContainerKind = "docker"
	KindHost   ContainerKind = "host"
	KindLocal  ContainerKind = "local"
	KindBridge ContainerKind = "bridge"
)

// Reserved Container ids for the synthesized, always-present sources.
const (
	ContainerIDHost  = "host"
	ContainerIDLocal = "local"
)

// BridgeContainerID builds the reserved id for a bridge-backed container.
func BridgeContainerID(bridgeID string) string {
	return "bridge:" + bridgeID
}

type ContainerStatus string

const (
	StatusRunning  ContainerStatus = "running"
	StatusStopped  ContainerStatus = "stopped"
	StatusCreating ContainerStatus = "creating"
	StatusError    ContainerStatus = "error"
)

// Container is the registry's unit of bookkeeping (§3, component B).
type Container struct {
	ID          string          `json:"id"`
	Kind        ContainerKind   `json:"kind"`
	DisplayName string          `json:"displayName"`
	Status      ContainerStatus `json:"status"`
	Image       string          `json:"image,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Window is one tmux window within a TmuxSession (§3).
type Window struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Active     bool   `json:"active"`
	PaneCount  int    `json:"paneCount"`
	Bell       bool   `json:"bell"`
	Activity   bool   `json:"activity"`
	Command    string `json:"command,omitempty"`
	PaneStatus string `json:"paneStatus,omitempty"`
}

// TmuxSession is a single tmux session as reported by a source adapter (§3).
type TmuxSession struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Attached    bool     `json:"attached"`
	Windows     []Window `json:"windows"`
	ContainerID string   `json:"containerId"`
}

// BridgeRecord describes a registered remote bridge agent (§3, component D).
type BridgeRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TokenHash string    `json:"tokenHash"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	Connected bool      `json:"connected"`
	LastSeen  time.Time `json:"lastSeen"`
}

// NotificationKind is the taxonomy of events the router dedups and delivers.
type NotificationKind string

const (
	NotifyBell     NotificationKind = "bell"
	NotifyActivity NotificationKind = "activity"
	NotifyAlert    NotificationKind = "alert"
	NotifyPrompt   NotificationKind = "prompt"
)

type NotificationChannel string

const (
	ChannelWeb      NotificationChannel = "web"
	ChannelOS       NotificationChannel = "os"
	ChannelTelegram NotificationChannel = "telegram"
)

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationDelivered NotificationStatus = "delivered"
	NotificationDismissed NotificationStatus = "dismissed"
	NotificationTimedOut  NotificationStatus = "timed_out"
)

// Notification is the router's unit of delivery (§3, component E).
type Notification struct {
	ID          string                `json:"id"`
	ContainerID string                `json:"containerId"`
	SessionName string                `json:"sessionName"`
	WindowIndex int                   `json:"windowIndex"`
	Title       string                `json:"title"`
	Message     string                `json:"message"`
	Kind        NotificationKind      `json:"kind"`
	Channels    []NotificationChannel `json:"channels"`
	CreatedAt   time.Time             `json:"createdAt"`
	Status      NotificationStatus    `json:"status"`
}

// DedupKey returns the (containerId, sessionName, kind) tuple the router
// uses as its pending-notification identity (§3, §4.E, GLOSSARY).
func (n Notification) DedupKey() DedupKey {
	return DedupKey{ContainerID: n.ContainerID, SessionName: n.SessionName, Kind: n.Kind}
}

type DedupKey struct {
	ContainerID string
	SessionName string
	Kind        NotificationKind
}

// AuthSession is an opaque, high-entropy bearer token (§3, component F).
type AuthSession struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Template seeds a new docker container's image/env/mounts (§3, added).
type Template struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Image       string            `json:"image"`
	Env         map[string]string `json:"env,omitempty"`
	MountSSH    bool              `json:"mountSSH"`
	MountClaude bool              `json:"mountClaude"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// DebugLevel is the Debug Ring's entry severity (§4.G).
type DebugLevel string

const (
	DebugInfo  DebugLevel = "info"
	DebugWarn  DebugLevel = "warn"
	DebugError DebugLevel = "error"
)

// DebugEntry is one Debug Ring element (§3, added).
type DebugEntry struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Level     DebugLevel `json:"level"`
	Source    string     `json:"source"`
	Message   string     `json:"message"`
	Detail    string     `json:"detail,omitempty"`
}

// PairingToken is a single-use mobile-onboarding credential (§3, added).
type PairingToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
