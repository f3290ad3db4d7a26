// Package registry implements the Container/Source Registry (§4.B): the
// authoritative map of containers (docker + host + local + bridge), their
// lifecycle, and periodic tmux-state reconciliation.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msbrogli/tmuxdeck/internal/adapter"
	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/bridge"
	"github.com/msbrogli/tmuxdeck/internal/dockerclient"
	"github.com/msbrogli/tmuxdeck/internal/model"
)

// Event is one step in a container-creation stream (§4.B, §6).
type Event struct {
	Step    string `json:"step"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	StepBuildingImage     = "building_image"
	StepCreatingContainer = "creating_container"
	StepStartingContainer = "starting_container"
	StepInitializing      = "initializing"
	StepComplete          = "complete"
	StepError             = "error"
)

// Registry owns the container map. Readers snapshot-copy; writers take the
// single lock (§5 "the registry's container map is guarded by a single
// writer lock; readers snapshot-copy").
type Registry struct {
	mu         sync.RWMutex
	containers map[string]*model.Container
	sessions   map[string][]model.TmuxSession // last-polled snapshot per container
	dockerErr  error

	docker       *dockerclient.Client
	hub          *bridge.Hub
	hostAdapter  adapter.Adapter
	localAdapter adapter.Adapter
	namePrefix   string

	templates    func() []model.Template
	bridgeRecords func() []model.BridgeRecord

	pollMu      sync.Mutex
	pollInFlight chan struct{}

	log *slog.Logger
}

// Deps bundles the Registry's collaborators so New stays a short call site.
type Deps struct {
	Docker       *dockerclient.Client // nil if docker is unreachable/disabled
	Hub          *bridge.Hub
	HostSocket   string // HOST_TMUX_SOCKET
	LocalSocket  string // TmuxDeck-private socket for the `local` container
	NamePrefix   string
	Templates    func() []model.Template
	BridgeRecords func() []model.BridgeRecord
	Logger       *slog.Logger
}

func New(d Deps) *Registry {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	r := &Registry{
		containers:    make(map[string]*model.Container),
		sessions:      make(map[string][]model.TmuxSession),
		docker:        d.Docker,
		hub:           d.Hub,
		hostAdapter:   adapter.NewLocalAdapter(d.HostSocket),
		localAdapter:  adapter.NewLocalAdapter(d.LocalSocket),
		namePrefix:    d.NamePrefix,
		templates:     d.Templates,
		bridgeRecords: d.BridgeRecords,
		log:           d.Logger,
	}
	r.containers[model.ContainerIDHost] = &model.Container{
		ID: model.ContainerIDHost, Kind: model.KindHost, DisplayName: "host",
		Status: model.StatusRunning, CreatedAt: time.Now(),
	}
	r.containers[model.ContainerIDLocal] = &model.Container{
		ID: model.ContainerIDLocal, Kind: model.KindLocal, DisplayName: "local",
		Status: model.StatusRunning, CreatedAt: time.Now(),
	}
	if d.Docker == nil {
		r.dockerErr = apperr.New(apperr.SourceUnavailable, "docker not configured")
	}
	return r
}

// adapterFor resolves a container id to the adapter variant that backs it.
func (r *Registry) adapterFor(containerID string) (adapter.Adapter, error) {
	switch {
	case containerID == model.ContainerIDHost:
		return r.hostAdapter, nil
	case containerID == model.ContainerIDLocal:
		return r.localAdapter, nil
	case len(containerID) > 7 && containerID[:7] == "bridge:":
		bridgeID := containerID[7:]
		if !r.hub.Connected(bridgeID) {
			return nil, apperr.New(apperr.SourceUnavailable, "bridge %q not connected", bridgeID)
		}
		return adapter.NewBridgeAdapter(r.hub, bridgeID), nil
	default:
		if r.docker == nil {
			return nil, apperr.New(apperr.SourceUnavailable, "docker unavailable")
		}
		return adapter.NewContainerExecAdapter(r.docker, containerID), nil
	}
}

// ListSessions proxies straight to the resolved adapter — §4.A requires no
// caching inside the adapter itself; Registry's own cache (used by List) is
// a separate, explicitly-refreshed concern.
func (r *Registry) ListSessions(ctx context.Context, containerID string) ([]model.TmuxSession, error) {
	a, err := r.adapterFor(containerID)
	if err != nil {
		return nil, err
	}
	return a.ListSessions(ctx, containerID)
}

func (r *Registry) Adapter(containerID string) (adapter.Adapter, error) {
	return r.adapterFor(containerID)
}

// List returns the merged container view (§4.B): docker containers with the
// configured prefix ∪ {host, local} ∪ {bridge:X for each connected record}.
// If the container engine is unreachable, docker entries are simply omitted
// and the returned dockerErr is non-nil so callers can render a partial list.
func (r *Registry) List(ctx context.Context) (containers []model.Container, dockerErr error) {
	r.mu.RLock()
	for _, c := range r.containers {
		containers = append(containers, *c)
	}
	dockerErr = r.dockerErr
	r.mu.RUnlock()

	for _, rec := range r.bridgeRecords() {
		if !rec.Enabled {
			continue
		}
		id := model.BridgeContainerID(rec.ID)
		status := model.StatusStopped
		if r.hub.Connected(rec.ID) {
			status = model.StatusRunning
		}
		containers = append(containers, model.Container{
			ID: id, Kind: model.KindBridge, DisplayName: rec.Name,
			Status: status, CreatedAt: rec.CreatedAt,
		})
	}
	return containers, dockerErr
}

// Create runs the docker container-creation sequence (§4.B), returning a
// channel of Events that IS the source of truth for state mutation order.
func (r *Registry) Create(ctx context.Context, templateID, name string, env map[string]string, volumes map[string]string, mountSSH, mountClaude bool) (<-chan Event, error) {
	if r.docker == nil {
		return nil, apperr.New(apperr.SourceUnavailable, "docker unavailable")
	}
	var tmpl *model.Template
	for _, t := range r.templates() {
		if t.ID == templateID {
			tc := t
			tmpl = &tc
			break
		}
	}
	if tmpl == nil {
		return nil, apperr.New(apperr.InvalidArgument, "unknown template %q", templateID)
	}
	if name == "" {
		name = fmt.Sprintf("%s-%s", tmpl.Name, uuid.NewString()[:8])
	}

	id := uuid.NewString()
	r.mu.Lock()
	r.containers[id] = &model.Container{
		ID: id, Kind: model.KindDocker, DisplayName: name,
		Status: model.StatusCreating, Image: tmpl.Image, CreatedAt: time.Now(),
	}
	r.mu.Unlock()

	events := make(chan Event, 8)
	go func() {
		defer close(events)
		events <- Event{Step: StepBuildingImage}

		events <- Event{Step: StepCreatingContainer}
		containerID, err := r.docker.CreateContainer(ctx, dockerclient.CreateOpts{
			Template: *tmpl, Name: name, Env: env, Volumes: volumes,
			MountSSH: mountSSH, MountClaude: mountClaude,
		})
		if err != nil {
			r.failCreate(id, StepCreatingContainer, err, events)
			return
		}

		events <- Event{Step: StepStartingContainer}
		if err := r.docker.StartContainer(ctx, containerID); err != nil {
			r.failCreate(id, StepStartingContainer, err, events)
			return
		}

		events <- Event{Step: StepInitializing}
		if err := r.hostAdapterCreateDefaultSession(ctx, containerID); err != nil {
			r.failCreate(id, StepInitializing, err, events)
			return
		}

		r.mu.Lock()
		delete(r.containers, id)
		r.containers[containerID] = &model.Container{
			ID: containerID, Kind: model.KindDocker, DisplayName: name,
			Status: model.StatusRunning, Image: tmpl.Image, CreatedAt: time.Now(),
		}
		r.mu.Unlock()

		events <- Event{Step: StepComplete}
	}()
	return events, nil
}

// hostAdapterCreateDefaultSession creates the conventional "main" session
// with a "bash" window 0, matching scenario 1 in §8.
func (r *Registry) hostAdapterCreateDefaultSession(ctx context.Context, containerID string) error {
	a := adapter.NewContainerExecAdapter(r.docker, containerID)
	return a.CreateSession(ctx, containerID, "main")
}

func (r *Registry) failCreate(id, step string, err error, events chan<- Event) {
	r.mu.Lock()
	if c, ok := r.containers[id]; ok {
		c.Status = model.StatusError
	}
	r.mu.Unlock()
	events <- Event{Step: StepError, Error: fmt.Sprintf("%s: %v", step, err)}
}

func (r *Registry) Start(ctx context.Context, containerID string) error {
	if r.docker == nil {
		return apperr.New(apperr.SourceUnavailable, "docker unavailable")
	}
	running, err := r.docker.IsRunning(ctx, containerID)
	if err != nil {
		return err
	}
	if running {
		return nil // idempotent
	}
	if err := r.docker.StartContainer(ctx, containerID); err != nil {
		return err
	}
	r.setStatus(containerID, model.StatusRunning)
	return nil
}

func (r *Registry) Stop(ctx context.Context, containerID string) error {
	if r.docker == nil {
		return apperr.New(apperr.SourceUnavailable, "docker unavailable")
	}
	running, err := r.docker.IsRunning(ctx, containerID)
	if err != nil {
		return err
	}
	if !running {
		return nil // idempotent
	}
	if err := r.docker.StopContainer(ctx, containerID); err != nil {
		return err
	}
	r.setStatus(containerID, model.StatusStopped)
	return nil
}

func (r *Registry) Rename(ctx context.Context, containerID, newName string) error {
	if r.docker == nil {
		return apperr.New(apperr.SourceUnavailable, "docker unavailable")
	}
	if err := r.docker.RenameContainer(ctx, containerID, newName); err != nil {
		return err
	}
	r.mu.Lock()
	if c, ok := r.containers[containerID]; ok {
		c.DisplayName = newName
	}
	r.mu.Unlock()
	return nil
}

func (r *Registry) Remove(ctx context.Context, containerID string) error {
	if r.docker == nil {
		return apperr.New(apperr.SourceUnavailable, "docker unavailable")
	}
	if err := r.docker.RemoveContainer(ctx, containerID); err != nil {
		if apperr.KindOf(err) != apperr.TargetMissing {
			return err
		}
	}
	r.mu.Lock()
	delete(r.containers, containerID)
	delete(r.sessions, containerID)
	r.mu.Unlock()
	return nil
}

func (r *Registry) setStatus(containerID string, status model.ContainerStatus) {
	r.mu.Lock()
	if c, ok := r.containers[containerID]; ok {
		c.Status = status
	}
	r.mu.Unlock()
}

// Poll re-queries every container and, for running ones, its session list
// (§4.B). Concurrent callers share one in-flight refresh (debounced).
func (r *Registry) Poll(ctx context.Context) error {
	r.pollMu.Lock()
	if r.pollInFlight != nil {
		wait := r.pollInFlight
		r.pollMu.Unlock()
		<-wait
		return nil
	}
	done := make(chan struct{})
	r.pollInFlight = done
	r.pollMu.Unlock()

	defer func() {
		r.pollMu.Lock()
		r.pollInFlight = nil
		r.pollMu.Unlock()
		close(done)
	}()

	r.refreshDockerContainers(ctx)

	r.mu.RLock()
	ids := make([]string, 0, len(r.containers))
	for id, c := range r.containers {
		if c.Status == model.StatusRunning {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range ids {
		sessions, err := r.ListSessions(ctx, id)
		if err != nil {
			r.log.Warn("poll: list sessions failed", "container", id, "err", err)
			continue
		}
		r.mu.Lock()
		r.sessions[id] = sessions
		r.mu.Unlock()
	}
	return nil
}

func (r *Registry) refreshDockerContainers(ctx context.Context) {
	if r.docker == nil {
		r.mu.Lock()
		r.dockerErr = apperr.New(apperr.SourceUnavailable, "docker not configured")
		r.mu.Unlock()
		return
	}
	infos, err := r.docker.List(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.dockerErr = err
		return
	}
	r.dockerErr = nil
	seen := make(map[string]bool, len(infos))
	for _, info := range infos {
		seen[info.ID] = true
		status := model.StatusStopped
		if info.State == "running" {
			status = model.StatusRunning
		}
		if existing, ok := r.containers[info.ID]; ok {
			existing.Status = status
		} else {
			r.containers[info.ID] = &model.Container{
				ID: info.ID, Kind: model.KindDocker, DisplayName: info.Name,
				Status: status, Image: info.Image, CreatedAt: info.Created,
			}
		}
	}
	for id, c := range r.containers {
		if c.Kind == model.KindDocker && !seen[id] {
			delete(r.containers, id)
			delete(r.sessions, id)
		}
	}
}

// CachedSessions returns the last poll's snapshot for containerID, used by
// read-mostly HTTP listing endpoints that shouldn't force a live tmux query
// per request.
func (r *Registry) CachedSessions(containerID string) []model.TmuxSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[containerID]
}

// ApplyBridgeReport merges a bridge agent's session_report into the cache
// for its synthesized container, out-of-band from the poll loop (§4.B/§4.D).
func (r *Registry) ApplyBridgeReport(bridgeID string, sessions []model.TmuxSession) {
	containerID := model.BridgeContainerID(bridgeID)
	r.mu.Lock()
	r.sessions[containerID] = sessions
	r.mu.Unlock()
}
