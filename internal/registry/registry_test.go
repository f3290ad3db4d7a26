package registry

import (
	"context"
	"testing"

	"github.com/msbrogli/tmuxdeck/internal/adapter"
	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/bridge"
	"github.com/msbrogli/tmuxdeck/internal/model"
)

func newTestRegistry(records []model.BridgeRecord) *Registry {
	return New(Deps{
		Hub:           bridge.NewHub(),
		HostSocket:    "",
		LocalSocket:   "",
		NamePrefix:    "tmuxdeck-",
		Templates:     func() []model.Template { return nil },
		BridgeRecords: func() []model.BridgeRecord { return records },
	})
}

func TestNew_SeedsHostAndLocalContainers(t *testing.T) {
	r := newTestRegistry(nil)
	containers, dockerErr := r.List(context.Background())
	if dockerErr == nil {
		t.Fatal("expected a dockerErr when no docker client is configured")
	}
	var sawHost, sawLocal bool
	for _, c := range containers {
		if c.ID == model.ContainerIDHost && c.Kind == model.KindHost {
			sawHost = true
		}
		if c.ID == model.ContainerIDLocal && c.Kind == model.KindLocal {
			sawLocal = true
		}
	}
	if !sawHost || !sawLocal {
		t.Fatalf("expected host and local containers present, got %+v", containers)
	}
}

func TestAdapterFor_HostAndLocalResolveDistinctAdapters(t *testing.T) {
	r := newTestRegistry(nil)
	host, err := r.Adapter(model.ContainerIDHost)
	if err != nil {
		t.Fatalf("host adapter: %v", err)
	}
	local, err := r.Adapter(model.ContainerIDLocal)
	if err != nil {
		t.Fatalf("local adapter: %v", err)
	}
	if host.Variant() != adapter.VariantLocal || local.Variant() != adapter.VariantLocal {
		t.Fatalf("expected both host and local to be VariantLocal adapters, got %v/%v", host.Variant(), local.Variant())
	}
}

func TestAdapterFor_UnconnectedBridgeIsSourceUnavailable(t *testing.T) {
	r := newTestRegistry(nil)
	_, err := r.Adapter(model.BridgeContainerID("bridge-1"))
	if apperr.KindOf(err) != apperr.SourceUnavailable {
		t.Fatalf("expected SourceUnavailable for a disconnected bridge, got %v", err)
	}
}

func TestAdapterFor_NoDockerIsSourceUnavailable(t *testing.T) {
	r := newTestRegistry(nil)
	_, err := r.Adapter("some-docker-container-id")
	if apperr.KindOf(err) != apperr.SourceUnavailable {
		t.Fatalf("expected SourceUnavailable with no docker client, got %v", err)
	}
}

func TestList_IncludesEnabledBridgeRecordsOnly(t *testing.T) {
	records := []model.BridgeRecord{
		{ID: "b1", Name: "laptop", Enabled: true},
		{ID: "b2", Name: "disabled-one", Enabled: false},
	}
	r := newTestRegistry(records)
	containers, _ := r.List(context.Background())

	var sawEnabled, sawDisabled bool
	for _, c := range containers {
		if c.ID == model.BridgeContainerID("b1") {
			sawEnabled = true
			if c.Status != model.StatusStopped {
				t.Fatalf("expected disconnected bridge to report stopped, got %v", c.Status)
			}
		}
		if c.ID == model.BridgeContainerID("b2") {
			sawDisabled = true
		}
	}
	if !sawEnabled {
		t.Fatal("expected enabled bridge record to appear in the container list")
	}
	if sawDisabled {
		t.Fatal("disabled bridge records must not appear in the container list")
	}
}

func TestRemove_NoDockerIsSourceUnavailable(t *testing.T) {
	r := newTestRegistry(nil)
	err := r.Remove(context.Background(), "anything")
	if apperr.KindOf(err) != apperr.SourceUnavailable {
		t.Fatalf("expected SourceUnavailable, got %v", err)
	}
}

func TestApplyBridgeReport_PopulatesCachedSessions(t *testing.T) {
	r := newTestRegistry(nil)
	sessions := []model.TmuxSession{{Name: "work"}}
	r.ApplyBridgeReport("bridge-1", sessions)

	got := r.CachedSessions(model.BridgeContainerID("bridge-1"))
	if len(got) != 1 || got[0].Name != "work" {
		t.Fatalf("expected cached session %+v, got %+v", sessions, got)
	}
}
