package dockerclient

import (
	"errors"
	"testing"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
)

func TestClassifyDockerErr_NoSuchContainerIsTargetMissing(t *testing.T) {
	err := classifyDockerErr(errors.New("Error: No such container: abc123"))
	if apperr.KindOf(err) != apperr.TargetMissing {
		t.Fatalf("expected TargetMissing, got %v", err)
	}
}

func TestClassifyDockerErr_ConnectionRefusedIsSourceUnavailable(t *testing.T) {
	err := classifyDockerErr(errors.New("dial unix /var/run/docker.sock: connect: connection refused"))
	if apperr.KindOf(err) != apperr.SourceUnavailable {
		t.Fatalf("expected SourceUnavailable, got %v", err)
	}
}

func TestClassifyDockerErr_CannotConnectIsSourceUnavailable(t *testing.T) {
	err := classifyDockerErr(errors.New("Cannot connect to the Docker daemon"))
	if apperr.KindOf(err) != apperr.SourceUnavailable {
		t.Fatalf("expected SourceUnavailable, got %v", err)
	}
}

func TestClassifyDockerErr_UnrecognizedIsInternal(t *testing.T) {
	err := classifyDockerErr(errors.New("some other docker failure"))
	if apperr.KindOf(err) != apperr.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}

func TestNew_DoesNotDialEagerly(t *testing.T) {
	// client.NewClientWithOpts is lazy: it must succeed without an actual
	// docker daemon reachable, since cmd/tmuxdeckd calls dockerclient.New
	// unconditionally at startup even when docker is unavailable (§4.B).
	c, err := New("", "tmuxdeck-")
	if err != nil {
		t.Fatalf("expected lazy client construction to succeed, got %v", err)
	}
	defer c.Close()
}
