package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectors_AllRegisterWithoutConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			t.Fatalf("register %T: %v", c, err)
		}
	}
}

func TestContainers_LabelsBumpTheRightSeries(t *testing.T) {
	Containers.Reset()
	Containers.WithLabelValues("docker", "running").Inc()
	got := testutil.ToFloat64(Containers.WithLabelValues("docker", "running"))
	if got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
	if testutil.ToFloat64(Containers.WithLabelValues("docker", "stopped")) != 0 {
		t.Fatal("expected an unrelated label combination to stay at 0")
	}
}

func TestBridgeOpsTotal_CountsByOpAndResult(t *testing.T) {
	BridgeOpsTotal.Reset()
	BridgeOpsTotal.WithLabelValues("ResizeWindow", "ok").Inc()
	BridgeOpsTotal.WithLabelValues("ResizeWindow", "ok").Inc()
	BridgeOpsTotal.WithLabelValues("ResizeWindow", "error").Inc()

	if got := testutil.ToFloat64(BridgeOpsTotal.WithLabelValues("ResizeWindow", "ok")); got != 2 {
		t.Fatalf("expected 2 ok results, got %v", got)
	}
	if got := testutil.ToFloat64(BridgeOpsTotal.WithLabelValues("ResizeWindow", "error")); got != 1 {
		t.Fatalf("expected 1 error result, got %v", got)
	}
}
