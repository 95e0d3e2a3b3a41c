package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vigilohq/agent/pkg/types"
)

func TestSnapshotCountsObservations(t *testing.T) {
	s := NewStore()

	s.ObservePoll("cpu")
	s.ObservePoll("cpu")
	s.ObservePoll("storage")
	s.ObserveProbeFailure("trace")
	s.ObserveGateSkip()
	s.ObserveAlert(types.AlertDetected)
	s.ObserveAlert(types.AlertDetected)
	s.ObserveAlert(types.AlertResolved)
	s.ObserveDelivery(nil)
	s.ObserveDelivery(errors.New("relay down"))
	s.ObserveDeliveryDrop()
	s.AddScannedBytes(2048)

	snap := s.Snapshot()
	if snap.Polls != 3 {
		t.Fatalf("expected 3 polls, got %d", snap.Polls)
	}
	if snap.PollsByMonitor["cpu"] != 2 || snap.PollsByMonitor["storage"] != 1 {
		t.Fatalf("unexpected per-monitor polls %v", snap.PollsByMonitor)
	}
	if snap.ProbeFailures != 1 || snap.SkippedByGate != 1 {
		t.Fatalf("unexpected failure counters %+v", snap)
	}
	if snap.AlertsByKind[types.AlertDetected] != 2 || snap.AlertsByKind[types.AlertResolved] != 1 {
		t.Fatalf("unexpected alert counters %v", snap.AlertsByKind)
	}
	if snap.DeliveryFailures != 1 || snap.DeliveryDrops != 1 {
		t.Fatalf("unexpected delivery counters %+v", snap)
	}
	if snap.ScannedBytes != 2048 {
		t.Fatalf("expected 2048 scanned bytes, got %d", snap.ScannedBytes)
	}
}

func TestHandlerEmitsTextLines(t *testing.T) {
	s := NewStore()
	s.ObservePoll("cpu")
	s.ObserveAlert(types.AlertDetected)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"agent_polls_total 1\n",
		"agent_alerts_total{kind=\"detected\"} 1\n",
		"agent_monitor_polls_total{monitor=\"cpu\"} 1\n",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}
