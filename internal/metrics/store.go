package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vigilohq/agent/pkg/types"
)

// Store maintains in-memory counters and gauges for agent telemetry.
type Store struct {
	polls             atomic.Uint64
	probeFailures     atomic.Uint64
	skippedByGate     atomic.Uint64
	deliveryFailures  atomic.Uint64
	deliveryDrops     atomic.Uint64
	scannedBytes      atomic.Int64
	alertsByKind      sync.Map // types.AlertKind -> *atomic.Uint64
	pollsByMonitor    sync.Map // string -> *atomic.Uint64
	failuresByMonitor sync.Map // string -> *atomic.Uint64
}

func NewStore() *Store {
	return &Store{}
}

// ObservePoll records one completed poll cycle for a monitor.
func (s *Store) ObservePoll(monitor string) {
	s.polls.Add(1)
	counter(&s.pollsByMonitor, monitor).Add(1)
}

// ObserveProbeFailure records a probe error that caused a skipped cycle.
func (s *Store) ObserveProbeFailure(monitor string) {
	s.probeFailures.Add(1)
	counter(&s.failuresByMonitor, monitor).Add(1)
}

// ObserveGateSkip records a cycle skipped because the traffic gate was closed.
func (s *Store) ObserveGateSkip() {
	s.skippedByGate.Add(1)
}

// ObserveAlert records one emitted alert transition.
func (s *Store) ObserveAlert(kind types.AlertKind) {
	counter(&s.alertsByKind, kind).Add(1)
}

// ObserveDelivery records the outcome of one alert delivery attempt chain.
func (s *Store) ObserveDelivery(err error) {
	if err != nil {
		s.deliveryFailures.Add(1)
	}
}

// ObserveDeliveryDrop records an alert dropped by the global rate limiter.
func (s *Store) ObserveDeliveryDrop() {
	s.deliveryDrops.Add(1)
}

// AddScannedBytes accumulates bytes read by incremental log scans.
func (s *Store) AddScannedBytes(n int64) {
	s.scannedBytes.Add(n)
}

func counter(m *sync.Map, key any) *atomic.Uint64 {
	if v, ok := m.Load(key); ok {
		return v.(*atomic.Uint64)
	}
	v, _ := m.LoadOrStore(key, &atomic.Uint64{})
	return v.(*atomic.Uint64)
}

// Snapshot is a point-in-time copy of all metric values.
type Snapshot struct {
	Polls            uint64
	ProbeFailures    uint64
	SkippedByGate    uint64
	DeliveryFailures uint64
	DeliveryDrops    uint64
	ScannedBytes     int64
	AlertsByKind     map[types.AlertKind]uint64
	PollsByMonitor   map[string]uint64
}

func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Polls:            s.polls.Load(),
		ProbeFailures:    s.probeFailures.Load(),
		SkippedByGate:    s.skippedByGate.Load(),
		DeliveryFailures: s.deliveryFailures.Load(),
		DeliveryDrops:    s.deliveryDrops.Load(),
		ScannedBytes:     s.scannedBytes.Load(),
		AlertsByKind:     make(map[types.AlertKind]uint64),
		PollsByMonitor:   make(map[string]uint64),
	}
	s.alertsByKind.Range(func(key, value any) bool {
		snap.AlertsByKind[key.(types.AlertKind)] = value.(*atomic.Uint64).Load()
		return true
	})
	s.pollsByMonitor.Range(func(key, value any) bool {
		snap.PollsByMonitor[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return snap
}

// Handler serves the metrics in a plain line-oriented text format.
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := s.Snapshot()
		var b strings.Builder
		fmt.Fprintf(&b, "agent_polls_total %d\n", snap.Polls)
		fmt.Fprintf(&b, "agent_probe_failures_total %d\n", snap.ProbeFailures)
		fmt.Fprintf(&b, "agent_gate_skips_total %d\n", snap.SkippedByGate)
		fmt.Fprintf(&b, "agent_delivery_failures_total %d\n", snap.DeliveryFailures)
		fmt.Fprintf(&b, "agent_delivery_drops_total %d\n", snap.DeliveryDrops)
		fmt.Fprintf(&b, "agent_scanned_bytes_total %d\n", snap.ScannedBytes)

		kinds := make([]string, 0, len(snap.AlertsByKind))
		for k := range snap.AlertsByKind {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "agent_alerts_total{kind=%q} %d\n", k, snap.AlertsByKind[types.AlertKind(k)])
		}

		monitors := make([]string, 0, len(snap.PollsByMonitor))
		for m := range snap.PollsByMonitor {
			monitors = append(monitors, m)
		}
		sort.Strings(monitors)
		for _, m := range monitors {
			fmt.Fprintf(&b, "agent_monitor_polls_total{monitor=%q} %d\n", m, snap.PollsByMonitor[m])
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(b.String()))
	})
}
