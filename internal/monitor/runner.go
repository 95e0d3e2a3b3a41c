// Package monitor is the generic poll engine shared by every check: sample a
// probe, debounce the signal per entity, deliver alerts on transitions, and
// persist state. Concrete checks are small probe adapters; none of them carry
// their own copy of the state machine.
package monitor

import (
	"context"
	"io"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vigilohq/agent/internal/alert"
	"github.com/vigilohq/agent/internal/debounce"
	"github.com/vigilohq/agent/internal/events"
	"github.com/vigilohq/agent/internal/gate"
	"github.com/vigilohq/agent/internal/health"
	"github.com/vigilohq/agent/internal/metrics"
	"github.com/vigilohq/agent/internal/report"
	"github.com/vigilohq/agent/internal/state"
	"github.com/vigilohq/agent/pkg/types"
)

// Result is one entity's sampled signal for a single cycle.
type Result struct {
	Healthy bool
	Detail  string
	Reason  string
	Samples []string
	// Previous and Current carry running totals at window close for the
	// rate monitor's table-style alert bodies.
	Previous int
	Current  int
}

// EntityProbe samples every entity a monitor tracks. Entities absent from the
// returned map are left untouched this cycle (a probe may sample sub-entities
// on independent cadences). The probe may read and update its monitor's
// cursor/window/mtime sub-records through rs; the runner persists rs once per
// cycle. A returned error means the whole signal is unknown: the cycle is
// skipped without alerting (fail-open).
type EntityProbe interface {
	Sample(ctx context.Context, rs *state.RecordSet, now time.Time) (map[string]Result, error)
}

// Spec carries the per-cycle parameters, re-read from configuration every
// poll so config edits apply without restart.
type Spec struct {
	Interval        time.Duration
	DefaultCooldown time.Duration
	// Cooldowns overrides the default per entity.
	Cooldowns map[string]time.Duration
	// PruneMissing drops entity records whose entity was not sampled, for
	// monitors whose tracked resources (files) come and go.
	PruneMissing bool
	// Gated monitors skip the cycle while the traffic gate reads inactive.
	Gated bool
}

func (s Spec) cooldown(entity string) time.Duration {
	if d, ok := s.Cooldowns[entity]; ok {
		return d
	}
	return s.DefaultCooldown
}

// Composer renders the subject and body for one alert transition.
type Composer func(kind types.AlertKind, server, entity string, res Result, now time.Time) (subject, body string)

// Runner drives one monitor instance as a single-threaded poll loop.
type Runner struct {
	name       string
	server     string
	spec       func() (Spec, error)
	probe      EntityProbe
	store      *state.Store
	dispatcher *alert.Dispatcher
	gate       gate.Gate
	compose    Composer
	logger     *log.Logger
	now        func() time.Time
	recorder   events.Recorder
	metrics    *metrics.Store
	health     *health.Checker
	retryDelay time.Duration
}

type RunnerOption func(*Runner)

func WithGate(g gate.Gate) RunnerOption {
	return func(r *Runner) {
		if g != nil {
			r.gate = g
		}
	}
}

func WithComposer(c Composer) RunnerOption {
	return func(r *Runner) {
		if c != nil {
			r.compose = c
		}
	}
}

func WithLogger(logger *log.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithNow(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func WithRecorder(rec events.Recorder) RunnerOption {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

func WithMetrics(store *metrics.Store) RunnerOption {
	return func(r *Runner) {
		r.metrics = store
	}
}

func WithHealth(checker *health.Checker) RunnerOption {
	return func(r *Runner) {
		r.health = checker
	}
}

// WithRetryDelay sets the wait before retrying after a missing config section.
func WithRetryDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.retryDelay = d
		}
	}
}

// NewRunner builds a runner for one monitor instance. The spec function is
// called every cycle; returning an error means the monitor's config section
// is currently missing and the cycle is retried after a fixed delay.
func NewRunner(name, server string, spec func() (Spec, error), probe EntityProbe, store *state.Store, dispatcher *alert.Dispatcher, opts ...RunnerOption) *Runner {
	r := &Runner{
		name:       name,
		server:     server,
		spec:       spec,
		probe:      probe,
		store:      store,
		dispatcher: dispatcher,
		gate:       gate.Always{},
		logger:     log.New(io.Discard, "", 0),
		now:        time.Now,
		recorder:   events.NoopRecorder{},
		retryDelay: 10 * time.Second,
	}
	r.compose = func(kind types.AlertKind, server, entity string, res Result, now time.Time) (string, string) {
		return report.Subject(kind, r.name, server, entity),
			report.Body(kind, server, entity, res.Detail, res.Reason, res.Samples, now)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until the context is cancelled. Cancellation is only observed
// between cycles, so a cycle in flight finishes and persists its state before
// the loop exits.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Printf("%s monitoring started", r.name)
	for {
		sleep := r.cycle(ctx)
		select {
		case <-ctx.Done():
			r.logger.Printf("%s monitoring stopped", r.name)
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// cycle performs one poll and returns how long to sleep before the next.
func (r *Runner) cycle(ctx context.Context) time.Duration {
	spec, err := r.spec()
	if err != nil {
		r.logger.Printf("%s: %v", r.name, err)
		r.observePoll(err)
		return r.retryDelay
	}

	if spec.Gated && !r.gate.Active(ctx) {
		r.logger.Printf("%s: traffic not active on this site, skipping cycle", r.name)
		if r.metrics != nil {
			r.metrics.ObserveGateSkip()
		}
		r.observePoll(nil)
		return spec.Interval
	}

	rs := r.store.Load(r.name)
	now := r.now()

	results, err := r.probe.Sample(ctx, rs, now)
	if err != nil {
		r.logger.Printf("%s: probe failed, skipping cycle: %v", r.name, err)
		if r.metrics != nil {
			r.metrics.ObserveProbeFailure(r.name)
		}
		r.observePoll(err)
		return spec.Interval
	}

	entities := make([]string, 0, len(results))
	for name := range results {
		entities = append(entities, name)
	}
	sort.Strings(entities)

	for _, entity := range entities {
		res := results[entity]
		rec, tr := debounce.Step(rs.Entity(entity), res.Healthy, spec.cooldown(entity), now)
		rs.Entities[entity] = rec
		if tr == debounce.None {
			continue
		}

		subject, body := r.compose(tr.Kind(), r.server, entity, res, now)
		a := types.Alert{
			ID:      uuid.NewString(),
			Kind:    tr.Kind(),
			Monitor: r.name,
			Entity:  entity,
			Server:  r.server,
			Subject: subject,
			Body:    body,
			Reason:  res.Reason,
			At:      now,
		}
		r.recorder.Record(a)
		if r.metrics != nil {
			r.metrics.ObserveAlert(a.Kind)
		}
		// State is committed below regardless of delivery outcome.
		r.dispatcher.Deliver(ctx, a)
	}

	if spec.PruneMissing {
		for entity := range rs.Entities {
			if _, ok := results[entity]; !ok {
				delete(rs.Entities, entity)
			}
		}
	}

	if err := r.store.Save(r.name, rs); err != nil {
		r.logger.Printf("%s: persist state: %v", r.name, err)
	}
	if r.metrics != nil {
		r.metrics.ObservePoll(r.name)
	}
	r.observePoll(nil)
	return spec.Interval
}

func (r *Runner) observePoll(err error) {
	if r.health != nil {
		r.health.ObservePoll(r.name, r.now(), err)
	}
}
