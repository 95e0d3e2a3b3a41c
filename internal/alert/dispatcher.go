package alert

import (
	"context"
	"io"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/vigilohq/agent/internal/metrics"
	"github.com/vigilohq/agent/pkg/types"
)

// Dispatcher wraps a sink with bounded retries, increasing backoff, and a
// global rate cap. Deliver never returns an error to the caller: a state
// transition already committed must not be rolled back by a delivery failure.
type Dispatcher struct {
	sink        Sink
	maxAttempts int
	backoff     time.Duration
	limiter     *rate.Limiter
	logger      *log.Logger
	metrics     *metrics.Store
	sleep       func(ctx context.Context, d time.Duration) bool
}

type DispatcherOption func(*Dispatcher)

// WithMaxAttempts bounds delivery attempts per alert.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithBackoff sets the first retry delay; each further retry doubles it.
func WithBackoff(dur time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if dur > 0 {
			d.backoff = dur
		}
	}
}

// WithRateLimit caps delivered alerts per minute across all monitors.
func WithRateLimit(perMinute float64) DispatcherOption {
	return func(d *Dispatcher) {
		if perMinute > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perMinute/60), int(perMinute)+1)
		}
	}
}

func WithLogger(logger *log.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(store *metrics.Store) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = store
	}
}

func NewDispatcher(sink Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sink:        sink,
		maxAttempts: 3,
		backoff:     2 * time.Second,
		logger:      log.New(io.Discard, "", 0),
		sleep: func(ctx context.Context, dur time.Duration) bool {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(dur):
				return true
			}
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver attempts to send the alert, retrying transient failures within this
// cycle. Exhausted attempts and rate-limited drops are logged and counted.
func (d *Dispatcher) Deliver(ctx context.Context, alert types.Alert) {
	if d.limiter != nil && !d.limiter.Allow() {
		d.logger.Printf("alert %s dropped by rate limit (monitor=%s entity=%s)", alert.ID, alert.Monitor, alert.Entity)
		if d.metrics != nil {
			d.metrics.ObserveDeliveryDrop()
		}
		return
	}

	var err error
	wait := d.backoff
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err = d.sink.Send(ctx, alert); err == nil {
			if d.metrics != nil {
				d.metrics.ObserveDelivery(nil)
			}
			return
		}
		d.logger.Printf("alert delivery attempt %d/%d failed: %v", attempt, d.maxAttempts, err)
		if attempt == d.maxAttempts {
			break
		}
		if !d.sleep(ctx, wait) {
			break
		}
		wait *= 2
	}

	if d.metrics != nil {
		d.metrics.ObserveDelivery(err)
	}
}
