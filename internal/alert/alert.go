// Package alert delivers composed alerts to operators. Delivery is
// best-effort: monitors commit their state transition first and a failed send
// is only logged, the next poll past the cooldown re-attempts an equivalent
// alert while the fault persists.
package alert

import (
	"context"

	"github.com/vigilohq/agent/pkg/types"
)

// Sink accepts a composed alert and attempts delivery once.
type Sink interface {
	Send(ctx context.Context, alert types.Alert) error
}

// Multi fans an alert out to several sinks; the first error is returned after
// every sink has been tried.
type Multi []Sink

func (m Multi) Send(ctx context.Context, alert types.Alert) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, alert); err != nil && first == nil {
			first = err
		}
	}
	return first
}
