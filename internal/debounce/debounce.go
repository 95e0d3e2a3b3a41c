// Package debounce turns a noisy sampled health signal into discrete alert
// transitions with hysteresis and a per-entity cooldown.
package debounce

import (
	"time"

	"github.com/vigilohq/agent/pkg/types"
)

// Transition is the alert decision for one poll of one entity.
type Transition int

const (
	// None means no alert is due for this poll.
	None Transition = iota
	// Detected fires on the OK -> FAIL edge.
	Detected
	// StillFailing fires while FAIL persists and the cooldown has elapsed.
	StillFailing
	// Resolved fires on the FAIL -> OK edge.
	Resolved
)

func (t Transition) String() string {
	switch t {
	case Detected:
		return "detected"
	case StillFailing:
		return "still_failing"
	case Resolved:
		return "resolved"
	default:
		return "none"
	}
}

// Kind maps a non-None transition to its alert kind.
func (t Transition) Kind() types.AlertKind {
	switch t {
	case Detected:
		return types.AlertDetected
	case StillFailing:
		return types.AlertStillFailing
	default:
		return types.AlertResolved
	}
}

// Step advances the two-state machine for one entity. It is a pure function:
// no I/O, no clock access beyond the supplied now.
//
//	OK   + healthy            -> OK,   None
//	OK   + unhealthy          -> FAIL, Detected,     last alert = now
//	FAIL + unhealthy (cool)   -> FAIL, None
//	FAIL + unhealthy (due)    -> FAIL, StillFailing, last alert = now
//	FAIL + healthy            -> OK,   Resolved,     last alert cleared
//
// A nil LastAlertTime while FAIL counts as due, so a record that failed
// before any alert went out alerts immediately. A cooldown of zero alerts on
// every poll while the fault persists.
func Step(rec types.EntityRecord, healthy bool, cooldown time.Duration, now time.Time) (types.EntityRecord, Transition) {
	switch {
	case rec.Status != types.StatusFail && healthy:
		rec.Status = types.StatusOK
		return rec, None

	case rec.Status != types.StatusFail && !healthy:
		rec.Status = types.StatusFail
		at := now
		rec.LastAlertTime = &at
		return rec, Detected

	case !healthy:
		if rec.LastAlertTime != nil && now.Sub(*rec.LastAlertTime) < cooldown {
			return rec, None
		}
		at := now
		rec.LastAlertTime = &at
		return rec, StillFailing

	default:
		rec.Status = types.StatusOK
		rec.LastAlertTime = nil
		return rec, Resolved
	}
}
