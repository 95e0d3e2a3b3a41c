package events

import (
	"log"

	"github.com/vigilohq/agent/pkg/types"
)

// Recorder observes every alert transition the monitors produce.
type Recorder interface {
	Record(alert types.Alert)
}

type NoopRecorder struct{}

func (NoopRecorder) Record(alert types.Alert) {}

// LogRecorder writes one line per transition to the agent log.
type LogRecorder struct {
	Logger *log.Logger
}

func (r LogRecorder) Record(alert types.Alert) {
	if r.Logger == nil {
		return
	}
	r.Logger.Printf("alert %s monitor=%s entity=%s reason=%q", alert.Kind, alert.Monitor, alert.Entity, alert.Reason)
}

type Multi struct {
	recorders []Recorder
}

func NewMulti(recorders ...Recorder) Multi {
	return Multi{recorders: recorders}
}

func (m Multi) Record(alert types.Alert) {
	for _, rec := range m.recorders {
		if rec != nil {
			rec.Record(alert)
		}
	}
}
