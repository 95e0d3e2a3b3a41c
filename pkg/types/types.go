package types

import "time"

// Status is the persisted health state of one tracked entity.
type Status string

const (
	StatusOK   Status = "OK"
	StatusFail Status = "FAIL"
)

// AlertKind classifies a state transition worth telling someone about.
type AlertKind string

const (
	AlertDetected     AlertKind = "detected"
	AlertStillFailing AlertKind = "still_failing"
	AlertResolved     AlertKind = "resolved"
)

// EntityRecord is the durable record for one tracked entity. LastAlertTime is
// non-nil only while Status is FAIL and at least one alert has been sent for
// the current fault episode.
type EntityRecord struct {
	Status        Status     `yaml:"status"`
	LastAlertTime *time.Time `yaml:"last_alert_time,omitempty"`
}

// DefaultRecord is the state assigned to an entity on first observation.
func DefaultRecord() EntityRecord {
	return EntityRecord{Status: StatusOK}
}

// Alert is a composed, ready-to-deliver notification.
type Alert struct {
	ID      string    `json:"id"`
	Kind    AlertKind `json:"kind"`
	Monitor string    `json:"monitor"`
	Entity  string    `json:"entity"`
	Server  string    `json:"server"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}
