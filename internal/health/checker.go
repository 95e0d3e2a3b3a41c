package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const defaultStaleFactor = 3

// Checker evaluates readiness conditions for the agent: every registered
// monitor must have completed a poll recently relative to its own interval.
type Checker struct {
	mu       sync.RWMutex
	monitors map[string]monitorState
}

type monitorState struct {
	interval    time.Duration
	lastSuccess time.Time
	lastErr     string
}

// NewChecker constructs a readiness checker.
func NewChecker() *Checker {
	return &Checker{
		monitors: make(map[string]monitorState),
	}
}

// Register announces a monitor and its poll interval before the first cycle.
func (c *Checker) Register(monitor string, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.monitors[monitor] = monitorState{interval: interval}
}

// ObservePoll records the outcome of one poll cycle for a monitor.
func (c *Checker) ObservePoll(monitor string, ts time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.monitors[monitor]
	if err != nil {
		st.lastErr = err.Error()
	} else {
		st.lastSuccess = ts
		st.lastErr = ""
	}
	c.monitors[monitor] = st
}

// Ready reports overall readiness and the reasons for failure.
func (c *Checker) Ready(now time.Time) (bool, []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var reasons []string
	for name, st := range c.monitors {
		if st.lastSuccess.IsZero() {
			reasons = append(reasons, fmt.Sprintf("monitor %s has not completed a poll yet", name))
			continue
		}
		stale := st.interval * defaultStaleFactor
		if stale > 0 && now.Sub(st.lastSuccess) > stale {
			reasons = append(reasons, fmt.Sprintf("monitor %s stale (%s since last poll)", name, now.Sub(st.lastSuccess).Round(time.Second)))
		}
		if st.lastErr != "" {
			reasons = append(reasons, fmt.Sprintf("monitor %s failing: %s", name, st.lastErr))
		}
	}
	return len(reasons) == 0, reasons
}

// Handler serves a JSON readiness document.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ready, reasons := c.Ready(time.Now())
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ready":   ready,
			"reasons": reasons,
		})
	})
}
