package health

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestReadyRequiresFirstPoll(t *testing.T) {
	c := NewChecker()
	c.Register("cpu", time.Minute)

	ready, reasons := c.Ready(time.Now())
	if ready {
		t.Fatal("expected not ready before the first poll")
	}
	if len(reasons) != 1 {
		t.Fatalf("expected one reason, got %v", reasons)
	}
}

func TestReadyAfterSuccessfulPoll(t *testing.T) {
	c := NewChecker()
	c.Register("cpu", time.Minute)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.ObservePoll("cpu", now, nil)

	if ready, reasons := c.Ready(now.Add(30 * time.Second)); !ready {
		t.Fatalf("expected ready, got %v", reasons)
	}
}

func TestReadyFlagsStaleMonitor(t *testing.T) {
	c := NewChecker()
	c.Register("cpu", time.Minute)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.ObservePoll("cpu", now, nil)

	// Three intervals is the staleness cutoff.
	if ready, _ := c.Ready(now.Add(4 * time.Minute)); ready {
		t.Fatal("expected stale monitor to fail readiness")
	}
}

func TestReadyFlagsFailingMonitor(t *testing.T) {
	c := NewChecker()
	c.Register("trace", time.Minute)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.ObservePoll("trace", now, nil)
	c.ObservePoll("trace", now.Add(time.Minute), errors.New("probe failed"))

	ready, reasons := c.Ready(now.Add(time.Minute))
	if ready {
		t.Fatalf("expected a failing monitor to block readiness, got %v", reasons)
	}

	// A later success clears the error.
	c.ObservePoll("trace", now.Add(2*time.Minute), nil)
	if ready, reasons := c.Ready(now.Add(2 * time.Minute)); !ready {
		t.Fatalf("expected ready after recovery, got %v", reasons)
	}
}

func TestHandlerStatusCodes(t *testing.T) {
	c := NewChecker()
	c.Register("cpu", time.Minute)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != 503 {
		t.Fatalf("expected 503 before the first poll, got %d", rec.Code)
	}

	var doc struct {
		Ready   bool     `json:"ready"`
		Reasons []string `json:"reasons"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("failed to decode readiness document: %v", err)
	}
	if doc.Ready || len(doc.Reasons) == 0 {
		t.Fatalf("unexpected readiness document %+v", doc)
	}

	c.ObservePoll("cpu", time.Now(), nil)
	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != 200 {
		t.Fatalf("expected 200 after a poll, got %d", rec.Code)
	}
}
