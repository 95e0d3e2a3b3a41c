package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vigilohq/agent/internal/config"
	"github.com/vigilohq/agent/internal/state"
)

func TestServicesHealthyOnActiveOutput(t *testing.T) {
	p := NewServices(config.Static(config.Config{
		Services: &config.ServiceConfig{
			Services: []config.ServiceCheck{
				{Name: "postgresql", CheckCommand: "systemctl is-active postgresql"},
			},
		},
	}))
	p.run = func(ctx context.Context, command string) (string, error) {
		return "active\n", nil
	}

	res, err := p.Sample(context.Background(), state.NewRecordSet(), time.Now())
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	if !res["postgresql"].Healthy {
		t.Fatalf("expected healthy, got %+v", res["postgresql"])
	}
}

func TestServicesUnhealthyOnFailedCheck(t *testing.T) {
	cases := []struct {
		name string
		out  string
		err  error
	}{
		{name: "non-zero exit", out: "inactive\n", err: errors.New("exit status 3")},
		{name: "empty output", out: "  \n", err: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewServices(config.Static(config.Config{
				Services: &config.ServiceConfig{
					Services: []config.ServiceCheck{{Name: "kannel", CheckCommand: "pgrep bearerbox"}},
				},
			}))
			p.run = func(ctx context.Context, command string) (string, error) {
				return tc.out, tc.err
			}

			res, err := p.Sample(context.Background(), state.NewRecordSet(), time.Now())
			if err != nil {
				t.Fatalf("sample failed: %v", err)
			}
			if res["kannel"].Healthy {
				t.Fatalf("expected unhealthy, got %+v", res["kannel"])
			}
			if res["kannel"].Reason == "" {
				t.Fatal("expected a reason on the unhealthy result")
			}
		})
	}
}

func TestServicesHonourPerServiceCadence(t *testing.T) {
	p := NewServices(config.Static(config.Config{
		Services: &config.ServiceConfig{
			Services: []config.ServiceCheck{
				{Name: "fast", CheckCommand: "true", IntervalSeconds: 30},
				{Name: "slow", CheckCommand: "true", IntervalSeconds: 300},
			},
		},
	}))
	p.run = func(ctx context.Context, command string) (string, error) {
		return "ok", nil
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rs := state.NewRecordSet()

	first, _ := p.Sample(context.Background(), rs, now)
	if len(first) != 2 {
		t.Fatalf("expected both services on the first cycle, got %d", len(first))
	}

	// One minute on: only the 30s service is due; the other is omitted so
	// its debounce record stays untouched.
	second, _ := p.Sample(context.Background(), rs, now.Add(time.Minute))
	if len(second) != 1 {
		t.Fatalf("expected one due service, got %d", len(second))
	}
	if _, ok := second["fast"]; !ok {
		t.Fatalf("expected the fast service to be due, got %v", second)
	}
}

func TestServicesMissingSection(t *testing.T) {
	p := NewServices(config.Static(config.Config{}))
	if _, err := p.Sample(context.Background(), state.NewRecordSet(), time.Now()); err == nil {
		t.Fatal("expected an error for a missing service_monitor section")
	}
}
