package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/vigilohq/agent/internal/config"
	"github.com/vigilohq/agent/internal/monitor"
	"github.com/vigilohq/agent/internal/state"
)

const defaultCheckTimeout = 10 * time.Second

// Services runs each service's check command and treats exit status 0 with
// non-empty output as healthy. Every service has its own check cadence;
// services not yet due are omitted from the result map so their debounce
// state is left untouched.
type Services struct {
	provider *config.Provider

	run func(ctx context.Context, command string) (string, error)

	lastCheck map[string]time.Time
}

func NewServices(provider *config.Provider) *Services {
	return &Services{
		provider: provider,
		run: func(ctx context.Context, command string) (string, error) {
			cmd := exec.CommandContext(ctx, "sh", "-c", command)
			var out bytes.Buffer
			cmd.Stdout = &out
			err := cmd.Run()
			return out.String(), err
		},
		lastCheck: make(map[string]time.Time),
	}
}

func (p *Services) Sample(ctx context.Context, rs *state.RecordSet, now time.Time) (map[string]monitor.Result, error) {
	cfg := p.provider.Get().Services
	if cfg == nil {
		return nil, fmt.Errorf("service_monitor section missing")
	}

	results := make(map[string]monitor.Result)
	for _, svc := range cfg.Services {
		interval := config.Seconds(svc.IntervalSeconds, 0)
		if last, ok := p.lastCheck[svc.Name]; ok && interval > 0 && now.Sub(last) < interval {
			continue
		}
		p.lastCheck[svc.Name] = now

		checkCtx, cancel := context.WithTimeout(ctx, config.Seconds(svc.TimeoutSeconds, defaultCheckTimeout))
		out, err := p.run(checkCtx, svc.CheckCommand)
		cancel()

		running := err == nil && strings.TrimSpace(out) != ""
		res := monitor.Result{Healthy: running}
		if !running {
			res.Reason = fmt.Sprintf("check command reported service not running: %s", svc.CheckCommand)
			res.Detail = "service is not running"
		}
		results[svc.Name] = res
	}
	return results, nil
}
