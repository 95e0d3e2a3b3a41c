package probe

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/vigilohq/agent/internal/config"
	"github.com/vigilohq/agent/internal/monitor"
	"github.com/vigilohq/agent/internal/state"
)

const defaultPingTimeout = 5 * time.Second

// Ping checks reachability of a single target with one ICMP echo.
type Ping struct {
	provider *config.Provider

	run func(ctx context.Context, target string, timeout time.Duration) error
}

func NewPing(provider *config.Provider) *Ping {
	return &Ping{
		provider: provider,
		run: func(ctx context.Context, target string, timeout time.Duration) error {
			secs := int(timeout / time.Second)
			if secs < 1 {
				secs = 1
			}
			cmd := exec.CommandContext(ctx, "ping", "-c", "1", "-W", strconv.Itoa(secs), target)
			return cmd.Run()
		},
	}
}

func (p *Ping) Sample(ctx context.Context, rs *state.RecordSet, now time.Time) (map[string]monitor.Result, error) {
	cfg := p.provider.Get().Ping
	if cfg == nil {
		return nil, fmt.Errorf("ping_check section missing")
	}

	timeout := config.Seconds(cfg.TimeoutSeconds, defaultPingTimeout)
	pingCtx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	err := p.run(pingCtx, cfg.TargetIP, timeout)
	res := monitor.Result{Healthy: err == nil}
	if err != nil {
		res.Reason = fmt.Sprintf("target %s unreachable", cfg.TargetIP)
		res.Detail = "ping check failed"
	}
	return map[string]monitor.Result{cfg.TargetIP: res}, nil
}
