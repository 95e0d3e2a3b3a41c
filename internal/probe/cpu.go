// Package probe contains the signal-acquisition adapters the monitor engine
// polls. Each probe reads its own config section fresh every cycle so edits
// apply without restart; a probe error means "signal unknown" and the engine
// skips the cycle without alerting.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/vigilohq/agent/internal/config"
	"github.com/vigilohq/agent/internal/monitor"
	"github.com/vigilohq/agent/internal/state"
)

// CPU flags sustained high CPU usage: the signal goes unhealthy only after
// usage has stayed above the threshold for the configured duration, not on a
// single busy sample.
type CPU struct {
	provider *config.Provider

	// usage samples current CPU utilisation; overridable for tests. The
	// default blocks for a fixed one-second sampling window.
	usage func(ctx context.Context) (float64, error)

	highSince time.Time
}

func NewCPU(provider *config.Provider) *CPU {
	return &CPU{
		provider: provider,
		usage: func(ctx context.Context) (float64, error) {
			percents, err := cpu.PercentWithContext(ctx, time.Second, false)
			if err != nil {
				return 0, err
			}
			if len(percents) == 0 {
				return 0, fmt.Errorf("no cpu samples")
			}
			return percents[0], nil
		},
	}
}

func (p *CPU) Sample(ctx context.Context, rs *state.RecordSet, now time.Time) (map[string]monitor.Result, error) {
	cfg := p.provider.Get().CPU
	if cfg == nil {
		return nil, fmt.Errorf("cpu_monitor section missing")
	}

	usage, err := p.usage(ctx)
	if err != nil {
		return nil, fmt.Errorf("sample cpu usage: %w", err)
	}

	if usage > cfg.Threshold {
		if p.highSince.IsZero() {
			p.highSince = now
		}
	} else {
		p.highSince = time.Time{}
	}

	sustained := !p.highSince.IsZero() && now.Sub(p.highSince) >= config.Seconds(cfg.DurationSeconds, time.Minute)

	res := monitor.Result{
		Healthy: !sustained,
		Detail:  fmt.Sprintf("usage %.2f%% (threshold %.0f%%)", usage, cfg.Threshold),
	}
	if sustained {
		res.Reason = fmt.Sprintf("CPU above %.0f%% for %ds or more", cfg.Threshold, cfg.DurationSeconds)
	}
	return map[string]monitor.Result{"cpu": res}, nil
}
