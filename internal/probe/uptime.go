package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/vigilohq/agent/internal/config"
	"github.com/vigilohq/agent/internal/monitor"
	"github.com/vigilohq/agent/internal/state"
)

// Uptime alerts while system uptime is below a threshold, catching an
// unexpected reboot. The fault clears on its own once the host has been up
// long enough.
type Uptime struct {
	provider *config.Provider

	uptime func(ctx context.Context) (time.Duration, error)
}

func NewUptime(provider *config.Provider) *Uptime {
	return &Uptime{
		provider: provider,
		uptime: func(ctx context.Context) (time.Duration, error) {
			secs, err := host.UptimeWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return time.Duration(secs) * time.Second, nil
		},
	}
}

func (p *Uptime) Sample(ctx context.Context, rs *state.RecordSet, now time.Time) (map[string]monitor.Result, error) {
	cfg := p.provider.Get().Uptime
	if cfg == nil {
		return nil, fmt.Errorf("uptime_check section missing")
	}

	up, err := p.uptime(ctx)
	if err != nil {
		return nil, fmt.Errorf("read uptime: %w", err)
	}

	threshold := time.Duration(cfg.ThresholdMinutes) * time.Minute
	res := monitor.Result{
		Healthy: up >= threshold,
		Detail:  fmt.Sprintf("uptime %s (threshold %s)", up.Round(time.Second), threshold),
	}
	if !res.Healthy {
		res.Reason = fmt.Sprintf("system rebooted recently, uptime %s below %s", up.Round(time.Second), threshold)
	}
	return map[string]monitor.Result{"uptime": res}, nil
}
