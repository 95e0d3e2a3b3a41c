package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/vigilohq/agent/internal/config"
	"github.com/vigilohq/agent/internal/monitor"
	"github.com/vigilohq/agent/internal/state"
)

// Storage checks disk usage per configured mount point. A mount that cannot
// be read is skipped for the cycle so one broken mount never hides the rest.
type Storage struct {
	provider *config.Provider
	logger   Logger

	usage func(ctx context.Context, mount string) (float64, error)
}

func NewStorage(provider *config.Provider, logger Logger) *Storage {
	return &Storage{
		provider: provider,
		logger:   ensureLogger(logger),
		usage: func(ctx context.Context, mount string) (float64, error) {
			st, err := disk.UsageWithContext(ctx, mount)
			if err != nil {
				return 0, err
			}
			return st.UsedPercent, nil
		},
	}
}

func (p *Storage) Sample(ctx context.Context, rs *state.RecordSet, now time.Time) (map[string]monitor.Result, error) {
	cfg := p.provider.Get().Storage
	if cfg == nil {
		return nil, fmt.Errorf("storage_monitor section missing")
	}

	results := make(map[string]monitor.Result, len(cfg.Directories))
	for mount, params := range cfg.Directories {
		usage, err := p.usage(ctx, mount)
		if err != nil {
			p.logger.Printf("cannot read disk usage for %s: %v", mount, err)
			continue
		}
		res := monitor.Result{
			Healthy: usage < params.Threshold,
			Detail:  fmt.Sprintf("usage %.2f%% (threshold %.0f%%)", usage, params.Threshold),
		}
		if !res.Healthy {
			res.Reason = fmt.Sprintf("disk usage %.2f%% exceeded threshold %.0f%%", usage, params.Threshold)
		}
		results[mount] = res
	}
	return results, nil
}
