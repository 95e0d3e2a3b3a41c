package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/vigilohq/agent/internal/config"
	"github.com/vigilohq/agent/internal/monitor"
	"github.com/vigilohq/agent/internal/state"
)

// Processes verifies that each configured process appears in the live process
// table, matching the configured fragment against full command lines.
type Processes struct {
	provider *config.Provider

	cmdlines func(ctx context.Context) ([]string, error)
}

func NewProcesses(provider *config.Provider) *Processes {
	return &Processes{
		provider: provider,
		cmdlines: func(ctx context.Context) ([]string, error) {
			procs, err := process.ProcessesWithContext(ctx)
			if err != nil {
				return nil, err
			}
			lines := make([]string, 0, len(procs))
			for _, proc := range procs {
				// Processes may exit mid-iteration; skip the ones we
				// cannot read.
				cmdline, err := proc.CmdlineWithContext(ctx)
				if err != nil || cmdline == "" {
					continue
				}
				lines = append(lines, cmdline)
			}
			return lines, nil
		},
	}
}

func (p *Processes) Sample(ctx context.Context, rs *state.RecordSet, now time.Time) (map[string]monitor.Result, error) {
	cfg := p.provider.Get().Processes
	if cfg == nil {
		return nil, fmt.Errorf("process_monitor section missing")
	}

	lines, err := p.cmdlines(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	results := make(map[string]monitor.Result, len(cfg.Processes))
	for _, name := range cfg.Processes {
		running := false
		for _, line := range lines {
			if strings.Contains(line, name) {
				running = true
				break
			}
		}
		res := monitor.Result{Healthy: running}
		if !running {
			res.Reason = fmt.Sprintf("process %q not found in process table", name)
			res.Detail = "process is not running"
		}
		results[name] = res
	}
	return results, nil
}
