package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vigilohq/agent/internal/config"
	"github.com/vigilohq/agent/internal/monitor"
	"github.com/vigilohq/agent/internal/state"
)

// TraceFreshness verifies that today's trace files exist in the expected
// number and that each keeps being written to. Per-file modification times
// are tracked in the monitor's record set; entries for files that vanished
// (yesterday's logs) are pruned.
type TraceFreshness struct {
	provider *config.Provider

	mtime func(path string) (time.Time, error)
}

func NewTraceFreshness(provider *config.Provider) *TraceFreshness {
	return &TraceFreshness{
		provider: provider,
		mtime: func(path string) (time.Time, error) {
			info, err := os.Stat(path)
			if err != nil {
				return time.Time{}, err
			}
			return info.ModTime(), nil
		},
	}
}

func (p *TraceFreshness) Sample(ctx context.Context, rs *state.RecordSet, now time.Time) (map[string]monitor.Result, error) {
	cfg := p.provider.Get().Trace
	if cfg == nil {
		return nil, fmt.Errorf("trace_monitor section missing")
	}

	for path := range rs.MTimes {
		if _, err := os.Stat(path); err != nil {
			delete(rs.MTimes, path)
		}
	}

	files := traceFiles(cfg.TraceDir, cfg.FilenamePrefix, now)
	maxIdle := config.Seconds(cfg.MaxIdleSeconds, 10*time.Minute)

	res := monitor.Result{Healthy: true, Detail: "trace files are updating normally"}

	switch {
	case len(files) == 0:
		res = monitor.Result{
			Healthy: false,
			Detail:  "trace activity issue detected",
			Reason:  "no trace files found",
		}

	case len(files) < cfg.FileCount:
		res = monitor.Result{
			Healthy: false,
			Detail:  "trace activity issue detected",
			Reason:  fmt.Sprintf("expected %d trace files but found only %d", cfg.FileCount, len(files)),
		}

	default:
		for _, file := range files {
			mtime, err := p.mtime(file)
			if err != nil {
				res = monitor.Result{
					Healthy: false,
					Detail:  "trace activity issue detected",
					Reason:  fmt.Sprintf("trace file missing: %s", filepath.Base(file)),
				}
				break
			}
			_, seenBefore := rs.MTimes[file]
			if seenBefore && now.Sub(mtime) >= maxIdle {
				res = monitor.Result{
					Healthy: false,
					Detail:  "trace activity issue detected",
					Reason:  fmt.Sprintf("trace file not growing: %s", filepath.Base(file)),
				}
				break
			}
			rs.MTimes[file] = mtime
		}
	}

	return map[string]monitor.Result{"trace": res}, nil
}
