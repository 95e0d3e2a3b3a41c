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

const defaultGrowthWait = 2 * time.Minute

// FileGrowth watches a record-output directory and flags stalled generation:
// no files at all, the two newest files both empty, or a single empty newest
// file that fails to grow across a fixed, bounded wait.
type FileGrowth struct {
	provider *config.Provider

	size  func(path string) (int64, bool)
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewFileGrowth(provider *config.Provider) *FileGrowth {
	return &FileGrowth{
		provider: provider,
		size: func(path string) (int64, bool) {
			info, err := os.Stat(path)
			if err != nil {
				return 0, false
			}
			return info.Size(), true
		},
		sleep: func(ctx context.Context, d time.Duration) bool {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(d):
				return true
			}
		},
	}
}

func (p *FileGrowth) Sample(ctx context.Context, rs *state.RecordSet, now time.Time) (map[string]monitor.Result, error) {
	cfg := p.provider.Get().CDR
	if cfg == nil {
		return nil, fmt.Errorf("cdr_monitor section missing")
	}

	glob := cfg.Glob
	if glob == "" {
		glob = "*.csv"
	}
	files := newestByMTime(filepath.Join(cfg.WatchDir, glob))

	res := monitor.Result{Healthy: true, Detail: "record files are being generated"}

	switch {
	case len(files) == 0:
		res = monitor.Result{
			Healthy: false,
			Detail:  "record file generation stalled",
			Reason:  "no record files found",
		}

	case len(files) >= 2:
		size0, ok0 := p.size(files[0])
		size1, ok1 := p.size(files[1])
		if ok0 && ok1 && size0 == 0 && size1 == 0 {
			res = monitor.Result{
				Healthy: false,
				Detail:  "record file generation stalled",
				Reason:  "both latest record files are 0 bytes",
			}
		}

	default:
		// A single empty file may simply be freshly rotated; watch it for a
		// bounded interval and fail only if it does not grow.
		before, ok := p.size(files[0])
		if ok && before == 0 {
			if !p.sleep(ctx, config.Seconds(cfg.GrowthWaitSeconds, defaultGrowthWait)) {
				return nil, ctx.Err()
			}
			after, ok := p.size(files[0])
			if ok && after == before {
				res = monitor.Result{
					Healthy: false,
					Detail:  "record file generation stalled",
					Reason:  fmt.Sprintf("%s not growing", filepath.Base(files[0])),
				}
			}
		}
	}

	return map[string]monitor.Result{"records": res}, nil
}
