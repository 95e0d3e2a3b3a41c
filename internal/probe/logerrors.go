package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/vigilohq/agent/internal/config"
	"github.com/vigilohq/agent/internal/logscan"
	"github.com/vigilohq/agent/internal/metrics"
	"github.com/vigilohq/agent/internal/monitor"
	"github.com/vigilohq/agent/internal/state"
)

// LogErrors scans each instance's active log incrementally and reports an
// instance unhealthy for any cycle in which new matching error lines appear.
// Cursors are checkpointed per instance; selecting a different active file
// (rotation) restarts the scan from offset zero.
type LogErrors struct {
	provider *config.Provider
	logger   Logger
	metrics  *metrics.Store

	activeFile func(prefix string) string
}

func NewLogErrors(provider *config.Provider, logger Logger, store *metrics.Store) *LogErrors {
	return &LogErrors{
		provider:   provider,
		logger:     ensureLogger(logger),
		metrics:    store,
		activeFile: logscan.ActiveFile,
	}
}

func (p *LogErrors) Sample(ctx context.Context, rs *state.RecordSet, now time.Time) (map[string]monitor.Result, error) {
	cfg := p.provider.Get().LogErrors
	if cfg == nil {
		return nil, fmt.Errorf("log_monitor section missing")
	}

	match := cfg.MatchPatterns
	if len(match) == 0 {
		match = []string{"ERROR"}
	}
	matcher := logscan.LineMatcher{Match: match, Ignore: cfg.IgnorePatterns}

	results := make(map[string]monitor.Result, len(cfg.Instances))
	for name, inst := range cfg.Instances {
		active := p.activeFile(inst.PathPrefix)
		if active == "" {
			p.logger.Printf("no current log found for instance %s", name)
			continue
		}

		cur := logscan.Rebase(rs.Cursors[name], active)
		res, err := logscan.Scan(cur, matcher)
		if err != nil {
			// Unreadable file: keep the cursor, retry next cycle.
			p.logger.Printf("scan %s: %v", active, err)
			continue
		}
		if n := res.Cursor.Offset - cur.Offset; n > 0 && p.metrics != nil {
			p.metrics.AddScannedBytes(n)
		}
		rs.Cursors[name] = res.Cursor

		out := monitor.Result{Healthy: res.Count == 0}
		if res.Count > 0 {
			out.Detail = fmt.Sprintf("%d new error lines", res.Count)
			out.Reason = "new errors detected in log"
			out.Samples = res.Samples
		}
		results[name] = out
	}
	return results, nil
}
