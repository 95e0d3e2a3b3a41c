package probe

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/vigilohq/agent/internal/config"
	"github.com/vigilohq/agent/internal/logscan"
	"github.com/vigilohq/agent/internal/monitor"
	"github.com/vigilohq/agent/internal/state"
	"github.com/vigilohq/agent/internal/window"
)

// Rate feeds today's trace files through the windowed aggregator and reports
// each pattern label stalled or active at window close. Labels whose window
// has not closed yet are omitted from the results, so the engine makes no
// debounce decision for them this cycle.
type Rate struct {
	provider   *config.Provider
	aggregator *window.Aggregator
	logger     Logger

	compiled map[string]*regexp.Regexp
}

func NewRate(provider *config.Provider, aggregator *window.Aggregator, logger Logger) *Rate {
	if aggregator == nil {
		aggregator = window.New()
	}
	return &Rate{
		provider:   provider,
		aggregator: aggregator,
		logger:     ensureLogger(logger),
		compiled:   make(map[string]*regexp.Regexp),
	}
}

func (p *Rate) pattern(expr string) (*regexp.Regexp, error) {
	if re, ok := p.compiled[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	p.compiled[expr] = re
	return re, nil
}

func (p *Rate) Sample(ctx context.Context, rs *state.RecordSet, now time.Time) (map[string]monitor.Result, error) {
	cfg := p.provider.Get().Rate
	if cfg == nil {
		return nil, fmt.Errorf("rate_monitor section missing")
	}

	patterns := make([]window.Pattern, 0, len(cfg.Patterns))
	for _, pc := range cfg.Patterns {
		re, err := p.pattern(pc.Regexp)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pc.Label, err)
		}
		patterns = append(patterns, window.Pattern{
			Label:    pc.Label,
			Matcher:  logscan.RegexpMatcher{Re: re},
			Interval: config.Seconds(pc.WindowSeconds, time.Minute),
		})
	}

	files := traceFiles(cfg.LogDir, cfg.FilenamePrefix, now)
	decisions := p.aggregator.Evaluate(ctx, patterns, files, rs)

	results := make(map[string]monitor.Result, len(decisions))
	for label, d := range decisions {
		switch d.Status {
		case window.Pending:
			continue
		case window.Stalled:
			results[label] = monitor.Result{
				Healthy:  false,
				Detail:   "pattern activity stopped across all trace files",
				Reason:   fmt.Sprintf("no new %q matches in the last window", label),
				Previous: d.Previous,
				Current:  d.Current,
			}
		default:
			results[label] = monitor.Result{
				Healthy:  true,
				Detail:   "pattern activity resumed",
				Previous: d.Previous,
				Current:  d.Current,
			}
		}
	}
	return results, nil
}
