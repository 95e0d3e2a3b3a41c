// Package window aggregates incremental log scan counts into fixed-size time
// windows and decides whether pattern activity has stalled.
package window

import (
	"context"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vigilohq/agent/internal/logscan"
	"github.com/vigilohq/agent/internal/state"
)

// Status is the outcome of one evaluation for one pattern label.
type Status int

const (
	// Pending means the window has not yet closed; counts were accumulated
	// but no activity decision can be made this cycle.
	Pending Status = iota
	// Active means at least one new match arrived within the closed window.
	Active
	// Stalled means the closed window saw zero new matches across all files.
	Stalled
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Stalled:
		return "stalled"
	default:
		return "pending"
	}
}

// Pattern is one tracked log pattern with its own window length.
type Pattern struct {
	Label    string
	Matcher  logscan.Matcher
	Interval time.Duration
}

// Decision reports the status of one label at window close, with the running
// totals before and after the window for alert bodies.
type Decision struct {
	Status   Status
	Previous int
	Current  int
}

// Aggregator scatters per-pattern scans across a bounded worker pool and
// merges the results single-threaded into the shared cursor and window maps.
type Aggregator struct {
	parallelism int
	now         func() time.Time
}

type Option func(*Aggregator)

// WithParallelism caps the scan worker pool.
func WithParallelism(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.parallelism = n
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		parallelism: runtime.GOMAXPROCS(0),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// fileCount is one worker's result for a single file: new matches since the
// cursor snapshot plus the advanced cursor.
type fileCount struct {
	file   string
	count  int
	cursor logscan.Cursor
}

func cursorKey(file, label string) string {
	return file + "::" + label
}

// Evaluate scans every (pattern, file) pair and folds new match counts into
// each pattern's window, returning a decision per label. Workers read a
// cursor snapshot and never touch shared state; all mutation of rs happens
// after every worker has returned.
func (a *Aggregator) Evaluate(ctx context.Context, patterns []Pattern, files []string, rs *state.RecordSet) map[string]Decision {
	results := make([][]fileCount, len(patterns))

	grp, ctx := errgroup.WithContext(ctx)
	limit := a.parallelism
	if len(patterns) < limit {
		limit = len(patterns)
	}
	if limit < 1 {
		limit = 1
	}
	grp.SetLimit(limit)

	for i, p := range patterns {
		i, p := i, p
		// Snapshot cursors before scattering so workers stay pure.
		cursors := make([]logscan.Cursor, len(files))
		for j, file := range files {
			cur, ok := rs.Cursors[cursorKey(file, p.Label)]
			if !ok || cur.File != file {
				cur = logscan.Cursor{File: file}
			}
			cursors[j] = cur
		}

		grp.Go(func() error {
			counts := make([]fileCount, 0, len(cursors))
			for _, cur := range cursors {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				res, err := logscan.Scan(cur, p.Matcher)
				if err != nil {
					// Unreadable file: no matches, cursor kept so the
					// next cycle retries from the same point.
					continue
				}
				counts = append(counts, fileCount{file: cur.File, count: res.Count, cursor: res.Cursor})
			}
			results[i] = counts
			return nil
		})
	}
	// Workers only fail on context cancellation; a partial merge is still
	// safe because untouched slots carry no counts.
	_ = grp.Wait()

	now := a.now()
	decisions := make(map[string]Decision, len(patterns))

	for i, p := range patterns {
		total := 0
		for _, fc := range results[i] {
			rs.Cursors[cursorKey(fc.file, p.Label)] = fc.cursor
			total += fc.count
		}

		w, ok := rs.Windows[p.Label]
		if !ok {
			// First evaluation establishes the baseline; no decision yet.
			rs.Windows[p.Label] = state.Window{Baseline: total, WindowStart: now}
			decisions[p.Label] = Decision{Status: Pending}
			continue
		}

		w.Delta += total
		if now.Sub(w.WindowStart) < p.Interval {
			rs.Windows[p.Label] = w
			decisions[p.Label] = Decision{Status: Pending}
			continue
		}

		status := Active
		if w.Delta == 0 {
			status = Stalled
		}
		decisions[p.Label] = Decision{
			Status:   status,
			Previous: w.Baseline,
			Current:  w.Baseline + w.Delta,
		}

		rs.Windows[p.Label] = state.Window{
			Baseline:    w.Baseline + w.Delta,
			WindowStart: now,
		}
	}

	prune(rs, patterns, files)
	return decisions
}

// prune drops cursor sub-keys whose file vanished from the evaluated set
// (yesterday's day-stamped logs) and window entries for labels no longer
// configured, keeping the persisted record bounded.
func prune(rs *state.RecordSet, patterns []Pattern, files []string) {
	labels := make(map[string]struct{}, len(patterns))
	for _, p := range patterns {
		labels[p.Label] = struct{}{}
	}
	current := make(map[string]struct{}, len(files))
	for _, f := range files {
		current[f] = struct{}{}
	}

	for key := range rs.Cursors {
		i := strings.LastIndex(key, "::")
		if i < 0 {
			continue
		}
		file, label := key[:i], key[i+2:]
		if _, ok := labels[label]; !ok {
			delete(rs.Cursors, key)
			continue
		}
		if _, ok := current[file]; !ok {
			delete(rs.Cursors, key)
		}
	}

	for label := range rs.Windows {
		if _, ok := labels[label]; !ok {
			delete(rs.Windows, label)
		}
	}
}
