package probe

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Logger is the subset of log.Logger the probes need.
type Logger interface {
	Printf(format string, v ...any)
}

func ensureLogger(l Logger) Logger {
	if l != nil {
		return l
	}
	return log.New(io.Discard, "", 0)
}

// traceFiles lists "<prefix>*-Trace-<today>.log" files in dir.
func traceFiles(dir, prefix string, now time.Time) []string {
	pattern := filepath.Join(dir, prefix+"*-Trace-"+now.Format("2006-01-02")+".log")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	sort.Strings(files)
	return files
}

// newestByMTime returns paths matching the glob, newest first.
func newestByMTime(pattern string) []string {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	type entry struct {
		path  string
		mtime time.Time
	}
	entries := make([]entry, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		entries = append(entries, entry{path: f, mtime: info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].mtime.After(entries[j].mtime)
	})
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out
}
