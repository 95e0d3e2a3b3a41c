// Package logscan reads newly appended log content from a byte-offset
// checkpoint and counts pattern matches in that content only.
package logscan

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Cursor checkpoints how far into a file previous scans have read.
type Cursor struct {
	File   string `yaml:"file"`
	Offset int64  `yaml:"offset"`
}

// Matcher decides which lines (or how many occurrences) count as matches in a
// slice of new log content.
type Matcher interface {
	// Count returns the number of matches in data and up to max sample lines.
	Count(data []byte, max int) (int, []string)
}

// LineMatcher counts lines containing any of Match and none of Ignore.
// An empty Match list matches nothing.
type LineMatcher struct {
	Match  []string
	Ignore []string
}

func (m LineMatcher) Count(data []byte, max int) (int, []string) {
	count := 0
	var samples []string
	for len(data) > 0 {
		line := data
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line = data[:i]
			data = data[i+1:]
		} else {
			data = nil
		}
		s := string(line)
		if !containsAny(s, m.Match) || containsAny(s, m.Ignore) {
			continue
		}
		count++
		samples = append(samples, s)
		if len(samples) > max {
			samples = samples[1:]
		}
	}
	return count, samples
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// RegexpMatcher counts non-overlapping occurrences of a compiled expression.
type RegexpMatcher struct {
	Re *regexp.Regexp
}

func (m RegexpMatcher) Count(data []byte, max int) (int, []string) {
	found := m.Re.FindAll(data, -1)
	var samples []string
	for _, f := range found {
		samples = append(samples, string(f))
		if len(samples) > max {
			samples = samples[1:]
		}
	}
	return len(found), samples
}

// Result carries the outcome of one incremental scan.
type Result struct {
	Count   int
	Samples []string
	Cursor  Cursor
}

const sampleLines = 5

// Scan reads the file from cur.Offset to its current end and counts matches in
// that slice. An offset beyond the current size means the file was truncated
// or replaced, so the scan restarts from zero. An unreadable file yields zero
// matches and an unchanged cursor so the next cycle retries from the same
// point. Bytes before cur.Offset are never re-read. A trailing partial line
// (the writer caught mid-append) is neither counted nor checkpointed; the
// cursor stops at the last newline so the completed line is read whole next
// cycle.
func Scan(cur Cursor, m Matcher) (Result, error) {
	f, err := os.Open(cur.File)
	if err != nil {
		return Result{Cursor: cur}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Result{Cursor: cur}, err
	}

	offset := cur.Offset
	if offset > info.Size() {
		offset = 0
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return Result{Cursor: cur}, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return Result{Cursor: cur}, err
	}

	if len(data) > 0 && data[len(data)-1] != '\n' {
		if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
			data = data[:i+1]
		} else {
			data = nil
		}
	}

	count, samples := m.Count(data, sampleLines)
	return Result{
		Count:   count,
		Samples: samples,
		Cursor:  Cursor{File: cur.File, Offset: offset + int64(len(data))},
	}, nil
}

// ActiveFile selects the most recently modified "<prefix>*.log" in the
// directory of prefix. It returns an empty string when nothing matches.
func ActiveFile(prefix string) string {
	dir := filepath.Dir(prefix)
	base := filepath.Base(prefix)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var newest string
	var newestInfo fs.FileInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, base) || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newestInfo == nil || info.ModTime().After(newestInfo.ModTime()) {
			newest = filepath.Join(dir, name)
			newestInfo = info
		}
	}
	return newest
}

// Rebase points the cursor at path, resetting the offset when the active file
// changed so content of the newly selected file is scanned from the start.
func Rebase(cur Cursor, path string) Cursor {
	if cur.File != path {
		return Cursor{File: path}
	}
	return cur
}

// IsNotExist reports whether err means the scanned file is currently absent.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
