// Package state persists per-monitor records between process restarts.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vigilohq/agent/internal/logscan"
	"github.com/vigilohq/agent/pkg/types"
)

// RecordSet is the durable state of one monitor instance: debouncer records
// per tracked entity plus the cursor/window/mtime sub-records the log-based
// monitors maintain.
type RecordSet struct {
	Entities map[string]types.EntityRecord `yaml:"entities"`
	Cursors  map[string]logscan.Cursor     `yaml:"cursors,omitempty"`
	Windows  map[string]Window             `yaml:"windows,omitempty"`
	MTimes   map[string]time.Time          `yaml:"file_mtimes,omitempty"`
}

// Window is one pattern's accumulation window. Delta counts only matches
// observed since the previous evaluation; rollover folds it into Baseline.
type Window struct {
	Baseline    int       `yaml:"baseline"`
	Delta       int       `yaml:"delta"`
	WindowStart time.Time `yaml:"window_start"`
}

// NewRecordSet returns an empty, fully initialised record set.
func NewRecordSet() *RecordSet {
	return &RecordSet{
		Entities: make(map[string]types.EntityRecord),
		Cursors:  make(map[string]logscan.Cursor),
		Windows:  make(map[string]Window),
		MTimes:   make(map[string]time.Time),
	}
}

// Entity returns the record for name, falling back to the first-run default.
func (rs *RecordSet) Entity(name string) types.EntityRecord {
	if rec, ok := rs.Entities[name]; ok {
		return rec
	}
	return types.DefaultRecord()
}

func (rs *RecordSet) init() {
	if rs.Entities == nil {
		rs.Entities = make(map[string]types.EntityRecord)
	}
	if rs.Cursors == nil {
		rs.Cursors = make(map[string]logscan.Cursor)
	}
	if rs.Windows == nil {
		rs.Windows = make(map[string]Window)
	}
	if rs.MTimes == nil {
		rs.MTimes = make(map[string]time.Time)
	}
}

// Store reads and writes record sets under a base directory, one file per
// monitor instance.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".yaml")
}

// Load returns the record set for key. An absent, empty, or unparsable file
// yields a default record set rather than an error: corrupt state is
// discarded and monitoring restarts from the OK baseline.
func (s *Store) Load(key string) *RecordSet {
	rs := NewRecordSet()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return rs
	}
	if err := yaml.Unmarshal(data, rs); err != nil {
		return NewRecordSet()
	}
	rs.init()
	return rs
}

// Save persists the record set for key, creating the state directory if
// missing. The record is written to a temporary file and renamed into place so
// a crash mid-write never leaves a half-written record readable.
func (s *Store) Save(key string, rs *RecordSet) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("ensure state dir %q: %w", s.dir, err)
	}

	data, err := yaml.Marshal(rs)
	if err != nil {
		return fmt.Errorf("marshal state %q: %w", key, err)
	}

	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp state file %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit state file %q: %w", path, err)
	}
	return nil
}
