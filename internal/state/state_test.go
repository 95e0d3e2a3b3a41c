package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vigilohq/agent/internal/logscan"
	"github.com/vigilohq/agent/pkg/types"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	store := NewStore(t.TempDir())

	rs := store.Load("cpu")
	if rs == nil {
		t.Fatal("expected a record set")
	}
	if len(rs.Entities) != 0 {
		t.Fatalf("expected empty entities, got %d", len(rs.Entities))
	}
	rec := rs.Entity("cpu")
	if rec.Status != types.StatusOK || rec.LastAlertTime != nil {
		t.Fatalf("expected OK default record, got %+v", rec)
	}
}

func TestLoadCorruptFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if err := os.WriteFile(filepath.Join(dir, "cpu.yaml"), []byte("{not yaml: ["), 0o600); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	rs := store.Load("cpu")
	if rs.Entity("cpu").Status != types.StatusOK {
		t.Fatalf("expected OK default after corrupt state, got %+v", rs.Entity("cpu"))
	}
	if rs.Cursors == nil || rs.Windows == nil || rs.MTimes == nil {
		t.Fatal("expected initialised sub-record maps")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	alertAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rs := NewRecordSet()
	rs.Entities["/var"] = types.EntityRecord{Status: types.StatusFail, LastAlertTime: &alertAt}
	rs.Entities["/opt"] = types.EntityRecord{Status: types.StatusOK}
	rs.Cursors["app.log::errors"] = logscan.Cursor{File: "/var/log/app.log", Offset: 4096}
	rs.Windows["submit"] = Window{Baseline: 120, Delta: 5, WindowStart: alertAt}
	rs.MTimes["/var/log/trace1.log"] = alertAt

	if err := store.Save("storage", rs); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got := store.Load("storage")
	rec := got.Entity("/var")
	if rec.Status != types.StatusFail {
		t.Fatalf("expected FAIL for /var, got %s", rec.Status)
	}
	if rec.LastAlertTime == nil || !rec.LastAlertTime.Equal(alertAt) {
		t.Fatalf("expected last alert %v, got %v", alertAt, rec.LastAlertTime)
	}
	if got.Entity("/opt").Status != types.StatusOK {
		t.Fatalf("expected OK for /opt, got %s", got.Entity("/opt").Status)
	}
	if cur := got.Cursors["app.log::errors"]; cur.Offset != 4096 || cur.File != "/var/log/app.log" {
		t.Fatalf("unexpected cursor %+v", cur)
	}
	if w := got.Windows["submit"]; w.Baseline != 120 || w.Delta != 5 || !w.WindowStart.Equal(alertAt) {
		t.Fatalf("unexpected window %+v", w)
	}
	if mt := got.MTimes["/var/log/trace1.log"]; !mt.Equal(alertAt) {
		t.Fatalf("unexpected mtime %v", mt)
	}
}

func TestSaveCreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	store := NewStore(dir)

	if err := store.Save("ping", NewRecordSet()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ping.yaml")); err != nil {
		t.Fatalf("expected state file: %v", err)
	}
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if err := store.Save("cpu", NewRecordSet()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read state dir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestSaveOverwritesPrevious(t *testing.T) {
	store := NewStore(t.TempDir())

	rs := NewRecordSet()
	rs.Entities["cpu"] = types.EntityRecord{Status: types.StatusFail}
	if err := store.Save("cpu", rs); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	rs.Entities["cpu"] = types.EntityRecord{Status: types.StatusOK}
	if err := store.Save("cpu", rs); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	if got := store.Load("cpu").Entity("cpu"); got.Status != types.StatusOK {
		t.Fatalf("expected OK after overwrite, got %s", got.Status)
	}
}

func TestStoresAreIsolatedByKey(t *testing.T) {
	store := NewStore(t.TempDir())

	rs := NewRecordSet()
	rs.Entities["cpu"] = types.EntityRecord{Status: types.StatusFail}
	if err := store.Save("cpu", rs); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if got := store.Load("storage").Entity("cpu"); got.Status != types.StatusOK {
		t.Fatalf("expected separate state per key, got %s", got.Status)
	}
}
