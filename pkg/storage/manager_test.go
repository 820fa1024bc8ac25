package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/schema"
	"github.com/rubiojr/scout/pkg/testutil"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(schema.Options{})
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Logf("Warning: failed to close manager: %v", err)
		}
	})
	return m
}

func TestManagerUnloaded(t *testing.T) {
	m := newTestManager(t)

	if st := m.Current(); st.State != StateUnloaded || st.Path != "" {
		t.Fatalf("expected unloaded state, got %+v", st)
	}
	if _, err := m.Acquire(); !errors.Is(err, ErrNoDatabase) {
		t.Fatalf("expected ErrNoDatabase, got %v", err)
	}
	if err := m.Refresh(context.Background()); !errors.Is(err, ErrNoDatabase) {
		t.Fatalf("expected ErrNoDatabase from Refresh, got %v", err)
	}
}

func TestManagerSwitch(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	path := testutil.ReportsDB(t)

	installed, err := m.Switch(ctx, path)
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if installed.State != StateLoaded || installed.Path != path || installed.LoadedAt.IsZero() {
		t.Fatalf("unexpected installed status %+v", installed)
	}
	st := m.Current()
	if st != installed {
		t.Fatalf("Current %+v differs from the installed status %+v", st, installed)
	}

	snap, err := m.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer snap.Release()

	if _, err := snap.Catalog.Describe("reports"); err != nil {
		t.Errorf("Describe after switch: %v", err)
	}
	var n int
	if err := snap.DB.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM reports").Scan(&n); err != nil || n != 5 {
		t.Errorf("expected 5 reports, got %d (%v)", n, err)
	}
}

func TestManagerFailedSwitchKeepsPrevious(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	path := testutil.ReportsDB(t)
	if _, err := m.Switch(ctx, path); err != nil {
		t.Fatalf("Switch: %v", err)
	}

	notDB := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(notDB, []byte("this is plainly not a sqlite database, just some text"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		kind core.Kind
	}{
		{"missing file", filepath.Join(t.TempDir(), "missing.db"), core.KindNotFound},
		{"directory", t.TempDir(), core.KindInvalidQuery},
		{"not sqlite", notDB, core.KindInvalidQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Switch(ctx, tt.path)
			if err == nil {
				t.Fatalf("expected switch to %s to fail", tt.path)
			}
			if k := core.KindOf(err); k != tt.kind {
				t.Errorf("expected kind %s, got %s (%v)", tt.kind, k, err)
			}
			if st := m.Current(); st.Path != path {
				t.Errorf("active database changed to %s", st.Path)
			}
			snap, err := m.Acquire()
			if err != nil {
				t.Fatalf("Acquire after failed switch: %v", err)
			}
			defer snap.Release()
			var n int
			if err := snap.DB.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM reports").Scan(&n); err != nil {
				t.Errorf("previous database no longer queryable: %v", err)
			}
		})
	}
}

func TestManagerFailedSwitchFromUnloaded(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Switch(context.Background(), filepath.Join(t.TempDir(), "nope.db")); err == nil {
		t.Fatal("expected error")
	}
	if st := m.Current(); st.State != StateUnloaded {
		t.Errorf("expected to stay unloaded, got %+v", st)
	}
}

func TestManagerInflightSnapshotSurvivesSwitch(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	first := testutil.ReportsDB(t)
	second := testutil.NewDB(t, "other.db", `CREATE TABLE things (name TEXT)`, `INSERT INTO things VALUES ('a')`)

	if _, err := m.Switch(ctx, first); err != nil {
		t.Fatal(err)
	}
	held, err := m.Acquire()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Switch(ctx, second); err != nil {
		t.Fatalf("second switch: %v", err)
	}

	// The retired handle stays open until released.
	time.Sleep(20 * time.Millisecond)
	var n int
	if err := held.DB.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM reports").Scan(&n); err != nil || n != 5 {
		t.Errorf("held snapshot disturbed by switch: n=%d err=%v", n, err)
	}
	if _, err := held.Catalog.Describe("reports"); err != nil {
		t.Errorf("held catalog changed: %v", err)
	}
	held.Release()

	cur, err := m.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer cur.Release()
	if _, err := cur.Catalog.Describe("things"); err != nil {
		t.Errorf("new catalog missing table: %v", err)
	}
	if _, err := cur.Catalog.Describe("reports"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("old table still visible after switch: %v", err)
	}
}

func TestManagerOnSwitchHooks(t *testing.T) {
	m := newTestManager(t)
	var calls atomic.Int32
	var lastPath atomic.Value
	m.OnSwitch(func(s *Snapshot) {
		calls.Add(1)
		lastPath.Store(s.Path())
	})

	path := testutil.ReportsDB(t)
	if _, err := m.Switch(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	_, _ = m.Switch(context.Background(), filepath.Join(t.TempDir(), "missing.db"))

	if calls.Load() != 1 {
		t.Errorf("expected one hook call, got %d", calls.Load())
	}
	if lastPath.Load() != path {
		t.Errorf("hook saw %v", lastPath.Load())
	}
}

func TestManagerRefresh(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.Switch(ctx, testutil.EmptyDB(t)); err != nil {
		t.Fatal(err)
	}

	snap, err := m.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := snap.DB.DB().ExecContext(ctx, `CREATE TABLE late (v TEXT)`); err != nil {
		t.Fatal(err)
	}
	snap.Release()

	if err := m.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	snap, err = m.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer snap.Release()
	if _, err := snap.Catalog.Describe("late"); err != nil {
		t.Errorf("refreshed catalog missing table: %v", err)
	}

	// The handle is shared with the retired snapshot and must stay open.
	time.Sleep(20 * time.Millisecond)
	if err := snap.DB.DB().PingContext(ctx); err != nil {
		t.Errorf("handle closed by refresh: %v", err)
	}
}
