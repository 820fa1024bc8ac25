package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/log"
	"github.com/rubiojr/scout/pkg/schema"
)

var logger = log.ForService("storage")

// ErrNoDatabase is returned while no database has been activated.
var ErrNoDatabase = &core.Error{Kind: core.KindNotFound, Op: "storage", Msg: "no database loaded"}

type State int

const (
	StateUnloaded State = iota
	StateLoaded
)

func (s State) String() string {
	if s == StateLoaded {
		return "loaded"
	}
	return "unloaded"
}

// Snapshot pairs an open database with the catalog built from it. A
// snapshot never changes; switching installs a new one and retires the old
// one once every holder released it.
type Snapshot struct {
	DB       *Database
	Catalog  *schema.Catalog
	LoadedAt time.Time

	inflight sync.WaitGroup
	ownsDB   bool
}

// Path returns the database file of the snapshot.
func (s *Snapshot) Path() string {
	return s.DB.Path()
}

// Release must be called once for every successful Manager.Acquire.
func (s *Snapshot) Release() {
	s.inflight.Done()
}

func (s *Snapshot) retire() {
	s.inflight.Wait()
	if !s.ownsDB {
		return
	}
	if err := s.DB.Close(); err != nil {
		logger.Warnf("failed to close retired database %s: %v", s.DB.Path(), err)
		return
	}
	logger.Debugf("closed retired database %s", s.DB.Path())
}

// Status describes the active database.
type Status struct {
	State    State
	Path     string
	LoadedAt time.Time
}

// Manager owns the active database and swaps it atomically.
type Manager struct {
	opts schema.Options

	// switchMu serializes switches so catalogs are built outside mu.
	switchMu sync.Mutex

	mu      sync.RWMutex
	current *Snapshot
	hooks   []func(*Snapshot)
}

func NewManager(opts schema.Options) *Manager {
	return &Manager{opts: opts}
}

// OnSwitch registers fn to run after every successful activation.
func (m *Manager) OnSwitch(fn func(*Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Switch activates the database at path and reports the status it
// installed. On failure the previous state stays in effect untouched.
func (m *Manager) Switch(ctx context.Context, path string) (Status, error) {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	start := time.Now()
	db, err := Open(ctx, path)
	if err != nil {
		return Status{}, err
	}

	cat, err := schema.Build(ctx, db.DB(), m.opts)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			logger.Warnf("failed to close database after catalog error: %v", cerr)
		}
		return Status{}, core.Internal("switch", fmt.Errorf("building catalog for %s: %w", path, err))
	}

	snap := &Snapshot{DB: db, Catalog: cat, LoadedAt: time.Now(), ownsDB: true}
	old := m.install(snap)
	if old != nil {
		go old.retire()
	}

	logger.Infof("switched to %s (%d tables, %s)", db.Path(), len(cat.Tables()), time.Since(start).Round(time.Millisecond))
	m.notify(snap)
	return Status{State: StateLoaded, Path: db.Path(), LoadedAt: snap.LoadedAt}, nil
}

// Refresh rebuilds the catalog of the active database, picking up tables
// created since it was activated.
func (m *Manager) Refresh(ctx context.Context) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()
	if cur == nil {
		return ErrNoDatabase
	}

	cat, err := schema.Build(ctx, cur.DB.DB(), m.opts)
	if err != nil {
		return core.Internal("refresh", err)
	}

	// The handle moves to the new snapshot; the old one must not close it.
	snap := &Snapshot{DB: cur.DB, Catalog: cat, LoadedAt: cur.LoadedAt, ownsDB: true}
	cur.ownsDB = false
	old := m.install(snap)
	go old.retire()
	return nil
}

func (m *Manager) install(snap *Snapshot) *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.current
	m.current = snap
	return old
}

func (m *Manager) notify(snap *Snapshot) {
	m.mu.RLock()
	hooks := make([]func(*Snapshot), len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn(snap)
	}
}

// Acquire returns the active snapshot. Callers must Release it.
func (m *Manager) Acquire() (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, ErrNoDatabase
	}
	m.current.inflight.Add(1)
	return m.current, nil
}

// Current reports the state of the manager.
func (m *Manager) Current() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Status{State: StateUnloaded}
	}
	return Status{State: StateLoaded, Path: m.current.DB.Path(), LoadedAt: m.current.LoadedAt}
}

// Close waits for in-flight users of the active snapshot and closes it.
func (m *Manager) Close() error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	old := m.install(nil)
	if old == nil {
		return nil
	}
	old.inflight.Wait()
	if err := old.DB.Close(); err != nil {
		return fmt.Errorf("closing database %s: %w", old.DB.Path(), err)
	}
	return nil
}
