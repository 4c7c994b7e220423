// Package session keeps script sessions: each is one [script.Manager] open
// for editing, optionally autosaved to a [store.Store] after every change.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/podscript/internal/config"
	"github.com/MrWong99/podscript/internal/observe"
	"github.com/MrWong99/podscript/internal/scriptfile"
	"github.com/MrWong99/podscript/internal/store"
	"github.com/MrWong99/podscript/pkg/script"
)

// ErrNotFound is returned when no open session has the requested id.
var ErrNotFound = errors.New("session: not found")

// ErrNoStore is returned by operations that need a snapshot store when the
// Manager was built without one.
var ErrNoStore = errors.New("session: no snapshot store configured")

// restoreConcurrency bounds parallel snapshot loads during Restore.
const restoreConcurrency = 8

// Manager owns every open script session.
// All exported methods are safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	defaults scriptfile.Defaults
	autosave atomic.Bool

	store   store.Store
	metrics *observe.Metrics
	log     *slog.Logger
}

// Config holds all dependencies for a [Manager].
type Config struct {
	// Store persists snapshots. Nil disables Save, Restore and autosave.
	Store store.Store

	// Metrics receives script and session metrics. Nil uses
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Script holds the editor defaults and the autosave switch.
	Script config.ScriptConfig

	Logger *slog.Logger
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg Config) *Manager {
	sm := &Manager{
		sessions: make(map[string]*Session),
		store:    cfg.Store,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
	}
	if sm.metrics == nil {
		sm.metrics = observe.DefaultMetrics()
	}
	if sm.log == nil {
		sm.log = slog.Default()
	}
	sm.ApplyScriptConfig(cfg.Script)
	return sm
}

// ApplyScriptConfig updates the editor defaults and the autosave switch.
// Open sessions pick up the change immediately.
func (sm *Manager) ApplyScriptConfig(c config.ScriptConfig) {
	d := scriptfile.DefaultDefaults()
	if c.DefaultWordsPerMinute > 0 {
		d.WordsPerMinute = c.DefaultWordsPerMinute
	}
	if c.DefaultSoundDuration > 0 {
		d.SoundDuration = c.DefaultSoundDuration
	}
	sm.mu.Lock()
	sm.defaults = d
	sm.mu.Unlock()
	sm.autosave.Store(c.Autosave)
}

// Defaults returns the current rate and duration for new roles.
func (sm *Manager) Defaults() scriptfile.Defaults {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.defaults
}

// Store returns the snapshot store, or nil if none is configured.
func (sm *Manager) Store() store.Store { return sm.store }

// Autosave reports whether sessions are written to the store after changes.
func (sm *Manager) Autosave() bool { return sm.autosave.Load() }

// Create opens a new empty session.
func (sm *Manager) Create(_ context.Context, title string) *Session {
	s := sm.newSession(uuid.NewString(), title)
	s.startAutosave(sm.store, &sm.autosave)
	sm.add(s)
	sm.log.Info("session created", "session", s.id, "title", title)
	return s
}

// Open returns the session with id, loading its snapshot from the store if
// it is not open yet.
func (sm *Manager) Open(ctx context.Context, id string) (*Session, error) {
	if s, err := sm.Get(id); err == nil {
		return s, nil
	}
	if sm.store == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	snap, err := sm.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("session: open session %q: %w", id, err)
	}
	return sm.openSnapshot(id, snap)
}

// OpenSnapshot opens snap as a new session with a fresh id.
func (sm *Manager) OpenSnapshot(_ context.Context, snap *script.Snapshot) (*Session, error) {
	return sm.openSnapshot(uuid.NewString(), snap)
}

func (sm *Manager) openSnapshot(id string, snap *script.Snapshot) (*Session, error) {
	s := sm.newSession(id, snap.Title)
	if err := s.Import(snap); err != nil {
		_ = s.close(context.Background())
		return nil, fmt.Errorf("session: open session %q: %w", id, err)
	}
	s.startAutosave(sm.store, &sm.autosave)

	sm.mu.Lock()
	if existing, ok := sm.sessions[id]; ok {
		sm.mu.Unlock()
		_ = s.close(context.Background())
		return existing, nil
	}
	sm.sessions[id] = s
	sm.mu.Unlock()
	sm.metrics.ActiveSessions.Add(context.Background(), 1)

	sm.log.Info("session opened", "session", id, "title", s.Title(),
		"roles", s.script.RoleCount(), "replicas", s.script.ReplicaCount())
	return s, nil
}

// Get returns the open session with id.
func (sm *Manager) Get(id string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return s, nil
}

// List returns metadata for every open session, oldest first.
func (sm *Manager) List() []Info {
	sm.mu.RLock()
	out := make([]Info, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s.Info())
	}
	sm.mu.RUnlock()
	slices.SortFunc(out, func(a, b Info) int {
		if c := a.OpenedAt.Compare(b.OpenedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Len returns the number of open sessions.
func (sm *Manager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Save writes the session's snapshot to the store.
func (sm *Manager) Save(ctx context.Context, id string) error {
	s, err := sm.Get(id)
	if err != nil {
		return err
	}
	if sm.store == nil {
		return ErrNoStore
	}
	if err := sm.store.Save(ctx, id, s.Snapshot()); err != nil {
		return fmt.Errorf("session: save session %q: %w", id, err)
	}
	return nil
}

// Close removes the session, flushing a pending autosave first.
func (sm *Manager) Close(ctx context.Context, id string) error {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	sm.metrics.ActiveSessions.Add(ctx, -1)
	err := s.close(ctx)
	sm.log.Info("session closed", "session", id)
	return err
}

// Delete closes the session if it is open and removes its stored snapshot.
// It returns [ErrNotFound] only if neither existed.
func (sm *Manager) Delete(ctx context.Context, id string) error {
	closeErr := sm.Close(ctx, id)
	wasOpen := !errors.Is(closeErr, ErrNotFound)
	if sm.store == nil {
		if !wasOpen {
			return closeErr
		}
		return nil
	}
	err := sm.store.Delete(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if !wasOpen {
			return fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil
	case err != nil:
		return fmt.Errorf("session: delete session %q: %w", id, err)
	}
	return nil
}

// CloseAll closes every session. Errors are joined.
func (sm *Manager) CloseAll(ctx context.Context) error {
	sm.mu.RLock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := sm.Close(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Seed opens each script file as a new session. Files are parsed in
// parallel; any failure aborts the whole seed.
func (sm *Manager) Seed(ctx context.Context, paths []string) ([]*Session, error) {
	d := sm.Defaults()
	snaps := make([]*script.Snapshot, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			snap, err := scriptfile.LoadSnapshot(p, d)
			if err != nil {
				return err
			}
			snaps[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("session: seed: %w", err)
	}

	out := make([]*Session, 0, len(snaps))
	for i, snap := range snaps {
		s, err := sm.OpenSnapshot(ctx, snap)
		if err != nil {
			return out, fmt.Errorf("session: seed %q: %w", paths[i], err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Restore opens every snapshot in the store as a session. Snapshots that
// fail to load are logged and skipped; Restore returns the number opened.
func (sm *Manager) Restore(ctx context.Context) (int, error) {
	if sm.store == nil {
		return 0, nil
	}
	entries, err := sm.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("session: restore: %w", err)
	}

	var opened atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(restoreConcurrency)
	for _, e := range entries {
		g.Go(func() error {
			if _, err := sm.Open(gctx, e.ID); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				sm.log.Warn("skipping stored session", "session", e.ID, "err", err)
				return nil
			}
			opened.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(opened.Load()), fmt.Errorf("session: restore: %w", err)
	}
	return int(opened.Load()), nil
}

func (sm *Manager) newSession(id, title string) *Session {
	log := sm.log.With("session", id)
	s := &Session{
		id:       id,
		openedAt: time.Now().UTC(),
		title:    title,
		log:      log,
	}
	s.script = script.NewManager(
		script.WithLogger(log),
		script.WithEventSink(script.MultiSink(
			sm.metrics.EventSink(id),
			script.LogSink(log),
		)),
	)
	s.script.OnUpdate(s.changed)
	return s
}

func (sm *Manager) add(s *Session) {
	sm.mu.Lock()
	sm.sessions[s.id] = s
	sm.mu.Unlock()
	sm.metrics.ActiveSessions.Add(context.Background(), 1)
}
