package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/podscript/internal/store"
	"github.com/MrWong99/podscript/pkg/script"
)

// saveTimeout bounds a single autosave write.
const saveTimeout = 30 * time.Second

// Info holds metadata about an open session.
type Info struct {
	// ID is the unique identifier of the session and its stored snapshot.
	ID string `json:"id"`

	// Title is the optional script title.
	Title string `json:"title,omitempty"`

	// OpenedAt is when the session was created or loaded.
	OpenedAt time.Time `json:"openedAt"`

	// Stats is the script's statistics at the time of the call.
	Stats script.Statistics `json:"statistics"`
}

// Session is one script open for editing. It owns a [script.Manager] and
// fans statistics out to stream subscribers after every change.
// All exported methods are safe for concurrent use.
type Session struct {
	id       string
	openedAt time.Time
	script   *script.Manager
	log      *slog.Logger

	mu     sync.Mutex
	title  string
	subs   map[int]chan script.Statistics
	nextID int
	closed bool

	// dirty is signalled after every change; the autosave loop drains it.
	dirty     chan struct{}
	autosave  *atomic.Bool
	saveStore store.Store
	stopSave  chan struct{}
	saveDone  chan struct{}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Script returns the session's script.
func (s *Session) Script() *script.Manager { return s.script }

// Title returns the script title.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// SetTitle renames the script. It counts as a change for autosave.
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()
	s.markDirty()
}

// Info returns the session's metadata.
func (s *Session) Info() Info {
	return Info{
		ID:       s.id,
		Title:    s.Title(),
		OpenedAt: s.openedAt,
		Stats:    s.script.Statistics(),
	}
}

// Snapshot exports the script together with its title.
func (s *Session) Snapshot() *script.Snapshot {
	snap := s.script.Export()
	snap.Title = s.Title()
	return snap
}

// Import validates snap and replaces the script with it. A non-empty
// snapshot title replaces the session title.
func (s *Session) Import(snap *script.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	// The title goes in first so that the save triggered by the import's
	// change notification already carries it.
	s.mu.Lock()
	prev := s.title
	if snap.Title != "" {
		s.title = snap.Title
	}
	s.mu.Unlock()

	if err := s.script.Import(snap); err != nil {
		s.mu.Lock()
		s.title = prev
		s.mu.Unlock()
		return err
	}
	return nil
}

// Subscribe returns a channel that receives the script's statistics now and
// after every change, and a function that ends the subscription. Slow
// readers only ever see the latest value. The channel is closed when the
// subscription ends or the session closes.
func (s *Session) Subscribe() (<-chan script.Statistics, func()) {
	ch := make(chan script.Statistics, 1)
	ch <- s.script.Statistics()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	if s.subs == nil {
		s.subs = make(map[int]chan script.Statistics)
	}
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// changed is registered with the manager's OnUpdate.
func (s *Session) changed() {
	stats := s.script.Statistics()
	s.mu.Lock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- stats
	}
	s.mu.Unlock()
	s.markDirty()
}

func (s *Session) markDirty() {
	if s.dirty == nil || !s.autosave.Load() {
		return
	}
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// startAutosave launches the loop that writes the snapshot to st after
// changes. Bursts of changes collapse into one write.
func (s *Session) startAutosave(st store.Store, enabled *atomic.Bool) {
	if st == nil {
		return
	}
	s.dirty = make(chan struct{}, 1)
	s.autosave = enabled
	s.saveStore = st
	s.stopSave = make(chan struct{})
	s.saveDone = make(chan struct{})

	go func() {
		defer close(s.saveDone)
		for {
			select {
			case <-s.stopSave:
				return
			case <-s.dirty:
				if !s.autosave.Load() {
					continue
				}
				if err := s.save(context.Background()); err != nil {
					s.log.Warn("autosave failed", "session", s.id, "err", err)
				}
			}
		}
	}()
}

func (s *Session) save(ctx context.Context) error {
	if s.saveStore == nil {
		return fmt.Errorf("session: %q has no store", s.id)
	}
	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()
	return s.saveStore.Save(ctx, s.id, s.Snapshot())
}

// close stops autosave, flushes a pending change if autosave is on, and
// ends every subscription.
func (s *Session) close(ctx context.Context) error {
	var err error
	if s.stopSave != nil {
		close(s.stopSave)
		<-s.saveDone
		select {
		case <-s.dirty:
			if s.autosave.Load() {
				err = s.save(ctx)
			}
		default:
		}
	}

	s.mu.Lock()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
	return err
}
