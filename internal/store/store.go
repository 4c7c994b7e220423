// Package store persists script snapshots keyed by session id.
//
// Three backends are provided: [MemoryStore] for tests and throwaway servers,
// [FileStore] writing one JSON document per session, and [PostgresStore]
// keeping snapshots in a JSONB column. Every backend validates a snapshot
// before returning it from Load, so callers can hand the result straight to
// [script.Manager.Import].
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/podscript/pkg/script"
)

// ErrNotFound is returned by Load and Delete when no snapshot is stored under
// the requested id.
var ErrNotFound = errors.New("store: snapshot not found")

// ErrInvalidID is returned for ids that are empty, too long or contain
// characters outside [A-Za-z0-9._-].
var ErrInvalidID = errors.New("store: invalid snapshot id")

// maxIDLen bounds ids so that they stay usable as file names.
const maxIDLen = 128

// Entry is the listing metadata of one stored snapshot.
type Entry struct {
	ID        string            `json:"id"`
	Title     string            `json:"title,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Stats     script.Statistics `json:"statistics"`
}

// Store saves and loads snapshots. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save creates or replaces the snapshot stored under id.
	Save(ctx context.Context, id string, s *script.Snapshot) error

	// Load returns the snapshot stored under id. The result has passed
	// [script.Snapshot.Validate]. Returns [ErrNotFound] if there is none.
	Load(ctx context.Context, id string) (*script.Snapshot, error)

	// List returns metadata for every stored snapshot ordered by id.
	List(ctx context.Context) ([]Entry, error)

	// Delete removes the snapshot stored under id. Returns [ErrNotFound] if
	// there is none.
	Delete(ctx context.Context, id string) error
}

// ValidateID reports whether id can be used as a storage key.
func ValidateID(id string) error {
	if id == "" || len(id) > maxIDLen || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
	}
	return nil
}

// entryOf builds listing metadata from a snapshot. Statistics are always
// recomputed from the records.
func entryOf(id string, s *script.Snapshot, updated time.Time) Entry {
	return Entry{
		ID:        id,
		Title:     s.Title,
		UpdatedAt: updated,
		Stats:     s.CalculateStatistics(),
	}
}

// checkSnapshot rejects nil and structurally invalid snapshots on the way in
// and on the way out.
func checkSnapshot(id string, s *script.Snapshot) error {
	if s == nil {
		return fmt.Errorf("store: snapshot %q is nil: %w", id, script.ErrInvalidSnapshot)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("store: snapshot %q: %w", id, err)
	}
	return nil
}

// Pinger is implemented by stores that can report whether their backend is
// reachable. It backs the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks st when it implements [Pinger] and succeeds otherwise.
func Ping(ctx context.Context, st Store) error {
	if p, ok := st.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
