// Package script implements the data model and statistics engine behind the
// podcast script editor.
//
// A script is an ordered sequence of replicas (spoken lines or sound cues),
// each attributed to a role. Roles are a closed tagged union: a [RoleSpeaker]
// speaks at a words-per-minute rate, a [RoleSound] plays for a fixed number of
// seconds. The [Manager] owns one [Roles] and one [Replicas] collection,
// enforces the cascade rule (removing a role removes its replicas), keeps
// [Statistics] current after every mutation and notifies observers.
//
// [Snapshot] is the self-contained save/load format. It can be validated and
// summarised without a live [Manager].
//
// The collections are not synchronised; they are owned by a [Manager], which
// is safe for concurrent use.
package script

import (
	"time"

	"github.com/google/uuid"
)

// Base carries the identity and timestamps shared by every entity.
type Base struct {
	// ID is the opaque, process-unique identifier. It never changes.
	ID string `json:"id"`

	// CreatedAt is set once when the entity is created.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is refreshed by every mutating operation.
	// It is never earlier than CreatedAt.
	UpdatedAt time.Time `json:"updatedAt"`
}

// newBase returns a Base with a fresh ID and both timestamps set to now.
func newBase() Base {
	t := now()
	return Base{ID: NewID(), CreatedAt: t, UpdatedAt: t}
}

// touch refreshes UpdatedAt, keeping it at or after CreatedAt even if the
// wall clock stepped backwards.
func (b *Base) touch() {
	t := now()
	if t.Before(b.CreatedAt) {
		t = b.CreatedAt
	}
	b.UpdatedAt = t
}

// NewID returns a new random entity identifier.
func NewID() string {
	return uuid.NewString()
}

// now returns the current UTC time at millisecond precision, which survives
// an ISO-8601 round trip through the snapshot format unchanged.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
