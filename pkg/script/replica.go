package script

import "strings"

// Replica is one line of the script: spoken text or a sound cue.
//
// RoleID is a non-owning reference to a [Role] by ID; "" means unassigned.
// A Replica never checks that the role exists. Resolution always happens
// through a [Roles] collection and a dangling ID resolves to no role.
type Replica struct {
	Base

	// Text is the line content. It may be empty, which is the normal form of
	// an uncaptioned sound cue.
	Text string

	// RoleID references the attributed role, or is "" when unassigned.
	RoleID string

	// WordCount is derived from Text and is kept in sync by every setter.
	WordCount int
}

// NewReplica returns a replica with a fresh ID attributed to roleID.
func NewReplica(text, roleID string) *Replica {
	return &Replica{
		Base:      newBase(),
		Text:      text,
		RoleID:    roleID,
		WordCount: CountWords(text),
	}
}

// SetText replaces the text and recomputes WordCount.
func (r *Replica) SetText(text string) {
	r.Text = text
	r.WordCount = CountWords(text)
	r.touch()
}

// SetRole replaces the role reference. No referential check is made.
func (r *Replica) SetRole(roleID string) {
	r.RoleID = roleID
	r.touch()
}

// HasRole reports whether the replica is attributed to any role ID.
func (r *Replica) HasRole() bool { return r.RoleID != "" }

// Clone returns a copy of r that shares no state with it.
func (r *Replica) Clone() *Replica {
	c := *r
	return &c
}

// CountWords returns the number of whitespace-delimited tokens in text.
// Text that is empty after trimming has zero words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
