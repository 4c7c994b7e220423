package script

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Replicas is the ordered sequence of lines in a script. The zero value is
// ready to use.
type Replicas struct {
	items []*Replica
	byID  map[string]*Replica
	log   *slog.Logger
}

// NewReplicas returns an empty collection that reports changes to log at
// debug level. A nil log discards them.
func NewReplicas(log *slog.Logger) *Replicas {
	return &Replicas{byID: make(map[string]*Replica), log: orDiscard(log)}
}

// Add appends replica at the end. It returns [ErrDuplicateID] if a replica
// with the same ID is already present.
func (c *Replicas) Add(replica *Replica) error {
	return c.Insert(replica, len(c.items))
}

// Insert places replica at index, shifting later replicas back. index is
// clamped to [0, Size()].
func (c *Replicas) Insert(replica *Replica, index int) error {
	if replica == nil {
		return errors.New("script: replica must not be nil")
	}
	if c.byID == nil {
		c.byID = make(map[string]*Replica)
	}
	if _, exists := c.byID[replica.ID]; exists {
		return fmt.Errorf("%w: replica %q", ErrDuplicateID, replica.ID)
	}
	index = min(max(index, 0), len(c.items))
	c.items = slices.Insert(c.items, index, replica)
	c.byID[replica.ID] = replica
	c.logger().Debug("replica added", "id", replica.ID, "role_id", replica.RoleID, "index", index)
	return nil
}

// Remove deletes the replica with the given ID and reports whether it existed.
func (c *Replicas) Remove(id string) bool {
	i := c.IndexOf(id)
	if i < 0 {
		return false
	}
	c.items = slices.Delete(c.items, i, i+1)
	delete(c.byID, id)
	c.logger().Debug("replica removed", "id", id)
	return true
}

// Move repositions the replica with the given ID to newIndex, shifting the
// replicas in between. It returns false and leaves the collection untouched
// when id is absent or newIndex is outside [0, Size()-1].
func (c *Replicas) Move(id string, newIndex int) bool {
	from := c.IndexOf(id)
	if from < 0 || newIndex < 0 || newIndex >= len(c.items) {
		return false
	}
	r := c.items[from]
	c.items = slices.Delete(c.items, from, from+1)
	c.items = slices.Insert(c.items, newIndex, r)
	r.touch()
	c.logger().Debug("replica moved", "id", id, "from", from, "to", newIndex)
	return true
}

// FindByID returns the replica with the given ID, or nil.
func (c *Replicas) FindByID(id string) *Replica {
	return c.byID[id]
}

// IndexOf returns the position of the replica with the given ID, or -1.
func (c *Replicas) IndexOf(id string) int {
	if _, ok := c.byID[id]; !ok {
		return -1
	}
	return slices.IndexFunc(c.items, func(r *Replica) bool { return r.ID == id })
}

// All returns the replicas in order. The slice is a copy; the replicas are
// shared.
func (c *Replicas) All() []*Replica {
	return slices.Clone(c.items)
}

// ByRole returns the replicas whose RoleID equals roleID, in order.
func (c *Replicas) ByRole(roleID string) []*Replica {
	var out []*Replica
	for _, r := range c.items {
		if r.RoleID == roleID {
			out = append(out, r)
		}
	}
	return out
}

// SpeakerReplicas returns the replicas whose role resolves in roles to a
// speaker. Unassigned, dangling and sound-effect replicas are excluded.
func (c *Replicas) SpeakerReplicas(roles *Roles) []*Replica {
	var out []*Replica
	for _, r := range c.items {
		if role := roles.FindByID(r.RoleID); role != nil && role.IsSpeaker() {
			out = append(out, r)
		}
	}
	return out
}

// TotalWordCount sums WordCount over [Replicas.SpeakerReplicas]. Sound-effect
// and unresolved replicas contribute nothing, whatever their own WordCount.
func (c *Replicas) TotalWordCount(roles *Roles) int {
	total := 0
	for _, r := range c.SpeakerReplicas(roles) {
		total += r.WordCount
	}
	return total
}

// TotalDuration returns the estimated runtime in minutes: speaking time for
// every speaker replica plus the fixed duration of every sound-effect
// replica. Unassigned and dangling replicas contribute 0.
func (c *Replicas) TotalDuration(roles *Roles) float64 {
	var total float64
	for _, r := range c.SpeakerReplicas(roles) {
		total += roles.FindByID(r.RoleID).CalculateTime(r.WordCount)
	}
	for _, r := range c.items {
		if role := roles.FindByID(r.RoleID); role != nil && role.IsSoundEffect() {
			total += role.Duration / 60
		}
	}
	return total
}

// Size returns the number of replicas.
func (c *Replicas) Size() int { return len(c.items) }

// IsEmpty reports whether the collection holds no replicas.
func (c *Replicas) IsEmpty() bool { return len(c.items) == 0 }

// Clear removes every replica.
func (c *Replicas) Clear() {
	c.items = nil
	c.byID = make(map[string]*Replica)
	c.logger().Debug("replicas cleared")
}

func (c *Replicas) logger() *slog.Logger {
	return orDiscard(c.log)
}
