package script

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// ErrNotFound is returned when an operation names an entity that is not in
// the collection.
var ErrNotFound = errors.New("script: entity not found")

// ErrDuplicateID is returned by Add when an entity with the same ID is
// already in the collection.
var ErrDuplicateID = errors.New("script: entity with that ID already exists")

// Roles is an ordered collection of roles keyed by ID. Insertion order is the
// display order. The zero value is ready to use.
type Roles struct {
	items []*Role
	byID  map[string]*Role
	log   *slog.Logger
}

// NewRoles returns an empty collection that reports changes to log at debug
// level. A nil log discards them.
func NewRoles(log *slog.Logger) *Roles {
	return &Roles{byID: make(map[string]*Role), log: orDiscard(log)}
}

// Add appends role. It returns [ErrDuplicateID] if a role with the same ID is
// already present; the collection is unchanged in that case.
func (c *Roles) Add(role *Role) error {
	if role == nil {
		return errors.New("script: role must not be nil")
	}
	if c.byID == nil {
		c.byID = make(map[string]*Role)
	}
	if _, exists := c.byID[role.ID]; exists {
		return fmt.Errorf("%w: role %q", ErrDuplicateID, role.ID)
	}
	c.items = append(c.items, role)
	c.byID[role.ID] = role
	c.logger().Debug("role added", "id", role.ID, "name", role.Name, "type", role.Type)
	return nil
}

// Remove deletes the role with the given ID and reports whether it existed.
func (c *Roles) Remove(id string) bool {
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.items = slices.Delete(c.items, i, i+1)
	delete(c.byID, id)
	c.logger().Debug("role removed", "id", id)
	return true
}

// Update swaps in role for the role with the given ID, keeping its position.
// role must carry the same ID. It returns [ErrNotFound] if id is absent.
func (c *Roles) Update(id string, role *Role) error {
	if role == nil {
		return errors.New("script: role must not be nil")
	}
	if role.ID != id {
		return fmt.Errorf("script: update role %q: replacement has id %q", id, role.ID)
	}
	i := c.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: role %q", ErrNotFound, id)
	}
	c.items[i] = role
	c.byID[id] = role
	c.logger().Debug("role updated", "id", id)
	return nil
}

// FindByID returns the role with the given ID, or nil.
func (c *Roles) FindByID(id string) *Role {
	if id == "" {
		return nil
	}
	return c.byID[id]
}

// All returns the roles in collection order. The slice is a copy; the roles
// are shared.
func (c *Roles) All() []*Role {
	return slices.Clone(c.items)
}

// Speakers returns the speaker roles in collection order.
func (c *Roles) Speakers() []*Role {
	return c.filter(RoleSpeaker)
}

// SoundEffects returns the sound-effect roles in collection order.
func (c *Roles) SoundEffects() []*Role {
	return c.filter(RoleSound)
}

// Size returns the number of roles.
func (c *Roles) Size() int { return len(c.items) }

// IsEmpty reports whether the collection holds no roles.
func (c *Roles) IsEmpty() bool { return len(c.items) == 0 }

// Clear removes every role.
func (c *Roles) Clear() {
	c.items = nil
	c.byID = make(map[string]*Role)
	c.logger().Debug("roles cleared")
}

func (c *Roles) filter(t RoleType) []*Role {
	var out []*Role
	for _, r := range c.items {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

func (c *Roles) indexOf(id string) int {
	if _, ok := c.byID[id]; !ok {
		return -1
	}
	return slices.IndexFunc(c.items, func(r *Role) bool { return r.ID == id })
}

func (c *Roles) logger() *slog.Logger {
	return orDiscard(c.log)
}

// orDiscard returns l, or a logger that drops every record when l is nil.
func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
