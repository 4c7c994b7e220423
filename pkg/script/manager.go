package script

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Manager is the script aggregate: the single source of truth for one role
// collection and one replica collection.
//
// Every successful mutation recomputes [Statistics], records an [Event] and
// then invokes the update callbacks registered with [Manager.OnUpdate].
// Callbacks run after the internal lock is released, so they may query the
// Manager. A panicking callback is recovered and logged; the remaining
// callbacks still run.
//
// All methods are safe for concurrent use. Query methods return copies, so
// callers never observe or alter the internal entities.
type Manager struct {
	mu       sync.Mutex
	roles    *Roles
	replicas *Replicas
	stats    Statistics

	log  *slog.Logger
	sink EventSink

	cbMu      sync.Mutex
	callbacks []func()
}

// Option configures a [Manager].
type Option func(*Manager)

// WithLogger sets the logger used by the Manager and its collections.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithEventSink sets where the Manager records its events. The default writes
// them to the Manager's logger.
func WithEventSink(s EventSink) Option {
	return func(m *Manager) { m.sink = s }
}

// NewManager returns an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{}
	for _, o := range opts {
		o(m)
	}
	m.log = orDiscard(m.log)
	if m.sink == nil {
		m.sink = LogSink(m.log)
	}
	m.roles = NewRoles(m.log)
	m.replicas = NewReplicas(m.log)
	m.recompute()
	return m
}

// OnUpdate registers fn to be called with no arguments after every
// statistics recomputation. Registration is append-only.
func (m *Manager) OnUpdate(fn func()) {
	if fn == nil {
		return
	}
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// ─── Mutations ───────────────────────────────────────────────────────────────

// AddRole appends a copy of role. It returns [ErrDuplicateID] if the ID is
// taken.
func (m *Manager) AddRole(role *Role) error {
	if role == nil {
		return errors.New("script: role must not be nil")
	}
	c := role.Clone()
	var err error
	m.mutate(&Event{Kind: EventRoleAdded, EntityID: c.ID}, func() bool {
		err = m.roles.Add(c)
		return err == nil
	})
	return err
}

// UpdateRole swaps in role for the role with the same ID, keeping its
// position. Build role with the With* helpers. It returns [ErrNotFound] if
// no such role exists.
func (m *Manager) UpdateRole(role Role) error {
	c := role.Clone()
	var err error
	m.mutate(&Event{Kind: EventRoleUpdated, EntityID: c.ID}, func() bool {
		err = m.roles.Update(c.ID, c)
		return err == nil
	})
	return err
}

// RemoveRole removes the role and, first, every replica attributed to it.
// It reports false without side effects when the role does not exist.
func (m *Manager) RemoveRole(roleID string) bool {
	ev := &Event{Kind: EventRoleRemoved, EntityID: roleID}
	return m.mutate(ev, func() bool {
		if m.roles.FindByID(roleID) == nil {
			return false
		}
		for _, r := range m.replicas.ByRole(roleID) {
			if m.replicas.Remove(r.ID) {
				ev.Cascaded++
			}
		}
		return m.roles.Remove(roleID)
	})
}

// AddReplica appends a copy of replica. It returns [ErrDuplicateID] if the ID
// is taken.
func (m *Manager) AddReplica(replica *Replica) error {
	return m.InsertReplica(replica, -1)
}

// InsertReplica places a copy of replica at index. A negative index appends;
// larger indexes are clamped to the end.
func (m *Manager) InsertReplica(replica *Replica, index int) error {
	if replica == nil {
		return errors.New("script: replica must not be nil")
	}
	c := replica.Clone()
	var err error
	m.mutate(&Event{Kind: EventReplicaAdded, EntityID: c.ID}, func() bool {
		at := index
		if at < 0 {
			at = m.replicas.Size()
		}
		err = m.replicas.Insert(c, at)
		return err == nil
	})
	return err
}

// SetReplicaText replaces a replica's text. It reports false if the replica
// does not exist.
func (m *Manager) SetReplicaText(replicaID, text string) bool {
	return m.mutate(&Event{Kind: EventReplicaUpdated, EntityID: replicaID}, func() bool {
		r := m.replicas.FindByID(replicaID)
		if r == nil {
			return false
		}
		r.SetText(text)
		return true
	})
}

// SetReplicaRole re-attributes a replica. roleID is not checked against the
// roles; "" unassigns. It reports false if the replica does not exist.
func (m *Manager) SetReplicaRole(replicaID, roleID string) bool {
	return m.mutate(&Event{Kind: EventReplicaUpdated, EntityID: replicaID}, func() bool {
		r := m.replicas.FindByID(replicaID)
		if r == nil {
			return false
		}
		r.SetRole(roleID)
		return true
	})
}

// UpdateReplica applies the non-nil text and roleID in one change, so
// callbacks fire once. roleID follows SetReplicaRole. It returns a copy of
// the updated replica and reports false if the replica does not exist. With
// both nil it returns the replica unchanged and notifies nobody.
func (m *Manager) UpdateReplica(replicaID string, text, roleID *string) (Replica, bool) {
	if text == nil && roleID == nil {
		return m.FindReplica(replicaID)
	}
	var out Replica
	ok := m.mutate(&Event{Kind: EventReplicaUpdated, EntityID: replicaID}, func() bool {
		r := m.replicas.FindByID(replicaID)
		if r == nil {
			return false
		}
		if text != nil {
			r.SetText(*text)
		}
		if roleID != nil {
			r.SetRole(*roleID)
		}
		out = *r
		return true
	})
	return out, ok
}

// RemoveReplica removes a replica and reports whether it existed.
func (m *Manager) RemoveReplica(replicaID string) bool {
	return m.mutate(&Event{Kind: EventReplicaRemoved, EntityID: replicaID}, func() bool {
		return m.replicas.Remove(replicaID)
	})
}

// MoveReplica moves a replica to newIndex. It reports false, changing
// nothing, if the replica is absent or newIndex is out of range.
func (m *Manager) MoveReplica(replicaID string, newIndex int) bool {
	return m.mutate(&Event{Kind: EventReplicaMoved, EntityID: replicaID}, func() bool {
		return m.replicas.Move(replicaID, newIndex)
	})
}

// Clear removes every role and replica.
func (m *Manager) Clear() {
	m.mutate(&Event{Kind: EventCleared}, func() bool {
		m.replicas.Clear()
		m.roles.Clear()
		return true
	})
}

// ─── Import / export ─────────────────────────────────────────────────────────

// Export returns a snapshot of the current script, including statistics.
func (m *Manager) Export() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Snapshot{
		Roles:      make([]RoleRecord, 0, m.roles.Size()),
		Replicas:   make([]ReplicaRecord, 0, m.replicas.Size()),
		Version:    SnapshotVersion,
		ExportDate: now(),
	}
	for _, r := range m.roles.All() {
		s.Roles = append(s.Roles, RoleToRecord(r))
	}
	for _, r := range m.replicas.All() {
		s.Replicas = append(s.Replicas, ReplicaToRecord(r))
	}
	stats := m.stats
	s.Statistics = &stats
	return s
}

// Import replaces the whole script with the contents of s.
//
// The new collections are built off to the side and swapped in only when
// every record was reconstructed; on failure the previous script is left
// untouched and the error is returned. Role records dispatch on their type;
// unknown types load as base roles.
func (m *Manager) Import(s *Snapshot) error {
	roles, replicas, err := m.build(s)
	if err != nil {
		err = fmt.Errorf("script: import: %w", err)
		m.sink.Record(Event{Kind: EventImportFailed, Err: err})
		return err
	}

	m.mu.Lock()
	m.roles, m.replicas = roles, replicas
	m.recompute()
	ev := Event{Kind: EventImported, Stats: m.stats}
	m.mu.Unlock()

	m.sink.Record(ev)
	m.notify()
	return nil
}

func (m *Manager) build(s *Snapshot) (*Roles, *Replicas, error) {
	if s == nil {
		return nil, nil, errors.New("snapshot is nil")
	}
	roles := NewRoles(m.log)
	for i, rec := range s.Roles {
		if rec.ID == "" {
			return nil, nil, fmt.Errorf("roles[%d]: id is required", i)
		}
		if err := roles.Add(rec.Role()); err != nil {
			return nil, nil, fmt.Errorf("roles[%d]: %w", i, err)
		}
	}
	replicas := NewReplicas(m.log)
	for i, rec := range s.Replicas {
		if rec.ID == "" {
			return nil, nil, fmt.Errorf("replicas[%d]: id is required", i)
		}
		if err := replicas.Add(rec.Replica()); err != nil {
			return nil, nil, fmt.Errorf("replicas[%d]: %w", i, err)
		}
	}
	return roles, replicas, nil
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// Statistics returns the statistics as of the last mutation.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// RoleStatistics returns each role's share of the script, in role order.
func (m *Manager) RoleStatistics() []RoleStatistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ComputeRoleStatistics(m.roles, m.replicas)
}

// Roles returns copies of all roles in order.
func (m *Manager) Roles() []Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return roleValues(m.roles.All())
}

// Speakers returns copies of the speaker roles in order.
func (m *Manager) Speakers() []Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return roleValues(m.roles.Speakers())
}

// SoundEffects returns copies of the sound-effect roles in order.
func (m *Manager) SoundEffects() []Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return roleValues(m.roles.SoundEffects())
}

// FindRole returns a copy of the role with the given ID.
func (m *Manager) FindRole(id string) (Role, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.roles.FindByID(id)
	if r == nil {
		return Role{}, false
	}
	return *r, true
}

// Replicas returns copies of all replicas in order.
func (m *Manager) Replicas() []Replica {
	m.mu.Lock()
	defer m.mu.Unlock()
	return replicaValues(m.replicas.All())
}

// ReplicasByRole returns copies of the replicas attributed to roleID.
func (m *Manager) ReplicasByRole(roleID string) []Replica {
	m.mu.Lock()
	defer m.mu.Unlock()
	return replicaValues(m.replicas.ByRole(roleID))
}

// FindReplica returns a copy of the replica with the given ID.
func (m *Manager) FindReplica(id string) (Replica, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.replicas.FindByID(id)
	if r == nil {
		return Replica{}, false
	}
	return *r, true
}

// RoleCount returns the number of roles.
func (m *Manager) RoleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roles.Size()
}

// ReplicaCount returns the number of replicas.
func (m *Manager) ReplicaCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replicas.Size()
}

// IsEmpty reports whether the script has neither roles nor replicas.
func (m *Manager) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roles.IsEmpty() && m.replicas.IsEmpty()
}

// ─── Internals ───────────────────────────────────────────────────────────────

// mutate runs fn under the lock. When fn reports success the statistics are
// recomputed, ev is recorded and callbacks are notified. fn may fill in ev.
func (m *Manager) mutate(ev *Event, fn func() bool) bool {
	m.mu.Lock()
	ok := fn()
	if ok {
		m.recompute()
	}
	stats := m.stats
	m.mu.Unlock()

	if !ok {
		return false
	}
	ev.Stats = stats
	m.sink.Record(*ev)
	m.notify()
	return true
}

// recompute refreshes the cached statistics. Callers hold m.mu.
func (m *Manager) recompute() {
	m.stats = ComputeStatistics(m.roles, m.replicas)
}

// notify invokes every callback, isolating panics.
func (m *Manager) notify() {
	m.cbMu.Lock()
	cbs := make([]func(), len(m.callbacks))
	copy(cbs, m.callbacks)
	m.cbMu.Unlock()

	for i, fn := range cbs {
		m.safeCall(i, fn)
	}
}

func (m *Manager) safeCall(i int, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("script: update callback %d panicked: %v", i, p)
			m.log.Error("update callback failed", "index", i, "err", err)
			m.sink.Record(Event{Kind: EventObserverFailed, Err: err})
		}
	}()
	fn()
}

func roleValues(in []*Role) []Role {
	out := make([]Role, 0, len(in))
	for _, r := range in {
		out = append(out, *r)
	}
	return out
}

func replicaValues(in []*Replica) []Replica {
	out := make([]Replica, 0, len(in))
	for _, r := range in {
		out = append(out, *r)
	}
	return out
}
