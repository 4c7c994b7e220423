package script

import (
	"log/slog"
)

// EventKind names a change applied to a script by a [Manager].
type EventKind string

const (
	EventRoleAdded      EventKind = "role_added"
	EventRoleUpdated    EventKind = "role_updated"
	EventRoleRemoved    EventKind = "role_removed"
	EventReplicaAdded   EventKind = "replica_added"
	EventReplicaUpdated EventKind = "replica_updated"
	EventReplicaRemoved EventKind = "replica_removed"
	EventReplicaMoved   EventKind = "replica_moved"
	EventCleared        EventKind = "cleared"
	EventImported       EventKind = "imported"
	EventImportFailed   EventKind = "import_failed"
	EventObserverFailed EventKind = "observer_failed"
)

// Event describes one change. Which fields are set depends on Kind.
type Event struct {
	Kind EventKind

	// EntityID is the role or replica the change applied to.
	EntityID string

	// Cascaded is the number of replicas removed together with a role.
	Cascaded int

	// Err is set for EventImportFailed and EventObserverFailed.
	Err error

	// Stats is the recomputed statistics after a successful mutation.
	Stats Statistics
}

// EventSink receives a [Manager]'s events. Implementations must be safe for
// concurrent use when the sink is shared between managers.
type EventSink interface {
	Record(ev Event)
}

// EventSinkFunc adapts a function to [EventSink].
type EventSinkFunc func(Event)

// Record implements [EventSink].
func (f EventSinkFunc) Record(ev Event) { f(ev) }

// MultiSink fans each event out to every non-nil sink in order.
func MultiSink(sinks ...EventSink) EventSink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multiSink []EventSink

func (m multiSink) Record(ev Event) {
	for _, s := range m {
		s.Record(ev)
	}
}

// LogSink returns an [EventSink] that writes each event to l. Failures are
// logged at warn level, everything else at debug.
func LogSink(l *slog.Logger) EventSink {
	l = orDiscard(l)
	return EventSinkFunc(func(ev Event) {
		attrs := []any{
			"kind", string(ev.Kind),
			"total_words", ev.Stats.TotalWords,
			"total_duration", ev.Stats.TotalDurationFormatted,
		}
		if ev.EntityID != "" {
			attrs = append(attrs, "id", ev.EntityID)
		}
		if ev.Cascaded > 0 {
			attrs = append(attrs, "cascaded", ev.Cascaded)
		}
		if ev.Err != nil {
			l.Warn("script event", append(attrs, "err", ev.Err)...)
			return
		}
		l.Debug("script event", attrs...)
	})
}
