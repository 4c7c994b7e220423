package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/podscript/pkg/script"
)

// EventSink returns a [script.EventSink] that turns a session's script
// events into metrics. Every recorded event carries the session attribute.
func (m *Metrics) EventSink(session string) script.EventSink {
	sess := attribute.String("session", session)
	return script.EventSinkFunc(func(ev script.Event) {
		ctx := context.Background()
		switch ev.Kind {
		case script.EventImportFailed:
			m.ScriptImports.Add(ctx, 1, metric.WithAttributes(sess, attribute.String("status", "error")))
			return
		case script.EventObserverFailed:
			m.ObserverFailures.Add(ctx, 1, metric.WithAttributes(sess))
			return
		case script.EventImported:
			m.ScriptImports.Add(ctx, 1, metric.WithAttributes(sess, attribute.String("status", "ok")))
		default:
			m.ScriptMutations.Add(ctx, 1, metric.WithAttributes(sess, attribute.String("kind", string(ev.Kind))))
		}
		if ev.Cascaded > 0 {
			m.CascadedReplicas.Add(ctx, int64(ev.Cascaded), metric.WithAttributes(sess))
		}
		m.ScriptWords.Record(ctx, int64(ev.Stats.TotalWords), metric.WithAttributes(sess))
		m.ScriptDuration.Record(ctx, ev.Stats.TotalDuration, metric.WithAttributes(sess))
	})
}
