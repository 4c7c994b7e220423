package store

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/podscript/internal/observe"
	"github.com/MrWong99/podscript/pkg/script"
)

// Instrumented wraps a [Store] with a span and a latency measurement per
// call. [ErrNotFound] is not counted as a store error.
type Instrumented struct {
	next    Store
	backend string
	metrics *observe.Metrics
}

var _ Store = (*Instrumented)(nil)

// Instrument returns next wrapped with metrics and tracing. backend labels
// every recorded measurement.
func Instrument(next Store, backend string, m *observe.Metrics) *Instrumented {
	return &Instrumented{next: next, backend: backend, metrics: m}
}

// Unwrap returns the wrapped store.
func (s *Instrumented) Unwrap() Store { return s.next }

// Save implements [Store].
func (s *Instrumented) Save(ctx context.Context, id string, snap *script.Snapshot) (err error) {
	ctx, done := s.begin(ctx, "save", id)
	defer func() { done(err) }()
	return s.next.Save(ctx, id, snap)
}

// Load implements [Store].
func (s *Instrumented) Load(ctx context.Context, id string) (_ *script.Snapshot, err error) {
	ctx, done := s.begin(ctx, "load", id)
	defer func() { done(err) }()
	return s.next.Load(ctx, id)
}

// List implements [Store].
func (s *Instrumented) List(ctx context.Context) (_ []Entry, err error) {
	ctx, done := s.begin(ctx, "list", "")
	defer func() { done(err) }()
	return s.next.List(ctx)
}

// Delete implements [Store].
func (s *Instrumented) Delete(ctx context.Context, id string) (err error) {
	ctx, done := s.begin(ctx, "delete", id)
	defer func() { done(err) }()
	return s.next.Delete(ctx, id)
}

func (s *Instrumented) begin(ctx context.Context, op, id string) (context.Context, func(error)) {
	if id != "" {
		ctx = observe.WithSession(ctx, id)
	}
	ctx, span := observe.StartSpan(ctx, "store."+op, trace.WithAttributes(
		attribute.String("store.backend", s.backend),
		attribute.String("store.op", op),
	))
	start := time.Now()
	return ctx, func(err error) {
		if errors.Is(err, ErrNotFound) {
			err = nil
		}
		s.metrics.RecordStoreOp(ctx, s.backend, op, time.Since(start).Seconds(), err)
		observe.EndSpan(span, err)
	}
}

// Ping implements [Pinger] by forwarding to the wrapped store.
func (s *Instrumented) Ping(ctx context.Context) error {
	return Ping(ctx, s.next)
}
