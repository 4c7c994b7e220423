package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrWong99/podscript/internal/resilience"
	"github.com/MrWong99/podscript/pkg/script"
)

// Guarded wraps a [Store] with a circuit breaker so that a backend that
// keeps failing is not hammered by autosaves. While the breaker is open,
// every call fails with [resilience.ErrCircuitOpen].
type Guarded struct {
	next    Store
	breaker *resilience.Breaker
}

var _ Store = (*Guarded)(nil)

// Guard returns next behind a breaker named after backend. Missing
// snapshots, bad ids, invalid snapshots and cancelled calls do not count
// as backend failures.
func Guard(next Store, backend string, log *slog.Logger) *Guarded {
	return GuardWith(next, resilience.New(resilience.Config{
		Name:      "store." + backend,
		IsFailure: backendFailure,
		Logger:    log,
	}))
}

// GuardWith returns next behind b.
func GuardWith(next Store, b *resilience.Breaker) *Guarded {
	return &Guarded{next: next, breaker: b}
}

func backendFailure(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, script.ErrInvalidSnapshot),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// Breaker returns the breaker guarding the store.
func (g *Guarded) Breaker() *resilience.Breaker { return g.breaker }

// Save implements [Store].
func (g *Guarded) Save(ctx context.Context, id string, s *script.Snapshot) error {
	return g.breaker.Execute(func() error { return g.next.Save(ctx, id, s) })
}

// Load implements [Store].
func (g *Guarded) Load(ctx context.Context, id string) (snap *script.Snapshot, err error) {
	err = g.breaker.Execute(func() error {
		snap, err = g.next.Load(ctx, id)
		return err
	})
	return snap, err
}

// List implements [Store].
func (g *Guarded) List(ctx context.Context) (entries []Entry, err error) {
	err = g.breaker.Execute(func() error {
		entries, err = g.next.List(ctx)
		return err
	})
	return entries, err
}

// Delete implements [Store].
func (g *Guarded) Delete(ctx context.Context, id string) error {
	return g.breaker.Execute(func() error { return g.next.Delete(ctx, id) })
}

// Ping implements [Pinger]. It bypasses the breaker so that readiness
// reflects the backend itself.
func (g *Guarded) Ping(ctx context.Context) error {
	return Ping(ctx, g.next)
}
