package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/podscript/internal/config"
	"github.com/MrWong99/podscript/internal/observe"
)

// Open builds the store selected by cfg, wrapped with metrics and tracing.
// The returned close function releases backend resources and is never nil.
func Open(ctx context.Context, cfg config.StoreConfig, m *observe.Metrics, log *slog.Logger) (*Instrumented, func(), error) {
	if log == nil {
		log = slog.Default()
	}
	noop := func() {}
	switch cfg.Backend {
	case config.StoreMemory, "":
		return Instrument(NewMemoryStore(), string(config.StoreMemory), m), noop, nil

	case config.StoreFile:
		fstore, err := NewFileStore(cfg.Dir, WithFileLogger(log))
		if err != nil {
			return nil, noop, err
		}
		log.Info("snapshot store ready", "backend", "file", "dir", cfg.Dir)
		return Instrument(fstore, string(cfg.Backend), m), noop, nil

	case config.StorePostgres:
		pool, err := NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		pg := NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		log.Info("snapshot store ready", "backend", "postgres")
		guarded := Guard(pg, string(cfg.Backend), log)
		return Instrument(guarded, string(cfg.Backend), m), pool.Close, nil

	default:
		return nil, noop, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
