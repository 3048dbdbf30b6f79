package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dshills/paramtree/internal/param/preset"
)

// OpenStore opens the configured preset backend. The returned close
// function releases the backend and is never nil.
func (p PresetsConfig) OpenStore(ctx context.Context, logger *zap.Logger) (preset.Store, func() error, error) {
	noop := func() error { return nil }
	if logger == nil {
		logger = zap.NewNop()
	}

	switch p.Backend {
	case BackendMemory:
		return preset.NewMemoryStore(), noop, nil

	case BackendSQLite:
		if p.Database != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(p.Database), 0o755); err != nil {
				return nil, noop, fmt.Errorf("create preset db dir: %w", err)
			}
		}
		s, err := preset.OpenSQLStore(ctx, p.Database)
		if err != nil {
			return nil, noop, err
		}
		logger.Debug("opened sqlite preset store", zap.String("path", p.Database))
		return s, s.Close, nil

	case BackendFile, "":
		codec, err := preset.CodecFor(p.Format)
		if err != nil {
			return nil, noop, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		s, err := preset.NewFileStore(p.Dir, codec, preset.WithFileLogger(logger))
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil

	default:
		return nil, noop, invalid("presets.backend", "must be file, sqlite or memory", p.Backend)
	}
}
