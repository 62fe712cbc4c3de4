package vectorstore

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"paperqa/internal/domain"
	"paperqa/internal/embedding"
)

// Source produces the chunks to index and an optional corpus summary.
type Source func(ctx context.Context) (chunks []domain.Chunk, summary string, err error)

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Backend  Backend
	Embedder embedding.Embedder
	Dir      string
	Source   Source
	Options  Options
	// RebuildOnMismatch rebuilds instead of failing when the persisted index
	// cannot be deserialized or was built with another embedder.
	RebuildOnMismatch bool
}

// Manager loads the persisted index on first use, building it when absent.
// Concurrent callers share a single load or build and the result is kept for
// the life of the process.
type Manager struct {
	cfg   ManagerConfig
	log   *zap.Logger
	group singleflight.Group

	mu    sync.RWMutex
	index Index
}

func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{cfg: cfg, log: cfg.Options.logger().Named("index")}
}

// Embedder returns the embedder the index was built or loaded with.
func (m *Manager) Embedder() embedding.Embedder { return m.cfg.Embedder }

// Get returns the cached index, loading or building it if needed.
func (m *Manager) Get(ctx context.Context) (Index, error) {
	m.mu.RLock()
	idx := m.index
	m.mu.RUnlock()
	if idx != nil {
		return idx, nil
	}
	// a caller that gives up stops waiting; the shared load or build goes on
	flight := context.WithoutCancel(ctx)
	ch := m.group.DoChan("index", func() (any, error) {
		m.mu.RLock()
		cached := m.index
		m.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}
		idx, err := m.loadOrBuild(flight)
		if err != nil {
			return nil, err
		}
		m.set(idx)
		return idx, nil
	})
	return wait(ctx, ch)
}

func wait(ctx context.Context, ch <-chan singleflight.Result) (Index, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(Index), nil
	}
}

// Rebuild builds the index from the source unconditionally and replaces the cached one.
func (m *Manager) Rebuild(ctx context.Context) (Index, error) {
	flight := context.WithoutCancel(ctx)
	ch := m.group.DoChan("index", func() (any, error) {
		idx, err := m.build(flight)
		if err != nil {
			return nil, err
		}
		m.set(idx)
		return idx, nil
	})
	return wait(ctx, ch)
}

func (m *Manager) set(idx Index) {
	m.mu.Lock()
	old := m.index
	m.index = idx
	m.mu.Unlock()
	if old != nil && old != idx {
		_ = old.Close()
	}
}

func (m *Manager) loadOrBuild(ctx context.Context) (Index, error) {
	idx, err := Load(ctx, m.cfg.Backend, m.cfg.Dir, m.cfg.Embedder, m.cfg.Options)
	switch {
	case err == nil:
		return idx, nil
	case errors.Is(err, ErrIndexNotFound):
		m.log.Info("no persisted index, building", zap.String("dir", m.cfg.Dir))
	case m.cfg.RebuildOnMismatch && (errors.Is(err, ErrModelMismatch) || errors.Is(err, ErrDeserialization)):
		m.log.Warn("persisted index unusable, rebuilding", zap.String("dir", m.cfg.Dir), zap.Error(err))
	default:
		return nil, err
	}
	return m.build(ctx)
}

func (m *Manager) build(ctx context.Context) (Index, error) {
	chunks, summary, err := m.cfg.Source(ctx)
	if err != nil {
		return nil, errors.Join(ErrIndexBuild, err)
	}
	opts := m.cfg.Options
	opts.Summary = summary
	return Build(ctx, m.cfg.Backend, chunks, m.cfg.Embedder, m.cfg.Dir, opts)
}

// Close releases the cached index, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	idx := m.index
	m.index = nil
	m.mu.Unlock()
	if idx == nil {
		return nil
	}
	return idx.Close()
}
