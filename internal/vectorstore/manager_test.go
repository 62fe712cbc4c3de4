package vectorstore_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperqa/internal/domain"
	"paperqa/internal/embedding/tfidf"
	"paperqa/internal/vectorstore"
	"paperqa/internal/vectorstore/memory"
)

func countingSource(calls *atomic.Int32) vectorstore.Source {
	return func(context.Context) ([]domain.Chunk, string, error) {
		calls.Add(1)
		return testChunks(), "summary", nil
	}
}

func TestManagerBuildsOncePerProcess(t *testing.T) {
	var calls atomic.Int32
	dir := t.TempDir()
	m := vectorstore.NewManager(vectorstore.ManagerConfig{
		Backend:  memory.NewBackend(),
		Embedder: tfidf.NewEmbedder(),
		Dir:      dir,
		Source:   countingSource(&calls),
	})
	defer m.Close()

	var wg sync.WaitGroup
	results := make([]vectorstore.Index, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx, err := m.Get(context.Background())
			assert.NoError(t, err)
			results[i] = idx
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
	for _, idx := range results {
		assert.Same(t, results[0], idx)
	}

	// a second process reuses the persisted index
	other := vectorstore.NewManager(vectorstore.ManagerConfig{
		Backend:  memory.NewBackend(),
		Embedder: tfidf.NewEmbedder(),
		Dir:      dir,
		Source:   countingSource(&calls),
	})
	defer other.Close()
	idx, err := other.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "summary", idx.Manifest().Summary)
	assert.Equal(t, int32(1), calls.Load())
}

func TestManagerSurfacesMismatch(t *testing.T) {
	var calls atomic.Int32
	dir := build(t, memory.NewBackend(), vectorstore.Options{})
	cfg := vectorstore.ManagerConfig{
		Backend:  memory.NewBackend(),
		Embedder: hashEmbedder{name: "hash", dim: 8},
		Dir:      dir,
		Source:   countingSource(&calls),
	}
	_, err := vectorstore.NewManager(cfg).Get(context.Background())
	assert.ErrorIs(t, err, vectorstore.ErrModelMismatch)
	assert.Zero(t, calls.Load())

	cfg.RebuildOnMismatch = true
	m := vectorstore.NewManager(cfg)
	defer m.Close()
	idx, err := m.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hash", idx.Manifest().Embedder)
	assert.Equal(t, int32(1), calls.Load())
}

func TestManagerSourceError(t *testing.T) {
	boom := errors.New("no documents")
	m := vectorstore.NewManager(vectorstore.ManagerConfig{
		Backend:  memory.NewBackend(),
		Embedder: tfidf.NewEmbedder(),
		Dir:      t.TempDir(),
		Source: func(context.Context) ([]domain.Chunk, string, error) {
			return nil, "", boom
		},
	})
	_, err := m.Get(context.Background())
	assert.ErrorIs(t, err, vectorstore.ErrIndexBuild)
	assert.ErrorIs(t, err, boom)
}

func TestManagerBuildSurvivesCallerCancellation(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	m := vectorstore.NewManager(vectorstore.ManagerConfig{
		Backend:  memory.NewBackend(),
		Embedder: tfidf.NewEmbedder(),
		Dir:      t.TempDir(),
		Source: func(context.Context) ([]domain.Chunk, string, error) {
			if calls.Add(1) == 1 {
				close(started)
			}
			<-release
			return testChunks(), "", nil
		},
	})
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := m.Get(ctx)
		firstErr <- err
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	second := make(chan error, 1)
	go func() {
		_, err := m.Get(context.Background())
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-second)
	assert.Equal(t, int32(1), calls.Load())
}
