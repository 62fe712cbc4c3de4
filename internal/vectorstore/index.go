// Package vectorstore builds, persists and queries the chunk index.
package vectorstore

import (
	"context"
	"errors"

	"paperqa/internal/domain"
)

var (
	ErrIndexNotFound   = errors.New("vectorstore: index not found")
	ErrDeserialization = errors.New("vectorstore: index cannot be deserialized")
	ErrModelMismatch   = errors.New("vectorstore: index was built with a different embedder")
	ErrIndexBuild      = errors.New("vectorstore: index build failed")
)

// Index is a loaded, read-only chunk index.
type Index interface {
	Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error)
	Chunks() []domain.Chunk
	Manifest() Manifest
	Close() error
}

// Store is the backend half of an Index: similarity search over stored vectors.
type Store interface {
	Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error)
	Chunks(ctx context.Context) ([]domain.Chunk, error)
	Close() error
}

// Backend persists chunk vectors under an index directory.
// Payload is the file or directory, relative to that directory, that the
// manifest checksum covers.
type Backend interface {
	Name() string
	Payload() string
	Write(ctx context.Context, dir string, chunks []domain.Chunk, vectors [][]float32) error
	Open(ctx context.Context, dir string, m Manifest) (Store, error)
}

type index struct {
	store    Store
	chunks   []domain.Chunk
	manifest Manifest
}

func (i *index) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	return i.store.Search(ctx, vector, k)
}

func (i *index) Chunks() []domain.Chunk { return i.chunks }
func (i *index) Manifest() Manifest     { return i.manifest }
func (i *index) Close() error           { return i.store.Close() }
