//go:build !cgo

package fastembed

import (
	"context"
	"errors"
)

const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// ErrNotAvailable is returned when the binary was built without cgo.
var ErrNotAvailable = errors.New("fastembed: not available (built without cgo, use the tfidf or openai embedder)")

type Config struct {
	Model     string
	CacheDir  string
	MaxLength int
}

type Embedder struct{}

func New(Config) (*Embedder, error) { return nil, ErrNotAvailable }

func (e *Embedder) Name() string   { return "fastembed:unavailable" }
func (e *Embedder) Dimension() int { return 0 }

func (e *Embedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, ErrNotAvailable
}

func (e *Embedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, ErrNotAvailable
}

func (e *Embedder) Close() error { return nil }
