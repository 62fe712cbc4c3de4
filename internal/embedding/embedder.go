// Package embedding defines how text becomes vectors for the vector index.
package embedding

import (
	"context"
	"errors"
)

var (
	ErrEmptyInput      = errors.New("embedding: empty input")
	ErrNotPrepared     = errors.New("embedding: embedder not prepared")
	ErrEmbeddingFailed = errors.New("embedding: generation failed")
)

// Embedder converts free text into a numeric vector representation.
// Name identifies the model and is pinned into every persisted index, so two
// embedders with the same Name must produce compatible vectors.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Preparer is implemented by embedders that must see the corpus before
// embedding it (TF-IDF builds its vocabulary here).
type Preparer interface {
	Prepare(corpus []string) error
}

// Stateful is implemented by embedders whose fitted state must travel with
// the index so queries are embedded in the same space.
type Stateful interface {
	MarshalState() ([]byte, error)
	UnmarshalState(data []byte) error
}

// SignalReporter is implemented by embedders that map text with no known
// terms to a placeholder vector. Such a query vector matches only other
// placeholder vectors and must not be ranked by similarity.
type SignalReporter interface {
	HasSignal(vec []float32) bool
}
