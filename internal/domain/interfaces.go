package domain

import "context"

// Document represents a single source file loaded into the system.
type Document struct {
	ID      string
	Path    string
	Title   string
	Content string
}

// Chunk is a bounded span of a document used as the unit of retrieval.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Source     string
	Text       string
	Index      int
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Category is the handler a query is routed to.
type Category string

const (
	CategoryDefinition  Category = "definition"
	CategoryCalculation Category = "calculation"
	CategoryRAG         Category = "rag"
)

// Valid reports whether c is one of the three routable categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryDefinition, CategoryCalculation, CategoryRAG:
		return true
	}
	return false
}

// Decision is the outcome of routing one query.
// Target is set only for definitions, Expression only for calculations.
type Decision struct {
	Category   Category
	Target     string
	Expression string
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Generator sends a prompt to a generative model and returns its raw text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
