// Package chromem stores the index in a chromem-go persistent database.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"paperqa/internal/domain"
	"paperqa/internal/vectorstore"
)

const (
	dbDir          = "db"
	collectionName = "chunks"
)

var errNoEmbedding = errors.New("chromem: documents must carry precomputed embeddings")

// Backend writes chunks to a chromem-go collection with precomputed embeddings.
type Backend struct {
	compress bool
}

func NewBackend(compress bool) Backend { return Backend{compress: compress} }

func (Backend) Name() string    { return "chromem" }
func (Backend) Payload() string { return dbDir }

// embeddings are always supplied by the caller; chromem must never compute its own
func noEmbed(context.Context, string) ([]float32, error) { return nil, errNoEmbedding }

func docID(i int) string { return fmt.Sprintf("%08d", i) }

func (b Backend) Write(ctx context.Context, dir string, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	db, err := chromem.NewPersistentDB(filepath.Join(dir, dbDir), b.compress)
	if err != nil {
		return fmt.Errorf("open chromem db: %w", err)
	}
	col, err := db.GetOrCreateCollection(collectionName, nil, noEmbed)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID: docID(i),
			Metadata: map[string]string{
				"chunk_id":    c.ChunkID,
				"document_id": c.DocumentID,
				"source":      c.Source,
				"index":       strconv.Itoa(c.Index),
			},
			Embedding: vectors[i],
			Content:   c.Text,
		}
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

func (b Backend) Open(_ context.Context, dir string, m vectorstore.Manifest) (vectorstore.Store, error) {
	db, err := chromem.NewPersistentDB(filepath.Join(dir, dbDir), b.compress)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	col := db.GetCollection(collectionName, noEmbed)
	if col == nil {
		return nil, fmt.Errorf("collection %q missing", collectionName)
	}
	if col.Count() != m.ChunkCount {
		return nil, fmt.Errorf("collection holds %d documents, manifest says %d", col.Count(), m.ChunkCount)
	}
	return &Store{col: col}, nil
}

// Store answers searches from a loaded chromem collection.
type Store struct {
	col *chromem.Collection
}

func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	n := min(k, s.col.Count())
	if n <= 0 {
		return nil, nil
	}
	res, err := s.col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	out := make([]domain.SearchResult, len(res))
	for i, r := range res {
		out[i] = domain.SearchResult{Chunk: toChunk(r.Metadata, r.Content), Score: float64(r.Similarity)}
	}
	return out, nil
}

// Chunks returns every stored chunk in build order.
func (s *Store) Chunks(ctx context.Context) ([]domain.Chunk, error) {
	n := s.col.Count()
	out := make([]domain.Chunk, 0, n)
	for i := 0; i < n; i++ {
		doc, err := s.col.GetByID(ctx, docID(i))
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		out = append(out, toChunk(doc.Metadata, doc.Content))
	}
	return out, nil
}

func (s *Store) Close() error { return nil }

func toChunk(meta map[string]string, content string) domain.Chunk {
	idx, _ := strconv.Atoi(meta["index"])
	return domain.Chunk{
		DocumentID: meta["document_id"],
		ChunkID:    meta["chunk_id"],
		Source:     meta["source"],
		Text:       content,
		Index:      idx,
	}
}
