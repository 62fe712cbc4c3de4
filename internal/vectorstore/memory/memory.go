package memory

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"paperqa/internal/domain"
	"paperqa/internal/vectorstore"
)

const payloadFile = "index.gob"

// Backend persists the index as a single gob file and searches it by brute force.
type Backend struct{}

func NewBackend() Backend { return Backend{} }

func (Backend) Name() string    { return "memory" }
func (Backend) Payload() string { return payloadFile }

type payload struct {
	Chunks  []domain.Chunk
	Vectors [][]float32
}

func (Backend) Write(_ context.Context, dir string, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	f, err := os.Create(filepath.Join(dir, payloadFile))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := gob.NewEncoder(w).Encode(payload{Chunks: chunks, Vectors: vectors}); err != nil {
		f.Close()
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (Backend) Open(_ context.Context, dir string, m vectorstore.Manifest) (vectorstore.Store, error) {
	f, err := os.Open(filepath.Join(dir, payloadFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var p payload
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	s := NewStorage()
	if err := s.Init(m.Dimension); err != nil {
		return nil, err
	}
	if err := s.Upsert(p.Chunks, p.Vectors); err != nil {
		return nil, err
	}
	return s, nil
}

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	chunks    []domain.Chunk
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Init(dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = nil
	s.chunks = nil
	return nil
}

func (s *Storage) Upsert(chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	s.chunks = append(s.chunks, chunks...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

// Search returns the topK chunks by cosine similarity, most similar first.
func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension %d, index %d", len(vector), s.dimension)
	}
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		scores[i] = cosine(s.vectors[i], vector)
	}
	idxs := argsortDesc(scores)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for _, j := range idxs[:topK] {
		results = append(results, domain.SearchResult{Chunk: s.chunks[j], Score: scores[j]})
	}
	return results, nil
}

func (s *Storage) Chunks(context.Context) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out, nil
}

func (s *Storage) Close() error { return nil }
