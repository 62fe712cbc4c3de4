//go:build cgo

// Package fastembed runs local ONNX sentence-embedding models.
package fastembed

import (
	"context"
	"fmt"
	"sync"

	fe "github.com/anush008/fastembed-go"

	"paperqa/internal/embedding"
)

// DefaultModel matches the sentence-transformers model the corpus index was designed around.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

type Config struct {
	Model     string
	CacheDir  string
	MaxLength int
}

var models = map[string]fe.EmbeddingModel{
	"sentence-transformers/all-MiniLM-L6-v2": fe.AllMiniLML6V2,
	"BAAI/bge-small-en-v1.5":                 fe.BGESmallENV15,
	"BAAI/bge-base-en-v1.5":                  fe.BGEBaseENV15,
}

var dimensions = map[fe.EmbeddingModel]int{
	fe.AllMiniLML6V2: 384,
	fe.BGESmallENV15: 384,
	fe.BGEBaseENV15:  768,
}

// Embedder wraps a fastembed FlagEmbedding.
type Embedder struct {
	mu        sync.RWMutex
	model     *fe.FlagEmbedding
	name      string
	dimension int
}

func New(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	model, ok := models[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("fastembed: unsupported model %q", cfg.Model)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "local_cache"
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 512
	}
	showProgress := false
	m, err := fe.NewFlagEmbedding(&fe.InitOptions{
		Model:                model,
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}
	return &Embedder{model: m, name: cfg.Model, dimension: dimensions[model]}, nil
}

func (e *Embedder) Name() string   { return "fastembed:" + e.name }
func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", embedding.ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	vecs, err := e.model.PassageEmbed(texts, 256)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embedding.ErrEmbeddingFailed, err)
	}
	return vecs, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", embedding.ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	vec, err := e.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embedding.ErrEmbeddingFailed, err)
	}
	return vec, nil
}

// Close releases the ONNX session.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.Destroy()
	e.model = nil
	return err
}
