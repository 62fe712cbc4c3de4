// Package rag answers paper questions from retrieved chunks.
package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"paperqa/internal/domain"
	"paperqa/internal/embedding"
	"paperqa/internal/vectorstore"
)

// DefaultTopK is the number of chunks placed in the prompt context.
const DefaultTopK = 3

const promptTemplate = `You are an academic assistant helping explain AI research papers.
Use the following context to answer the question.

Context:
%s

Question: %s
Answer:`

type Answerer struct {
	gen  domain.Generator
	emb  embedding.Embedder
	topK int
	log  *zap.Logger
}

func NewAnswerer(gen domain.Generator, emb embedding.Embedder, topK int, log *zap.Logger) *Answerer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Answerer{gen: gen, emb: emb, topK: topK, log: log.Named("rag")}
}

// Retrieve returns the chunks that would be used as context for query.
func (a *Answerer) Retrieve(ctx context.Context, idx vectorstore.Index, query string) ([]domain.SearchResult, error) {
	res, err := vectorstore.Search(ctx, idx, a.emb, query, a.topK)
	if err != nil {
		return nil, fmt.Errorf("rag: retrieve: %w", err)
	}
	return res, nil
}

// Answer retrieves context for query and asks the model once.
func (a *Answerer) Answer(ctx context.Context, idx vectorstore.Index, query string) (string, error) {
	res, err := a.Retrieve(ctx, idx, query)
	if err != nil {
		return "", err
	}
	a.log.Debug("retrieved", zap.Int("chunks", len(res)))
	out, err := a.gen.Generate(ctx, BuildPrompt(query, res))
	if err != nil {
		return "", fmt.Errorf("rag: generate: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// BuildPrompt joins the chunk texts, most similar first, into the answer template.
func BuildPrompt(query string, results []domain.SearchResult) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Chunk.Text
	}
	return fmt.Sprintf(promptTemplate, strings.Join(texts, "\n"), query)
}
