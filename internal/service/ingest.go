package service

import (
	"context"

	"go.uber.org/zap"

	"paperqa/internal/domain"
	"paperqa/internal/loader"
	"paperqa/internal/summarizer"
	"paperqa/internal/vectorstore"
)

// CorpusSource loads and chunks the documents in dir for an index build and
// summarizes each document for the manifest.
func CorpusSource(dir string, c domain.Chunker, s domain.Summarizer, summarySentences int, log *zap.Logger) vectorstore.Source {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context) ([]domain.Chunk, string, error) {
		docs, chunks, err := loader.Ingest(dir, c)
		if err != nil {
			return nil, "", err
		}
		log.Info("corpus ingested",
			zap.String("dir", dir),
			zap.Int("documents", len(docs)),
			zap.Int("chunks", len(chunks)))
		if s == nil {
			return chunks, "", nil
		}
		summary, err := summarizer.SummarizeDocuments(s, docs, summarySentences)
		if err != nil {
			log.Warn("summary failed", zap.Error(err))
			return chunks, "", nil
		}
		return chunks, summary, nil
	}
}
