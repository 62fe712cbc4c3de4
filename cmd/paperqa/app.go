package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"paperqa/internal/chunker"
	"paperqa/internal/config"
	"paperqa/internal/dictionary"
	"paperqa/internal/domain"
	"paperqa/internal/embedding"
	"paperqa/internal/embedding/fastembed"
	"paperqa/internal/embedding/openai"
	"paperqa/internal/embedding/tfidf"
	"paperqa/internal/llm"
	"paperqa/internal/logging"
	"paperqa/internal/rag"
	"paperqa/internal/router"
	"paperqa/internal/service"
	"paperqa/internal/summarizer"
	"paperqa/internal/vectorstore"
	"paperqa/internal/vectorstore/chromem"
	"paperqa/internal/vectorstore/memory"
)

// app holds the components shared by every command.
type app struct {
	cfg      *config.AppConfig
	log      *zap.Logger
	embedder embedding.Embedder
	index    *vectorstore.Manager
	closers  []func()
}

type appOptions struct {
	configPath string
	logLevel   string
	// logFile overrides log.file, used by the TUI to keep the terminal clean.
	logFile string
}

func newApp(opts appOptions) (*app, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFile != "" && cfg.Log.File == "" {
		cfg.Log.File = opts.logFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, flush, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, closers: []func(){flush}}

	emb, err := newEmbedder(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.embedder = emb
	if c, ok := emb.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}

	ch, err := newChunker(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	backend, err := newBackend(cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	a.index = vectorstore.NewManager(vectorstore.ManagerConfig{
		Backend:  backend,
		Embedder: emb,
		Dir:      cfg.Index.Path,
		Source:   service.CorpusSource(cfg.Documents.Dir, ch, newSummarizer(cfg), cfg.Summarizer.MaxSentences, log),
		Options: vectorstore.Options{
			SigningKey: cfg.SigningKey(),
			BatchSize:  cfg.Index.BatchSize,
			Logger:     log,
		},
		RebuildOnMismatch: cfg.Index.RebuildOnMismatch,
	})
	a.closers = append(a.closers, func() { _ = a.index.Close() })
	return a, nil
}

// assistant wires the query path. It fails when the model key is missing.
func (a *app) assistant(rec service.Recorder) (*service.Assistant, error) {
	key, err := a.cfg.APIKey()
	if err != nil {
		return nil, err
	}
	gen := llm.NewClient(llm.Config{
		BaseURL:      a.cfg.LLM.BaseURL,
		APIKey:       key,
		Model:        a.cfg.LLM.Model,
		Temperature:  a.cfg.LLM.Temperature,
		Timeout:      config.Seconds(a.cfg.LLM.TimeoutSecs),
		RequestsPerS: a.cfg.LLM.RequestsPerSecond,
	}, a.log)
	dict := dictionary.NewClient(dictionary.Config{
		BaseURL:      a.cfg.Dictionary.BaseURL,
		Timeout:      config.Seconds(a.cfg.Dictionary.TimeoutSecs),
		RequestsPerS: a.cfg.Dictionary.RequestsPerSecond,
	}, a.log)
	return service.NewAssistant(service.Deps{
		Router:   router.New(gen, a.log),
		Dict:     dict,
		Index:    a.index,
		RAG:      rag.NewAnswerer(gen, a.embedder, a.cfg.RAG.TopK, a.log),
		Titles:   a.cfg.Documents.Titles,
		Recorder: rec,
		Logger:   a.log,
	}), nil
}

// summary returns the corpus summary of the index, loading it if needed.
func (a *app) summary(ctx context.Context) string {
	idx, err := a.index.Get(ctx)
	if err != nil {
		a.log.Warn("index not ready", zap.Error(err))
		return "Index not ready: " + err.Error()
	}
	return idx.Manifest().Summary
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newEmbedder(cfg *config.AppConfig) (embedding.Embedder, error) {
	switch cfg.Embedder.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "fastembed":
		fc := cfg.Embedder.FastEmbed
		return fastembed.New(fastembed.Config{Model: fc.Model, CacheDir: fc.CacheDir, MaxLength: fc.MaxLength})
	case "openai":
		key, err := cfg.EmbedderAPIKey()
		if err != nil {
			return nil, err
		}
		oc := cfg.Embedder.OpenAI
		return openai.NewClient(openai.Config{
			BaseURL:      oc.BaseURL,
			APIKey:       key,
			Model:        oc.Model,
			Dimension:    oc.Dimension,
			Timeout:      config.Seconds(oc.TimeoutSecs),
			RequestsPerS: oc.RequestsPerSecond,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func newChunker(cfg *config.AppConfig) (domain.Chunker, error) {
	switch cfg.Chunker.Type {
	case "character", "":
		return chunker.NewCharacterChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap), nil
	case "sentence":
		return chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}
}

func newBackend(cfg *config.AppConfig) (vectorstore.Backend, error) {
	switch cfg.VectorStore.Type {
	case "memory", "":
		return memory.NewBackend(), nil
	case "chromem":
		return chromem.NewBackend(cfg.VectorStore.Chromem.Compress), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

func newSummarizer(cfg *config.AppConfig) domain.Summarizer {
	if cfg.Summarizer.Type == "none" {
		return nil
	}
	return summarizer.NewFrequencySummarizer()
}
