package vectorstore

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"paperqa/internal/domain"
	"paperqa/internal/embedding"
)

const (
	defaultBatchSize = 64
	zeroScore        = 1e-9
)

// Options tune Build and Load.
type Options struct {
	// SigningKey enables an HMAC-SHA256 signature over the payload digest.
	SigningKey []byte
	BatchSize  int
	Summary    string
	Logger     *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Build embeds every chunk, writes the backend payload to dir and then the
// manifest. Any index already in dir is replaced.
func Build(ctx context.Context, b Backend, chunks []domain.Chunk, emb embedding.Embedder, dir string, opts Options) (Index, error) {
	log := opts.logger()
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks", ErrIndexBuild)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	if p, ok := emb.(embedding.Preparer); ok {
		if err := p.Prepare(texts); err != nil {
			return nil, fmt.Errorf("%w: prepare embedder: %w", ErrIndexBuild, err)
		}
	}
	vectors, err := embedAll(ctx, emb, texts, opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}
	// drop the manifest first so a failed rebuild never leaves a stale-but-valid index
	if err := os.Remove(filepath.Join(dir, ManifestFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}
	payload := filepath.Join(dir, b.Payload())
	if err := os.RemoveAll(payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}
	if err := b.Write(ctx, dir, chunks, vectors); err != nil {
		return nil, fmt.Errorf("%w: write %s payload: %w", ErrIndexBuild, b.Name(), err)
	}
	digest, err := payloadDigest(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}

	m := Manifest{
		FormatVersion: FormatVersion,
		Backend:       b.Name(),
		Embedder:      emb.Name(),
		Dimension:     emb.Dimension(),
		ChunkCount:    len(chunks),
		Checksum:      hex.EncodeToString(digest),
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
		Summary:       opts.Summary,
	}
	if s, ok := emb.(embedding.Stateful); ok {
		state, err := s.MarshalState()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
		}
		m.EmbedderState = base64.StdEncoding.EncodeToString(state)
	}
	m.Signature = sign(opts.SigningKey, m, digest)
	if err := writeManifest(dir, m); err != nil {
		return nil, fmt.Errorf("%w: write manifest: %w", ErrIndexBuild, err)
	}
	log.Info("index built",
		zap.String("dir", dir),
		zap.String("backend", m.Backend),
		zap.String("embedder", m.Embedder),
		zap.Int("chunks", m.ChunkCount),
		zap.Int("dimension", m.Dimension))

	store, err := b.Open(ctx, dir, m)
	if err != nil {
		return nil, fmt.Errorf("%w: reopen: %w", ErrIndexBuild, err)
	}
	return &index{store: store, chunks: chunks, manifest: m}, nil
}

// Load opens the index persisted in dir. The payload checksum, and with a
// signing key the signature over manifest and payload, is verified before
// the embedder state or the payload is decoded.
func Load(ctx context.Context, b Backend, dir string, emb embedding.Embedder, opts Options) (Index, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: format version %d, want %d", ErrDeserialization, m.FormatVersion, FormatVersion)
	}
	if m.Backend != b.Name() {
		return nil, fmt.Errorf("%w: backend %q, want %q", ErrDeserialization, m.Backend, b.Name())
	}
	if err := verify(filepath.Join(dir, b.Payload()), m, opts.SigningKey); err != nil {
		return nil, err
	}
	if m.Embedder != emb.Name() {
		return nil, fmt.Errorf("%w: index uses %q, configured %q", ErrModelMismatch, m.Embedder, emb.Name())
	}
	if s, ok := emb.(embedding.Stateful); ok {
		state, err := m.state()
		if err != nil || len(state) == 0 {
			return nil, fmt.Errorf("%w: missing embedder state", ErrDeserialization)
		}
		if err := s.UnmarshalState(state); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDeserialization, err)
		}
	}
	if m.Dimension != emb.Dimension() {
		return nil, fmt.Errorf("%w: index dimension %d, embedder %d", ErrModelMismatch, m.Dimension, emb.Dimension())
	}

	store, err := b.Open(ctx, dir, m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeserialization, err)
	}
	chunks, err := store.Chunks(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%w: %w", ErrDeserialization, err)
	}
	if len(chunks) != m.ChunkCount {
		_ = store.Close()
		return nil, fmt.Errorf("%w: %d chunks, manifest says %d", ErrDeserialization, len(chunks), m.ChunkCount)
	}
	opts.logger().Info("index loaded",
		zap.String("dir", dir),
		zap.String("backend", m.Backend),
		zap.Int("chunks", m.ChunkCount))
	return &index{store: store, chunks: chunks, manifest: m}, nil
}

// Search embeds text in query mode and returns the k most similar chunks.
// When the query embedding carries no signal (the embedder says so, or every
// score is zero) the chunks are ranked by word overlap instead.
func Search(ctx context.Context, idx Index, emb embedding.Embedder, text string, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := emb.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if sr, ok := emb.(embedding.SignalReporter); ok && !sr.HasSignal(vec) {
		return lexicalSearch(idx.Chunks(), text, k), nil
	}
	res, err := idx.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	for _, r := range res {
		if r.Score > zeroScore {
			return res, nil
		}
	}
	return lexicalSearch(idx.Chunks(), text, k), nil
}

// Query is Search without the scores.
func Query(ctx context.Context, idx Index, emb embedding.Embedder, text string, k int) ([]domain.Chunk, error) {
	res, err := Search(ctx, idx, emb, text, k)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Chunk, len(res))
	for i, r := range res {
		out[i] = r.Chunk
	}
	return out, nil
}

func embedAll(ctx context.Context, emb embedding.Embedder, texts []string, batch int) ([][]float32, error) {
	if batch <= 0 {
		batch = defaultBatchSize
	}
	dim := emb.Dimension()
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batch {
		end := min(start+batch, len(texts))
		vecs, err := emb.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		for _, v := range vecs {
			if len(v) != dim {
				return nil, fmt.Errorf("embedder %s returned dimension %d, want %d", emb.Name(), len(v), dim)
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}
