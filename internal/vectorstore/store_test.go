package vectorstore_test

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"paperqa/internal/domain"
	"paperqa/internal/embedding"
	"paperqa/internal/embedding/tfidf"
	"paperqa/internal/vectorstore"
	"paperqa/internal/vectorstore/chromem"
	"paperqa/internal/vectorstore/memory"
)

var texts = []string{
	"The Transformer is based solely on attention mechanisms, dispensing with recurrence.",
	"BERT is designed to pre-train deep bidirectional representations from unlabeled text.",
	"Generative pre-training of a language model on a diverse corpus of unlabeled text.",
	"Multi-head attention allows the model to jointly attend to information from different subspaces.",
	"The masked language model randomly masks some of the tokens from the input.",
}

func testChunks() []domain.Chunk {
	out := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		out[i] = domain.Chunk{DocumentID: "d", ChunkID: fmt.Sprintf("d:%d", i), Source: "d.txt", Text: t, Index: i}
	}
	return out
}

func backends() map[string]vectorstore.Backend {
	return map[string]vectorstore.Backend{
		"memory":  memory.NewBackend(),
		"chromem": chromem.NewBackend(false),
	}
}

// hashEmbedder is a deterministic stand-in for a neural embedder.
type hashEmbedder struct {
	name string
	dim  int
}

func (h hashEmbedder) Name() string   { return h.name }
func (h hashEmbedder) Dimension() int { return h.dim }

func (h hashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := h.EmbedQuery(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (h hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, h.dim)
	for i := range v {
		v[i] = float32(binary.BigEndian.Uint16(sum[(2*i)%len(sum):])%1000) + 1
	}
	return v, nil
}

func build(t *testing.T, b vectorstore.Backend, opts vectorstore.Options) string {
	t.Helper()
	dir := t.TempDir()
	idx, err := vectorstore.Build(context.Background(), b, testChunks(), tfidf.NewEmbedder(), dir, opts)
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	return dir
}

func TestBuildLoadQuery(t *testing.T) {
	for name, b := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			emb := tfidf.NewEmbedder()
			built, err := vectorstore.Build(ctx, b, testChunks(), emb, dir, vectorstore.Options{Summary: "five sentences"})
			require.NoError(t, err)
			m := built.Manifest()
			assert.Equal(t, len(texts), m.ChunkCount)
			assert.Equal(t, "tfidf", m.Embedder)
			assert.Equal(t, b.Name(), m.Backend)
			assert.NotEmpty(t, m.Checksum)
			assert.Empty(t, m.Signature)

			// every chunk retrieves itself first
			for i, text := range texts {
				got, err := vectorstore.Query(ctx, built, emb, text, 3)
				require.NoError(t, err)
				require.Len(t, got, 3)
				assert.Equal(t, texts[i], got[0].Text)
			}
			want := queryAll(t, built, emb)
			require.NoError(t, built.Close())

			// two independent loads answer exactly like the freshly built index
			for range 2 {
				fresh := tfidf.NewEmbedder()
				loaded, err := vectorstore.Load(ctx, b, dir, fresh, vectorstore.Options{})
				require.NoError(t, err)
				assert.Equal(t, "five sentences", loaded.Manifest().Summary)
				assert.Equal(t, testChunks(), loaded.Chunks())
				assert.Equal(t, want, queryAll(t, loaded, fresh))
				require.NoError(t, loaded.Close())
			}
		})
	}
}

var sampleQueries = append([]string{
	"bidirectional masked language model",
	"attention without recurrence",
	"is the",
}, texts...)

func queryAll(t *testing.T, idx vectorstore.Index, emb embedding.Embedder) [][]domain.Chunk {
	t.Helper()
	out := make([][]domain.Chunk, len(sampleQueries))
	for i, q := range sampleQueries {
		got, err := vectorstore.Query(context.Background(), idx, emb, q, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		out[i] = got
	}
	return out
}

func TestQueryFewerChunksThanK(t *testing.T) {
	for name, b := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			emb := tfidf.NewEmbedder()
			idx, err := vectorstore.Build(ctx, b, testChunks()[:2], emb, t.TempDir(), vectorstore.Options{})
			require.NoError(t, err)
			defer idx.Close()
			got, err := vectorstore.Query(ctx, idx, emb, "attention", 3)
			require.NoError(t, err)
			assert.Len(t, got, 2)
		})
	}
}

func TestSearchFallsBackToWordOverlap(t *testing.T) {
	ctx := context.Background()
	emb := tfidf.NewEmbedder()
	idx, err := vectorstore.Build(ctx, memory.NewBackend(), testChunks(), emb, t.TempDir(), vectorstore.Options{})
	require.NoError(t, err)
	defer idx.Close()

	// only stopwords: the embedding lands in the reserved bucket and scores zero everywhere
	res, err := vectorstore.Search(ctx, idx, emb, "is the", 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, texts[0], res[0].Chunk.Text)
	assert.Greater(t, res[0].Score, 0.0)
}

func TestStopwordQueryIgnoresTermlessChunks(t *testing.T) {
	ctx := context.Background()
	chunks := append(testChunks(), domain.Chunk{DocumentID: "d", ChunkID: "d:5", Source: "d.txt", Text: "12.5 40.1 88.0 | 3 7 9", Index: 5})
	emb := tfidf.NewEmbedder()
	idx, err := vectorstore.Build(ctx, memory.NewBackend(), chunks, emb, t.TempDir(), vectorstore.Options{})
	require.NoError(t, err)
	defer idx.Close()

	res, err := vectorstore.Search(ctx, idx, emb, "is the", 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, texts[0], res[0].Chunk.Text)
	for _, r := range res {
		assert.NotEqual(t, "d:5", r.Chunk.ChunkID)
	}
}

func TestLoadMissingIndex(t *testing.T) {
	_, err := vectorstore.Load(context.Background(), memory.NewBackend(), t.TempDir(), tfidf.NewEmbedder(), vectorstore.Options{})
	assert.ErrorIs(t, err, vectorstore.ErrIndexNotFound)
}

func TestLoadDetectsTampering(t *testing.T) {
	for name, b := range backends() {
		t.Run(name, func(t *testing.T) {
			dir := build(t, b, vectorstore.Options{})
			var target string
			require.NoError(t, filepath.WalkDir(filepath.Join(dir, b.Payload()), func(p string, d os.DirEntry, err error) error {
				if err == nil && d.Type().IsRegular() && target == "" {
					target = p
				}
				return err
			}))
			f, err := os.OpenFile(target, os.O_APPEND|os.O_WRONLY, 0)
			require.NoError(t, err)
			_, err = f.Write([]byte{0x00})
			require.NoError(t, err)
			require.NoError(t, f.Close())

			_, err = vectorstore.Load(context.Background(), b, dir, tfidf.NewEmbedder(), vectorstore.Options{})
			assert.ErrorIs(t, err, vectorstore.ErrDeserialization)
		})
	}
}

func TestLoadVerifiesSignature(t *testing.T) {
	b := memory.NewBackend()
	dir := build(t, b, vectorstore.Options{SigningKey: []byte("secret")})
	m, err := vectorstore.ReadManifest(dir)
	require.NoError(t, err)
	assert.Len(t, m.Signature, 64)

	_, err = vectorstore.Load(context.Background(), b, dir, tfidf.NewEmbedder(), vectorstore.Options{SigningKey: []byte("secret")})
	require.NoError(t, err)
	_, err = vectorstore.Load(context.Background(), b, dir, tfidf.NewEmbedder(), vectorstore.Options{SigningKey: []byte("other")})
	assert.ErrorIs(t, err, vectorstore.ErrDeserialization)
}

func TestSignatureCoversManifestFields(t *testing.T) {
	ctx := context.Background()
	key := []byte("secret")
	b := memory.NewBackend()

	// a vocabulary fitted on other text, as a forger would substitute it
	other := t.TempDir()
	idx, err := vectorstore.Build(ctx, b, testChunks()[:2], tfidf.NewEmbedder(), other, vectorstore.Options{})
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	foreign, err := vectorstore.ReadManifest(other)
	require.NoError(t, err)

	cases := map[string]func(*vectorstore.Manifest){
		"embedder_state": func(m *vectorstore.Manifest) { m.EmbedderState = foreign.EmbedderState },
		"dimension":      func(m *vectorstore.Manifest) { m.Dimension++ },
		"chunk_count":    func(m *vectorstore.Manifest) { m.ChunkCount-- },
		"summary":        func(m *vectorstore.Manifest) { m.Summary = "forged" },
	}
	for name, tamper := range cases {
		t.Run(name, func(t *testing.T) {
			dir := build(t, b, vectorstore.Options{SigningKey: key})
			m, err := vectorstore.ReadManifest(dir)
			require.NoError(t, err)
			tamper(&m)
			data, err := yaml.Marshal(m)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(filepath.Join(dir, vectorstore.ManifestFile), data, 0o644))

			_, err = vectorstore.Load(ctx, b, dir, tfidf.NewEmbedder(), vectorstore.Options{SigningKey: key})
			assert.ErrorIs(t, err, vectorstore.ErrDeserialization)
		})
	}
}

func TestSignedManifestSurvivesRewrite(t *testing.T) {
	key := []byte("secret")
	b := memory.NewBackend()
	dir := build(t, b, vectorstore.Options{SigningKey: key, Summary: "line one\nline two"})
	m, err := vectorstore.ReadManifest(dir)
	require.NoError(t, err)
	data, err := yaml.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorstore.ManifestFile), data, 0o644))

	_, err = vectorstore.Load(context.Background(), b, dir, tfidf.NewEmbedder(), vectorstore.Options{SigningKey: key})
	assert.NoError(t, err)
}

func TestLoadRejectsOtherEmbedder(t *testing.T) {
	b := memory.NewBackend()
	dir := build(t, b, vectorstore.Options{})
	_, err := vectorstore.Load(context.Background(), b, dir, hashEmbedder{name: "fastembed:x", dim: 8}, vectorstore.Options{})
	assert.ErrorIs(t, err, vectorstore.ErrModelMismatch)
}

func TestLoadRejectsDimensionChange(t *testing.T) {
	ctx := context.Background()
	b := memory.NewBackend()
	dir := t.TempDir()
	idx, err := vectorstore.Build(ctx, b, testChunks(), hashEmbedder{name: "hash", dim: 8}, dir, vectorstore.Options{})
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = vectorstore.Load(ctx, b, dir, hashEmbedder{name: "hash", dim: 16}, vectorstore.Options{})
	assert.ErrorIs(t, err, vectorstore.ErrModelMismatch)
	_, err = vectorstore.Load(ctx, chromem.NewBackend(false), dir, hashEmbedder{name: "hash", dim: 8}, vectorstore.Options{})
	assert.ErrorIs(t, err, vectorstore.ErrDeserialization)
}

func TestBuildWithoutChunks(t *testing.T) {
	_, err := vectorstore.Build(context.Background(), memory.NewBackend(), nil, tfidf.NewEmbedder(), t.TempDir(), vectorstore.Options{})
	assert.ErrorIs(t, err, vectorstore.ErrIndexBuild)
}
