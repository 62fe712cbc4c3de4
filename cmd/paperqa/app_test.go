package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperqa/internal/config"
)

func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	docs := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "attention.txt"),
		[]byte("The Transformer relies on self-attention.\n\nIt drops recurrence entirely."), 0o644))
	cfg := "documents:\n  dir: " + docs + "\nindex:\n  path: " + filepath.Join(dir, "index") + "\nlog:\n  file: " + filepath.Join(dir, "paperqa.log") + "\n" + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestIndexBuildThenInfo(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "vector_store:\n  type: chromem\n")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfgPath, "index", "build"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "backend: chromem")
	assert.Contains(t, out.String(), "embedder: tfidf")
	assert.NotContains(t, out.String(), "embedder_state")

	out.Reset()
	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfgPath, "index", "info"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "chunk_count: 1")
}

func TestAskRequiresAPIKey(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "llm:\n  api_key_env: TEST_PAPERQA_MISSING_KEY\n")
	t.Setenv("TEST_PAPERQA_MISSING_KEY", "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfgPath, "ask", "Define", "entropy"})
	err := root.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
}

func TestUnknownComponentsAreRejected(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "embedder:\n  type: word2vec\n")
	_, err := newApp(appOptions{configPath: cfgPath})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
