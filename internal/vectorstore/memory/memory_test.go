package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperqa/internal/domain"
)

func TestStorageSearchOrdersBySimilarity(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Init(2))
	chunks := []domain.Chunk{{ChunkID: "a"}, {ChunkID: "b"}, {ChunkID: "c"}}
	require.NoError(t, s.Upsert(chunks, [][]float32{{1, 0}, {0, 1}, {1, 1}}))

	res, err := s.Search(context.Background(), []float32{0, 2}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "b", res[0].Chunk.ChunkID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	assert.Equal(t, "c", res[1].Chunk.ChunkID)

	_, err = s.Search(context.Background(), []float32{1, 2, 3}, 1)
	assert.Error(t, err)
}

func TestStorageRejectsBadInput(t *testing.T) {
	s := NewStorage()
	assert.Error(t, s.Init(0))
	require.NoError(t, s.Init(3))
	assert.Error(t, s.Upsert([]domain.Chunk{{}}, nil))
	assert.Error(t, s.Upsert([]domain.Chunk{{}}, [][]float32{{1}}))
}
