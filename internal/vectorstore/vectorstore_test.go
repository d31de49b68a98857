package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-chat/internal/config"
	"pdf-chat/internal/models"
)

func TestNew_ChromemPersistent(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "vectors")

	store, err := New(ctx, &config.VectorDBConfig{Type: "chromem", Path: dir, Collection: "docs"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	n, err := store.AddChunks(ctx, []models.ChunkEmbedding{
		{DocumentID: "doc-a", ChunkID: 1, Content: "alpha", Embedding: []float32{1, 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.DirExists(t, dir)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(context.Background(), &config.VectorDBConfig{Type: "milvus"}, nil)
	assert.Error(t, err)
}
