package embedding

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-chat/internal/config"
	"pdf-chat/internal/llmservice"
	"pdf-chat/internal/models"
)

// NewEmbedder creates an embedder backed by the provider in llmConfig.
func NewEmbedder(ctx context.Context, llmConfig *config.LLMConfig) (embeddings.Embedder, error) {
	client, err := llmservice.NewClient(ctx, llmConfig, true)
	if err != nil {
		return nil, fmt.Errorf("init embedding client: %w", err)
	}
	opts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if llmConfig.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(llmConfig.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

// GenerateEmbedding embeds every chunk of a document in one batched call.
func GenerateEmbedding(ctx context.Context, embedder embeddings.Embedder, documentID string, chunks []models.Chunk) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Str("document_id", documentID).Msg("No chunks generated from content")
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	chunkEmbeddings := make([]models.ChunkEmbedding, 0, len(chunks))
	for i, chunk := range chunks {
		chunkEmbeddings = append(chunkEmbeddings, models.ChunkEmbedding{
			DocumentID: documentID,
			Content:    chunk.Content,
			Embedding:  vectors[i],
			PageNumber: chunk.PageNumber,
			ChunkID:    chunk.ChunkID,
		})
	}
	return chunkEmbeddings, nil
}
