// Package vectorstore selects the backend that holds chunk embeddings.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"pdf-chat/internal/chromemdb"
	"pdf-chat/internal/config"
	"pdf-chat/internal/helper"
	"pdf-chat/internal/models"
	"pdf-chat/internal/pgvectordb"
)

// Store persists chunk embeddings and answers similarity searches scoped to
// a single document.
type Store interface {
	AddChunks(ctx context.Context, chunks []models.ChunkEmbedding) (int, error)
	Search(ctx context.Context, documentID string, embedding []float32, k int) ([]models.Match, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Close() error
}

var (
	_ Store = (*chromemdb.VectorDBManager)(nil)
	_ Store = (*pgvectordb.Store)(nil)
)

// New opens the store named by cfg.Type. The pgvector backend shares the
// relational database handle.
func New(ctx context.Context, cfg *config.VectorDBConfig, db *bun.DB) (Store, error) {
	switch cfg.Type {
	case "chromem":
		if !cfg.InMemory {
			if err := helper.CreateFolder(cfg.Path); err != nil {
				return nil, err
			}
		}
		return chromemdb.NewVectorDBManager(chromemdb.Options{
			Path:          cfg.Path,
			Collection:    cfg.Collection,
			InMemory:      cfg.InMemory,
			Compress:      cfg.Compress,
			SnapshotFile:  cfg.SnapshotFile,
			EncryptionKey: cfg.EncryptionKey,
		})
	case "pgvector":
		s := pgvectordb.New(db, cfg.Dimensions)
		if err := s.InitDB(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported vector db type: %s", cfg.Type)
	}
}
