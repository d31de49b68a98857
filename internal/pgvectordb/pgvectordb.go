// Package pgvectordb stores chunk embeddings in Postgres with the pgvector
// extension.
package pgvectordb

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"

	"pdf-chat/internal/models"
)

type Chunk struct {
	bun.BaseModel `bun:"table:document_chunks,alias:dc"`
	ID            int64           `bun:"id,pk,autoincrement"`
	DocumentID    string          `bun:"document_id,notnull"`
	Content       string          `bun:"content,notnull"`
	PageNumber    int             `bun:"page_number,notnull"`
	ChunkID       int             `bun:"chunk_id,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,type:vector,notnull"`
	Similarity    float32         `bun:"similarity,scanonly"`
}

type Store struct {
	db         *bun.DB
	dimensions int
}

func New(db *bun.DB, dimensions int) *Store {
	return &Store{db: db, dimensions: dimensions}
}

// InitDB creates the extension, the chunks table and its document index.
func (s *Store) InitDB(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	_, err := s.db.NewCreateTable().Model((*Chunk)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create document_chunks table: %w", err)
	}
	_, err = s.db.NewCreateIndex().
		Model((*Chunk)(nil)).
		Index("document_chunks_document_id_idx").
		IfNotExists().
		Column("document_id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create document_chunks index: %w", err)
	}
	return nil
}

func (s *Store) AddChunks(ctx context.Context, chunks []models.ChunkEmbedding) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	rows := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if s.dimensions > 0 && len(c.Embedding) != s.dimensions {
			return 0, fmt.Errorf("chunk %d of %s has %d dimensions, want %d", c.ChunkID, c.DocumentID, len(c.Embedding), s.dimensions)
		}
		rows = append(rows, Chunk{
			DocumentID: c.DocumentID,
			Content:    c.Content,
			PageNumber: c.PageNumber,
			ChunkID:    c.ChunkID,
			Embedding:  pgvector.NewVector(c.Embedding),
		})
	}
	res, err := s.db.NewInsert().Model(&rows).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("insert chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return len(rows), nil
	}
	return int(n), nil
}

// Search orders by cosine distance inside the document filter.
func (s *Store) Search(ctx context.Context, documentID string, embedding []float32, k int) ([]models.Match, error) {
	var rows []Chunk
	if err := s.searchQuery(&rows, documentID, embedding, k).Scan(ctx); err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	matches := make([]models.Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, models.Match{
			ChunkEmbedding: models.ChunkEmbedding{
				DocumentID: r.DocumentID,
				Content:    r.Content,
				Embedding:  r.Embedding.Slice(),
				PageNumber: r.PageNumber,
				ChunkID:    r.ChunkID,
			},
			Similarity: r.Similarity,
		})
	}
	return matches, nil
}

func (s *Store) searchQuery(rows *[]Chunk, documentID string, embedding []float32, k int) *bun.SelectQuery {
	vec := pgvector.NewVector(embedding)
	return s.db.NewSelect().
		Model(rows).
		Column("document_id", "content", "page_number", "chunk_id", "embedding").
		ColumnExpr("1 - (embedding <=> ?) AS similarity", vec).
		Where("document_id = ?", documentID).
		OrderExpr("embedding <=> ?", vec).
		Limit(k)
}

func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.db.NewDelete().Model((*Chunk)(nil)).Where("document_id = ?", documentID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete chunks of %s: %w", documentID, err)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}
