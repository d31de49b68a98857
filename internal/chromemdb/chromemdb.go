package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"pdf-chat/internal/models"
)

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	inMemory      bool
	snapshot      bool
	compress      bool
	encryptionKey string
	filePath      string
}

// Options configures NewVectorDBManager.
type Options struct {
	Path          string
	Collection    string
	InMemory      bool
	Compress      bool
	SnapshotFile  string
	EncryptionKey string
}

// NewVectorDBManager opens the database and its collection. An in-memory
// database is restored from the snapshot file when one exists.
func NewVectorDBManager(opts Options) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if opts.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	filePath := opts.SnapshotFile
	if filePath == "" && opts.Path != "" {
		filePath = filepath.Join(opts.Path, opts.Collection+".chromem")
	}
	m := &VectorDBManager{
		db:            db,
		inMemory:      opts.InMemory,
		snapshot:      opts.SnapshotFile != "",
		compress:      opts.Compress,
		encryptionKey: opts.EncryptionKey,
		filePath:      filePath,
	}

	if m.inMemory && m.snapshot {
		if _, err := os.Stat(opts.SnapshotFile); err == nil {
			if err := m.Import(opts.Collection); err != nil {
				return nil, err
			}
			log.Info().Str("file", opts.SnapshotFile).Msg("Imported vector snapshot")
		}
	}

	if _, err := m.GetOrCreateCollection(opts.Collection); err != nil {
		return nil, err
	}
	return m, nil
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	// embeddings are always computed by the caller, the collection never embeds on its own
	c, err := m.db.GetOrCreateCollection(collectionName, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromemdb: documents must carry precomputed embeddings")
}

// AddChunks stores chunks under deterministic ids derived from the owning
// document and the chunk position.
func (m *VectorDBManager) AddChunks(ctx context.Context, chunks []models.ChunkEmbedding) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:      fmt.Sprintf("%s-%d", c.DocumentID, c.ChunkID),
			Content: c.Content,
			Metadata: map[string]string{
				models.MetaDocumentID: c.DocumentID,
				models.MetaPageNumber: strconv.Itoa(c.PageNumber),
				models.MetaChunkID:    strconv.Itoa(c.ChunkID),
			},
			Embedding: c.Embedding,
		})
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("failed to add documents: %w", err)
	}
	return len(docs), nil
}

// Search returns the k chunks of documentID most similar to embedding.
func (m *VectorDBManager) Search(ctx context.Context, documentID string, embedding []float32, k int) ([]models.Match, error) {
	if len(embedding) == 0 {
		return nil, errors.New("query embedding must be provided")
	}
	// chromem rejects k above the collection size, even when the filter narrows it further
	n := min(k, m.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: embedding,
		NResults:       n,
		Where:          map[string]string{models.MetaDocumentID: documentID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	matches := make([]models.Match, 0, len(results))
	for _, r := range results {
		page, _ := strconv.Atoi(r.Metadata[models.MetaPageNumber])
		chunkID, _ := strconv.Atoi(r.Metadata[models.MetaChunkID])
		matches = append(matches, models.Match{
			ChunkEmbedding: models.ChunkEmbedding{
				DocumentID: r.Metadata[models.MetaDocumentID],
				Content:    r.Content,
				Embedding:  r.Embedding,
				PageNumber: page,
				ChunkID:    chunkID,
			},
			Similarity: r.Similarity,
		})
	}
	return matches, nil
}

// DeleteDocument removes every chunk of documentID.
func (m *VectorDBManager) DeleteDocument(ctx context.Context, documentID string) error {
	err := m.collection.Delete(ctx, map[string]string{models.MetaDocumentID: documentID}, nil)
	if err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", documentID, err)
	}
	return nil
}

func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

// export to file
func (m *VectorDBManager) Export() error {
	if m.collection == nil {
		return errors.New("collection is required")
	}
	if m.filePath == "" {
		return errors.New("snapshot file is required")
	}

	log.Debug().
		Str("collection", m.collection.Name).
		Str("file", m.filePath).
		Bool("compress", m.compress).
		Bool("encrypted", m.encryptionKey != "").
		Msg("Exporting vector collection")
	err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.collection.Name)
	if err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// import from file
func (m *VectorDBManager) Import(collectionName string) error {
	err := m.db.ImportFromFile(m.filePath, m.encryptionKey, collectionName)
	if err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	return nil
}

// Close exports in-memory data to the snapshot file when one is configured.
func (m *VectorDBManager) Close() error {
	if !m.inMemory || !m.snapshot {
		return nil
	}
	return m.Export()
}
