// Package ingest turns an uploaded PDF into a document record plus its
// embedded chunks, and removes both again.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pdf-chat/internal/db"
	"pdf-chat/internal/embedding"
	"pdf-chat/internal/helper"
	"pdf-chat/internal/parser"
	"pdf-chat/internal/vectorstore"
)

// ErrNotVectorized means the document produced no stored chunks.
var ErrNotVectorized = errors.New("document produced no chunks")

var tracer = otel.Tracer("pdf-chat/internal/ingest")

// Loader extracts page documents from a file.
type Loader func(r io.ReaderAt, size int64) ([]schema.Document, error)

type Service struct {
	repo     *db.DocumentRepo
	store    vectorstore.Store
	embedder embeddings.Embedder
	splitter textsplitter.TextSplitter
	load     Loader
}

func NewService(repo *db.DocumentRepo, store vectorstore.Store, embedder embeddings.Embedder, splitter textsplitter.TextSplitter) *Service {
	return &Service{
		repo:     repo,
		store:    store,
		embedder: embedder,
		splitter: splitter,
		load:     parser.LoadPDF,
	}
}

// Ingest records the document, then loads, splits, embeds and stores its
// chunks. On any failure, or when nothing was stored, the chunks and the
// record are removed before returning.
func (s *Service) Ingest(ctx context.Context, name string, size int64, r io.ReaderAt) (*db.Document, error) {
	ctx, span := tracer.Start(ctx, "ingest.Ingest")
	defer span.End()

	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	doc := &db.Document{ID: id, Name: name, Size: size}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("document.id", id))

	stored, err := s.vectorize(ctx, id, r, size)
	if err == nil && stored == 0 {
		err = ErrNotVectorized
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Str("document_id", id).Str("name", name).Msg("Ingestion failed, removing document")
		s.rollback(context.WithoutCancel(ctx), id)
		return nil, err
	}

	span.SetAttributes(attribute.Int("ingest.chunks", stored))
	log.Info().Str("document_id", id).Str("name", name).Int("chunks", stored).Msg("Document ingested")
	return doc, nil
}

func (s *Service) vectorize(ctx context.Context, documentID string, r io.ReaderAt, size int64) (int, error) {
	pages, err := s.load(r, size)
	if err != nil {
		return 0, err
	}
	chunks, err := parser.SplitPages(pages, s.splitter)
	if err != nil {
		return 0, err
	}
	log.Debug().Str("document_id", documentID).Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Split document")

	chunkEmbeddings, err := embedding.GenerateEmbedding(ctx, s.embedder, documentID, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	return s.store.AddChunks(ctx, chunkEmbeddings)
}

func (s *Service) rollback(ctx context.Context, documentID string) {
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		log.Error().Err(err).Str("document_id", documentID).Msg("Error removing chunks")
	}
	if err := s.repo.DeleteDocument(ctx, documentID); err != nil && !errors.Is(err, db.ErrNotFound) {
		log.Error().Err(err).Str("document_id", documentID).Msg("Error removing document record")
	}
}

// Delete removes every chunk of the document and then its record.
func (s *Service) Delete(ctx context.Context, documentID string) error {
	exists, err := s.repo.DocumentExists(ctx, documentID)
	if err != nil {
		return err
	}
	if !exists {
		return db.ErrNotFound
	}
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := s.repo.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	log.Info().Str("document_id", documentID).Msg("Document deleted")
	return nil
}
