package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"pdf-chat/internal/apierr"
	"pdf-chat/internal/db"
	"pdf-chat/internal/helper"
	"pdf-chat/internal/ingest"
	"pdf-chat/internal/models"
	"pdf-chat/internal/parser"
	"pdf-chat/internal/rag"
)

const (
	uploadField    = "pdfFile"
	pdfContentType = "application/pdf"
	streamBufSize  = 4096
)

// Documents reads document records.
type Documents interface {
	DocumentExists(ctx context.Context, id string) (bool, error)
	ListDocuments(ctx context.Context) ([]db.Document, error)
}

// Chatter answers questions about one document.
type Chatter interface {
	Stream(ctx context.Context, documentID, message string) io.ReadCloser
	Query(ctx context.Context, documentID, message string) (*models.PromptResponse, error)
}

// Ingester adds and removes documents.
type Ingester interface {
	Ingest(ctx context.Context, name string, size int64, r io.ReaderAt) (*db.Document, error)
	Delete(ctx context.Context, documentID string) error
}

// Pinger reports database reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	docs           Documents
	chat           Chatter
	ingest         Ingester
	db             Pinger
	maxUploadBytes int64
}

func NewHandler(docs Documents, chat Chatter, ingester Ingester, pinger Pinger, maxUploadBytes int64) *Handler {
	return &Handler{
		docs:           docs,
		chat:           chat,
		ingest:         ingester,
		db:             pinger,
		maxUploadBytes: maxUploadBytes,
	}
}

type chatRequest struct {
	Message        string `json:"message" binding:"required,notblank"`
	ConversationID string `json:"conversationId" binding:"required,notblank"`
}

type documentView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      string    `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// bindChat validates the body and that the document exists.
func (h *Handler) bindChat(c *gin.Context) (*chatRequest, bool) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return nil, false
	}
	exists, err := h.docs.DocumentExists(c.Request.Context(), req.ConversationID)
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}
	if !exists {
		_ = c.Error(apierr.NotFound("File not found"))
		return nil, false
	}
	return &req, true
}

// Chat streams the answer as server-sent events.
func (h *Handler) Chat(c *gin.Context) {
	req, ok := h.bindChat(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	stream := h.chat.Stream(ctx, req.ConversationID, req.Message)
	defer stream.Close()
	// unblocks the copy loop and the producer once the client goes away
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	buf := make([]byte, streamBufSize)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				log.Debug().Err(werr).Str("document_id", req.ConversationID).Msg("Client went away")
				return
			}
			c.Writer.Flush()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("document_id", req.ConversationID).Msg("Stream closed")
			}
			return
		}
	}
}

// Ask returns the whole answer in one response.
func (h *Handler) Ask(c *gin.Context) {
	req, ok := h.bindChat(c)
	if !ok {
		return
	}
	resp, err := h.chat.Query(c.Request.Context(), req.ConversationID, req.Message)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuery) {
			_ = c.Error(apierr.New(http.StatusBadRequest, "message cannot be empty", err))
			return
		}
		_ = c.Error(apierr.New(http.StatusBadGateway, "Failed to generate answer", err))
		return
	}
	respondOK(c, "Answer generated successfully", resp)
}

func (h *Handler) Upload(c *gin.Context) {
	sizeMessage := fmt.Sprintf("File must be less than %gMB", float64(h.maxUploadBytes)/(1<<20))
	// leave room for the multipart envelope around the file
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)

	fh, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = c.Error(apierr.New(http.StatusBadRequest, sizeMessage, err))
			return
		}
		_ = c.Error(apierr.New(http.StatusBadRequest, "File is required", err))
		return
	}
	switch {
	case fh.Size == 0:
		_ = c.Error(apierr.BadRequest("File is required"))
		return
	case fh.Header.Get("Content-Type") != pdfContentType:
		_ = c.Error(apierr.BadRequest("Only PDF files are allowed"))
		return
	case fh.Size > h.maxUploadBytes:
		_ = c.Error(apierr.BadRequest(sizeMessage))
		return
	}

	f, err := fh.Open()
	if err != nil {
		_ = c.Error(err)
		return
	}
	defer f.Close()

	doc, err := h.ingest.Ingest(c.Request.Context(), fh.Filename, fh.Size, f)
	switch {
	case errors.Is(err, ingest.ErrNotVectorized):
		_ = c.Error(apierr.New(http.StatusUnauthorized, "File not uploaded to vector store", err))
		return
	case errors.Is(err, parser.ErrInvalidPDF):
		_ = c.Error(apierr.New(http.StatusBadRequest, "Invalid PDF file", err))
		return
	case err != nil:
		_ = c.Error(apierr.New(http.StatusBadGateway, "File not uploaded to vector store", err))
		return
	}
	respondOK(c, "Uploaded completed successfully", doc)
}

// List returns every document, newest first, with human readable sizes.
func (h *Handler) List(c *gin.Context) {
	docs, err := h.docs.ListDocuments(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	views := make([]documentView, 0, len(docs))
	for _, d := range docs {
		views = append(views, documentView{
			ID:        d.ID,
			Name:      d.Name,
			Size:      helper.FormatFileSize(d.Size),
			CreatedAt: d.CreatedAt,
		})
	}
	respondOK(c, "Data fetched successfully", views)
}

func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.ingest.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			_ = c.Error(apierr.New(http.StatusNotFound, "File not found", err))
			return
		}
		_ = c.Error(err)
		return
	}
	respondOK(c, "File deleted successfully", gin.H{"id": id})
}

func (h *Handler) Health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.PingContext(c.Request.Context()); err != nil {
			_ = c.Error(apierr.New(http.StatusServiceUnavailable, "Database unavailable", err))
			return
		}
	}
	respondOK(c, "OK", nil)
}
