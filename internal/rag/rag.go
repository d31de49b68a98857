package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pdf-chat/internal/config"
	"pdf-chat/internal/llmservice"
	"pdf-chat/internal/models"
	"pdf-chat/internal/sse"
	"pdf-chat/internal/vectorstore"
)

// ErrEmptyQuery is returned for a blank question.
var ErrEmptyQuery = errors.New("query must not be empty")

var tracer = otel.Tracer("pdf-chat/internal/rag")

type RAG struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	llm      llms.Model
	cfg      *config.Config
	prompt   prompts.ChatPromptTemplate
}

func NewRAG(store vectorstore.Store, embedder embeddings.Embedder, llm llms.Model, cfg *config.Config) *RAG {
	system := cfg.RAG.SystemPrompt
	if system == "" {
		system = models.SystemPromptTemplate
	}
	return &RAG{
		store:    store,
		embedder: embedder,
		llm:      llm,
		cfg:      cfg,
		prompt: prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
			prompts.SystemMessagePromptTemplate{Prompt: fstring(system, "context")},
			prompts.HumanMessagePromptTemplate{Prompt: fstring("{input}", "input")},
		}),
	}
}

// fstring builds a template with {name} placeholders. The langchaingo
// constructors default to Go templates, which leave them unrendered.
func fstring(template string, vars ...string) prompts.PromptTemplate {
	return prompts.PromptTemplate{
		Template:       template,
		InputVariables: vars,
		TemplateFormat: prompts.TemplateFormatFString,
	}
}

// Retrieve returns the top-k chunks of documentID for query, most similar
// first. Matches belonging to any other document are dropped.
func (r *RAG) Retrieve(ctx context.Context, documentID, query string) ([]models.Match, error) {
	ctx, span := tracer.Start(ctx, "rag.Retrieve", trace.WithAttributes(
		attribute.String("document.id", documentID),
		attribute.Int("rag.top_k", r.cfg.RAG.TopK),
	))
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	queryEmbedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.store.Search(ctx, documentID, queryEmbedding, r.cfg.RAG.TopK)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	scoped := make([]models.Match, 0, len(matches))
	for _, m := range matches {
		if m.DocumentID != documentID {
			log.Warn().
				Str("document_id", documentID).
				Str("match_document_id", m.DocumentID).
				Int("chunk_id", m.ChunkID).
				Msg("Dropping chunk of another document")
			continue
		}
		scoped = append(scoped, m)
	}
	span.SetAttributes(attribute.Int("rag.matches", len(scoped)))
	return scoped, nil
}

// BuildContext joins the chunk texts separated by a blank line.
func BuildContext(matches []models.Match) string {
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = m.Content
	}
	return strings.Join(parts, models.ContextSeparator)
}

func (r *RAG) messages(contextText, query string) ([]llms.MessageContent, error) {
	chatMessages, err := r.prompt.FormatMessages(map[string]any{
		"context": contextText,
		"input":   query,
	})
	if err != nil {
		return nil, fmt.Errorf("format prompt: %w", err)
	}
	msgs := make([]llms.MessageContent, 0, len(chatMessages))
	for _, m := range chatMessages {
		msgs = append(msgs, llms.TextParts(m.GetType(), m.GetContent()))
	}
	return msgs, nil
}

// Query answers message in one call and returns the context used as source.
func (r *RAG) Query(ctx context.Context, documentID, message string) (*models.PromptResponse, error) {
	ctx, span := tracer.Start(ctx, "rag.Query", trace.WithAttributes(attribute.String("document.id", documentID)))
	defer span.End()

	matches, err := r.Retrieve(ctx, documentID, message)
	if err != nil {
		return nil, err
	}
	contextText := BuildContext(matches)

	msgs, err := r.messages(contextText, message)
	if err != nil {
		return nil, err
	}
	resp, err := llmservice.GenerateContent(ctx, r.llm, &r.cfg.ChatLLM, msgs)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("generate answer: model returned no choices")
	}

	return &models.PromptResponse{
		Query:   message,
		Source:  contextText,
		Content: resp.Choices[0].Content,
	}, nil
}

// Stream answers message as an event stream. It returns at once; the
// answer is produced in the background and ends with exactly one [DONE] or
// error frame. Closing the returned reader stops the producer at its next
// write.
func (r *RAG) Stream(ctx context.Context, documentID, message string) io.ReadCloser {
	pr, pw := io.Pipe()
	go r.produce(ctx, pw, documentID, message)
	return pr
}

func (r *RAG) produce(ctx context.Context, pw *io.PipeWriter, documentID, message string) {
	ctx, span := tracer.Start(ctx, "rag.Stream", trace.WithAttributes(attribute.String("document.id", documentID)))
	w := sse.NewWriter(pw)
	tokens := 0

	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%v", p)
			log.Error().Interface("panic", p).Str("document_id", documentID).Msg("Stream producer panicked")
		}
		if err != nil {
			recordError(span, err)
			log.Error().Err(err).Str("document_id", documentID).Int("tokens", tokens).Msg("Chat stream failed")
			// fails silently once the consumer has gone away
			_ = w.WriteError(err.Error())
		}
		span.SetAttributes(attribute.Int("rag.tokens", tokens))
		span.End()
		pw.Close()
	}()

	matches, err := r.Retrieve(ctx, documentID, message)
	if err != nil {
		return
	}
	msgs, err := r.messages(BuildContext(matches), message)
	if err != nil {
		return
	}

	err = llmservice.StreamContent(ctx, r.llm, &r.cfg.ChatLLM, msgs, func(token string) error {
		tokens++
		return w.WriteToken(token)
	})
	if err != nil {
		return
	}
	err = w.WriteDone()
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
