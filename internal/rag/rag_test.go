package rag

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"pdf-chat/internal/chromemdb"
	"pdf-chat/internal/config"
	"pdf-chat/internal/models"
	"pdf-chat/internal/sse"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (e fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, e.err
}

func (e fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return e.vec, e.err
}

// fakeModel streams chunks through the callback and records the prompt.
type fakeModel struct {
	chunks []string
	err    error
	panics bool

	mu       sync.Mutex
	messages []llms.MessageContent
	returned chan error
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (resp *llms.ContentResponse, err error) {
	m.mu.Lock()
	m.messages = messages
	m.mu.Unlock()
	if m.returned != nil {
		defer func() { m.returned <- err }()
	}
	if m.panics {
		panic("provider exploded")
	}

	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	var full strings.Builder
	for _, c := range m.chunks {
		if opts.StreamingFunc != nil {
			if err := opts.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
		full.WriteString(c)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: full.String()}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *fakeModel) prompt() []llms.MessageContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages
}

// leakyStore ignores the document filter.
type leakyStore struct {
	matches []models.Match
}

func (s leakyStore) AddChunks(context.Context, []models.ChunkEmbedding) (int, error) { return 0, nil }
func (s leakyStore) Search(context.Context, string, []float32, int) ([]models.Match, error) {
	return s.matches, nil
}
func (s leakyStore) DeleteDocument(context.Context, string) error { return nil }
func (s leakyStore) Close() error                                 { return nil }

func testConfig() *config.Config {
	return config.Default()
}

func newStore(t *testing.T, chunks ...models.ChunkEmbedding) *chromemdb.VectorDBManager {
	t.Helper()
	store, err := chromemdb.NewVectorDBManager(chromemdb.Options{Collection: "rag", InMemory: true})
	require.NoError(t, err)
	if len(chunks) > 0 {
		_, err = store.AddChunks(context.Background(), chunks)
		require.NoError(t, err)
	}
	return store
}

func readAll(t *testing.T, rc io.ReadCloser) []sse.Event {
	t.Helper()
	defer rc.Close()
	var events []sse.Event
	r := sse.NewReader(rc)
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func systemText(t *testing.T, msgs []llms.MessageContent) string {
	t.Helper()
	require.NotEmpty(t, msgs)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	text, ok := msgs[0].Parts[0].(llms.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestRetrieve_ScopedToDocument(t *testing.T) {
	store := newStore(t,
		models.ChunkEmbedding{DocumentID: "doc-a", Content: "a1", Embedding: []float32{0.5, 0.5}, ChunkID: 1},
		models.ChunkEmbedding{DocumentID: "doc-b", Content: "b1", Embedding: []float32{1, 0}, ChunkID: 1},
		models.ChunkEmbedding{DocumentID: "doc-b", Content: "b2", Embedding: []float32{0.99, 0.01}, ChunkID: 2},
	)
	r := NewRAG(store, fakeEmbedder{vec: []float32{1, 0}}, &fakeModel{}, testConfig())

	matches, err := r.Retrieve(context.Background(), "doc-a", "question")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a1", matches[0].Content)
}

func TestRetrieve_DropsForeignMatches(t *testing.T) {
	store := leakyStore{matches: []models.Match{
		{ChunkEmbedding: models.ChunkEmbedding{DocumentID: "doc-b", Content: "foreign"}, Similarity: 0.99},
		{ChunkEmbedding: models.ChunkEmbedding{DocumentID: "doc-a", Content: "own"}, Similarity: 0.5},
	}}
	r := NewRAG(store, fakeEmbedder{vec: []float32{1}}, &fakeModel{}, testConfig())

	matches, err := r.Retrieve(context.Background(), "doc-a", "question")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "own", matches[0].Content)
}

func TestRetrieve_Errors(t *testing.T) {
	r := NewRAG(newStore(t), fakeEmbedder{err: errors.New("quota exceeded")}, &fakeModel{}, testConfig())

	_, err := r.Retrieve(context.Background(), "doc-a", "  ")
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = r.Retrieve(context.Background(), "doc-a", "question")
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestBuildContext(t *testing.T) {
	assert.Equal(t, "", BuildContext(nil))
	assert.Equal(t, "one\n\ntwo", BuildContext([]models.Match{
		{ChunkEmbedding: models.ChunkEmbedding{Content: "one"}},
		{ChunkEmbedding: models.ChunkEmbedding{Content: "two"}},
	}))
}

func TestStream_TokensThenDone(t *testing.T) {
	store := newStore(t, models.ChunkEmbedding{DocumentID: "doc-a", Content: "greeting section", Embedding: []float32{1, 0}, ChunkID: 1})
	model := &fakeModel{chunks: []string{"Hel", "", "lo"}}
	r := NewRAG(store, fakeEmbedder{vec: []float32{1, 0}}, model, testConfig())

	events := readAll(t, r.Stream(context.Background(), "doc-a", "say hello"))

	assert.Equal(t, []sse.Event{{Token: "Hel"}, {Token: "lo"}, {Done: true}}, events)

	msgs := model.prompt()
	assert.Contains(t, systemText(t, msgs), "greeting section")
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, llms.TextContent{Text: "say hello"}, msgs[1].Parts[0])
}

func TestStream_EmptyContextStillAsksModel(t *testing.T) {
	model := &fakeModel{chunks: []string{models.FallbackAnswer}}
	r := NewRAG(newStore(t), fakeEmbedder{vec: []float32{1, 0}}, model, testConfig())

	events := readAll(t, r.Stream(context.Background(), "doc-a", "unrelated"))

	require.Len(t, events, 2)
	assert.Equal(t, models.FallbackAnswer, events[0].Token)
	assert.True(t, events[1].Done)
	text := systemText(t, model.prompt())
	assert.Contains(t, text, "Context:")
	assert.NotContains(t, text, "{context}")
}

func TestStream_ModelErrorMidStream(t *testing.T) {
	model := &fakeModel{chunks: []string{"Hel"}, err: errors.New("upstream reset")}
	r := NewRAG(newStore(t), fakeEmbedder{vec: []float32{1, 0}}, model, testConfig())

	events := readAll(t, r.Stream(context.Background(), "doc-a", "q"))

	assert.Equal(t, []sse.Event{{Token: "Hel"}, {Error: "upstream reset"}}, events)
}

func TestStream_RetrievalErrorIsTerminalFrame(t *testing.T) {
	model := &fakeModel{chunks: []string{"never"}}
	r := NewRAG(newStore(t), fakeEmbedder{err: errors.New("embedder down")}, model, testConfig())

	events := readAll(t, r.Stream(context.Background(), "doc-a", "q"))

	require.Len(t, events, 1)
	assert.Contains(t, events[0].Error, "embedder down")
	assert.Nil(t, model.prompt())
}

func TestStream_PanicBecomesErrorFrame(t *testing.T) {
	r := NewRAG(newStore(t), fakeEmbedder{vec: []float32{1, 0}}, &fakeModel{panics: true}, testConfig())

	events := readAll(t, r.Stream(context.Background(), "doc-a", "q"))

	assert.Equal(t, []sse.Event{{Error: "provider exploded"}}, events)
}

func TestStream_ConsumerCloseStopsProducer(t *testing.T) {
	model := &fakeModel{
		chunks:   []string{"one", "two", "three", "four"},
		returned: make(chan error, 1),
	}
	r := NewRAG(newStore(t), fakeEmbedder{vec: []float32{1, 0}}, model, testConfig())

	rc := r.Stream(context.Background(), "doc-a", "q")
	ev, err := sse.NewReader(rc).Next()
	require.NoError(t, err)
	assert.Equal(t, "one", ev.Token)
	require.NoError(t, rc.Close())

	assert.ErrorIs(t, <-model.returned, io.ErrClosedPipe)
}

func TestQuery(t *testing.T) {
	store := newStore(t, models.ChunkEmbedding{DocumentID: "doc-a", Content: "the answer is 42", Embedding: []float32{1, 0}, ChunkID: 1})
	model := &fakeModel{chunks: []string{"It is ", "42."}}
	r := NewRAG(store, fakeEmbedder{vec: []float32{1, 0}}, model, testConfig())

	resp, err := r.Query(context.Background(), "doc-a", "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, "what is the answer?", resp.Query)
	assert.Equal(t, "the answer is 42", resp.Source)
	assert.Equal(t, "It is 42.", resp.Content)

	msgs := model.prompt()
	system := systemText(t, msgs)
	assert.Contains(t, system, "Context:\nthe answer is 42")
	assert.NotContains(t, system, "{context}")
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, llms.TextContent{Text: "what is the answer?"}, msgs[1].Parts[0])
}

func TestQuery_CustomSystemPrompt(t *testing.T) {
	store := newStore(t,
		models.ChunkEmbedding{DocumentID: "doc-a", Content: "first", Embedding: []float32{1, 0}, ChunkID: 1},
		models.ChunkEmbedding{DocumentID: "doc-a", Content: "second", Embedding: []float32{0.9, 0.1}, ChunkID: 2},
	)
	cfg := testConfig()
	cfg.RAG.SystemPrompt = "Facts {{verbatim}}:\n{context}"
	model := &fakeModel{chunks: []string{"ok"}}
	r := NewRAG(store, fakeEmbedder{vec: []float32{1, 0}}, model, cfg)

	_, err := r.Query(context.Background(), "doc-a", "{input} stays literal")
	require.NoError(t, err)

	msgs := model.prompt()
	assert.Equal(t, "Facts {verbatim}:\nfirst\n\nsecond", systemText(t, msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.TextContent{Text: "{input} stays literal"}, msgs[1].Parts[0])
}
