package parser

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"

	"pdf-chat/internal/config"
)

// buildPDF writes a minimal single-font PDF with one text line per page.
func buildPDF(pages ...string) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, text := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestLoadPDF(t *testing.T) {
	data := buildPDF("Hello from page one", "Second page text")

	docs, err := LoadPDF(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0].PageContent, "Hello from page one")
	assert.Equal(t, 1, docs[0].Metadata[metaPage])
	assert.Equal(t, 2, docs[1].Metadata[metaPage])
	assert.Equal(t, 2, docs[1].Metadata[metaTotalPages])
}

func TestLoadPDF_NotAPDF(t *testing.T) {
	data := []byte("this is just a text file, not a pdf")

	_, err := LoadPDF(bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, ErrInvalidPDF)
}

func TestSplitPages_NumbersChunksAcrossPages(t *testing.T) {
	splitter, err := NewSplitter(&config.RAGConfig{Splitter: "recursive", ChunkSize: 20, ChunkOverlap: 0})
	require.NoError(t, err)

	pages := []schema.Document{
		{PageContent: "alpha beta gamma delta epsilon zeta", Metadata: map[string]any{metaPage: 1}},
		{PageContent: "   ", Metadata: map[string]any{metaPage: 2}},
		{PageContent: "eta theta", Metadata: map[string]any{metaPage: 3}},
	}
	chunks, err := SplitPages(pages, splitter)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 3)

	for i, c := range chunks {
		assert.Equal(t, i+1, c.ChunkID)
		assert.LessOrEqual(t, len(c.Content), 20)
		assert.NotEmpty(t, c.Content)
	}
	last := chunks[len(chunks)-1]
	assert.Equal(t, "eta theta", last.Content)
	assert.Equal(t, 3, last.PageNumber)
	assert.Equal(t, 1, chunks[0].PageNumber)
}

func TestNewSplitter_Unknown(t *testing.T) {
	_, err := NewSplitter(&config.RAGConfig{Splitter: "semantic"})
	assert.Error(t, err)
}

func TestWindowSplitter(t *testing.T) {
	s := WindowSplitter{ChunkSize: 10, ChunkOverlap: 3}

	parts, err := s.SplitText("short")
	require.NoError(t, err)
	assert.Equal(t, []string{"short"}, parts)

	parts, err = s.SplitText("   ")
	require.NoError(t, err)
	assert.Empty(t, parts)

	text := "abcdefghijklmnopqrstuvwxyz"
	parts, err = s.SplitText(text)
	require.NoError(t, err)
	assert.Equal(t, []string{"abcdefghij", "hijklmnopq", "opqrstuvwx", "vwxyz"}, parts)
}

func TestWindowSplitter_CoversWholeText(t *testing.T) {
	s := WindowSplitter{ChunkSize: 40, ChunkOverlap: 0}
	text := strings.Repeat("word ", 50)

	parts, err := s.SplitText(text)
	require.NoError(t, err)
	assert.Equal(t, strings.Count(text, "word"), strings.Count(strings.Join(parts, " "), "word"))
}

func TestWindowSplitter_MultibyteText(t *testing.T) {
	s := WindowSplitter{ChunkSize: 11, ChunkOverlap: 3}

	parts, err := s.SplitText(strings.Repeat("é", 50))
	require.NoError(t, err)
	require.Len(t, parts, 6)
	for i, p := range parts {
		assert.True(t, utf8.ValidString(p), "chunk %d is not valid UTF-8: %q", i, p)
	}
	assert.Equal(t, strings.Repeat("é", 11), parts[0])
	assert.Equal(t, strings.Repeat("é", 10), parts[5])

	parts, err = s.SplitText("日本語のテキストを分割します。次の文です。")
	require.NoError(t, err)
	for _, p := range parts {
		assert.True(t, utf8.ValidString(p))
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 11)
	}
	assert.Equal(t, "日本語のテキストを分割", parts[0])
}
