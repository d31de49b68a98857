package parser

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"pdf-chat/internal/config"
	"pdf-chat/internal/models"
)

// ErrInvalidPDF reports input the PDF reader could not make sense of.
var ErrInvalidPDF = errors.New("invalid PDF file")

const (
	metaPage       = "page"
	metaTotalPages = "total_pages"
)

// LoadPDF extracts the plain text of every page. Pages without text are
// skipped.
func LoadPDF(r io.ReaderAt, size int64) (docs []schema.Document, err error) {
	// the reader panics on some malformed cross reference tables
	defer func() {
		if p := recover(); p != nil {
			docs, err = nil, fmt.Errorf("%w: %v", ErrInvalidPDF, p)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrInvalidPDF, i, err)
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		docs = append(docs, schema.Document{
			PageContent: pageText,
			Metadata: map[string]any{
				metaPage:       i,
				metaTotalPages: numPages,
			},
		})
	}
	return docs, nil
}

// NewSplitter returns the splitter named in cfg.Splitter.
func NewSplitter(cfg *config.RAGConfig) (textsplitter.TextSplitter, error) {
	switch cfg.Splitter {
	case "", "recursive":
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		), nil
	case "window":
		return WindowSplitter{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap}, nil
	default:
		return nil, fmt.Errorf("unsupported splitter: %s", cfg.Splitter)
	}
}

// SplitPages splits page documents into chunks. ChunkID numbers chunks
// from 1 across the whole document.
func SplitPages(pages []schema.Document, splitter textsplitter.TextSplitter) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, page := range pages {
		pageNumber, _ := page.Metadata[metaPage].(int)
		parts, err := splitter.SplitText(page.PageContent)
		if err != nil {
			return nil, fmt.Errorf("split page %d: %w", pageNumber, err)
		}
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			chunks = append(chunks, models.Chunk{
				Content:    part,
				PageNumber: pageNumber,
				ChunkID:    len(chunks) + 1,
			})
		}
	}
	return chunks, nil
}

// WindowSplitter cuts text into fixed windows of ChunkSize runes that overlap
// by ChunkOverlap runes, preferring to end a window on a space, newline or
// full stop found in its last tenth.
type WindowSplitter struct {
	ChunkSize    int
	ChunkOverlap int
}

func (s WindowSplitter) SplitText(text string) ([]string, error) {
	return chunkContent(text, s.ChunkSize, s.ChunkOverlap), nil
}

// chunk content into chunks with maxChars and overlapChars, counted in runes
func chunkContent(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}

	runes := []rune(strings.TrimSpace(content))
	contentLen := len(runes)
	if contentLen == 0 {
		return nil
	}
	if contentLen <= maxChars {
		return []string{string(runes)}
	}

	var chunks []string
	start := 0
	for start < contentLen {
		end := min(start+maxChars, contentLen)

		if end < contentLen {
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '.' {
					end = i + 1
					break
				}
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == contentLen {
			break
		}
		next := end - overlapChars
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}
