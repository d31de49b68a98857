// Package transcript keeps chat history on disk, one JSON file per
// document.
package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"pdf-chat/internal/helper"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// FailedAnswer replaces the assistant entry of a failed exchange.
	FailedAnswer = "Sorry, I encountered an error. Please try again."
)

type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// Store reads and writes transcripts under a directory. Transcripts grow
// without bound.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(documentID string) (string, error) {
	if documentID == "" || documentID != filepath.Base(documentID) || strings.HasPrefix(documentID, ".") {
		return "", fmt.Errorf("invalid document id %q", documentID)
	}
	return filepath.Join(s.dir, documentID+".json"), nil
}

// Load returns the transcript of documentID, empty when none was saved.
func (s *Store) Load(documentID string) ([]Message, error) {
	path, err := s.path(documentID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse transcript %s: %w", path, err)
	}
	return msgs, nil
}

// Save replaces the transcript of documentID.
func (s *Store) Save(documentID string, msgs []Message) error {
	path, err := s.path(documentID)
	if err != nil {
		return err
	}
	if err := helper.CreateFolder(s.dir); err != nil {
		return err
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, documentID+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Append adds msgs to the stored transcript.
func (s *Store) Append(documentID string, msgs ...Message) error {
	existing, err := s.Load(documentID)
	if err != nil {
		return err
	}
	return s.Save(documentID, append(existing, msgs...))
}

// Delete removes the transcript of documentID if there is one.
func (s *Store) Delete(documentID string) error {
	path, err := s.path(documentID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
	),
)

// RenderMarkdown converts an assistant answer to HTML.
func RenderMarkdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

var page = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Entries}}<div class="message {{.Role}}">
{{if .HTML}}{{.HTML}}{{else}}<p>{{.Text}}</p>{{end}}
</div>
{{end}}</body>
</html>
`))

type entry struct {
	Role string
	Text string
	HTML template.HTML
}

// ExportHTML writes msgs as a standalone page. User messages are escaped,
// assistant messages are rendered from Markdown.
func ExportHTML(w io.Writer, title string, msgs []Message) error {
	entries := make([]entry, 0, len(msgs))
	for _, m := range msgs {
		e := entry{Role: m.Role, Text: m.Content}
		if m.Role == RoleAssistant {
			rendered, err := RenderMarkdown(m.Content)
			if err != nil {
				return err
			}
			e.HTML = rendered
		}
		entries = append(entries, e)
	}
	return page.Execute(w, struct {
		Title   string
		Entries []entry
	}{Title: title, Entries: entries})
}
