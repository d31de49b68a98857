// Package client talks to a running pdf-chat server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pdf-chat/internal/db"
	"pdf-chat/internal/models"
	"pdf-chat/internal/sse"
)

// APIError is a non-2xx envelope returned by the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// StreamError is an error frame received in place of [DONE].
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return e.Message }

type Document struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      string    `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the server at baseURL. A nil httpClient means
// http.DefaultClient; it must not set a timeout shorter than a chat answer.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// Upload sends the PDF at path.
func (c *Client) Upload(ctx context.Context, path string) (*db.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="pdfFile"; filename=%q`, filepath.Base(path)))
	header.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out envelope[*db.Document]
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) List(ctx context.Context) ([]Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/get-chat-list", nil)
	if err != nil {
		return nil, err
	}
	var out envelope[[]Document]
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) Delete(ctx context.Context, documentID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/documents/"+url.PathEscape(documentID), nil)
	if err != nil {
		return err
	}
	return c.do(req, &envelope[json.RawMessage]{})
}

// Ask returns the complete answer without streaming.
func (c *Client) Ask(ctx context.Context, documentID, message string) (*models.PromptResponse, error) {
	req, err := c.chatRequest(ctx, "/api/ask", documentID, message)
	if err != nil {
		return nil, err
	}
	var out envelope[*models.PromptResponse]
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Chat streams the answer, calling onToken for every token in arrival
// order. It returns a *StreamError when the server ends the stream with an
// error frame.
func (c *Client) Chat(ctx context.Context, documentID, message string, onToken func(string) error) error {
	req, err := c.chatRequest(ctx, "/api/chat", documentID, message)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	r := sse.NewReader(resp.Body)
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		if err != nil {
			return err
		}
		switch {
		case ev.Done:
			return nil
		case ev.Error != "":
			return &StreamError{Message: ev.Error}
		default:
			if err := onToken(ev.Token); err != nil {
				return err
			}
		}
	}
}

func (c *Client) chatRequest(ctx context.Context, path, documentID, message string) (*http.Request, error) {
	payload, err := json.Marshal(map[string]string{
		"message":        message,
		"conversationId": documentID,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var env envelope[json.RawMessage]
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, &env); err != nil || env.Message == "" {
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return &APIError{Status: resp.StatusCode, Message: env.Message}
}
