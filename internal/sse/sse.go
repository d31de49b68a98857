// Package sse encodes and decodes the chat event stream. Every frame is a
// single data line followed by a blank line:
//
//	data: {"token":"..."}
//	data: {"error":"..."}
//	data: [DONE]
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	doneMarker     = "[DONE]"
	dataPrefix     = "data:"
	DefaultMessage = "Something went wrong"
)

type tokenFrame struct {
	Token string `json:"token"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// Writer writes frames to an underlying writer. It is not safe for
// concurrent use.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) WriteToken(token string) error {
	return w.writeJSON(tokenFrame{Token: token})
}

// WriteError writes the terminal error frame. An empty message is replaced
// with DefaultMessage.
func (w *Writer) WriteError(message string) error {
	if strings.TrimSpace(message) == "" {
		message = DefaultMessage
	}
	return w.writeJSON(errorFrame{Error: message})
}

func (w *Writer) WriteDone() error {
	return w.writeData(doneMarker)
}

func (w *Writer) writeJSON(v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return w.writeData(strings.TrimRight(buf.String(), "\n"))
}

func (w *Writer) writeData(data string) error {
	_, err := fmt.Fprintf(w.w, "%s %s\n\n", dataPrefix, data)
	return err
}

// Event is one decoded frame. Exactly one of the fields is set.
type Event struct {
	Token string
	Error string
	Done  bool
}

// Reader decodes frames from a stream.
type Reader struct {
	br *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next returns the next event. It returns io.EOF once the stream ends
// without a pending frame, and io.ErrUnexpectedEOF when it ends inside one.
func (r *Reader) Next() (Event, error) {
	var dataLines []string
	for {
		line, err := r.br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, err
		}
		eof := err != nil
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if len(dataLines) > 0 {
				return decode(strings.Join(dataLines, "\n"))
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, dataPrefix):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, dataPrefix), " "))
		}

		if eof {
			if len(dataLines) > 0 {
				return Event{}, io.ErrUnexpectedEOF
			}
			return Event{}, io.EOF
		}
	}
}

func decode(data string) (Event, error) {
	if data == doneMarker {
		return Event{Done: true}, nil
	}
	var frame struct {
		Token *string `json:"token"`
		Error *string `json:"error"`
	}
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		return Event{}, fmt.Errorf("decode frame %q: %w", data, err)
	}
	switch {
	case frame.Error != nil:
		msg := *frame.Error
		if msg == "" {
			msg = DefaultMessage
		}
		return Event{Error: msg}, nil
	case frame.Token != nil:
		return Event{Token: *frame.Token}, nil
	default:
		return Event{}, fmt.Errorf("unknown frame %q", data)
	}
}
