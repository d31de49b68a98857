package sse

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterFrames(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteToken("Hel"))
	require.NoError(t, w.WriteToken("<b>lo</b>"))
	require.NoError(t, w.WriteDone())

	assert.Equal(t,
		"data: {\"token\":\"Hel\"}\n\n"+
			"data: {\"token\":\"<b>lo</b>\"}\n\n"+
			"data: [DONE]\n\n",
		buf.String())
}

func TestWriterErrorFallback(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteError(""))
	assert.Equal(t, "data: {\"error\":\"Something went wrong\"}\n\n", buf.String())
}

func TestReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteToken("line one\nline two"))
	require.NoError(t, w.WriteToken(" "))
	require.NoError(t, w.WriteError("model unavailable"))

	r := NewReader(&buf)
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, Event{Token: "line one\nline two"}, ev)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, Event{Token: " "}, ev)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, Event{Error: "model unavailable"}, ev)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderSkipsCommentsAndCRLF(t *testing.T) {
	stream := ": keep-alive\r\n\r\ndata: {\"token\":\"a\"}\r\n\r\ndata: [DONE]\r\n\r\n"
	r := NewReader(strings.NewReader(stream))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", ev.Token)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.True(t, ev.Done)
}

func TestReaderTruncatedFrame(t *testing.T) {
	r := NewReader(strings.NewReader("data: {\"token\":\"a\"}"))
	_, err := r.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReaderRejectsGarbage(t *testing.T) {
	r := NewReader(strings.NewReader("data: not json\n\n"))
	_, err := r.Next()
	assert.Error(t, err)
}
