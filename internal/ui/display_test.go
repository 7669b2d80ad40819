package ui

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"web-search-chat/internal/client"
	"web-search-chat/internal/history"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDisplayTurn(t *testing.T) {
	out := &syncBuffer{}
	d := NewDisplay(out, 80, 0, false)

	d.BeginQuery()
	d.Handle(client.Event{Kind: client.EventSearchResults, Results: []history.Result{
		{Title: "France", URL: "https://en.wikipedia.org/wiki/France", Content: "Paris..."},
	}})
	d.Handle(client.Event{Kind: client.EventContent, Text: "Paris"})
	d.Handle(client.Event{Kind: client.EventContent, Text: " is the **capital**."})
	require.Equal(t, "Paris is the **capital**.", d.Answer())

	d.Flush()
	require.Empty(t, d.Answer())

	got := out.String()
	require.Contains(t, got, "Sources:")
	require.Contains(t, got, "1. France")
	require.Contains(t, got, "Paris is the **capital**.")
	require.Contains(t, got, "Rendered:")
	require.Contains(t, got, "~4 words")
}

func TestDisplayNoSources(t *testing.T) {
	out := &syncBuffer{}
	d := NewDisplay(out, 80, 0, false)

	d.Handle(client.Event{Kind: client.EventSearchResults})
	d.Flush()
	require.Contains(t, out.String(), "No sources found")
}

func TestDisplayNotice(t *testing.T) {
	out := &syncBuffer{}
	d := NewDisplay(out, 80, 0, false)

	d.Handle(client.Event{Kind: client.EventNotice, Text: "Query cannot be empty."})
	require.Contains(t, out.String(), "Query cannot be empty.")
	require.NotContains(t, out.String(), "Rendered:")
}

func TestDisplaySettleRendersAnswer(t *testing.T) {
	out := &syncBuffer{}
	d := NewDisplay(out, 80, 20*time.Millisecond, false)

	d.Handle(client.Event{Kind: client.EventContent, Text: "# Heading"})
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Rendered:")
	}, 2*time.Second, 5*time.Millisecond)
	require.Empty(t, d.Answer())
}

func TestDisplayNextTurnFinishesPrevious(t *testing.T) {
	out := &syncBuffer{}
	d := NewDisplay(out, 80, time.Hour, false)

	d.Handle(client.Event{Kind: client.EventContent, Text: "first answer"})
	d.BeginQuery()
	d.Flush()
	require.Equal(t, 1, strings.Count(out.String(), "Rendered:"))
}

func TestPrintError(t *testing.T) {
	out := &syncBuffer{}
	d := NewDisplay(out, 80, 0, false)
	d.PrintError(errors.New("connection lost"))
	require.Contains(t, out.String(), "Error: connection lost")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	require.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
}
