// Package answer composes the grounded prompt for a turn and streams the
// model's answer back as fragments.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"web-search-chat/internal/history"
	"web-search-chat/internal/ollama"
)

// Stream is a finite, single-use sequence of answer fragments. Next returns
// io.EOF once the answer is complete.
type Stream interface {
	Next() (string, error)
	Close() error
}

// ChatStreamer is the part of the Ollama client the generator needs
type ChatStreamer interface {
	ChatStream(ctx context.Context, req ollama.ChatRequest) (*ollama.Stream, error)
}

// Generator streams answers from an Ollama model
type Generator struct {
	client ChatStreamer
	model  string
}

// NewGenerator creates a generator for model
func NewGenerator(client ChatStreamer, model string) *Generator {
	return &Generator{client: client, model: model}
}

// Generate starts a fresh generation for query, grounded in the current
// turn's results and the rendered prior-turn transcript.
func (g *Generator) Generate(ctx context.Context, query string, results []history.Result, conversation string) (Stream, error) {
	prompt := BuildPrompt(query, results, conversation)
	stream, err := g.client.ChatStream(ctx, ollama.ChatRequest{
		Model: g.model,
		Messages: []ollama.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start answer stream")
	}
	return stream, nil
}

const preamble = "You are a helpful assistant. Use the following context and conversation history to answer the user's query.\n" +
	"Think and reason deeply and ensure it answers the user query. Do not use your own knowledge until it is necessary.\n"

const closing = "Please provide a concise and informative response based on the context provided. " +
	"Use Markdown for formatting if necessary with proper headings, bullet points, and code blocks."

// BuildPrompt assembles the single prompt sent to the model: instructions,
// prior conversation, current sources, then the raw query.
func BuildPrompt(query string, results []history.Result, conversation string) string {
	var sb strings.Builder
	sb.WriteString(preamble)
	sb.WriteString("CONVERSATION HISTORY (previous turns):\n")
	sb.WriteString(conversation)
	sb.WriteString("\n")
	sb.WriteString("CONTEXT FROM SEARCH RESULTS (current turn):\n")
	sb.WriteString(FormatSources(results))
	sb.WriteString("\n")
	sb.WriteString("USER QUERY (current turn):\n")
	sb.WriteString(query)
	sb.WriteString("\n")
	sb.WriteString(closing)
	return sb.String()
}

// FormatSources renders each result with its title, URL and content
func FormatSources(results []history.Result) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("Source %d:\nTitle: %s\nURL: %s\nContent: %s", i+1, r.Title, r.URL, r.Content)
	}
	return strings.Join(blocks, "\n\n")
}
