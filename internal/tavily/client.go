// Package tavily is a search provider backed by the Tavily search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const defaultBaseURL = "https://api.tavily.com"

// ErrMissingAPIKey is returned by Search when no API key is configured
var ErrMissingAPIKey = errors.New("tavily: API key is missing")

// SearchResult is one ranked hit returned by Tavily
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Client calls the Tavily search API.
type Client struct {
	apiKey     string
	depth      string
	baseURL    string
	httpClient *http.Client
	maxBackoff time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (useful for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithMaxBackoff caps the delay between retries on 429.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) { c.maxBackoff = d }
}

// NewClient constructs a Tavily client. depth is "basic" or "advanced".
func NewClient(apiKey, depth string, timeout time.Duration, opts ...Option) *Client {
	if depth == "" {
		depth = "basic"
	}
	c := &Client{
		apiKey:     apiKey,
		depth:      depth,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxBackoff: 30 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// Search posts query to Tavily and returns at most maxResults hits.
// A 429 is retried with doubling delay until ctx is done.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	payload, err := json.Marshal(searchRequest{Query: query, SearchDepth: c.depth, MaxResults: maxResults})
	if err != nil {
		return nil, errors.Wrap(err, "tavily: marshal request")
	}

	var resp *http.Response
	delay := 250 * time.Millisecond
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
		if err != nil {
			return nil, errors.Wrap(err, "tavily: create request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err = c.httpClient.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "tavily: request failed")
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < c.maxBackoff {
			delay *= 2
		}
		if delay > c.maxBackoff {
			delay = c.maxBackoff
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, errors.New("tavily: unauthorized (check API key)")
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return nil, errors.Errorf("tavily http %d: %s", resp.StatusCode, string(body))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "tavily: parse response")
	}
	if maxResults > 0 && len(decoded.Results) > maxResults {
		decoded.Results = decoded.Results[:maxResults]
	}
	return decoded.Results, nil
}
