// Package retrieval turns a query into up to K sources, each carrying the
// readable text of its page.
package retrieval

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"web-search-chat/internal/crawler"
	"web-search-chat/internal/history"
	"web-search-chat/internal/searxng"
	"web-search-chat/internal/tavily"
)

const (
	// DefaultMaxResults is K, the number of sources kept per query
	DefaultMaxResults = 5
	// NoTitle replaces a missing provider title
	NoTitle = "No Title"
	// ExtractionFallback replaces page text that could not be extracted
	ExtractionFallback = "Content could not be extracted."
)

// Hit is a ranked search result before its page is fetched
type Hit struct {
	Title string
	URL   string
}

// SearchProvider returns ranked hits for a query
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Hit, error)
}

// PageCrawler fetches pages; result i corresponds to urls[i]
type PageCrawler interface {
	CrawlURLs(ctx context.Context, urls []string) []crawler.CrawlResult
}

// Retriever implements search followed by content extraction
type Retriever struct {
	provider   SearchProvider
	crawler    PageCrawler
	maxResults int
}

// NewRetriever creates a retriever returning at most maxResults sources
func NewRetriever(provider SearchProvider, c PageCrawler, maxResults int) *Retriever {
	if maxResults < 1 {
		maxResults = DefaultMaxResults
	}
	return &Retriever{provider: provider, crawler: c, maxResults: maxResults}
}

// Search returns up to K results in provider rank order. A failed provider
// call is returned as an error; a page that cannot be read keeps its slot
// with ExtractionFallback as content.
func (r *Retriever) Search(ctx context.Context, query string) ([]history.Result, error) {
	hits, err := r.provider.Search(ctx, query, r.maxResults)
	if err != nil {
		return nil, errors.Wrap(err, "web search")
	}
	if len(hits) > r.maxResults {
		hits = hits[:r.maxResults]
	}

	urls := make([]string, len(hits))
	for i, h := range hits {
		urls[i] = h.URL
	}
	pages := r.crawler.CrawlURLs(ctx, urls)

	results := make([]history.Result, len(hits))
	for i, h := range hits {
		title := strings.TrimSpace(h.Title)
		if title == "" {
			title = NoTitle
		}
		content := ExtractionFallback
		if i < len(pages) {
			if pages[i].Error == nil && pages[i].Content != "" {
				content = pages[i].Content
			} else if pages[i].Error != nil {
				log.Debug().Err(pages[i].Error).Str("url", h.URL).Msg("content extraction failed, using fallback")
			}
		}
		results[i] = history.Result{Title: title, URL: h.URL, Content: content}
	}
	return results, nil
}

// SearXNG adapts a searxng.Client to SearchProvider
type SearXNG struct {
	Client *searxng.Client
}

func (s SearXNG) Search(ctx context.Context, query string, maxResults int) ([]Hit, error) {
	results, err := s.Client.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{Title: r.Title, URL: r.URL}
	}
	return hits, nil
}

// Tavily adapts a tavily.Client to SearchProvider
type Tavily struct {
	Client *tavily.Client
}

func (t Tavily) Search(ctx context.Context, query string, maxResults int) ([]Hit, error) {
	results, err := t.Client.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{Title: r.Title, URL: r.URL}
	}
	return hits, nil
}
