package crawler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// CrawlResult represents the result of crawling a single URL
type CrawlResult struct {
	URL      string
	Title    string
	Content  string
	Error    error
	Duration time.Duration
}

// Crawler fetches pages and extracts their readable text
type Crawler struct {
	httpClient *http.Client
	maxSize    int64
	maxWords   int
	userAgent  string
	maxWorkers int
}

// NewCrawler creates a new crawler instance
func NewCrawler(timeout time.Duration, maxWorkers int, maxSize int64, maxWords int, userAgent string) *Crawler {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Crawler{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		maxSize:    maxSize,
		maxWords:   maxWords,
		userAgent:  userAgent,
		maxWorkers: maxWorkers,
	}
}

type crawlJob struct {
	index int
	url   string
}

// CrawlURLs crawls urls in parallel. The returned slice has one entry per
// input URL, at the same index.
func (c *Crawler) CrawlURLs(ctx context.Context, urls []string) []CrawlResult {
	results := make([]CrawlResult, len(urls))
	if len(urls) == 0 {
		return results
	}

	jobs := make(chan crawlJob, len(urls))

	numWorkers := c.maxWorkers
	if len(urls) < numWorkers {
		numWorkers = len(urls)
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				// each worker owns distinct indices
				results[job.index] = c.crawlSingle(ctx, job.url)
			}
		}()
	}

	for i, u := range urls {
		jobs <- crawlJob{index: i, url: u}
	}
	close(jobs)
	wg.Wait()

	return results
}

// crawlSingle crawls a single URL and returns the result
func (c *Crawler) crawlSingle(ctx context.Context, urlStr string) CrawlResult {
	start := time.Now()
	result := CrawlResult{URL: urlStr}

	title, text, err := c.fetch(ctx, urlStr)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		return result
	}
	result.Title = title
	result.Content = text
	return result
}

func (c *Crawler) fetch(ctx context.Context, urlStr string) (string, string, error) {
	if strings.TrimSpace(urlStr) == "" {
		return "", "", errors.New("empty url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", "", errors.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", errors.Errorf("HTTP %d", resp.StatusCode)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml") {
		return "", "", errors.Errorf("non-HTML content type: %s", contentType)
	}

	body, err := ReadLimitedBody(resp.Body, c.maxSize)
	if err != nil {
		return "", "", errors.Wrap(err, "read body")
	}

	title, text, err := ExtractText(body, c.maxWords)
	if err != nil {
		return "", "", errors.Wrap(err, "extract text")
	}
	if text == "" {
		return title, "", errors.New("no readable text")
	}
	return title, text, nil
}
