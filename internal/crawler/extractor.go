package crawler

import (
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

// elements whose text is never part of the readable content
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"footer":   true,
	"header":   true,
	"aside":    true,
	"form":     true,
	"svg":      true,
}

// ExtractText extracts the page title and clean body text from HTML.
// maxWords <= 0 disables truncation.
func ExtractText(htmlContent []byte, maxWords int) (title string, text string, err error) {
	doc, err := html.Parse(bytes.NewReader(htmlContent))
	if err != nil {
		return "", "", errors.Wrap(err, "parse HTML")
	}

	title = cleanText(extractTitle(doc))

	var sb strings.Builder
	if body := findElement(doc, "body"); body != nil {
		collectText(body, &sb)
	} else {
		collectText(doc, &sb)
	}
	text = cleanText(sb.String())

	if maxWords > 0 {
		text = truncateWords(text, maxWords)
	}
	return title, text, nil
}

// extractTitle finds and returns the page title
func extractTitle(n *html.Node) string {
	if t := findElement(n, "title"); t != nil {
		return nodeText(t)
	}
	return ""
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// collectText writes visible text under n, skipping boilerplate elements
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && (skippedElements[n.Data] || n.Data == "title") {
		return
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}

// cleanText collapses runs of whitespace into single spaces
func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// truncateWords truncates text to approximately N words
func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

// ReadLimitedBody reads up to maxBytes from a reader
func ReadLimitedBody(body io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(body)
	}
	return io.ReadAll(io.LimitReader(body, maxBytes))
}
