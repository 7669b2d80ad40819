package ollama

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// ErrStreamClosed is returned by Next after Close
var ErrStreamClosed = errors.New("ollama: stream closed")

const maxLineSize = 1 << 20

// Stream reads answer fragments from a streamed /api/chat body. Fragments
// are produced on demand, in generation order, and the stream cannot be
// restarted once exhausted. Thinking tokens are not part of the answer and
// are dropped.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	mu     sync.Mutex
	done   bool
	closed bool
}

func newStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Stream{body: body, scanner: scanner}
}

// Next returns the next non-empty answer fragment. It returns io.EOF once
// Ollama reports the generation as done.
func (s *Stream) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrStreamClosed
	}
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk ChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			// Skip malformed lines
			continue
		}
		if chunk.Error != "" {
			s.done = true
			return "", errors.Errorf("ollama: %s", chunk.Error)
		}
		if chunk.Done {
			s.done = true
			if chunk.Message.Content != "" {
				return chunk.Message.Content, nil
			}
			return "", io.EOF
		}
		if chunk.Message.Content != "" {
			return chunk.Message.Content, nil
		}
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		return "", errors.Wrap(err, "ollama: read stream")
	}
	return "", errors.Wrap(io.ErrUnexpectedEOF, "ollama: stream ended before done")
}

// Close releases the underlying response body
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
