package terminal

import (
	"bufio"
	"io"
	"strings"
)

// LineReader reads user input one line at a time
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader wraps in, typically os.Stdin
func NewLineReader(in io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReader(in)}
}

// ReadLine returns the next line with surrounding whitespace removed.
// A final line without a newline is returned before io.EOF.
func (l *LineReader) ReadLine() (string, error) {
	line, err := l.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// IsExitCommand reports whether input asks the client to quit
func IsExitCommand(input string) bool {
	switch input {
	case "/exit", "/quit", "exit", "quit":
		return true
	}
	return false
}
