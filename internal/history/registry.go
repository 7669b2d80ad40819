package history

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrUnknownSession is returned when a session id is not registered
var ErrUnknownSession = errors.New("unknown session")

// Registry maps live connection sessions to their turn history.
// Sessions exist only between Open and Close; nothing is persisted.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// NewSession opens a session under a freshly generated token and returns it
func (r *Registry) NewSession() string {
	id := uuid.NewString()
	r.Open(id)
	return id
}

// Open creates an empty history for id. Opening an id that is already
// registered resets its history.
func (r *Registry) Open(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[id] = &Session{
		ID:        id,
		StartedAt: time.Now(),
		Turns:     []*Turn{},
	}
}

// AppendTurn adds turn to the end of the session's history
func (r *Registry) AppendTurn(id string, turn *Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return errors.Wrapf(ErrUnknownSession, "append turn to %s", id)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	session.Turns = append(session.Turns, turn)
	return nil
}

// CompleteTurn stores the final answer on a turn previously appended to id
func (r *Registry) CompleteTurn(id string, turn *Turn, response string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return errors.Wrapf(ErrUnknownSession, "complete turn in %s", id)
	}
	turn.Response = response
	return nil
}

// Turns returns a copy of the session's history
func (r *Registry) Turns(id string) []Turn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil
	}
	out := make([]Turn, len(session.Turns))
	for i, t := range session.Turns {
		out[i] = *t
		out[i].SearchResults = append([]Result(nil), t.SearchResults...)
	}
	return out
}

// Context renders every turn except the most recent one as a transcript.
// It is empty while the session has at most one turn.
func (r *Registry) Context(id string) string {
	return BuildContext(r.Turns(id))
}

// Close removes the session. Unknown ids are ignored.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// BuildContext renders all turns but the last. Prior turns carry only their
// result titles, never the extracted content.
func BuildContext(turns []Turn) string {
	if len(turns) <= 1 {
		return ""
	}

	prior := turns[:len(turns)-1]
	blocks := make([]string, 0, len(prior))
	for i, turn := range prior {
		blocks = append(blocks, fmt.Sprintf("Turn %d:\nUser: %s\nSearch Results: %s\nAI: %s",
			i+1, turn.Query, formatTitles(turn.SearchResults), turn.Response))
	}
	return strings.Join(blocks, "\n\n")
}

func formatTitles(results []Result) string {
	titles := make([]string, len(results))
	for i, r := range results {
		titles[i] = strconv.Quote(r.Title)
	}
	return "[" + strings.Join(titles, ", ") + "]"
}
