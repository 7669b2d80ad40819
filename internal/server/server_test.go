package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"web-search-chat/internal/answer"
	"web-search-chat/internal/history"
)

type fakeRetriever struct {
	mu      sync.Mutex
	queries []string
	results map[string][]history.Result
	err     error
}

func (f *fakeRetriever) Search(_ context.Context, query string) ([]history.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

func (f *fakeRetriever) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type sliceStream struct {
	fragments []string
	failAfter int
	pos       int
	closed    bool
}

func (s *sliceStream) Next() (string, error) {
	if s.failAfter > 0 && s.pos == s.failAfter {
		return "", errors.New("model crashed")
	}
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	f := s.fragments[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

type generateCall struct {
	query        string
	results      []history.Result
	conversation string
}

type fakeGenerator struct {
	mu        sync.Mutex
	calls     []generateCall
	answers   map[string][]string
	failAfter int
	err       error
}

func (f *fakeGenerator) Generate(_ context.Context, query string, results []history.Result, conversation string) (answer.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, generateCall{query: query, results: results, conversation: conversation})
	if f.err != nil {
		return nil, f.err
	}
	return &sliceStream{fragments: f.answers[query], failAfter: f.failAfter}, nil
}

func (f *fakeGenerator) recorded() []generateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]generateCall(nil), f.calls...)
}

var franceResults = []history.Result{{Title: "France", URL: "https://x", Content: "Paris is the capital..."}}

func newTestServer(t *testing.T, r Retriever, g Generator) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(Options{WSPath: "/ws/chat"}, history.NewRegistry(), r, g)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendQuery(t *testing.T, conn *websocket.Conn, query string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMessage{Query: query}))
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &env))
	return env
}

func readContent(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	env := readEnvelope(t, conn)
	require.Equal(t, TypeContent, env.Type)
	var s string
	require.NoError(t, json.Unmarshal(env.Data, &s))
	return s
}

func requireClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatal("connection was not closed by the server")
			}
			return
		}
	}
}

func TestTurnStreamsResultsThenFragments(t *testing.T) {
	retriever := &fakeRetriever{results: map[string][]history.Result{"capital of France": franceResults}}
	generator := &fakeGenerator{answers: map[string][]string{
		"capital of France": {"Paris", " is the capital of France."},
		"population?":       {"About 2 million."},
	}}
	_, srv := newTestServer(t, retriever, generator)
	conn := dial(t, srv)

	sendQuery(t, conn, "capital of France")

	env := readEnvelope(t, conn)
	require.Equal(t, TypeSearchResults, env.Type)
	var results []history.Result
	require.NoError(t, json.Unmarshal(env.Data, &results))
	require.Equal(t, franceResults, results)

	require.Equal(t, "Paris", readContent(t, conn))
	require.Equal(t, " is the capital of France.", readContent(t, conn))

	sendQuery(t, conn, "population?")
	env = readEnvelope(t, conn)
	require.Equal(t, TypeSearchResults, env.Type)
	require.JSONEq(t, `[]`, string(env.Data))
	require.Equal(t, "About 2 million.", readContent(t, conn))

	calls := generator.recorded()
	require.Len(t, calls, 2)
	require.Equal(t, "", calls[0].conversation)
	require.Equal(t, franceResults, calls[0].results)
	require.Equal(t,
		"Turn 1:\nUser: capital of France\nSearch Results: [\"France\"]\nAI: Paris is the capital of France.",
		calls[1].conversation)
}

func TestEmptyQueryGetsNoticeAndNoTurn(t *testing.T) {
	retriever := &fakeRetriever{}
	generator := &fakeGenerator{answers: map[string][]string{"real": {"ok"}}}
	_, srv := newTestServer(t, retriever, generator)
	conn := dial(t, srv)

	for _, q := range []string{"", "   \t\n"} {
		sendQuery(t, conn, q)
		require.Equal(t, EmptyQueryNotice, string(readFrame(t, conn)))
	}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{}`)))
	require.Equal(t, EmptyQueryNotice, string(readFrame(t, conn)))

	require.Empty(t, retriever.calls())

	sendQuery(t, conn, "real")
	require.Equal(t, TypeSearchResults, readEnvelope(t, conn).Type)
	require.Equal(t, "ok", readContent(t, conn))

	calls := generator.recorded()
	require.Len(t, calls, 1)
	require.Equal(t, "", calls[0].conversation)
}

func TestRetrievalFailureClosesSession(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("search provider down")}
	generator := &fakeGenerator{}
	s, srv := newTestServer(t, retriever, generator)
	conn := dial(t, srv)

	require.Eventually(t, func() bool { return s.registry.Len() == 1 }, time.Second, 5*time.Millisecond)

	sendQuery(t, conn, "anything")
	requireClosed(t, conn)

	require.Eventually(t, func() bool { return s.registry.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.Empty(t, generator.recorded())
}

func TestStreamFailureClosesSessionAfterPartialContent(t *testing.T) {
	retriever := &fakeRetriever{results: map[string][]history.Result{"q": franceResults}}
	generator := &fakeGenerator{answers: map[string][]string{"q": {"a", "b", "c"}}, failAfter: 2}
	s, srv := newTestServer(t, retriever, generator)
	conn := dial(t, srv)

	sendQuery(t, conn, "q")
	require.Equal(t, TypeSearchResults, readEnvelope(t, conn).Type)
	require.Equal(t, "a", readContent(t, conn))
	require.Equal(t, "b", readContent(t, conn))
	requireClosed(t, conn)

	require.Eventually(t, func() bool { return s.registry.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestGenerateFailureClosesSession(t *testing.T) {
	retriever := &fakeRetriever{results: map[string][]history.Result{"q": franceResults}}
	generator := &fakeGenerator{err: errors.New("ollama unreachable")}
	_, srv := newTestServer(t, retriever, generator)
	conn := dial(t, srv)

	sendQuery(t, conn, "q")
	require.Equal(t, TypeSearchResults, readEnvelope(t, conn).Type)
	requireClosed(t, conn)
}

func TestMalformedMessageClosesSession(t *testing.T) {
	_, srv := newTestServer(t, &fakeRetriever{}, &fakeGenerator{})
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	requireClosed(t, conn)
}

func TestDisconnectRemovesSessionAndReconnectStartsFresh(t *testing.T) {
	retriever := &fakeRetriever{results: map[string][]history.Result{"first": franceResults}}
	generator := &fakeGenerator{answers: map[string][]string{"first": {"one"}, "second": {"two"}}}
	s, srv := newTestServer(t, retriever, generator)

	conn := dial(t, srv)
	sendQuery(t, conn, "first")
	readEnvelope(t, conn)
	require.Equal(t, "one", readContent(t, conn))
	require.Equal(t, 1, s.registry.Len())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	_ = conn.Close()
	require.Eventually(t, func() bool { return s.registry.Len() == 0 }, time.Second, 5*time.Millisecond)

	conn2 := dial(t, srv)
	sendQuery(t, conn2, "second")
	readEnvelope(t, conn2)
	require.Equal(t, "two", readContent(t, conn2))

	calls := generator.recorded()
	require.Len(t, calls, 2)
	require.Equal(t, "", calls[1].conversation)
}

func TestConcurrentConnectionsAreIndependent(t *testing.T) {
	retriever := &fakeRetriever{}
	generator := &fakeGenerator{answers: map[string][]string{"a": {"A"}, "b": {"B"}}}
	s, srv := newTestServer(t, retriever, generator)

	connA := dial(t, srv)
	connB := dial(t, srv)
	require.Eventually(t, func() bool { return s.registry.Len() == 2 }, time.Second, 5*time.Millisecond)

	sendQuery(t, connA, "a")
	sendQuery(t, connB, "b")
	readEnvelope(t, connA)
	readEnvelope(t, connB)
	require.Equal(t, "A", readContent(t, connA))
	require.Equal(t, "B", readContent(t, connB))

	for _, c := range generator.recorded() {
		require.Equal(t, "", c.conversation)
	}
}

func TestHealthz(t *testing.T) {
	_, srv := newTestServer(t, &fakeRetriever{}, &fakeGenerator{})
	dial(t, srv)

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Status   string `json:"status"`
			Sessions int    `json:"sessions"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false
		}
		return body.Status == "ok" && body.Sessions == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCheckOrigin(t *testing.T) {
	s := NewServer(Options{AllowedOrigins: []string{"chat.example.com"}}, history.NewRegistry(), &fakeRetriever{}, &fakeGenerator{})

	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	require.True(t, s.checkOrigin(req))

	req.Header.Set("Origin", "https://chat.example.com")
	require.True(t, s.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	require.False(t, s.checkOrigin(req))
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := NewServer(Options{Addr: "127.0.0.1:0"}, history.NewRegistry(), &fakeRetriever{}, &fakeGenerator{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
