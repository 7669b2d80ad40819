package server

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"web-search-chat/internal/history"
)

// connHandler runs the receive/answer loop for one connection. Only this
// loop touches the connection's session, so no locking is done here.
type connHandler struct {
	conn      *websocket.Conn
	sessionID string
	registry  *history.Registry
	retriever Retriever
	generator Generator
	logger    zerolog.Logger
}

// serve handles queries until the client leaves or a fault occurs. A clean
// disconnect returns nil; every other error ends the session.
func (h *connHandler) serve(ctx context.Context) error {
	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			if isDisconnect(err) {
				h.logger.Debug().Err(err).Msg("client disconnected")
				return nil
			}
			return errors.Wrap(err, "read message")
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return errors.Wrap(err, "decode client message")
		}

		if err := h.handleQuery(ctx, msg.Query); err != nil {
			return err
		}
	}
}

// handleQuery runs one full turn: retrieval, search_results, provisional
// turn, streamed answer, stored response.
func (h *connHandler) handleQuery(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		if err := h.conn.WriteMessage(websocket.TextMessage, []byte(EmptyQueryNotice)); err != nil {
			return errors.Wrap(err, "send validation notice")
		}
		return nil
	}
	h.logger.Debug().Str("query", query).Msg("query received")

	results, err := h.retriever.Search(ctx, query)
	if err != nil {
		return errors.Wrap(err, "retrieve")
	}
	if results == nil {
		results = []history.Result{}
	}

	if err := h.send(TypeSearchResults, results); err != nil {
		return errors.Wrap(err, "send search results")
	}

	turn := &history.Turn{Query: query, SearchResults: results}
	if err := h.registry.AppendTurn(h.sessionID, turn); err != nil {
		return err
	}
	conversation := h.registry.Context(h.sessionID)

	stream, err := h.generator.Generate(ctx, query, results, conversation)
	if err != nil {
		return errors.Wrap(err, "generate")
	}
	defer stream.Close()

	var fragments []string
	for {
		fragment, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "answer stream")
		}
		if err := h.send(TypeContent, fragment); err != nil {
			return errors.Wrap(err, "send content")
		}
		fragments = append(fragments, fragment)
	}

	response := strings.Join(fragments, "")
	if err := h.registry.CompleteTurn(h.sessionID, turn, response); err != nil {
		return err
	}
	h.logger.Debug().Int("results", len(results)).Int("fragments", len(fragments)).Msg("turn complete")
	return nil
}

func (h *connHandler) send(msgType string, data any) error {
	return h.conn.WriteJSON(ServerMessage{Type: msgType, Data: data})
}

func isDisconnect(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
