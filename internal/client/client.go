// Package client speaks the chat websocket protocol from the user's side.
package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"web-search-chat/internal/history"
	"web-search-chat/internal/server"
)

// EventKind identifies what the server sent
type EventKind int

const (
	EventSearchResults EventKind = iota
	EventContent
	EventNotice
)

// Event is one decoded server frame
type Event struct {
	Kind    EventKind
	Results []history.Result
	Text    string
}

// Client is a connected chat session
type Client struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// Dial opens a session at url (ws:// or wss://)
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return &Client{conn: conn}, nil
}

// Send submits a query. Answers arrive through Listen.
func (c *Client) Send(query string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return errors.Wrap(c.conn.WriteJSON(server.ClientMessage{Query: query}), "send query")
}

// Listen decodes frames and passes them to handle until the connection
// ends or ctx is cancelled. A normal close returns nil.
func (c *Client) Listen(ctx context.Context, handle func(Event)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "read frame")
		}
		ev, err := Decode(data)
		if err != nil {
			return err
		}
		handle(ev)
	}
}

// Close sends a normal close frame and closes the connection
func (c *Client) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	return c.conn.Close()
}

// Decode turns one frame into an Event. Frames that are not typed JSON
// messages are plain-text notices.
func Decode(data []byte) (Event, error) {
	var env server.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		return Event{Kind: EventNotice, Text: string(data)}, nil
	}

	switch env.Type {
	case server.TypeSearchResults:
		var results []history.Result
		if err := json.Unmarshal(env.Data, &results); err != nil {
			return Event{}, errors.Wrap(err, "decode search results")
		}
		return Event{Kind: EventSearchResults, Results: results}, nil
	case server.TypeContent:
		var text string
		if err := json.Unmarshal(env.Data, &text); err != nil {
			return Event{}, errors.Wrap(err, "decode content")
		}
		return Event{Kind: EventContent, Text: text}, nil
	default:
		return Event{}, errors.Errorf("unknown message type %q", env.Type)
	}
}
