package server

import "encoding/json"

// Server → client message types
const (
	TypeSearchResults = "search_results"
	TypeContent       = "content"
)

// EmptyQueryNotice is sent as a plain text frame when a query is blank
const EmptyQueryNotice = "Query cannot be empty."

// ClientMessage is the only message a client sends
type ClientMessage struct {
	Query string `json:"query"`
}

// ServerMessage is a typed frame sent to the client
type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Envelope decodes a ServerMessage whose payload is interpreted by Type
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}
