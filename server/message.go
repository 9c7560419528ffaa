package server

import (
	"encoding/json"
)

// Message types exchanged over WebSocket.
const (
	MsgJoin     = "join"
	MsgLeave    = "leave"
	MsgBatch    = "batch"
	MsgAck      = "ack"
	MsgRejected = "rejected"
	MsgDoc      = "doc"
	MsgError    = "error"
)

// ClientMessage is a message from client to server. A batch carries the
// revision the client built its updates against and the updates in wire
// form.
type ClientMessage struct {
	Type       string            `json:"type"`
	NotebookID string            `json:"notebookId,omitempty"`
	Revision   int               `json:"revision"`
	Updates    []json.RawMessage `json:"updates,omitempty"`
}

// ServerMessage is a message from server to client.
type ServerMessage struct {
	Type       string          `json:"type"`
	NotebookID string          `json:"notebookId,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
	Revision   int             `json:"revision"`
	Selection  *SelectionInfo  `json:"selection,omitempty"`
	VisualIDs  map[int]string  `json:"visualIds,omitempty"`
	ClientID   string          `json:"clientId,omitempty"`
	Name       string          `json:"name,omitempty"`
	Color      string          `json:"color,omitempty"`
	Message    string          `json:"message,omitempty"`
	Clients    []ClientInfo    `json:"clients,omitempty"`
}

// SelectionInfo is the committed selection after a batch.
type SelectionInfo struct {
	Anchor int  `json:"anchor"`
	Head   int  `json:"head"`
	Node   bool `json:"node,omitempty"`
}

// ClientInfo describes a connected user.
type ClientInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Encode serializes a ServerMessage to JSON bytes.
func (m ServerMessage) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}
