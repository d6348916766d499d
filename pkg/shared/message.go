// Package shared holds the message model exchanged between the interpreter
// session layer and the websocket frontend.
package shared

// MessageType defines the type of a message on the websocket connection.
type MessageType int

const (
	MessageTypeText         MessageType = 0 // program output (one PRINT line)
	MessageTypeStatus       MessageType = 1 // run lifecycle status ("running", "done")
	MessageTypeError        MessageType = 2 // fatal interpreter error, ends the run
	MessageTypeSession      MessageType = 3 // session id transmission
	MessageTypeInputControl MessageType = 4 // input enable/disable while Input blocks
)

// Message is one unit sent to or received from a client.
type Message struct {
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	SessionID string      `json:"sessionId,omitempty"`
}
