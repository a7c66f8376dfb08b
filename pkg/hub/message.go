// Package hub fans dashboard updates out to WebSocket clients using a
// single goroutine that owns the client set.
package hub

import "encoding/json"

// Message is one update for dashboard clients.
// An empty Subject reaches every client; otherwise only clients watching
// that subject or all subjects receive it.
type Message struct {
	Subject string
	Data    []byte
}

// NewMessage creates a message from pre-encoded JSON
func NewMessage(subject string, data []byte) Message {
	return Message{Subject: subject, Data: data}
}

// NewJSONMessage encodes v as a message
func NewJSONMessage(subject string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: subject, Data: data}, nil
}
