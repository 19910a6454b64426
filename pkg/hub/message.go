// Package hub fans JSON frames out to websocket clients.
//
// A single goroutine (Run) owns the client set. The most recent frame is
// kept and replayed to clients as they connect, so a new client always
// starts from the current state.
package hub

import "encoding/json"

// Message is a frame to be broadcast to clients
type Message struct {
	// Event names the frame, e.g. "snapshot".
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewMessage encodes v as the data of an event frame
func NewMessage(event string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Event: event, Data: data}, nil
}

func (m Message) bytes() ([]byte, error) {
	return json.Marshal(m)
}
