// Package protocol defines the websocket messages exchanged with a browser
// that performs speech recognition on behalf of the server.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of websocket message
type MessageType string

const (
	// Server → browser
	TypeStart MessageType = "start" // Begin a recognition session
	TypeStop  MessageType = "stop"  // Abort a recognition session

	// Browser → server
	TypeHello  MessageType = "hello"  // Capabilities on connect
	TypeResult MessageType = "result" // Recognition result
	TypeError  MessageType = "error"  // Recognition error
	TypeEnd    MessageType = "end"    // Session ended

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the envelope for all websocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal %s data: %w", msgType, err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into v
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("protocol: message has no type")
	}
	return &msg, nil
}

// StartData asks the browser to begin listening
type StartData struct {
	Session  string `json:"session"`
	Language string `json:"lang"`
	// Interim mirrors the recognizer's interimResults flag.
	Interim bool `json:"interim"`
	// Continuous mirrors the recognizer's continuous flag.
	Continuous bool `json:"continuous"`
}

// StopData asks the browser to abort a session
type StopData struct {
	Session string `json:"session"`
}

// HelloData describes the connected browser
type HelloData struct {
	// Supported is false when the browser has no speech recognition API.
	Supported bool   `json:"supported"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ResultData carries a recognition result
type ResultData struct {
	Session string `json:"session"`
	Text    string `json:"text"`
	Final   bool   `json:"final"`
}

// ErrorData carries a recognition error. Code uses the browser's error
// codes, e.g. "no-speech" or "not-allowed".
type ErrorData struct {
	Session string `json:"session"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// EndData marks the end of a session
type EndData struct {
	Session string `json:"session"`
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
