// Package chat holds the conversation data model: messages and the
// append-only log they live in.
package chat

import (
	"errors"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// String returns the sender name.
func (s Sender) String() string {
	return string(s)
}

var (
	// ErrEmptyMessage is returned when a message carries no text, image or code.
	ErrEmptyMessage = errors.New("chat: message has no content")

	// ErrMixedImage is returned when an image message also carries text or code.
	ErrMixedImage = errors.New("chat: image message cannot carry text or code")

	// ErrUnknownSender is returned for senders other than user and ai.
	ErrUnknownSender = errors.New("chat: unknown sender")
)

// Image is a generated picture attached to a message.
type Image struct {
	// Src is a data URI holding the encoded image.
	Src    string `json:"src"`
	Alt    string `json:"alt"`
	Prompt string `json:"prompt"`
}

// CodeBlock is a fenced code sample extracted from a reply.
type CodeBlock struct {
	Language string `json:"language,omitempty"`
	Content  string `json:"content"`
}

// Message is one entry in the conversation. Messages are never modified
// after they are appended to a Log.
type Message struct {
	ID        int64      `json:"id"`
	Sender    Sender     `json:"sender"`
	Text      string     `json:"text,omitempty"`
	Image     *Image     `json:"image,omitempty"`
	Code      *CodeBlock `json:"codeBlock,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Validate reports whether the message content is well formed.
func (m Message) Validate() error {
	if m.Sender != SenderUser && m.Sender != SenderAI {
		return ErrUnknownSender
	}
	if m.Image != nil {
		if m.Text != "" || m.Code != nil {
			return ErrMixedImage
		}
		return nil
	}
	if m.Text == "" && m.Code == nil {
		return ErrEmptyMessage
	}
	return nil
}

// HasText reports whether the message has a prose segment.
func (m Message) HasText() bool { return m.Text != "" }

// clone returns a deep copy so callers cannot reach into the log.
func (m Message) clone() Message {
	if m.Image != nil {
		img := *m.Image
		m.Image = &img
	}
	if m.Code != nil {
		code := *m.Code
		m.Code = &code
	}
	return m
}

// NewUserText builds a user prose message.
func NewUserText(text string) Message {
	return Message{Sender: SenderUser, Text: text}
}

// NewAIText builds an AI prose message.
func NewAIText(text string) Message {
	return Message{Sender: SenderAI, Text: text}
}

// NewAIReply builds an AI message from a parsed reply. Either part may be empty.
func NewAIReply(text string, code *CodeBlock) Message {
	return Message{Sender: SenderAI, Text: text, Code: code}
}

// NewAIImage builds an AI image message. The prompt doubles as alt text.
func NewAIImage(src, prompt string) Message {
	return Message{
		Sender: SenderAI,
		Image:  &Image{Src: src, Alt: prompt, Prompt: prompt},
	}
}
