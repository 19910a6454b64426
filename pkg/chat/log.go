package chat

import (
	"sync"
	"time"
)

// Log is the ordered, append-only message history of one session.
// IDs are assigned on append and strictly increase.
type Log struct {
	mu       sync.RWMutex
	messages []Message
	nextID   int64
	now      func() time.Time
}

// NewLog creates an empty log. A nil clock falls back to time.Now.
func NewLog(now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{
		messages: make([]Message, 0, 64),
		nextID:   1,
		now:      now,
	}
}

// Append stamps the message with the next ID and the current time and
// stores a copy of it.
func (l *Log) Append(m Message) (Message, error) {
	if err := m.Validate(); err != nil {
		return Message{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	m = m.clone()
	m.ID = l.nextID
	m.Timestamp = l.now()
	l.nextID++
	l.messages = append(l.messages, m)
	return m.clone(), nil
}

// Messages returns a copy of the history in conversation order.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, len(l.messages))
	for i, m := range l.messages {
		out[i] = m.clone()
	}
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
