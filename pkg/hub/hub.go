package hub

import (
	"context"
	"log/slog"
	"sync"
)

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// Hub maintains the set of active clients and broadcasts frames to them
type Hub struct {
	name   string
	logger *slog.Logger

	// Owned by Run.
	clients map[*Client]bool
	last    []byte

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.RWMutex
	count   int
	running bool
}

// New creates a new Hub
func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:       name,
		logger:     slog.Default(),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "hub", "hub", name)
	return h
}

// Run services the hub until ctx is cancelled. Remaining clients are
// disconnected on return.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	defer func() {
		for client := range h.clients {
			h.drop(client)
		}
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			if h.last != nil {
				client.send <- h.last
			}
			h.setCount()
			h.logger.Debug("client connected", "total", len(h.clients))

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
				h.setCount()
			}
			h.logger.Debug("client disconnected", "remaining", len(h.clients))

		case frame := <-h.broadcast:
			h.last = frame
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					// Too slow to keep up.
					h.drop(client)
					h.logger.Warn("dropped slow client")
				}
			}
			h.setCount()
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// Broadcast queues a frame for all connected clients
func (h *Hub) Broadcast(msg Message) error {
	data, err := msg.bytes()
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast channel full, dropping frame", "event", msg.Event)
	}
	return nil
}

// BroadcastJSON encodes v and broadcasts it as an event frame
func (h *Hub) BroadcastJSON(event string, v any) error {
	msg, err := NewMessage(event, v)
	if err != nil {
		return err
	}
	return h.Broadcast(msg)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
