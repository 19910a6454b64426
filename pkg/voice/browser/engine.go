// Package browser provides a voice.Engine that delegates speech
// recognition to a connected browser over a websocket.
//
// The browser connects to /ws/voice, announces whether it has a speech
// recognition API, and then runs one single-utterance session per start
// message, reporting results, errors and the end of each session.
package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-converse/pkg/protocol"
	"github.com/teslashibe/go-converse/pkg/voice"
)

// ErrDisconnected is reported when the browser goes away mid-session.
var ErrDisconnected = errors.New("browser: client disconnected")

// Client is a connected browser
type Client struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time
	Supported bool

	mu sync.Mutex
}

// Send writes a message to the browser
func (c *Client) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguage sets the recognition language sent to the browser.
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine bridges recognition sessions to connected browsers.
type Engine struct {
	language string
	logger   *slog.Logger

	mu       sync.RWMutex
	clients  map[string]*Client
	sessions map[string]*session

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	sessionsStarted  atomic.Uint64
}

// New creates a browser engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		language: "en-US",
		logger:   slog.Default(),
		clients:  make(map[string]*Client),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "voice.browser")
	return e
}

// RegisterRoutes registers the browser websocket endpoints.
func (e *Engine) RegisterRoutes(r fiber.Router) {
	r.Use("/ws/voice", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	r.Get("/ws/voice", websocket.New(e.handleConn))
	r.Get("/ws/voice/:id", websocket.New(e.handleConn))
}

// RegisterAPIRoutes registers client inspection routes.
func (e *Engine) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/voice/clients", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"clients": e.ClientInfos(),
			"stats":   e.Stats(),
		})
	})
}

// Available reports whether a browser that supports recognition is connected.
func (e *Engine) Available() bool {
	return e.pick() != nil
}

// Start asks the most recently connected browser to begin listening.
func (e *Engine) Start(ctx context.Context, sink voice.Sink) (voice.Session, error) {
	client := e.pick()
	if client == nil {
		return nil, &voice.Error{Kind: voice.KindUnsupportedPlatform}
	}

	s := &session{
		id:     uuid.NewString(),
		engine: e,
		client: client,
		sink:   sink,
	}

	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()

	msg, err := protocol.NewStartMessage(s.id, e.language)
	if err == nil {
		err = e.send(client, msg)
	}
	if err != nil {
		e.forget(s.id)
		return nil, &voice.Error{Kind: voice.KindOther, Err: err}
	}

	e.sessionsStarted.Add(1)
	e.logger.Debug("session started", "session", s.id, "client", client.ID)
	return s, nil
}

// pick returns the most recently connected supporting client.
func (e *Engine) pick() *Client {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var best *Client
	for _, c := range e.clients {
		if !c.Supported {
			continue
		}
		if best == nil || c.Connected.After(best.Connected) {
			best = c
		}
	}
	return best
}

func (e *Engine) send(c *Client, msg *protocol.Message) error {
	e.messagesSent.Add(1)
	return c.Send(msg)
}

func (e *Engine) lookup(id string) *session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessions[id]
}

func (e *Engine) forget(id string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessions[id]
	delete(e.sessions, id)
	return s
}

// handleConn serves one browser connection
func (e *Engine) handleConn(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	client := &Client{
		ID:        id,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
		Supported: true,
	}

	e.mu.Lock()
	e.clients[id] = client
	count := len(e.clients)
	e.mu.Unlock()
	e.logger.Info("browser connected", "client", id, "total", count)

	defer e.disconnect(client)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			e.logger.Debug("browser read ended", "client", id, "error", err)
			return
		}

		client.mu.Lock()
		client.LastSeen = time.Now()
		client.mu.Unlock()

		e.messagesReceived.Add(1)
		e.handleMessage(client, data)
	}
}

// disconnect removes the client and fails its open sessions.
func (e *Engine) disconnect(client *Client) {
	e.mu.Lock()
	delete(e.clients, client.ID)
	var orphaned []*session
	for id, s := range e.sessions {
		if s.client == client {
			orphaned = append(orphaned, s)
			delete(e.sessions, id)
		}
	}
	count := len(e.clients)
	e.mu.Unlock()

	e.logger.Info("browser disconnected", "client", client.ID, "remaining", count)
	for _, s := range orphaned {
		s.sink.Error(voice.KindOther, ErrDisconnected)
	}
}

func (e *Engine) handleMessage(client *Client, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		e.logger.Warn("bad browser message", "client", client.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeHello:
		var hello protocol.HelloData
		if err := msg.ParseData(&hello); err != nil {
			return
		}
		e.mu.Lock()
		client.Supported = hello.Supported
		e.mu.Unlock()
		e.logger.Debug("browser hello", "client", client.ID, "supported", hello.Supported)

	case protocol.TypeResult:
		var r protocol.ResultData
		if err := msg.ParseData(&r); err != nil {
			return
		}
		if s := e.lookup(r.Session); s != nil {
			s.sink.Result(r.Text, r.Final)
		}

	case protocol.TypeError:
		var d protocol.ErrorData
		if err := msg.ParseData(&d); err != nil {
			return
		}
		if s := e.forget(d.Session); s != nil {
			reason := d.Message
			if reason == "" {
				reason = d.Code
			}
			s.sink.Error(voice.ParseErrorCode(d.Code), errors.New(reason))
		}

	case protocol.TypeEnd:
		var d protocol.EndData
		if err := msg.ParseData(&d); err != nil {
			return
		}
		if s := e.forget(d.Session); s != nil {
			s.sink.End()
		}

	case protocol.TypePing:
		var ping protocol.PingData
		msg.ParseData(&ping)
		if pong, err := protocol.NewPongMessage(ping.ID, msg.Timestamp, time.Now().UnixMilli()); err == nil {
			e.send(client, pong)
		}
	}
}

// ClientCount returns the number of connected browsers
func (e *Engine) ClientCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients)
}

// ClientInfo describes a connected browser
type ClientInfo struct {
	ID        string    `json:"id"`
	Supported bool      `json:"supported"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// ClientInfos returns info about all connected browsers
func (e *Engine) ClientInfos() []ClientInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	infos := make([]ClientInfo, 0, len(e.clients))
	for _, c := range e.clients {
		c.mu.Lock()
		infos = append(infos, ClientInfo{
			ID:        c.ID,
			Supported: c.Supported,
			Connected: c.Connected,
			LastSeen:  c.LastSeen,
		})
		c.mu.Unlock()
	}
	return infos
}

// Stats contains bridge statistics
type Stats struct {
	ClientCount      int    `json:"client_count"`
	ActiveSessions   int    `json:"active_sessions"`
	SessionsStarted  uint64 `json:"sessions_started"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
}

// Stats returns bridge statistics
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	clients, sessions := len(e.clients), len(e.sessions)
	e.mu.RUnlock()

	return Stats{
		ClientCount:      clients,
		ActiveSessions:   sessions,
		SessionsStarted:  e.sessionsStarted.Load(),
		MessagesReceived: e.messagesReceived.Load(),
		MessagesSent:     e.messagesSent.Load(),
	}
}

// session is one recognition session on one browser.
type session struct {
	id     string
	engine *Engine
	client *Client
	sink   voice.Sink
	once   sync.Once
}

// Stop aborts the session on the browser. It does not wait for the write.
func (s *session) Stop() {
	s.once.Do(func() {
		if s.engine.forget(s.id) == nil {
			return
		}
		msg, err := protocol.NewStopMessage(s.id)
		if err != nil {
			return
		}
		go s.engine.send(s.client, msg)
	})
}

// Verify Engine implements voice.Engine at compile time.
var _ voice.Engine = (*Engine)(nil)
