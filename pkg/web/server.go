// Package web serves a conversation over HTTP and websockets.
package web

import (
	"context"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-converse/pkg/chat"
	"github.com/teslashibe/go-converse/pkg/hub"
	"github.com/teslashibe/go-converse/pkg/orchestrator"
	"github.com/teslashibe/go-converse/pkg/voice"
	"github.com/teslashibe/go-converse/pkg/voice/browser"
)

// Conversation is the session the server exposes.
// *orchestrator.Orchestrator implements it.
type Conversation interface {
	UpdateDraft(text string) error
	SubmitDraft() error
	Submit(text string) error
	ToggleVoice() error
	Snapshot() orchestrator.Snapshot
	Messages() []chat.Message
	OnChange(fn func(orchestrator.Snapshot))
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithBridge exposes a browser recognition bridge under /ws/voice.
func WithBridge(b *browser.Engine) Option {
	return func(s *Server) { s.bridge = b }
}

// WithVoiceMetrics reports voice session metrics under /api/voice/metrics.
func WithVoiceMetrics(fn func() voice.Metrics) Option {
	return func(s *Server) { s.voiceMetrics = fn }
}

// WithRequestLog enables the fiber request logger.
func WithRequestLog(on bool) Option {
	return func(s *Server) { s.requestLog = on }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// Server is the HTTP front end of a conversation
type Server struct {
	app    *fiber.App
	conv   Conversation
	hub    *hub.Hub
	logger *slog.Logger

	bridge       *browser.Engine
	voiceMetrics func() voice.Metrics
	requestLog   bool
	version      string
}

// NewServer creates a server for conv
func NewServer(conv Conversation, opts ...Option) *Server {
	s := &Server{
		conv:    conv,
		logger:  slog.Default(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.hub = hub.New("state", hub.WithLogger(s.logger))

	app := fiber.New(fiber.Config{
		AppName:               "converse",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if s.requestLog {
		app.Use(logger.New())
	}

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.newRegistry(), promhttp.HandlerOpts{})))

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/messages", s.handleMessages)
	api.Put("/draft", s.handleDraft)
	api.Post("/submit", s.handleSubmit)
	api.Post("/voice/toggle", s.handleToggleVoice)
	api.Get("/voice/metrics", s.handleVoiceMetrics)

	if s.bridge != nil {
		s.bridge.RegisterRoutes(app)
		s.bridge.RegisterAPIRoutes(api)
	}

	app.Use("/ws/state", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.hub.Serve))

	conv.OnChange(func(snap orchestrator.Snapshot) {
		if err := s.hub.BroadcastJSON("snapshot", snap); err != nil {
			s.logger.Warn("snapshot broadcast failed", "error", err)
		}
	})

	s.app = app
	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the state broadcast hub
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.Run(ctx)
	s.hub.BroadcastJSON("snapshot", s.conv.Snapshot())

	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown failed", "error", err)
		}
	}()

	s.logger.Info("listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
