package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// Controller runs one recognition session at a time on an Engine.
type Controller struct {
	engine  Engine
	logger  *slog.Logger
	metrics *MetricsCollector

	mu      sync.Mutex
	state   State
	gen     uint64 // current session; bumped when a session ends
	session Session
	lastErr *Error
	onEvent func(Event)

	// Events are queued under mu and delivered by whichever goroutine
	// holds the dispatching flag, so consumers see them in order.
	queue       []Event
	dispatching bool
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics shares a metrics collector with the controller.
func WithMetrics(m *MetricsCollector) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// NewController creates a controller for engine. A nil engine behaves as
// an unsupported platform.
func NewController(engine Engine, opts ...ControllerOption) *Controller {
	c := &Controller{
		engine:  engine,
		logger:  slog.Default(),
		metrics: NewMetricsCollector(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "voice.controller")
	return c
}

// OnEvent sets the consumer callback. The callback may call back into
// the controller.
func (c *Controller) OnEvent(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = fn
}

// Available reports whether the engine can start a session.
func (c *Controller) Available() bool {
	return c.engine != nil && c.engine.Available()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Listening reports whether a session is active.
func (c *Controller) Listening() bool {
	return c.State() == StateListening
}

// LastError returns the failure of the most recent failed session.
func (c *Controller) LastError() *Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Metrics returns session metrics.
func (c *Controller) Metrics() Metrics {
	return c.metrics.Current()
}

// Start begins a session. While a session is active Start stops it instead.
func (c *Controller) Start(ctx context.Context) error {
	if !c.Available() {
		return &Error{Kind: KindUnsupportedPlatform}
	}

	c.mu.Lock()
	if c.state == StateListening {
		c.mu.Unlock()
		c.Stop()
		return nil
	}
	c.gen++
	gen := c.gen
	c.state = StateListening
	c.session = nil
	c.mu.Unlock()

	c.metrics.MarkStart()
	c.logger.Debug("session starting", "session", gen)

	sess, err := c.engine.Start(ctx, &sink{c: c, gen: gen})

	c.mu.Lock()
	if err != nil {
		if c.gen == gen {
			c.gen++
			c.state = StateIdle
		}
		c.mu.Unlock()
		c.logger.Warn("session start failed", "session", gen, "error", err)
		var ve *Error
		if errors.As(err, &ve) {
			return ve
		}
		return &Error{Kind: KindOther, Err: err}
	}
	if c.gen != gen {
		// The session ended from inside engine.Start.
		c.mu.Unlock()
		if sess != nil {
			sess.Stop()
		}
		return nil
	}
	c.session = sess
	c.mu.Unlock()
	return nil
}

// Toggle starts a session when idle and stops it when listening.
func (c *Controller) Toggle(ctx context.Context) error {
	return c.Start(ctx)
}

// Stop cancels the active session without a transcript. It is a no-op
// when idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state != StateListening {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	sess := c.endLocked(StateIdle)
	c.enqueueLocked(Event{Type: EventEnded, Session: gen})
	c.mu.Unlock()

	c.metrics.MarkStop()
	c.logger.Debug("session stopped", "session", gen)
	if sess != nil {
		sess.Stop()
	}
	c.dispatch()
}

// Close stops any active session.
func (c *Controller) Close() {
	c.Stop()
}

// endLocked leaves the Listening state and invalidates the session so
// its late events are dropped. Must be called with mu held.
func (c *Controller) endLocked(next State) Session {
	sess := c.session
	c.session = nil
	c.state = next
	c.gen++
	return sess
}

// enqueueLocked queues events for dispatch. Must be called with mu held.
func (c *Controller) enqueueLocked(evs ...Event) {
	c.queue = append(c.queue, evs...)
}

// dispatch delivers queued events unless another goroutine already is.
func (c *Controller) dispatch() {
	c.mu.Lock()
	if c.dispatching {
		c.mu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.queue) > 0 {
		ev := c.queue[0]
		c.queue = c.queue[1:]
		fn := c.onEvent
		c.mu.Unlock()
		if fn != nil {
			fn(ev)
		}
		c.mu.Lock()
	}
	c.dispatching = false
	c.mu.Unlock()
}

func (c *Controller) handleResult(gen uint64, text string, final bool) {
	if !final {
		c.logger.Debug("interim result dropped", "session", gen)
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.state != StateListening {
		c.mu.Unlock()
		return
	}
	sess := c.endLocked(StateIdle)
	c.enqueueLocked(
		Event{Type: EventTranscript, Session: gen, Text: strings.TrimSpace(text)},
		Event{Type: EventEnded, Session: gen},
	)
	c.mu.Unlock()

	c.metrics.MarkTranscript()
	c.logger.Debug("transcript received", "session", gen, "chars", len(text))
	if sess != nil {
		sess.Stop()
	}
	c.dispatch()
}

func (c *Controller) handleError(gen uint64, kind ErrorKind, err error) {
	ve := &Error{Kind: kind, Err: err}

	c.mu.Lock()
	if gen != c.gen || c.state != StateListening {
		c.mu.Unlock()
		return
	}
	sess := c.endLocked(StateErrored)
	c.lastErr = ve
	c.enqueueLocked(
		Event{Type: EventError, Session: gen, Err: ve},
		Event{Type: EventEnded, Session: gen},
	)
	c.mu.Unlock()

	c.metrics.MarkError(kind)
	c.logger.Info("session failed", "session", gen, "kind", kind.String(), "error", err)
	if sess != nil {
		sess.Stop()
	}
	c.dispatch()
}

func (c *Controller) handleEnd(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateListening {
		c.mu.Unlock()
		return
	}
	c.endLocked(StateIdle)
	c.enqueueLocked(Event{Type: EventEnded, Session: gen})
	c.mu.Unlock()

	c.logger.Debug("session ended by engine", "session", gen)
	c.dispatch()
}

// sink routes engine callbacks for one session back to the controller.
type sink struct {
	c   *Controller
	gen uint64
}

func (s *sink) Result(text string, final bool) { s.c.handleResult(s.gen, text, final) }
func (s *sink) Error(kind ErrorKind, err error) { s.c.handleError(s.gen, kind, err) }
func (s *sink) End()                            { s.c.handleEnd(s.gen) }
