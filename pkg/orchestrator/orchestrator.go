// Package orchestrator owns a conversation session: the message log, the
// pending-response gate, the input draft and the voice input mode.
//
// All state changes run on one goroutine (Run). User actions, voice events
// and the results of the outstanding generation call are posted to it as
// actions, so they are applied one at a time in arrival order.
//
// At most one generation call is outstanding. While it runs the
// orchestrator is AwaitingResponse and rejects new input with ErrBusy.
// When it settles, successfully or not, the orchestrator is Idle again.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-converse/pkg/chat"
	"github.com/teslashibe/go-converse/pkg/inference"
	"github.com/teslashibe/go-converse/pkg/voice"
)

var (
	// ErrBusy is returned while a response is pending.
	ErrBusy = errors.New("orchestrator: response pending")

	// ErrEmptyDraft is returned when submitting a blank draft.
	ErrEmptyDraft = errors.New("orchestrator: draft is empty")

	// ErrListening is returned for typed input while voice capture is active.
	ErrListening = errors.New("orchestrator: voice capture active")

	// ErrClosed is returned after the orchestrator has shut down.
	ErrClosed = errors.New("orchestrator: closed")
)

// Voice is the voice capture the orchestrator drives.
// *voice.Controller implements it.
type Voice interface {
	Start(ctx context.Context) error
	Stop()
	Listening() bool
	Available() bool
	OnEvent(fn func(voice.Event))
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock sets the clock used to timestamp messages.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithActionBuffer sets the capacity of the action queue.
func WithActionBuffer(n int) Option {
	return func(o *Orchestrator) { o.bufSize = n }
}

// Orchestrator is one conversation session.
type Orchestrator struct {
	gateway inference.Gateway
	voice   Voice
	log     *chat.Log
	logger  *slog.Logger
	now     func() time.Time
	bufSize int

	actions chan action
	closing chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	runOnce   sync.Once
	running   bool
	runMu     sync.Mutex

	// Voice events are queued without blocking and drained by the actor.
	voiceMu     sync.Mutex
	voiceQueue  []voice.Event
	voiceSignal chan struct{}

	// Owned by the actor goroutine.
	ctx         context.Context
	cancel      context.CancelFunc
	pending     bool
	mode        Mode
	draft       string
	idleWaiters []chan struct{}
	turn        *turn

	// Published copy for readers.
	snapMu sync.RWMutex
	snap   Snapshot

	subMu sync.Mutex
	subs  []func(Snapshot)
}

// New creates an orchestrator. A nil voice means voice input is unsupported.
func New(gateway inference.Gateway, v Voice, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:     gateway,
		voice:       v,
		logger:      slog.Default(),
		bufSize:     64,
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
		voiceSignal: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.voice == nil {
		o.voice = voice.NewController(nil)
	}
	o.logger = o.logger.With("component", "orchestrator")
	o.log = chat.NewLog(o.now)
	o.actions = make(chan action, o.bufSize)
	o.voice.OnEvent(o.enqueueVoice)
	o.snap = o.buildSnapshot()
	return o
}

// Run processes actions until ctx is cancelled or Close is called.
// It must be running for any action method to return.
func (o *Orchestrator) Run(ctx context.Context) error {
	started := false
	o.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("orchestrator: already running")
	}

	o.runMu.Lock()
	select {
	case <-o.closing:
		o.runMu.Unlock()
		close(o.done)
		return ErrClosed
	default:
	}
	o.running = true
	o.runMu.Unlock()

	o.ctx, o.cancel = context.WithCancel(ctx)
	defer close(o.done)
	defer o.shutdown()

	o.logger.Info("session started", "voice_available", o.voice.Available())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.closing:
			return nil
		case a := <-o.actions:
			err := a.fn()
			o.publish()
			o.releaseIdle()
			if a.reply != nil {
				a.reply <- err
			}
		case <-o.voiceSignal:
			for _, ev := range o.drainVoice() {
				o.handleVoice(ev)
			}
			o.publish()
			o.releaseIdle()
		}
	}
}

// Close stops voice capture and ends the session. It waits for Run to
// return if it is running.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() { close(o.closing) })

	o.runMu.Lock()
	running := o.running
	o.runMu.Unlock()

	if running {
		<-o.done
		return nil
	}
	o.voice.Stop()
	return nil
}

// Done is closed when Run has returned.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// shutdown runs on the actor goroutine as Run exits.
func (o *Orchestrator) shutdown() {
	o.voice.Stop()
	o.cancel()
	o.drainVoice()
	o.mode = ModeIdle
	o.publish()
	for _, w := range o.idleWaiters {
		close(w)
	}
	o.idleWaiters = nil
	o.logger.Info("session closed", "messages", o.log.Len())
}

// action is one unit of work for the actor. reply, when set, receives
// the result after the resulting snapshot is published.
type action struct {
	fn    func() error
	reply chan error
}

// releaseIdle wakes WaitIdle callers once nothing is pending.
func (o *Orchestrator) releaseIdle() {
	if o.pending {
		return
	}
	for _, w := range o.idleWaiters {
		close(w)
	}
	o.idleWaiters = nil
}

// do runs fn on the actor and returns its result.
func (o *Orchestrator) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case o.actions <- action{fn: fn, reply: reply}:
	case <-o.done:
		return ErrClosed
	case <-o.closing:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-o.done:
		return ErrClosed
	}
}

// post queues fn on the actor without waiting for it to run.
func (o *Orchestrator) post(fn func()) {
	a := action{fn: func() error { fn(); return nil }}
	select {
	case o.actions <- a:
	case <-o.done:
	}
}

// UpdateDraft replaces the draft text.
func (o *Orchestrator) UpdateDraft(text string) error {
	return o.do(func() error {
		if o.pending {
			return ErrBusy
		}
		if o.mode == ModeListening {
			return ErrListening
		}
		o.draft = text
		return nil
	})
}

// SubmitDraft sends the trimmed draft. Blank drafts are rejected and kept.
func (o *Orchestrator) SubmitDraft() error {
	return o.do(func() error {
		if o.pending {
			return ErrBusy
		}
		if o.mode == ModeListening {
			return ErrListening
		}
		return o.submit(o.draft)
	})
}

// Submit replaces the draft with text and sends it.
func (o *Orchestrator) Submit(text string) error {
	return o.do(func() error {
		if o.pending {
			return ErrBusy
		}
		if o.mode == ModeListening {
			return ErrListening
		}
		return o.submit(text)
	})
}

// ToggleVoice starts voice capture when idle and stops it when listening.
// Start failures are reported in the conversation and returned.
func (o *Orchestrator) ToggleVoice() error {
	return o.do(func() error {
		if o.pending {
			return ErrBusy
		}
		if o.mode == ModeListening {
			o.voice.Stop()
			o.mode = ModeIdle
			return nil
		}
		return o.startVoice()
	})
}

// Snapshot returns the latest published state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	return o.snap
}

// Messages returns the conversation so far.
func (o *Orchestrator) Messages() []chat.Message {
	return o.log.Messages()
}

// OnChange registers fn to receive every published snapshot. fn runs on
// the actor goroutine and must not block.
func (o *Orchestrator) OnChange(fn func(Snapshot)) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	o.subs = append(o.subs, fn)
}

// WaitIdle blocks until no response is pending.
func (o *Orchestrator) WaitIdle(ctx context.Context) error {
	var wait chan struct{}
	err := o.do(func() error {
		wait = make(chan struct{})
		o.idleWaiters = append(o.idleWaiters, wait)
		return nil
	})
	if err != nil {
		return err
	}
	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
