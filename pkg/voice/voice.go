package voice

import "context"

// State is the controller lifecycle state.
type State int

const (
	// StateIdle means no session is active.
	StateIdle State = iota
	// StateListening means a session is capturing speech.
	StateListening
	// StateErrored means no session is active and the last one failed.
	StateErrored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateErrored:
		return "error"
	default:
		return "unknown"
	}
}

// Engine is a speech recogniser.
type Engine interface {
	// Available reports whether the engine can start a session right now.
	Available() bool

	// Start begins a session that reports into sink. The engine may call
	// the sink from any goroutine, including before Start returns.
	Start(ctx context.Context, sink Sink) (Session, error)
}

// Session is one running recognition session.
type Session interface {
	// Stop ends the session. It must be safe to call more than once and
	// from inside a Sink callback, and must not wait for callbacks.
	Stop()
}

// Sink receives engine events for one session.
type Sink interface {
	// Result delivers recognised text. Only final results end a session.
	Result(text string, final bool)

	// Error reports a recognition failure.
	Error(kind ErrorKind, err error)

	// End reports that the engine has finished the session.
	End()
}

// EventType identifies a consumer-facing event.
type EventType int

const (
	EventTranscript EventType = iota
	EventError
	EventEnded
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventTranscript:
		return "transcript"
	case EventError:
		return "error"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Event is delivered to the consumer registered with OnEvent.
type Event struct {
	Type    EventType
	Session uint64
	// Text is set for EventTranscript.
	Text string
	// Err is set for EventError.
	Err *Error
}
