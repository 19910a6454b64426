package orchestrator

import (
	"fmt"
	"slices"

	"github.com/teslashibe/go-converse/pkg/chat"
)

// Mode is the input mode.
type Mode int

const (
	ModeIdle Mode = iota
	ModeListening
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeListening {
		return "listening"
	}
	return "idle"
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*m = ModeIdle
	case "listening":
		*m = ModeListening
	default:
		return fmt.Errorf("orchestrator: unknown mode %q", b)
	}
	return nil
}

// State is the session state derived from the pending flag and mode.
type State int

const (
	StateIdle State = iota
	StateListening
	StateAwaitingResponse
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateAwaitingResponse:
		return "awaiting_response"
	default:
		return "idle"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StateIdle
	case "listening":
		*s = StateListening
	case "awaiting_response":
		*s = StateAwaitingResponse
	default:
		return fmt.Errorf("orchestrator: unknown state %q", b)
	}
	return nil
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	State          State          `json:"state"`
	Pending        bool           `json:"pending"`
	Mode           Mode           `json:"mode"`
	Draft          string         `json:"draft"`
	VoiceAvailable bool           `json:"voiceAvailable"`
	Messages       []chat.Message `json:"messages"`
}

func (o *Orchestrator) state() State {
	switch {
	case o.pending:
		return StateAwaitingResponse
	case o.mode == ModeListening:
		return StateListening
	default:
		return StateIdle
	}
}

func (o *Orchestrator) buildSnapshot() Snapshot {
	return Snapshot{
		State:          o.state(),
		Pending:        o.pending,
		Mode:           o.mode,
		Draft:          o.draft,
		VoiceAvailable: o.voice.Available(),
		Messages:       o.log.Messages(),
	}
}

// publish stores a fresh snapshot and notifies subscribers. Runs on the actor.
func (o *Orchestrator) publish() {
	snap := o.buildSnapshot()

	o.snapMu.Lock()
	o.snap = snap
	o.snapMu.Unlock()

	o.subMu.Lock()
	subs := slices.Clone(o.subs)
	o.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
