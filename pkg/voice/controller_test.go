package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) get(i int) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[i]
}

func newTestController(t *testing.T) (*Controller, *MockEngine, *recorder) {
	t.Helper()
	engine := NewMockEngine()
	ctl := NewController(engine)
	rec := &recorder{}
	ctl.OnEvent(rec.record)
	return ctl, engine, rec
}

func equalTypes(a, b []EventType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestControllerTranscript(t *testing.T) {
	ctl, engine, rec := newTestController(t)

	if err := ctl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if ctl.State() != StateListening {
		t.Fatalf("State() = %v, want listening", ctl.State())
	}

	engine.SimulateResult("partial", false)
	if len(rec.types()) != 0 {
		t.Fatal("interim results must not produce events")
	}

	engine.SimulateResult("  hello world ", true)

	if ctl.State() != StateIdle {
		t.Errorf("State() = %v, want idle", ctl.State())
	}
	want := []EventType{EventTranscript, EventEnded}
	if got := rec.types(); !equalTypes(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if rec.get(0).Text != "hello world" {
		t.Errorf("Text = %q, want %q", rec.get(0).Text, "hello world")
	}
	if engine.StopCount() != 1 {
		t.Errorf("StopCount() = %d, want 1", engine.StopCount())
	}

	// The engine's own end after the transcript is stale.
	engine.SimulateEnd()
	if got := rec.types(); len(got) != 2 {
		t.Errorf("events after stale end = %v", got)
	}
}

func TestControllerErrors(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		desc string
	}{
		{KindNoSpeech, "No speech detected. Please try again."},
		{KindMicrophoneUnavailable, "Microphone error. Please check your microphone."},
		{KindPermissionDenied, "Microphone access denied. Please allow microphone access."},
		{KindOther, "Speech recognition error."},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			ctl, engine, rec := newTestController(t)
			if err := ctl.Start(context.Background()); err != nil {
				t.Fatal(err)
			}

			engine.SimulateError(tt.kind)

			if ctl.State() != StateErrored {
				t.Errorf("State() = %v, want error", ctl.State())
			}
			if ctl.Listening() {
				t.Error("controller should not be listening after an error")
			}
			want := []EventType{EventError, EventEnded}
			if got := rec.types(); !equalTypes(got, want) {
				t.Fatalf("events = %v, want %v", got, want)
			}
			if got := rec.get(0).Err.Describe(); got != tt.desc {
				t.Errorf("Describe() = %q, want %q", got, tt.desc)
			}
			if ctl.LastError() == nil || ctl.LastError().Kind != tt.kind {
				t.Errorf("LastError() = %v", ctl.LastError())
			}

			// A new session is allowed after an error.
			if err := ctl.Start(context.Background()); err != nil {
				t.Errorf("restart error = %v", err)
			}
			if !ctl.Listening() {
				t.Error("expected listening after restart")
			}
		})
	}
}

func TestControllerEngineEnd(t *testing.T) {
	ctl, engine, rec := newTestController(t)
	ctl.Start(context.Background())

	engine.SimulateEnd()

	if ctl.State() != StateIdle {
		t.Errorf("State() = %v, want idle", ctl.State())
	}
	if got := rec.types(); !equalTypes(got, []EventType{EventEnded}) {
		t.Errorf("events = %v, want [ended]", got)
	}
}

func TestControllerStopAndToggle(t *testing.T) {
	ctl, engine, rec := newTestController(t)
	ctx := context.Background()

	ctl.Stop()
	if len(rec.types()) != 0 {
		t.Fatal("Stop() while idle must not emit events")
	}

	ctl.Toggle(ctx)
	if !ctl.Listening() {
		t.Fatal("Toggle() should start listening")
	}
	ctl.Toggle(ctx)
	if ctl.Listening() {
		t.Fatal("second Toggle() should stop listening")
	}
	if got := rec.types(); !equalTypes(got, []EventType{EventEnded}) {
		t.Errorf("events = %v, want [ended]", got)
	}
	if engine.StartCount() != 1 || engine.StopCount() != 1 {
		t.Errorf("starts=%d stops=%d, want 1/1", engine.StartCount(), engine.StopCount())
	}

	// Results from the stopped session are dropped.
	engine.SimulateResult("late", true)
	if got := rec.types(); len(got) != 1 {
		t.Errorf("late result produced events: %v", got)
	}
	if m := ctl.Metrics(); m.Sessions != 1 || m.Stops != 1 || m.Transcripts != 0 {
		t.Errorf("Metrics() = %+v", m)
	}
}

func TestControllerUnsupported(t *testing.T) {
	ctl, engine, _ := newTestController(t)
	engine.SetAvailable(false)

	err := ctl.Start(context.Background())
	if !IsUnsupported(err) {
		t.Fatalf("Start() error = %v, want unsupported platform", err)
	}
	if ctl.State() != StateIdle {
		t.Errorf("State() = %v, want idle", ctl.State())
	}
	if engine.StartCount() != 0 {
		t.Error("engine must not be started when unavailable")
	}

	if !IsUnsupported(NewController(nil).Start(context.Background())) {
		t.Error("nil engine should be unsupported")
	}
}

func TestControllerStartFailure(t *testing.T) {
	ctl, engine, rec := newTestController(t)
	engine.StartErr = errors.New("device busy")

	err := ctl.Start(context.Background())
	var ve *Error
	if !errors.As(err, &ve) || ve.Kind != KindOther {
		t.Fatalf("Start() error = %v, want voice error", err)
	}
	if ctl.State() != StateIdle {
		t.Errorf("State() = %v, want idle", ctl.State())
	}
	if len(rec.types()) != 0 {
		t.Error("start failure must not emit events")
	}
}

func TestControllerReentrantConsumer(t *testing.T) {
	engine := NewMockEngine()
	ctl := NewController(engine)
	rec := &recorder{}
	ctx := context.Background()

	ctl.OnEvent(func(ev Event) {
		rec.record(ev)
		if ev.Type == EventTranscript {
			// Starting from inside the callback must not deadlock.
			ctl.Start(ctx)
		}
	})

	ctl.Start(ctx)
	engine.SimulateResult("again", true)

	if !ctl.Listening() {
		t.Error("expected a new session started from the callback")
	}
	want := []EventType{EventTranscript, EventEnded}
	if got := rec.types(); !equalTypes(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestParseErrorCode(t *testing.T) {
	tests := map[string]ErrorKind{
		"no-speech":           KindNoSpeech,
		"audio-capture":       KindMicrophoneUnavailable,
		"not-allowed":         KindPermissionDenied,
		"service-not-allowed": KindPermissionDenied,
		"network":             KindOther,
		"":                    KindOther,
	}
	for code, want := range tests {
		if got := ParseErrorCode(code); got != want {
			t.Errorf("ParseErrorCode(%q) = %v, want %v", code, got, want)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateIdle.String() != "idle" || StateListening.String() != "listening" || StateErrored.String() != "error" {
		t.Error("unexpected state names")
	}
}
