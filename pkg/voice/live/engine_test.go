package live

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-converse/pkg/voice"
)

// pipeMic is a microphone fed by the test through an io.Pipe.
type pipeMic struct {
	mu      sync.Mutex
	w       *io.PipeWriter
	openErr error
}

func (m *pipeMic) Available() bool { return true }

func (m *pipeMic) Open(ctx context.Context) (io.ReadCloser, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	r, w := io.Pipe()
	m.mu.Lock()
	m.w = w
	m.mu.Unlock()
	go func() {
		// Keep audio flowing until the reader is closed.
		chunk := make([]byte, 320)
		for {
			if _, err := w.Write(chunk); err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
	return r, nil
}

type sinkEvent struct {
	kind  string
	text  string
	final bool
	err   voice.ErrorKind
}

type chanSink struct {
	events chan sinkEvent
}

func newChanSink() *chanSink {
	return &chanSink{events: make(chan sinkEvent, 64)}
}

func (s *chanSink) Result(text string, final bool) {
	s.events <- sinkEvent{kind: "result", text: text, final: final}
}

func (s *chanSink) Error(kind voice.ErrorKind, err error) {
	s.events <- sinkEvent{kind: "error", err: kind}
}

func (s *chanSink) End() {
	s.events <- sinkEvent{kind: "end"}
}

// next waits for the next event that satisfies keep.
func (s *chanSink) next(t *testing.T, keep func(sinkEvent) bool) sinkEvent {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-s.events:
			if keep(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for sink event")
			return sinkEvent{}
		}
	}
}

func isFinal(ev sinkEvent) bool { return ev.kind == "error" || (ev.kind == "result" && ev.final) }

// newLiveServer runs a fake Gemini Live endpoint. script is called after
// the setup frame and the first audio chunk have been received.
func newLiveServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("key = %q, want test-key", r.URL.Query().Get("key"))
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var setup map[string]map[string]any
		if err := conn.ReadJSON(&setup); err != nil {
			t.Errorf("read setup: %v", err)
			return
		}
		if _, ok := setup["setup"]["input_audio_transcription"]; !ok {
			t.Error("setup should enable input transcription")
		}
		conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if !strings.Contains(string(data), "realtime_input") {
			t.Errorf("first frame after setup = %s", data)
		}

		script(conn)

		// Drain until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func transcription(text string) map[string]any {
	return map[string]any{"serverContent": map[string]any{"inputTranscription": map[string]any{"text": text}}}
}

func turnComplete() map[string]any {
	return map[string]any{"serverContent": map[string]any{"turnComplete": true}}
}

func TestEngineTranscript(t *testing.T) {
	server := newLiveServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(transcription("hello "))
		conn.WriteJSON(transcription("world"))
		conn.WriteJSON(turnComplete())
	})

	e := New(Config{APIKey: "test-key", URL: wsURL(server), Microphone: &pipeMic{}})
	sink := newChanSink()

	sess, err := e.Start(context.Background(), sink)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sess.Stop()

	ev := sink.next(t, isFinal)
	if ev.kind != "result" || ev.text != "hello world" {
		t.Errorf("event = %+v, want final result %q", ev, "hello world")
	}
}

func TestEngineNoSpeechOnEmptyTurn(t *testing.T) {
	server := newLiveServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(turnComplete())
	})

	e := New(Config{APIKey: "test-key", URL: wsURL(server), Microphone: &pipeMic{}})
	sink := newChanSink()

	sess, err := e.Start(context.Background(), sink)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sess.Stop()

	ev := sink.next(t, isFinal)
	if ev.kind != "error" || ev.err != voice.KindNoSpeech {
		t.Errorf("event = %+v, want no_speech error", ev)
	}
}

func TestEngineSilenceTimeout(t *testing.T) {
	server := newLiveServer(t, func(conn *websocket.Conn) {})

	e := New(Config{
		APIKey:         "test-key",
		URL:            wsURL(server),
		Microphone:     &pipeMic{},
		SilenceTimeout: 50 * time.Millisecond,
	})
	sink := newChanSink()

	sess, err := e.Start(context.Background(), sink)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sess.Stop()

	ev := sink.next(t, isFinal)
	if ev.kind != "error" || ev.err != voice.KindNoSpeech {
		t.Errorf("event = %+v, want no_speech error", ev)
	}
}

func TestEngineServerDisconnect(t *testing.T) {
	server := newLiveServer(t, func(conn *websocket.Conn) {
		conn.Close()
	})

	e := New(Config{APIKey: "test-key", URL: wsURL(server), Microphone: &pipeMic{}})
	sink := newChanSink()

	sess, err := e.Start(context.Background(), sink)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sess.Stop()

	ev := sink.next(t, isFinal)
	if ev.kind != "error" || ev.err != voice.KindOther {
		t.Errorf("event = %+v, want other error", ev)
	}
}

func TestEngineStopIsQuiet(t *testing.T) {
	server := newLiveServer(t, func(conn *websocket.Conn) {})

	e := New(Config{APIKey: "test-key", URL: wsURL(server), Microphone: &pipeMic{}})
	sink := newChanSink()

	sess, err := e.Start(context.Background(), sink)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sess.Stop()
	sess.Stop()

	select {
	case ev := <-sink.events:
		t.Errorf("unexpected event after Stop: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEngineConnectFailure(t *testing.T) {
	e := New(Config{APIKey: "test-key", URL: "ws://127.0.0.1:1", Microphone: &pipeMic{}})
	sink := newChanSink()

	if _, err := e.Start(context.Background(), sink); err != nil {
		t.Fatalf("Start() error = %v, want connect failure reported through the sink", err)
	}

	ev := sink.next(t, isFinal)
	if ev.kind != "error" || ev.err != voice.KindOther {
		t.Errorf("event = %+v, want error other", ev)
	}
}

func TestEngineStartDoesNotWaitForHandshake(t *testing.T) {
	// Accepts TCP connections but never answers the upgrade.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		var held []net.Conn
		defer func() {
			for _, c := range held {
				c.Close()
			}
		}()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			held = append(held, c)
		}
	}()

	e := New(Config{
		APIKey:           "test-key",
		URL:              "ws://" + ln.Addr().String(),
		HandshakeTimeout: time.Minute,
		Microphone:       &pipeMic{},
	})
	sink := newChanSink()

	begin := time.Now()
	sess, err := e.Start(context.Background(), sink)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Errorf("Start() took %v, want it to return before the handshake", elapsed)
	}

	sess.Stop()
	select {
	case ev := <-sink.events:
		t.Errorf("unexpected event after Stop: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEngineMicrophoneErrors(t *testing.T) {
	permErr := &voice.Error{Kind: voice.KindPermissionDenied, Err: os.ErrPermission}
	e := New(Config{APIKey: "test-key", URL: "ws://127.0.0.1:1", Microphone: &pipeMic{openErr: permErr}})

	_, err := e.Start(context.Background(), newChanSink())
	var ve *voice.Error
	if !errors.As(err, &ve) || ve.Kind != voice.KindPermissionDenied {
		t.Errorf("Start() error = %v, want permission denied", err)
	}
}

func TestEngineAvailable(t *testing.T) {
	if New(Config{Microphone: &pipeMic{}}).Available() {
		t.Error("engine without API key should be unavailable")
	}
	if !New(Config{APIKey: "k", Microphone: &pipeMic{}}).Available() {
		t.Error("engine with key and microphone should be available")
	}
	missing := &CommandMicrophone{Command: []string{"definitely-not-a-real-capture-binary"}}
	if New(Config{APIKey: "k", Microphone: missing}).Available() {
		t.Error("engine with a missing capture binary should be unavailable")
	}
}

func TestClassifyOpenError(t *testing.T) {
	var ve *voice.Error
	if err := classifyOpenError(os.ErrPermission); !errors.As(err, &ve) || ve.Kind != voice.KindPermissionDenied {
		t.Errorf("permission error = %v", err)
	}
	if err := classifyOpenError(errors.New("no device")); !errors.As(err, &ve) || ve.Kind != voice.KindMicrophoneUnavailable {
		t.Errorf("device error = %v", err)
	}
}

func TestSetupFrame(t *testing.T) {
	msg := serverMessage{}
	if err := json.Unmarshal([]byte(`{"setupComplete":{}}`), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.SetupComplete == nil {
		t.Error("setupComplete should decode to a non-nil value")
	}
}
