// Package live implements a voice.Engine on the Gemini Live API. Microphone
// audio is streamed over a websocket and the server's input transcription
// is reported as the session transcript.
package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-converse/pkg/voice"
)

const (
	// Gemini Live API WebSocket endpoint
	defaultURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultModel = "models/gemini-2.0-flash-live-001"

	// 100ms of 16 kHz mono PCM16
	defaultChunkBytes = 3200
)

// Config configures the live engine.
type Config struct {
	APIKey   string
	URL      string
	Model    string
	Language string

	// SilenceTimeout ends the session with NoSpeech when nothing has been
	// transcribed for this long.
	SilenceTimeout time.Duration

	ChunkBytes       int
	HandshakeTimeout time.Duration

	// CaptureFormat is what Microphone produces. Audio is converted to
	// 16 kHz mono before it is sent. Zero means it already is.
	CaptureFormat Format

	Microphone Microphone
	Logger     *slog.Logger
}

// DefaultConfig returns defaults for the public Gemini Live endpoint.
func DefaultConfig() Config {
	return Config{
		URL:              defaultURL,
		Model:            defaultModel,
		Language:         "en-US",
		SilenceTimeout:   8 * time.Second,
		ChunkBytes:       defaultChunkBytes,
		HandshakeTimeout: 10 * time.Second,
		Microphone:       NewCommandMicrophone(""),
		Logger:           slog.Default(),
	}
}

// Engine implements voice.Engine.
type Engine struct {
	config Config
	dialer websocket.Dialer
	logger *slog.Logger
}

// New creates a live engine. Zero fields in cfg take their defaults.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.SilenceTimeout == 0 {
		cfg.SilenceTimeout = def.SilenceTimeout
	}
	if cfg.ChunkBytes == 0 {
		cfg.ChunkBytes = def.ChunkBytes
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}

	return &Engine{
		config: cfg,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger: cfg.Logger.With("component", "voice.live"),
	}
}

// Available reports whether an API key and a microphone are present.
func (e *Engine) Available() bool {
	return e.config.APIKey != "" && e.config.Microphone != nil && e.config.Microphone.Available()
}

// Start opens the microphone and returns at once. The connection is made
// in the background and a failure to connect is reported through sink.
func (e *Engine) Start(ctx context.Context, sink voice.Sink) (voice.Session, error) {
	if e.config.APIKey == "" {
		return nil, voice.ErrMissingAPIKey
	}
	if e.config.Microphone == nil {
		return nil, &voice.Error{Kind: voice.KindMicrophoneUnavailable, Err: voice.ErrNoMicrophone}
	}

	u, err := url.Parse(e.config.URL)
	if err != nil {
		return nil, fmt.Errorf("voice/live: bad url: %w", err)
	}
	q := u.Query()
	q.Set("key", e.config.APIKey)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithCancel(ctx)

	mic, err := e.config.Microphone.Open(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	if f := e.config.CaptureFormat; !f.isZero() && f != wireFormat {
		mic = newConverter(mic, f)
	}

	s := &session{
		engine: e,
		mic:    mic,
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
	}
	go s.connect(u.String())
	return s, nil
}

// session is one websocket connection plus its microphone stream.
type session struct {
	engine *Engine
	mic    io.ReadCloser
	sink   voice.Sink

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	ws         *websocket.Conn // nil until connected
	silence    *time.Timer
	transcript strings.Builder
	finished   bool

	stopOnce sync.Once
}

// connect dials the endpoint, configures the session and runs the read
// loop until the session ends.
func (s *session) connect(endpoint string) {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	ws, _, err := s.engine.dialer.DialContext(s.ctx, endpoint, header)
	if err != nil {
		if !s.stopped() {
			s.finish(func() {
				s.sink.Error(voice.KindOther, fmt.Errorf("voice/live: failed to connect: %w", err))
			})
		}
		return
	}

	s.mu.Lock()
	if s.stopped() {
		s.mu.Unlock()
		ws.Close()
		return
	}
	s.ws = ws
	s.silence = time.AfterFunc(s.engine.config.SilenceTimeout, s.onSilence)
	s.mu.Unlock()

	if err := s.sendSetup(); err != nil {
		if !s.stopped() {
			s.finish(func() {
				s.sink.Error(voice.KindOther, fmt.Errorf("voice/live: failed to configure session: %w", err))
			})
		}
		return
	}

	s.engine.logger.Debug("session connected", "model", s.engine.config.Model)
	go s.sendLoop()
	s.readLoop()
}

// Stop tears the session down. It never waits for the loops to exit.
func (s *session) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		ws, silence := s.ws, s.silence
		s.mu.Unlock()

		if silence != nil {
			silence.Stop()
		}
		if ws != nil {
			ws.Close()
		}
		go s.mic.Close()
	})
}

// finish reports the session outcome once. Later outcomes are ignored.
func (s *session) finish(report func()) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.mu.Unlock()

	report()
	s.Stop()
}

func (s *session) stopped() bool {
	return s.ctx.Err() != nil
}

func (s *session) onSilence() {
	s.finish(func() { s.sink.Error(voice.KindNoSpeech, nil) })
}

// sendSetup configures a text-only session with input transcription.
func (s *session) sendSetup() error {
	cfg := s.engine.config
	setup := map[string]any{
		"setup": map[string]any{
			"model": cfg.Model,
			"generation_config": map[string]any{
				"response_modalities": []string{"TEXT"},
				"speech_config": map[string]any{
					"language_code": cfg.Language,
				},
			},
			"input_audio_transcription": map[string]any{},
			"realtime_input_config": map[string]any{
				"automatic_activity_detection": map[string]any{},
			},
		},
	}
	return s.ws.WriteJSON(setup)
}

// sendLoop streams microphone audio until the session stops.
func (s *session) sendLoop() {
	buf := make([]byte, s.engine.config.ChunkBytes)
	for {
		n, err := io.ReadFull(s.mic, buf)
		if n > 0 {
			msg := map[string]any{
				"realtime_input": map[string]any{
					"media_chunks": []map[string]any{{
						"data":      base64.StdEncoding.EncodeToString(buf[:n]),
						"mime_type": "audio/pcm;rate=16000",
					}},
				},
			}
			if werr := s.ws.WriteJSON(msg); werr != nil {
				if !s.stopped() {
					s.finish(func() { s.sink.Error(voice.KindOther, werr) })
				}
				return
			}
		}
		if err != nil {
			if s.stopped() {
				return
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			s.finish(func() {
				s.sink.Error(voice.KindMicrophoneUnavailable, fmt.Errorf("microphone: %w", err))
			})
			return
		}
	}
}

// readLoop processes server messages until the session stops.
func (s *session) readLoop() {
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if !s.stopped() {
				s.finish(func() { s.sink.Error(voice.KindOther, err) })
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.engine.logger.Debug("failed to parse message", "error", err)
			continue
		}
		s.handle(msg)
	}
}

func (s *session) handle(msg serverMessage) {
	if s.stopped() {
		return
	}
	if msg.SetupComplete != nil {
		s.engine.logger.Debug("session ready")
		return
	}
	if msg.ServerContent == nil {
		return
	}
	content := msg.ServerContent

	if content.InputTranscription != nil && content.InputTranscription.Text != "" {
		s.mu.Lock()
		s.transcript.WriteString(content.InputTranscription.Text)
		s.mu.Unlock()
		s.silence.Reset(s.engine.config.SilenceTimeout)
		s.sink.Result(content.InputTranscription.Text, false)
	}

	if content.TurnComplete {
		s.mu.Lock()
		text := strings.TrimSpace(s.transcript.String())
		s.mu.Unlock()

		if text == "" {
			s.finish(func() { s.sink.Error(voice.KindNoSpeech, nil) })
			return
		}
		s.finish(func() { s.sink.Result(text, true) })
	}
}

type serverMessage struct {
	SetupComplete *struct{} `json:"setupComplete"`
	ServerContent *struct {
		InputTranscription *struct {
			Text string `json:"text"`
		} `json:"inputTranscription"`
		TurnComplete bool `json:"turnComplete"`
	} `json:"serverContent"`
}

// Verify Engine implements voice.Engine at compile time.
var _ voice.Engine = (*Engine)(nil)
