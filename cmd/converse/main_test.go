package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-converse/internal/config"
	"github.com/teslashibe/go-converse/pkg/chat"
	"github.com/teslashibe/go-converse/pkg/inference"
	"github.com/teslashibe/go-converse/pkg/orchestrator"
	"github.com/teslashibe/go-converse/pkg/voice"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "converse dev") {
		t.Errorf("expected output to contain 'converse dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "converse 1.0.0") || !strings.Contains(out, "built: 2026-01-01") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("help command failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"serve", "chat", "version", "--config", "--log-level"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected help output to contain %q, got: %s", want, out)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"nonexistent"})

	if code := execute(cmd); code != 1 {
		t.Errorf("execute() = %d, want 1", code)
	}
}

func TestMissingConfigFile(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"serve", "--config", "/nonexistent/converse.yaml"})

	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "config") {
		t.Errorf("serve with missing config error = %v", err)
	}
}

func TestSessionClose(t *testing.T) {
	cfg := &config.Config{
		Gateway: config.GatewayConfig{Provider: inference.ProviderGemini, APIKey: "k"},
		Voice:   config.VoiceConfig{Engine: config.VoiceNone},
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	sess, err := newSession(cfg, quiet)
	if err != nil {
		t.Fatalf("newSession() error = %v", err)
	}
	if sess.voice.Available() {
		t.Error("voice engine none should be unavailable")
	}

	gw := inference.NewMock()
	sess.gw = gw
	go sess.orch.Run(context.Background())
	sess.close(quiet)

	select {
	case <-sess.orch.Done():
	case <-time.After(3 * time.Second):
		t.Error("orchestrator should have stopped")
	}
	if !gw.Closed() {
		t.Error("gateway should be closed")
	}
}

// lines is a scripted lineReader.
type lines struct {
	in []string
}

func (l *lines) ReadLine() (string, error) {
	if len(l.in) == 0 {
		return "", io.EOF
	}
	line := l.in[0]
	l.in = l.in[1:]
	return line, nil
}

// syncBuffer is a goroutine-safe bytes.Buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runScript(t *testing.T, gw inference.Gateway, engine voice.Engine, script ...string) string {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	var ctl orchestrator.Voice
	if engine != nil {
		ctl = voice.NewController(engine, voice.WithLogger(quiet))
	}
	o := orchestrator.New(gw, ctl, orchestrator.WithLogger(quiet))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)
	defer o.Close()

	out := &syncBuffer{}
	if err := runChat(ctx, o, &lines{in: script}, out); err != nil {
		t.Fatalf("runChat() error = %v", err)
	}
	return out.String()
}

func TestChatText(t *testing.T) {
	gw := inference.NewMock()
	gw.TextFunc = func(ctx context.Context, prompt string) (string, error) {
		return "Here:\n```go\nfmt.Println(1)\n```", nil
	}

	out := runScript(t, gw, nil, "hello", ":quit", "never sent")

	for _, want := range []string{"you: hello", "ai: Here:", "```go\nfmt.Println(1)\n```"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if gw.CallCount("GenerateText") != 1 {
		t.Errorf("GenerateText calls = %d, want 1", gw.CallCount("GenerateText"))
	}
}

func TestChatImage(t *testing.T) {
	out := runScript(t, inference.NewMock(), nil, "/image a red bicycle")

	if !strings.Contains(out, "[image: a red bicycle]") {
		t.Errorf("output missing image line:\n%s", out)
	}
}

func TestChatVoiceUnsupported(t *testing.T) {
	out := runScript(t, inference.NewMock(), nil, ":voice")

	if !strings.Contains(out, "Speech recognition is not supported on this platform.") {
		t.Errorf("output missing unsupported notice:\n%s", out)
	}
}

func TestChatListeningRejectsText(t *testing.T) {
	gw := inference.NewMock()
	out := runScript(t, gw, voice.NewMockEngine(), ":voice", "typed", ":voice")

	if !strings.Contains(out, "listening...") {
		t.Errorf("output missing listening notice:\n%s", out)
	}
	if !strings.Contains(out, "voice input is active") {
		t.Errorf("output missing rejection notice:\n%s", out)
	}
	if len(gw.Calls()) != 0 {
		t.Error("typed text while listening should not reach the gateway")
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		msg  chat.Message
		want string
	}{
		{"user", chat.NewUserText("hi"), "you: hi\n"},
		{"ai code only", chat.NewAIReply("", &chat.CodeBlock{Language: "py", Content: "x = 1"}), "ai:\n```py\nx = 1\n```\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(tt.msg); got != tt.want {
				t.Errorf("render() = %q, want %q", got, tt.want)
			}
		})
	}
}
