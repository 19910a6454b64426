package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/teslashibe/go-converse/pkg/voice"
)

// Microphone is a source of 16 kHz mono PCM16 audio.
type Microphone interface {
	// Available reports whether the device can be opened.
	Available() bool

	// Open starts capture. Closing the reader stops it.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// DefaultCaptureCommand records raw PCM16 from the default ALSA device.
var DefaultCaptureCommand = []string{"arecord", "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "raw"}

// CommandMicrophone captures audio from the stdout of an external command.
type CommandMicrophone struct {
	Command []string
}

// NewCommandMicrophone parses a command line such as
// "arecord -q -f S16_LE -r 16000 -c 1 -t raw". Empty means the default.
func NewCommandMicrophone(cmdline string) *CommandMicrophone {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		fields = DefaultCaptureCommand
	}
	return &CommandMicrophone{Command: fields}
}

// Available reports whether the capture binary is on PATH.
func (m *CommandMicrophone) Available() bool {
	if len(m.Command) == 0 {
		return false
	}
	_, err := exec.LookPath(m.Command[0])
	return err == nil
}

// Open starts the capture command.
func (m *CommandMicrophone) Open(ctx context.Context) (io.ReadCloser, error) {
	if len(m.Command) == 0 {
		return nil, &voice.Error{Kind: voice.KindMicrophoneUnavailable, Err: voice.ErrNoMicrophone}
	}

	cmd := exec.CommandContext(ctx, m.Command[0], m.Command[1:]...)
	cmd.Stderr = io.Discard
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, classifyOpenError(err)
	}
	if err := cmd.Start(); err != nil {
		return nil, classifyOpenError(err)
	}
	return &commandReader{cmd: cmd, ReadCloser: stdout}, nil
}

// classifyOpenError maps capture start failures to voice error kinds.
func classifyOpenError(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return &voice.Error{Kind: voice.KindPermissionDenied, Err: err}
	}
	return &voice.Error{Kind: voice.KindMicrophoneUnavailable, Err: fmt.Errorf("open microphone: %w", err)}
}

type commandReader struct {
	io.ReadCloser
	cmd  *exec.Cmd
	once sync.Once
}

func (r *commandReader) Close() error {
	r.once.Do(func() {
		if r.cmd.Process != nil {
			r.cmd.Process.Kill()
		}
		r.ReadCloser.Close()
		r.cmd.Wait()
	})
	return nil
}
