package voice

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAPIKey is returned when an engine needs an API key.
	ErrMissingAPIKey = errors.New("voice: missing API key")

	// ErrNoMicrophone is returned when no capture device is configured.
	ErrNoMicrophone = errors.New("voice: no microphone")
)

// ErrorKind classifies recognition failures.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindNoSpeech
	KindMicrophoneUnavailable
	KindPermissionDenied
	KindUnsupportedPlatform
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindNoSpeech:
		return "no_speech"
	case KindMicrophoneUnavailable:
		return "microphone_unavailable"
	case KindPermissionDenied:
		return "permission_denied"
	case KindUnsupportedPlatform:
		return "unsupported_platform"
	default:
		return "other"
	}
}

// ParseErrorCode maps a Web Speech API error code to a kind.
func ParseErrorCode(code string) ErrorKind {
	switch code {
	case "no-speech":
		return KindNoSpeech
	case "audio-capture":
		return KindMicrophoneUnavailable
	case "not-allowed", "service-not-allowed":
		return KindPermissionDenied
	default:
		return KindOther
	}
}

// Error is a classified recognition failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return "voice: " + e.Kind.String()
	}
	return fmt.Sprintf("voice: %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Describe renders the failure for display in the conversation.
func (e *Error) Describe() string {
	switch e.Kind {
	case KindNoSpeech:
		return "No speech detected. Please try again."
	case KindMicrophoneUnavailable:
		return "Microphone error. Please check your microphone."
	case KindPermissionDenied:
		return "Microphone access denied. Please allow microphone access."
	case KindUnsupportedPlatform:
		return "Speech recognition is not supported on this platform."
	default:
		return "Speech recognition error."
	}
}

// Describe renders any error returned by the Controller.
func Describe(err error) string {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Describe()
	}
	return "Speech recognition error."
}

// IsUnsupported reports whether err means the platform has no recogniser.
func IsUnsupported(err error) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Kind == KindUnsupportedPlatform
}
