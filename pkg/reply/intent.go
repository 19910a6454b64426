package reply

import (
	"strings"
	"unicode"
)

// ImageCommand is the slash command that requests image generation.
const ImageCommand = "/image"

// IntentKind says what a piece of input asks for.
type IntentKind int

const (
	IntentText IntentKind = iota
	IntentImage
)

// String returns the intent name.
func (k IntentKind) String() string {
	switch k {
	case IntentText:
		return "text"
	case IntentImage:
		return "image"
	default:
		return "unknown"
	}
}

// Intent is the decoded form of user input or model output.
type Intent struct {
	Kind IntentKind
	// Prompt is the image description for IntentImage, possibly empty.
	// For IntentText it is the trimmed input.
	Prompt string
}

// IsImage reports whether the intent requests an image.
func (i Intent) IsImage() bool { return i.Kind == IntentImage }

// Decode recognises the image command. The command is matched case
// insensitively and must be followed by whitespace or the end of input,
// so "/imagery" is plain text.
func Decode(s string) Intent {
	s = strings.TrimSpace(s)
	if len(s) < len(ImageCommand) || !strings.EqualFold(s[:len(ImageCommand)], ImageCommand) {
		return Intent{Kind: IntentText, Prompt: s}
	}

	rest := s[len(ImageCommand):]
	if rest != "" {
		r := []rune(rest)[0]
		if !unicode.IsSpace(r) {
			return Intent{Kind: IntentText, Prompt: s}
		}
	}
	return Intent{Kind: IntentImage, Prompt: strings.TrimSpace(rest)}
}
