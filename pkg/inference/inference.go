// Package inference is the generation gateway: one contract for text and
// image generation, with failures classified into a small taxonomy the
// conversation layer can render.
//
// Example usage:
//
//	gw, _ := inference.NewGemini(
//	    inference.WithAPIKey(os.Getenv("GEMINI_API_KEY")),
//	)
//
//	text, err := gw.GenerateText(ctx, "Write a haiku about Go")
//	if err != nil {
//	    fmt.Println(inference.Describe(err))
//	}
//
//	img, err := gw.GenerateImage(ctx, "a red bicycle")
//	src := img.DataURI()
//
// Calls are stateless. There are no retries and no caching: a failed call
// is reported once and the caller decides what to do.
package inference

import (
	"context"
	"fmt"
)

// Gateway generates text and images from a prompt.
type Gateway interface {
	// GenerateText returns the model's reply, trimmed of surrounding whitespace.
	GenerateText(ctx context.Context, prompt string) (string, error)

	// GenerateImage returns one encoded image for the prompt.
	GenerateImage(ctx context.Context, prompt string) (*Image, error)

	// Close releases the gateway's connections.
	Close() error
}

// Op names the gateway operation a failure came from.
type Op string

const (
	OpText  Op = "text"
	OpImage Op = "image"
)

// DefaultSystemInstruction steers the text model. The /image rule is
// load-bearing: replies that start with /image are routed to the image model.
const DefaultSystemInstruction = `You are a helpful and friendly AI assistant.
If the user asks you to generate, create, draw or show an image, picture or drawing, respond ONLY with "/image <a detailed description of the image>" and nothing else.
When you include code in a reply, always put it in a fenced code block that names the language, for example:
` + "```python\nprint(\"hello\")\n```" + `
If the user asks for your name, answer "my name is Abdul Hadi."
If the user asks who made or created you, answer "Abdul Hadi."`

// Provider names accepted by New.
const (
	ProviderGemini = providerGemini
	ProviderOpenAI = providerOpenAI
)

// New creates a gateway for the named provider.
func New(provider string, opts ...Option) (Gateway, error) {
	var (
		gw  Gateway
		err error
	)
	switch provider {
	case "", ProviderGemini:
		gw, err = NewGemini(opts...)
	case ProviderOpenAI:
		gw, err = NewOpenAI(opts...)
	default:
		return nil, fmt.Errorf("inference: unknown provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	return gw, nil
}
