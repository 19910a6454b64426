package inference

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Config holds gateway configuration.
type Config struct {
	// Connection
	BaseURL string // API base URL
	APIKey  string // API key, unused in Vertex mode

	// Models
	TextModel  string
	ImageModel string

	// Text generation
	SystemInstruction string
	Temperature       float64
	TopK              int
	TopP              float64
	MaxOutputTokens   int

	// Image generation
	ImageMIMEType string

	// Vertex AI. Setting Project switches Gemini to the Vertex endpoint
	// with OAuth2 bearer auth.
	Project         string
	Location        string
	CredentialsFile string
	TokenSource     oauth2.TokenSource

	// Transport
	Timeout    time.Duration
	HTTPClient *http.Client

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring gateways.
type Option func(*Config)

// WithBaseURL sets the API base URL.
// Examples: "https://generativelanguage.googleapis.com/v1beta", "https://api.openai.com/v1"
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithTextModel sets the text model.
func WithTextModel(model string) Option {
	return func(c *Config) { c.TextModel = model }
}

// WithImageModel sets the image model.
func WithImageModel(model string) Option {
	return func(c *Config) { c.ImageModel = model }
}

// WithSystemInstruction replaces the default system instruction.
func WithSystemInstruction(s string) Option {
	return func(c *Config) { c.SystemInstruction = s }
}

// WithSampling sets temperature, top-k and top-p for text generation.
func WithSampling(temperature float64, topK int, topP float64) Option {
	return func(c *Config) {
		c.Temperature = temperature
		c.TopK = topK
		c.TopP = topP
	}
}

// WithMaxOutputTokens caps the length of text replies.
func WithMaxOutputTokens(n int) Option {
	return func(c *Config) { c.MaxOutputTokens = n }
}

// WithImageMIMEType sets the requested image encoding.
func WithImageMIMEType(mime string) Option {
	return func(c *Config) { c.ImageMIMEType = mime }
}

// WithVertex routes Gemini calls through Vertex AI for the given project.
// An empty location keeps the default region.
func WithVertex(project, location string) Option {
	return func(c *Config) {
		c.Project = project
		if location != "" {
			c.Location = location
		}
	}
}

// WithCredentialsFile sets a service account JSON file for Vertex auth.
func WithCredentialsFile(path string) Option {
	return func(c *Config) { c.CredentialsFile = path }
}

// WithTokenSource sets an explicit OAuth2 token source for Vertex auth.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Config) { c.TokenSource = ts }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient sets the HTTP client. Timeout is ignored when set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults for the Gemini API.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://generativelanguage.googleapis.com/v1beta",
		TextModel:         "gemini-1.5-flash",
		ImageModel:        "imagen-3.0-generate-001",
		SystemInstruction: DefaultSystemInstruction,
		Temperature:       0.7,
		TopK:              40,
		TopP:              0.95,
		MaxOutputTokens:   2048,
		ImageMIMEType:     "image/jpeg",
		Location:          "us-central1",
		Timeout:           60 * time.Second,
		Logger:            slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Vertex reports whether Vertex AI mode is configured.
func (c *Config) Vertex() bool {
	return c.Project != ""
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.TextModel == "" || c.ImageModel == "" {
		return ErrNoModel
	}
	if c.APIKey == "" && !c.Vertex() {
		return ErrNoAPIKey
	}
	if c.Vertex() && c.Location == "" {
		return fmt.Errorf("inference: vertex location required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("inference: temperature %.2f out of range [0, 2]", c.Temperature)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("inference: topP %.2f out of range [0, 1]", c.TopP)
	}
	return nil
}
