// Package config loads go-converse configuration from an optional YAML
// file, a .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-converse/pkg/inference"
	"github.com/teslashibe/go-converse/pkg/voice/live"
)

// Voice engine names.
const (
	VoiceLive    = "live"
	VoiceBrowser = "browser"
	VoiceNone    = "none"
)

// Config is the top-level configuration.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Voice   VoiceConfig   `yaml:"voice"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
}

// GatewayConfig selects and configures the generation backend.
type GatewayConfig struct {
	Provider          string        `yaml:"provider"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	TextModel         string        `yaml:"text_model"`
	ImageModel        string        `yaml:"image_model"`
	SystemInstruction string        `yaml:"system_instruction"`
	Temperature       *float64      `yaml:"temperature"`
	TopK              int           `yaml:"top_k"`
	TopP              *float64      `yaml:"top_p"`
	MaxOutputTokens   int           `yaml:"max_output_tokens"`
	Timeout           time.Duration `yaml:"timeout"`

	// Vertex AI
	Project         string `yaml:"project"`
	Location        string `yaml:"location"`
	CredentialsFile string `yaml:"credentials_file"`
}

// VoiceConfig selects the speech recognition engine.
type VoiceConfig struct {
	// APIKey is the Gemini key for the live engine. It defaults to the
	// gateway key when the gateway is Gemini.
	APIKey string `yaml:"api_key"`

	Engine         string        `yaml:"engine"`
	Language       string        `yaml:"language"`
	LiveModel      string        `yaml:"live_model"`
	CaptureCommand string        `yaml:"capture_command"`
	SilenceTimeout time.Duration `yaml:"silence_timeout"`

	// Sample rate and channel count of the capture command's output.
	// Zero means it already produces 16 kHz mono.
	CaptureRate     int `yaml:"capture_rate"`
	CaptureChannels int `yaml:"capture_channels"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port       int  `yaml:"port"`
	RequestLog bool `yaml:"request_log"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads .env (if present) and the YAML file at path (if path is not
// empty), then applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env", "error", err)
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config. The environment
// overrides values from data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv() {
	c.Gateway.Provider = getEnv("CONVERSE_PROVIDER", c.Gateway.Provider)
	if c.Gateway.Provider == inference.ProviderOpenAI {
		c.Gateway.APIKey = getEnv("OPENAI_API_KEY", c.Gateway.APIKey)
	} else {
		c.Gateway.APIKey = getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", c.Gateway.APIKey))
	}
	c.Gateway.TextModel = getEnv("CONVERSE_TEXT_MODEL", c.Gateway.TextModel)
	c.Gateway.ImageModel = getEnv("CONVERSE_IMAGE_MODEL", c.Gateway.ImageModel)
	c.Gateway.Project = getEnv("GOOGLE_CLOUD_PROJECT", c.Gateway.Project)
	c.Gateway.Location = getEnv("GOOGLE_CLOUD_LOCATION", c.Gateway.Location)
	c.Gateway.CredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.Gateway.CredentialsFile)

	c.Voice.APIKey = getEnv("CONVERSE_VOICE_API_KEY", getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", c.Voice.APIKey)))
	c.Voice.Engine = getEnv("CONVERSE_VOICE_ENGINE", c.Voice.Engine)
	c.Voice.Language = getEnv("CONVERSE_VOICE_LANGUAGE", c.Voice.Language)
	c.Voice.CaptureCommand = getEnv("CONVERSE_CAPTURE_COMMAND", c.Voice.CaptureCommand)
	c.Voice.CaptureRate = getEnvInt("CONVERSE_CAPTURE_RATE", c.Voice.CaptureRate)

	c.Server.Port = getEnvInt("PORT", c.Server.Port)
	c.Server.RequestLog = getEnvBool("CONVERSE_REQUEST_LOG", c.Server.RequestLog)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Gateway.Provider == "" {
		c.Gateway.Provider = inference.ProviderGemini
	}
	if c.Voice.Engine == "" {
		c.Voice.Engine = VoiceLive
	}
	if c.Voice.Language == "" {
		c.Voice.Language = "en-US"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate checks that all fields are consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Gateway.Provider {
	case inference.ProviderGemini, inference.ProviderOpenAI:
	default:
		errs = append(errs, fmt.Sprintf("gateway.provider %q must be gemini or openai", c.Gateway.Provider))
	}
	if c.Gateway.Provider == inference.ProviderOpenAI && c.Gateway.Project != "" {
		errs = append(errs, "gateway.project (Vertex AI) requires the gemini provider")
	}
	switch c.Voice.Engine {
	case VoiceLive, VoiceBrowser, VoiceNone:
	default:
		errs = append(errs, fmt.Sprintf("voice.engine %q must be live, browser or none", c.Voice.Engine))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Voice.CaptureRate < 0 || c.Voice.CaptureChannels < 0 {
		errs = append(errs, "voice.capture_rate and voice.capture_channels must not be negative")
	}
	if c.Gateway.Timeout < 0 || c.Voice.SilenceTimeout < 0 {
		errs = append(errs, "timeouts must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// GatewayOptions converts the gateway section into inference options.
// Unset fields keep the provider defaults.
func (c *Config) GatewayOptions(logger *slog.Logger) []inference.Option {
	g := c.Gateway
	var opts []inference.Option
	if g.APIKey != "" {
		opts = append(opts, inference.WithAPIKey(g.APIKey))
	}
	if g.BaseURL != "" {
		opts = append(opts, inference.WithBaseURL(g.BaseURL))
	}
	if g.TextModel != "" {
		opts = append(opts, inference.WithTextModel(g.TextModel))
	}
	if g.ImageModel != "" {
		opts = append(opts, inference.WithImageModel(g.ImageModel))
	}
	if g.SystemInstruction != "" {
		opts = append(opts, inference.WithSystemInstruction(g.SystemInstruction))
	}
	if g.Temperature != nil || g.TopK != 0 || g.TopP != nil {
		def := inference.DefaultConfig()
		t, k, p := def.Temperature, def.TopK, def.TopP
		if g.Temperature != nil {
			t = *g.Temperature
		}
		if g.TopK != 0 {
			k = g.TopK
		}
		if g.TopP != nil {
			p = *g.TopP
		}
		opts = append(opts, inference.WithSampling(t, k, p))
	}
	if g.MaxOutputTokens != 0 {
		opts = append(opts, inference.WithMaxOutputTokens(g.MaxOutputTokens))
	}
	if g.Timeout != 0 {
		opts = append(opts, inference.WithTimeout(g.Timeout))
	}
	if g.Project != "" {
		opts = append(opts, inference.WithVertex(g.Project, g.Location))
	}
	if g.CredentialsFile != "" {
		opts = append(opts, inference.WithCredentialsFile(g.CredentialsFile))
	}
	if logger != nil {
		opts = append(opts, inference.WithLogger(logger))
	}
	return opts
}

// LiveKey returns the Gemini key for the live engine. The gateway key is
// only used when the gateway talks to Gemini.
func (c *Config) LiveKey() string {
	if c.Voice.APIKey != "" {
		return c.Voice.APIKey
	}
	if c.Gateway.Provider == inference.ProviderGemini {
		return c.Gateway.APIKey
	}
	return ""
}

// LiveConfig converts the voice section into a Gemini Live engine config.
func (c *Config) LiveConfig(logger *slog.Logger) live.Config {
	return live.Config{
		APIKey:         c.LiveKey(),
		Model:          c.Voice.LiveModel,
		Language:       c.Voice.Language,
		SilenceTimeout: c.Voice.SilenceTimeout,
		Microphone:     live.NewCommandMicrophone(c.Voice.CaptureCommand),
		CaptureFormat: live.Format{
			SampleRate: c.Voice.CaptureRate,
			Channels:   c.Voice.CaptureChannels,
		},
		Logger: logger,
	}
}
