package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-converse/internal/httpc"
)

const providerOpenAI = "openai"

// OpenAI implements Gateway on any OpenAI-compatible API
// (chat completions plus images/generations).
type OpenAI struct {
	baseURL string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewOpenAI creates an OpenAI-compatible gateway.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://api.openai.com/v1"
	cfg.TextModel = "gpt-4o-mini"
	cfg.ImageModel = "dall-e-3"
	cfg.ImageMIMEType = "image/png"
	cfg.TopK = 0
	cfg.Apply(opts...)

	if cfg.Vertex() {
		return nil, WrapError(providerOpenAI, fmt.Errorf("vertex mode is not supported"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapError(providerOpenAI, err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}

	return &OpenAI{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		config:  cfg,
		http:    hc,
		logger:  cfg.Logger.With("component", "inference.openai"),
	}, nil
}

// GenerateText runs a single-turn chat completion.
func (o *OpenAI) GenerateText(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", Classify(OpText, ErrEmptyPrompt)
	}
	start := time.Now()

	messages := make([]map[string]string, 0, 2)
	if o.config.SystemInstruction != "" {
		messages = append(messages, map[string]string{"role": "system", "content": o.config.SystemInstruction})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	payload := map[string]any{
		"model":       o.config.TextModel,
		"messages":    messages,
		"temperature": o.config.Temperature,
	}
	if o.config.TopP > 0 {
		payload["top_p"] = o.config.TopP
	}
	if o.config.MaxOutputTokens > 0 {
		payload["max_tokens"] = o.config.MaxOutputTokens
	}

	var result chatCompletionResponse
	if err := o.post(ctx, "/chat/completions", payload, &result); err != nil {
		return "", Classify(OpText, err)
	}
	if len(result.Choices) == 0 {
		return "", Classify(OpText, WrapError(providerOpenAI, ErrNoContent))
	}

	text := strings.TrimSpace(result.Choices[0].Message.Content)
	o.logger.Debug("text generated",
		"model", result.Model,
		"finish_reason", result.Choices[0].FinishReason,
		"tokens", result.Usage.TotalTokens,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// GenerateImage requests one base64-encoded image.
func (o *OpenAI) GenerateImage(ctx context.Context, prompt string) (*Image, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, Classify(OpImage, ErrEmptyPrompt)
	}
	start := time.Now()

	payload := map[string]any{
		"model":           o.config.ImageModel,
		"prompt":          prompt,
		"n":               1,
		"response_format": "b64_json",
	}

	var result imageGenerationResponse
	if err := o.post(ctx, "/images/generations", payload, &result); err != nil {
		return nil, Classify(OpImage, err)
	}
	if len(result.Data) == 0 || result.Data[0].B64JSON == "" {
		return nil, Classify(OpImage, WrapError(providerOpenAI, ErrContentBlocked))
	}

	img, err := decodeImage(result.Data[0].B64JSON, "", o.config.ImageMIMEType)
	if err != nil {
		return nil, Classify(OpImage, WrapError(providerOpenAI, err))
	}

	o.logger.Debug("image generated",
		"model", o.config.ImageModel,
		"bytes", len(img.Data),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return img, nil
}

// Close releases idle connections.
func (o *OpenAI) Close() error {
	o.http.CloseIdleConnections()
	return nil
}

// post makes a POST request and decodes the JSON reply into out.
func (o *OpenAI) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return WrapError(providerOpenAI, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return WrapError(providerOpenAI, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if o.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.config.APIKey)
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return WrapError(providerOpenAI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return o.parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return WrapError(providerOpenAI, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// parseError reads and parses an error response.
func (o *OpenAI) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerOpenAI,
	}
}

// API response types

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type imageGenerationResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// Verify OpenAI implements Gateway at compile time.
var _ Gateway = (*OpenAI)(nil)
