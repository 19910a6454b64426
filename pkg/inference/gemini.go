package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	providerGemini = "gemini"

	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Gemini implements Gateway on Google's Gemini and Imagen REST APIs,
// either on the public endpoint with an API key or on Vertex AI.
type Gemini struct {
	baseURL string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewGemini creates a Gemini gateway.
func NewGemini(opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, WrapError(providerGemini, err)
	}

	baseURL := cfg.BaseURL
	if cfg.Vertex() && (baseURL == "" || baseURL == defaultGeminiBaseURL) {
		baseURL = vertexBaseURL(cfg.Project, cfg.Location)
	}

	hc, err := httpClient(context.Background(), cfg)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	return &Gemini{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		config:  cfg,
		http:    hc,
		logger:  cfg.Logger.With("component", "inference.gemini", "vertex", cfg.Vertex()),
	}, nil
}

// GenerateText sends one prompt with the system instruction and returns
// the trimmed reply. A reply with no text is not an error.
func (g *Gemini) GenerateText(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", Classify(OpText, ErrEmptyPrompt)
	}
	start := time.Now()

	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     g.config.Temperature,
			TopK:            g.config.TopK,
			TopP:            g.config.TopP,
			MaxOutputTokens: g.config.MaxOutputTokens,
		},
	}
	if g.config.SystemInstruction != "" {
		payload.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: g.config.SystemInstruction}},
		}
	}

	var result geminiResponse
	if err := g.post(ctx, g.config.TextModel, "generateContent", payload, &result); err != nil {
		return "", Classify(OpText, err)
	}

	if result.PromptFeedback.BlockReason != "" {
		return "", Classify(OpText, WrapError(providerGemini,
			fmt.Errorf("prompt blocked: %s", result.PromptFeedback.BlockReason)))
	}
	if len(result.Candidates) == 0 {
		return "", Classify(OpText, WrapError(providerGemini, ErrNoContent))
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())

	g.logger.Debug("text generated",
		"model", g.config.TextModel,
		"finish_reason", result.Candidates[0].FinishReason,
		"chars", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// GenerateImage asks the Imagen model for a single image.
func (g *Gemini) GenerateImage(ctx context.Context, prompt string) (*Image, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, Classify(OpImage, ErrEmptyPrompt)
	}
	start := time.Now()

	payload := imagenRequest{
		Instances: []imagenInstance{{Prompt: prompt}},
		Parameters: imagenParameters{
			SampleCount:    1,
			OutputMIMEType: g.config.ImageMIMEType,
		},
	}

	var result imagenResponse
	if err := g.post(ctx, g.config.ImageModel, "predict", payload, &result); err != nil {
		return nil, Classify(OpImage, err)
	}

	if len(result.Predictions) == 0 || result.Predictions[0].BytesBase64Encoded == "" {
		reason := ""
		if len(result.Predictions) > 0 {
			reason = result.Predictions[0].RAIFilteredReason
		}
		g.logger.Warn("image filtered", "model", g.config.ImageModel, "reason", reason)
		return nil, Classify(OpImage, WrapError(providerGemini, ErrContentBlocked))
	}

	pred := result.Predictions[0]
	img, err := decodeImage(pred.BytesBase64Encoded, pred.MIMEType, g.config.ImageMIMEType)
	if err != nil {
		return nil, Classify(OpImage, WrapError(providerGemini, err))
	}

	g.logger.Debug("image generated",
		"model", g.config.ImageModel,
		"bytes", len(img.Data),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return img, nil
}

// Close releases idle connections.
func (g *Gemini) Close() error {
	g.http.CloseIdleConnections()
	return nil
}

// post calls {base}/models/{model}:{method} and decodes the JSON reply into out.
func (g *Gemini) post(ctx context.Context, model, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return WrapError(providerGemini, fmt.Errorf("marshal payload: %w", err))
	}

	endpoint := fmt.Sprintf("%s/models/%s:%s", g.baseURL, model, method)
	if !g.config.Vertex() {
		endpoint += "?key=" + url.QueryEscape(g.config.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return WrapError(providerGemini, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return WrapError(providerGemini, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return g.parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return WrapError(providerGemini, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// parseError reads and parses an error response.
func (g *Gemini) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
			Status  string `json:"status"`
		} `json:"error"`
	}

	message := string(body)
	status := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		status = errResp.Error.Status
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       status,
		Provider:   providerGemini,
	}
}

// Gemini API types

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type imagenRequest struct {
	Instances  []imagenInstance `json:"instances"`
	Parameters imagenParameters `json:"parameters"`
}

type imagenInstance struct {
	Prompt string `json:"prompt"`
}

type imagenParameters struct {
	SampleCount    int    `json:"sampleCount"`
	OutputMIMEType string `json:"outputMimeType,omitempty"`
}

type imagenResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MIMEType           string `json:"mimeType"`
		RAIFilteredReason  string `json:"raiFilteredReason"`
	} `json:"predictions"`
}

// Verify Gemini implements Gateway at compile time.
var _ Gateway = (*Gemini)(nil)
