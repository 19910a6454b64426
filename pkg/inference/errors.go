package inference

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for common conditions.
var (
	// ErrNoAPIKey is returned when an API key is required but missing.
	ErrNoAPIKey = errors.New("inference: API key required")

	// ErrNoModel is returned when a model name is required but missing.
	ErrNoModel = errors.New("inference: model required")

	// ErrEmptyPrompt is returned for blank prompts.
	ErrEmptyPrompt = errors.New("inference: prompt is empty")

	// ErrContentBlocked is returned when the backend filtered every result.
	ErrContentBlocked = errors.New("inference: content blocked")

	// ErrNoContent is returned when a response carries nothing usable.
	ErrNoContent = errors.New("inference: no response content")
)

// APIError represents an error response from a generation API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the provider's status or error code, e.g. RESOURCE_EXHAUSTED.
	Code string

	// Provider identifies which backend returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("inference [%s]: API error %d (%s): %s",
			e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("inference [%s]: API error %d: %s",
		e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsUnauthorized returns true for HTTP 401 and 403.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// FailureKind classifies why a generation call failed.
type FailureKind int

const (
	KindUnknown FailureKind = iota
	KindInvalidCredential
	KindRateLimited
	// KindContentBlocked only occurs on the image path.
	KindContentBlocked
)

// String returns the kind name.
func (k FailureKind) String() string {
	switch k {
	case KindInvalidCredential:
		return "invalid_credential"
	case KindRateLimited:
		return "rate_limited"
	case KindContentBlocked:
		return "content_blocked"
	default:
		return "unknown"
	}
}

// Failure is the classified error every Gateway method returns.
type Failure struct {
	Kind FailureKind
	Op   Op
	Err  error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("inference: %s %s: %v", f.Op, f.Kind, f.Err)
}

// Unwrap returns the underlying error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Describe renders the failure for display in the conversation.
func (f *Failure) Describe() string {
	switch f.Kind {
	case KindInvalidCredential:
		return "Invalid API Key. Please check your Gemini API key."
	case KindRateLimited:
		if f.Op == OpImage {
			return "API rate limit exceeded or quota reached for image generation. Please try again later."
		}
		return "API rate limit exceeded or quota reached. Please try again later."
	case KindContentBlocked:
		return "The image prompt was blocked due to safety policies. Please try a different prompt."
	}
	if f.Op == OpImage {
		return "Failed to generate image from AI."
	}
	return "Failed to generate text content from AI."
}

// Classify wraps err in a Failure for op. Errors that are already
// classified pass through unchanged.
func Classify(op Op, err error) error {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: classify(op, err), Op: op, Err: err}
}

func classify(op Op, err error) FailureKind {
	if op == OpImage && errors.Is(err, ErrContentBlocked) {
		return KindContentBlocked
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsUnauthorized():
			return KindInvalidCredential
		case apiErr.IsRateLimited():
			return KindRateLimited
		}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "API key not valid"), strings.Contains(lower, "invalid_api_key"),
		strings.Contains(lower, "incorrect api key"):
		return KindInvalidCredential
	case strings.Contains(msg, "429"), strings.Contains(lower, "quota"),
		strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return KindRateLimited
	case op == OpImage && (strings.Contains(lower, "blocked") || strings.Contains(lower, "safety") ||
		strings.Contains(lower, "content_policy")):
		return KindContentBlocked
	}
	return KindUnknown
}

// KindOf returns the failure kind carried by err, or KindUnknown.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

// Describe renders any error from a Gateway for display. Unclassified
// errors are treated as text-path failures.
func Describe(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Describe()
	}
	return (&Failure{Kind: KindUnknown, Op: OpText, Err: err}).Describe()
}
