package inference

import (
	"context"
	"sync"
	"time"
)

// Mock implements Gateway for testing.
type Mock struct {
	// TextFunc is called when GenerateText is invoked.
	TextFunc func(ctx context.Context, prompt string) (string, error)

	// ImageFunc is called when GenerateImage is invoked.
	ImageFunc func(ctx context.Context, prompt string) (*Image, error)

	mu     sync.Mutex
	calls  []MockCall
	closed bool
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Prompt string
	Time   time.Time
}

// mockJPEG is the smallest byte sequence that sniffs as image/jpeg.
var mockJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

// NewMock creates a mock gateway with canned replies.
func NewMock() *Mock {
	return &Mock{
		TextFunc: func(ctx context.Context, prompt string) (string, error) {
			return "Mock response", nil
		},
		ImageFunc: func(ctx context.Context, prompt string) (*Image, error) {
			return &Image{Data: mockJPEG, MIMEType: "image/jpeg"}, nil
		},
	}
}

// NewFailingMock creates a mock whose calls all fail with err, classified
// per operation.
func NewFailingMock(err error) *Mock {
	return &Mock{
		TextFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", Classify(OpText, err)
		},
		ImageFunc: func(ctx context.Context, prompt string) (*Image, error) {
			return nil, Classify(OpImage, err)
		},
	}
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GenerateText calls TextFunc and records the call.
func (m *Mock) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.record("GenerateText", prompt)
	if m.TextFunc != nil {
		return m.TextFunc(ctx, prompt)
	}
	return "", Classify(OpText, WrapError("mock", ErrNoContent))
}

// GenerateImage calls ImageFunc and records the call.
func (m *Mock) GenerateImage(ctx context.Context, prompt string) (*Image, error) {
	m.record("GenerateImage", prompt)
	if m.ImageFunc != nil {
		return m.ImageFunc(ctx, prompt)
	}
	return nil, Classify(OpImage, WrapError("mock", ErrNoContent))
}

func (m *Mock) record(method, prompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Prompt: prompt, Time: time.Now()})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// LastCall returns the most recent call, if any.
func (m *Mock) LastCall() (MockCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return MockCall{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Verify Mock implements Gateway at compile time.
var _ Gateway = (*Mock)(nil)
