package voice

import (
	"context"
	"sync"
)

// MockEngine implements Engine for testing. Simulate* methods drive the
// most recently started session.
type MockEngine struct {
	// StartErr, if set, is returned by Start.
	StartErr error

	mu          sync.Mutex
	unavailable bool
	sink        Sink
	starts      int
	stops       int
}

// NewMockEngine creates an available mock engine.
func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

// SetAvailable sets what Available reports.
func (m *MockEngine) SetAvailable(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = !ok
}

// Available implements Engine.
func (m *MockEngine) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unavailable
}

// Start implements Engine.
func (m *MockEngine) Start(ctx context.Context, sink Sink) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.StartErr != nil {
		return nil, m.StartErr
	}
	m.sink = sink
	return &mockSession{m: m}, nil
}

// SimulateResult delivers a recognition result to the current session.
func (m *MockEngine) SimulateResult(text string, final bool) {
	if s := m.current(); s != nil {
		s.Result(text, final)
	}
}

// SimulateError delivers a recognition error to the current session.
func (m *MockEngine) SimulateError(kind ErrorKind) {
	if s := m.current(); s != nil {
		s.Error(kind, nil)
	}
}

// SimulateEnd ends the current session from the engine side.
func (m *MockEngine) SimulateEnd() {
	if s := m.current(); s != nil {
		s.End()
	}
}

// StartCount returns how many sessions were started.
func (m *MockEngine) StartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// StopCount returns how many times a session was stopped.
func (m *MockEngine) StopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

func (m *MockEngine) current() Sink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sink
}

type mockSession struct {
	m *MockEngine
}

func (s *mockSession) Stop() {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.stops++
}

// Verify MockEngine implements Engine at compile time.
var _ Engine = (*MockEngine)(nil)
