package voice

import (
	"sync"
	"time"
)

// Metrics summarises recognition sessions.
type Metrics struct {
	Sessions    int `json:"sessions"`
	Transcripts int `json:"transcripts"`
	Stops       int `json:"stops"`
	// Errors counts failures by kind name.
	Errors map[string]int `json:"errors"`

	// LastLatency is start-to-transcript time of the most recent transcript.
	LastLatency time.Duration `json:"last_latency"`
	// AvgLatency averages start-to-transcript time over recent transcripts.
	AvgLatency time.Duration `json:"avg_latency"`
}

// MetricsCollector tracks session outcomes and time to transcript.
// It is goroutine-safe.
type MetricsCollector struct {
	mu        sync.Mutex
	current   Metrics
	started   time.Time
	latencies []time.Duration // recent transcripts for averaging
	now       func() time.Time
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		current:   Metrics{Errors: make(map[string]int)},
		latencies: make([]time.Duration, 0, 100),
		now:       time.Now,
	}
}

// MarkStart records the start of a session.
func (m *MetricsCollector) MarkStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Sessions++
	m.started = m.now()
}

// MarkTranscript records a final transcript and its latency.
func (m *MetricsCollector) MarkTranscript() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Transcripts++
	if !m.started.IsZero() {
		d := m.now().Sub(m.started)
		m.current.LastLatency = d
		m.latencies = append(m.latencies, d)
		if len(m.latencies) > 100 {
			m.latencies = m.latencies[1:]
		}
		var total time.Duration
		for _, l := range m.latencies {
			total += l
		}
		m.current.AvgLatency = total / time.Duration(len(m.latencies))
	}
}

// MarkError records a failed session.
func (m *MetricsCollector) MarkError(kind ErrorKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Errors[kind.String()]++
}

// MarkStop records an explicit cancellation.
func (m *MetricsCollector) MarkStop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Stops++
}

// Current returns a copy of the metrics.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

// snapshot copies current. Must be called with mutex held.
func (m *MetricsCollector) snapshot() Metrics {
	out := m.current
	out.Errors = make(map[string]int, len(m.current.Errors))
	for k, v := range m.current.Errors {
		out.Errors[k] = v
	}
	return out
}
