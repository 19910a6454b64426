package web

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-converse/pkg/voice"
)

// newRegistry builds the /metrics registry. Every value is read from the
// conversation and the voice controller at scrape time.
func (s *Server) newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "converse_messages",
			Help: "Messages in the conversation",
		}, func() float64 {
			return float64(len(s.conv.Snapshot().Messages))
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "converse_pending",
			Help: "Whether a response is pending",
		}, func() float64 {
			if s.conv.Snapshot().Pending {
				return 1
			}
			return 0
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "converse_state_clients",
			Help: "Connected state stream clients",
		}, func() float64 {
			return float64(s.hub.ClientCount())
		}),
	)

	if s.voiceMetrics != nil {
		reg.MustRegister(&voiceCollector{
			metrics: s.voiceMetrics,
			sessions: prometheus.NewDesc("converse_voice_sessions",
				"Voice sessions started", nil, nil),
			transcripts: prometheus.NewDesc("converse_voice_transcripts",
				"Voice sessions that produced a transcript", nil, nil),
			stops: prometheus.NewDesc("converse_voice_stops",
				"Voice sessions stopped by the user", nil, nil),
			errors: prometheus.NewDesc("converse_voice_errors",
				"Voice sessions that failed, by kind", []string{"kind"}, nil),
			latency: prometheus.NewDesc("converse_voice_transcript_latency_seconds",
				"Average time from session start to transcript", nil, nil),
		})
	}
	return reg
}

// voiceCollector exports one voice.Metrics reading per scrape.
type voiceCollector struct {
	metrics func() voice.Metrics

	sessions    *prometheus.Desc
	transcripts *prometheus.Desc
	stops       *prometheus.Desc
	errors      *prometheus.Desc
	latency     *prometheus.Desc
}

func (c *voiceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessions
	ch <- c.transcripts
	ch <- c.stops
	ch <- c.errors
	ch <- c.latency
}

func (c *voiceCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.metrics()
	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.CounterValue, float64(m.Sessions))
	ch <- prometheus.MustNewConstMetric(c.transcripts, prometheus.CounterValue, float64(m.Transcripts))
	ch <- prometheus.MustNewConstMetric(c.stops, prometheus.CounterValue, float64(m.Stops))
	for kind, n := range m.Errors {
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(n), kind)
	}
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, m.AvgLatency.Seconds())
}
