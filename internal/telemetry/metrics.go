// Package telemetry owns the Prometheus collectors shared by the pipeline,
// the remote config cache and the HTTP server.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "crashlens"

// Stage outcomes reported on crashlens_stage_runs_total.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
	OutcomeAborted = "aborted"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	stageRuns         *prometheus.CounterVec
	logsAnalyzed      prometheus.Counter
	retrievalDuration *prometheus.HistogramVec
	configRefresh     *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Stage invocations by kind, stage identifier and outcome.",
		}, []string{"kind", "stage", "outcome"}),
		logsAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logs_analyzed_total",
			Help:      "Logs that went through parsing and diagnostics.",
		}),
		retrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Time spent in a retriever fetch.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"stage"}),
		configRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_refresh_total",
			Help:      "Remote config refresh attempts by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "code"}),
	}
	for _, c := range []prometheus.Collector{m.stageRuns, m.logsAnalyzed, m.retrievalDuration, m.configRefresh, m.httpRequests} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) StageRun(kind, stage, outcome string) {
	if m == nil {
		return
	}
	m.stageRuns.WithLabelValues(kind, stage, outcome).Inc()
}

func (m *Metrics) LogAnalyzed() {
	if m == nil {
		return
	}
	m.logsAnalyzed.Inc()
}

func (m *Metrics) ObserveRetrieval(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.retrievalDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ConfigRefresh(outcome string) {
	if m == nil {
		return
	}
	m.configRefresh.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HTTPRequest(route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}
