package metrics

import "github.com/prometheus/client_golang/prometheus"

// ScoringMetrics covers calls to the sentiment service and the score cache in front of it.
type ScoringMetrics struct {
	Calls          *prometheus.CounterVec
	CallDuration   prometheus.Histogram
	Retries        prometheus.Counter
	CacheLookups   *prometheus.CounterVec
	BreakerState   prometheus.Gauge
	WindowsPerCall prometheus.Histogram
}

func NewScoringMetrics(reg prometheus.Registerer) *ScoringMetrics {
	m := &ScoringMetrics{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "calls_total",
			Help:      "Sentiment service calls, by result.",
		}, []string{"result"}),
		CallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "call_duration_seconds",
			Help:      "Duration of sentiment service calls including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "retries_total",
			Help:      "Retried sentiment service attempts.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "score_cache",
			Name:      "lookups_total",
			Help:      "Score cache lookups, by layer and result.",
		}, []string{"layer", "result"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "circuit_breaker_state",
			Help:      "Sentiment service breaker state (0=closed, 1=half-open, 2=open).",
		}),
		WindowsPerCall: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "windows_per_batch",
			Help:      "Number of windows scored per batch.",
			Buckets:   prometheus.LinearBuckets(1, 5, 10),
		}),
	}

	reg.MustRegister(m.Calls, m.CallDuration, m.Retries, m.CacheLookups, m.BreakerState, m.WindowsPerCall)
	return m
}
