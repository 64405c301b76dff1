package metrics

import "github.com/prometheus/client_golang/prometheus"

type ConversationMetrics struct {
	Merges           *prometheus.CounterVec
	RecordsAppended  prometheus.Counter
	RecordsSkipped   prometheus.Counter
	RecordsEvicted   prometheus.Counter
	MergeDuration    prometheus.Histogram
	LockWaitDuration prometheus.Histogram
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		Merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "merges_total",
			Help:      "Conversation change requests, by result.",
		}, []string{"result"}),
		RecordsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "records_appended_total",
			Help:      "Impact records appended to conversations.",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "records_skipped_total",
			Help:      "Messages skipped because their content was already recorded.",
		}),
		RecordsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "records_evicted_total",
			Help:      "Impact records evicted by the history cap.",
		}),
		MergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "change_duration_seconds",
			Help:      "End-to-end duration of a conversation change.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LockWaitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring the per-conversation lock.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
	}

	reg.MustRegister(m.Merges, m.RecordsAppended, m.RecordsSkipped, m.RecordsEvicted, m.MergeDuration, m.LockWaitDuration)
	return m
}
