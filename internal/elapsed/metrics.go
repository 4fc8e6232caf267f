package elapsed

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "elapsedtime_store_duration_seconds",
			Help:    "Time taken by the wrapped stores per timed unit of work.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"bucket"},
	)
	summaryMax = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "elapsedtime_summary_max_seconds",
			Help: "Maximum elapsed time of a bucket in the last interval.",
		},
		[]string{"bucket"},
	)
	summaryAvg = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "elapsedtime_summary_avg_seconds",
			Help: "Average elapsed time of a bucket in the last interval.",
		},
		[]string{"bucket"},
	)
	summaryCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "elapsedtime_summary_samples",
			Help: "Number of samples of a bucket in the last interval.",
		},
		[]string{"bucket"},
	)
	flushesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "elapsedtime_flushes_total",
			Help: "Total number of interval flushes.",
		},
	)
	emitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elapsedtime_summary_emit_failures_total",
			Help: "Total number of summaries that could not be re-injected.",
		},
		[]string{"bucket"},
	)
)

func observeSummary(key string, s Summary) {
	summaryMax.WithLabelValues(key).Set(s.Max)
	summaryAvg.WithLabelValues(key).Set(s.Avg)
	summaryCount.WithLabelValues(key).Set(float64(s.Count))
}

func forgetSummary(key string) {
	storeDuration.DeleteLabelValues(key)
	summaryMax.DeleteLabelValues(key)
	summaryAvg.DeleteLabelValues(key)
	summaryCount.DeleteLabelValues(key)
	emitFailures.DeleteLabelValues(key)
}

// bucketSeries remembers which bucket labels were exported by the previous
// flush. Keys that stop reporting lose their series, so arbitrary inbound
// tags in aggregate "tag" mode do not pile up in the registry.
type bucketSeries struct {
	mu   sync.Mutex
	live map[string]struct{}
}

func newBucketSeries() *bucketSeries {
	return &bucketSeries{live: make(map[string]struct{})}
}

func (b *bucketSeries) retain(keys []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		next[key] = struct{}{}
	}
	for key := range b.live {
		if _, ok := next[key]; !ok {
			forgetSummary(key)
		}
	}
	b.live = next
}
