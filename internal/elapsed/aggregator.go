package elapsed

import (
	"sync"

	"github.com/sanspareilsmyn/elapsedtime/internal/message"
)

// Summary reduces the samples of one bucket. Max and Avg are in seconds.
type Summary struct {
	Max   float64
	Avg   float64
	Count int
}

// Record is the payload re-injected into the pipeline.
func (s Summary) Record() message.Record {
	return message.Record{
		"max": s.Max,
		"avg": s.Avg,
		"num": s.Count,
	}
}

func summarize(samples []float64) Summary {
	n := len(samples)
	if n == 0 {
		return Summary{}
	}
	maxSample, sum := samples[0], 0.0
	for _, s := range samples {
		if s > maxSample {
			maxSample = s
		}
		sum += s
	}
	return Summary{Max: maxSample, Avg: sum / float64(n), Count: n}
}

// Aggregator accumulates elapsed samples per bucket key between flushes.
type Aggregator struct {
	mu      sync.Mutex
	buckets map[string][]float64
}

func NewAggregator() *Aggregator {
	return &Aggregator{buckets: make(map[string][]float64)}
}

// Push appends sample to the bucket for key, creating it if absent.
func (a *Aggregator) Push(key string, sample float64) {
	a.mu.Lock()
	a.buckets[key] = append(a.buckets[key], sample)
	a.mu.Unlock()
}

// Len reports the number of samples currently held for key.
func (a *Aggregator) Len(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buckets[key])
}

// Drain swaps in an empty bucket map and returns a summary for every key
// that received at least one sample.
func (a *Aggregator) Drain() map[string]Summary {
	a.mu.Lock()
	flushed := a.buckets
	a.buckets = make(map[string][]float64)
	a.mu.Unlock()

	out := make(map[string]Summary, len(flushed))
	for key, samples := range flushed {
		if len(samples) == 0 {
			continue
		}
		out[key] = summarize(samples)
	}
	return out
}

// DrainWithSeeding is Drain for zero_emit. With sticky set, every key that
// had samples is carried into the next interval as an empty bucket, so the
// following flush reports a zero summary for it once. A key that was already
// empty is dropped.
func (a *Aggregator) DrainWithSeeding(sticky bool) map[string]Summary {
	a.mu.Lock()
	flushed := a.buckets
	next := make(map[string][]float64)
	if sticky {
		for key, samples := range flushed {
			if len(samples) > 0 {
				next[key] = nil
			}
		}
	}
	a.buckets = next
	a.mu.Unlock()

	out := make(map[string]Summary, len(flushed))
	for key, samples := range flushed {
		out[key] = summarize(samples)
	}
	return out
}
