package pipeline

import (
	"context"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sanspareilsmyn/elapsedtime/internal/config"
	"github.com/sanspareilsmyn/elapsedtime/internal/elapsed"
	"github.com/sanspareilsmyn/elapsedtime/internal/message"
)

var (
	batchesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elapsedtime_batches_delivered_total",
			Help: "Total number of batches handed to the elapsed output.",
		},
		[]string{"result"}, // ok, error
	)
	batchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "elapsedtime_batch_events",
			Help:    "Number of events per delivered batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		},
	)
)

// Processor receives tagged batches. *elapsed.Output implements it.
type Processor interface {
	Process(ctx context.Context, tag string, batch message.Batch, chain elapsed.Chain) error
}

// CommitFunc acknowledges the source messages of a delivered batch.
type CommitFunc func(ctx context.Context, msgs ...kafka.Message) error

// taggedEvent is a parsed event with the Kafka message it came from.
type taggedEvent struct {
	tag    string
	event  message.Event
	source kafka.Message
}

type pendingBatch struct {
	events  message.Batch
	sources []kafka.Message
}

// offsetChain acknowledges the batch once the output is done with it and
// commits whatever the acknowledgement made contiguous.
type offsetChain struct {
	commit  CommitFunc
	offsets *offsetTracker
	msgs    []kafka.Message
}

func (c offsetChain) Next(ctx context.Context) error {
	commits := c.offsets.complete(c.msgs)
	if c.commit == nil || len(commits) == 0 {
		return nil
	}
	return c.commit(ctx, commits...)
}

// Batcher groups events by tag and hands each group to the processor when
// it reaches the configured size or when the batch window ticks.
type Batcher struct {
	config    config.PipelineConfig
	input     <-chan taggedEvent
	processor Processor
	commit    CommitFunc
	clock     clock.Clock
	logger    *zap.Logger

	offsets *offsetTracker

	mu      sync.Mutex
	pending map[string]*pendingBatch
}

// NewBatcher creates a new Batcher instance.
func NewBatcher(cfg config.PipelineConfig, input <-chan taggedEvent, processor Processor, commit CommitFunc, clk clock.Clock, logger *zap.Logger) *Batcher {
	b := &Batcher{
		config:    cfg,
		input:     input,
		processor: processor,
		commit:    commit,
		clock:     clk,
		logger:    logger,
		offsets:   newOffsetTracker(),
		pending:   make(map[string]*pendingBatch),
	}
	logger.Info("Batcher initialized",
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("batch_window", cfg.BatchWindow),
	)
	return b
}

// Run starts the batcher's loop. Buffered events are delivered before it
// returns, whether the input closed or the context was cancelled.
func (b *Batcher) Run(ctx context.Context) error {
	sugar := b.logger.Sugar()
	sugar.Info("Starting batcher loop...")
	defer sugar.Info("Batcher loop stopped.")

	ticker := b.clock.Ticker(b.config.BatchWindow)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-b.input:
			if !ok {
				sugar.Info("Batcher input channel closed. Delivering remaining batches...")
				b.flushAll(context.WithoutCancel(ctx))
				return nil
			}
			if full := b.add(ev); full != nil {
				b.deliver(ctx, ev.tag, full)
			}

		case <-ticker.C:
			b.flushAll(ctx)

		case <-ctx.Done():
			sugar.Info("Context cancelled, stopping batcher. Delivering remaining batches...")
			b.flushAll(context.WithoutCancel(ctx))
			return ctx.Err()
		}
	}
}

// Pending reports how many events are buffered for tag.
func (b *Batcher) Pending(tag string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pending[tag]; ok {
		return len(p.events)
	}
	return 0
}

// add buffers ev and returns its batch once it is full.
func (b *Batcher) add(ev taggedEvent) *pendingBatch {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, exists := b.pending[ev.tag]
	if !exists {
		p = &pendingBatch{}
		b.pending[ev.tag] = p
	}
	p.events = append(p.events, ev.event)
	p.sources = append(p.sources, ev.source)
	b.offsets.track(ev.source)

	if len(p.events) < b.config.BatchSize {
		return nil
	}
	delete(b.pending, ev.tag)
	return p
}

func (b *Batcher) takeAll() map[string]*pendingBatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = make(map[string]*pendingBatch)
	return out
}

func (b *Batcher) flushAll(ctx context.Context) {
	batches := b.takeAll()
	tags := make([]string, 0, len(batches))
	for tag := range batches {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		b.deliver(ctx, tag, batches[tag])
	}
}

// deliver hands one batch to the processor. A failed batch blocks commits
// on its partitions so the group resumes from it after a restart; the loop
// carries on with the next batch.
func (b *Batcher) deliver(ctx context.Context, tag string, p *pendingBatch) {
	batchSize.Observe(float64(len(p.events)))
	chain := offsetChain{commit: b.commit, offsets: b.offsets, msgs: p.sources}
	if err := b.processor.Process(ctx, tag, p.events, chain); err != nil {
		batchesDelivered.WithLabelValues("error").Inc()
		b.logger.Error("Failed to deliver batch",
			zap.String("tag", tag),
			zap.Int("events", len(p.events)),
			zap.String("first_message", p.events[0].Record.GetFieldSnippet("message", 80)),
			zap.Error(err),
		)
		for _, key := range b.offsets.fail(p.sources) {
			b.logger.Warn("Offset commits halted for partition until restart",
				zap.String("topic", key.topic),
				zap.Int("partition", key.partition),
			)
		}
		return
	}
	batchesDelivered.WithLabelValues("ok").Inc()
	b.logger.Debug("Delivered batch",
		zap.String("tag", tag),
		zap.Int("events", len(p.events)),
		zap.Int("uncommitted", b.offsets.outstanding()),
	)
}
