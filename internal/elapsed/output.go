package elapsed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/sanspareilsmyn/elapsedtime/internal/config"
	"github.com/sanspareilsmyn/elapsedtime/internal/message"
)

const defaultPollInterval = 100 * time.Millisecond

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

type processFunc func(ctx context.Context, tag string, batch message.Batch) error

// Output wraps a sequence of stores, times how long they take, and
// periodically emits a max/avg/num summary per bucket key.
type Output struct {
	stores       []Store
	emitter      Emitter
	keys         *KeyTransformer
	agg          *Aggregator
	series       *bucketSeries
	clock        clock.Clock
	interval     time.Duration
	pollInterval time.Duration
	zeroEmit     bool
	logger       *zap.Logger

	process processFunc

	mu      sync.Mutex
	state   state
	cancel  context.CancelFunc
	stopped chan struct{}
}

// Option customizes an Output.
type Option func(*Output)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(o *Output) { o.clock = c }
}

// WithPollInterval sets how often the flush loop wakes up.
func WithPollInterval(d time.Duration) Option {
	return func(o *Output) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// New validates cfg and builds an idle Output over stores.
func New(cfg config.ElapsedConfig, stores []Store, emitter Emitter, logger *zap.Logger, opts ...Option) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if emitter == nil {
		return nil, ErrNilEmitter
	}
	keys, err := NewKeyTransformer(cfg)
	if err != nil {
		return nil, err
	}

	o := &Output{
		stores:       stores,
		emitter:      emitter,
		keys:         keys,
		agg:          NewAggregator(),
		series:       newBucketSeries(),
		clock:        clock.New(),
		interval:     cfg.Interval,
		pollInterval: defaultPollInterval,
		zeroEmit:     cfg.ZeroEmit,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(o)
	}

	each := strings.ToLower(cfg.Each)
	if each == config.EachMessage {
		o.process = o.processEach
	} else {
		o.process = o.processBatch
	}

	logger.Info("Elapsed output initialized",
		zap.String("aggregate", cfg.Aggregate),
		zap.String("each", each),
		zap.Duration("interval", cfg.Interval),
		zap.Bool("zero_emit", cfg.ZeroEmit),
		zap.Int("stores", len(stores)),
	)
	return o, nil
}

// Process hands batch to every store, records the elapsed time, and then
// advances chain. A store error is returned as is and chain is not advanced.
func (o *Output) Process(ctx context.Context, tag string, batch message.Batch, chain Chain) error {
	if err := o.process(ctx, tag, batch); err != nil {
		return err
	}
	if chain == nil {
		return nil
	}
	return chain.Next(ctx)
}

// Aggregator exposes the pending samples.
func (o *Output) Aggregator() *Aggregator {
	return o.agg
}

// processBatch records one sample for the whole batch.
func (o *Output) processBatch(ctx context.Context, tag string, batch message.Batch) error {
	start := o.clock.Now()
	if err := o.delegate(ctx, tag, batch); err != nil {
		return err
	}
	o.record(o.keys.Transform(tag), o.clock.Now().Sub(start))
	return nil
}

// processEach records one sample per event. Each sample runs from the end of
// the previous event's delegation, so time spent between events is charged
// to the event that follows it.
func (o *Output) processEach(ctx context.Context, tag string, batch message.Batch) error {
	key := o.keys.Transform(tag)
	start := o.clock.Now()
	for _, ev := range batch {
		if err := o.delegate(ctx, tag, message.Batch{ev}); err != nil {
			return err
		}
		finish := o.clock.Now()
		o.record(key, finish.Sub(start))
		start = finish
	}
	return nil
}

func (o *Output) delegate(ctx context.Context, tag string, batch message.Batch) error {
	for _, store := range o.stores {
		if err := store.Process(ctx, tag, batch); err != nil {
			return err
		}
	}
	return nil
}

func (o *Output) record(key string, d time.Duration) {
	seconds := d.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	o.agg.Push(key, seconds)
	storeDuration.WithLabelValues(key).Observe(seconds)
}
