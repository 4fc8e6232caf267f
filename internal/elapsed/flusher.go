package elapsed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Start starts every store in order and launches the flush loop.
func (o *Output) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != stateIdle {
		return ErrAlreadyStarted
	}
	for i, store := range o.stores {
		if err := store.Start(); err != nil {
			o.logger.Error("Failed to start store", zap.Int("store", i), zap.Error(err))
			startErr := fmt.Errorf("%w: store #%d: %w", ErrStoreStartFailed, i, err)
			return multierr.Append(startErr, o.shutdownStores(o.stores[:i]))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticker := o.clock.Ticker(o.pollInterval)
	o.cancel = cancel
	o.stopped = make(chan struct{})
	o.state = stateRunning

	go o.run(ctx, ticker, o.clock.Now())

	o.logger.Info("Elapsed output started",
		zap.Duration("interval", o.interval),
		zap.Duration("poll_interval", o.pollInterval),
	)
	return nil
}

// Shutdown shuts down every store in order, stops the flush loop and waits
// for it to exit. Pending samples are discarded.
func (o *Output) Shutdown() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != stateRunning {
		return ErrNotRunning
	}
	o.state = stateStopped

	errs := o.shutdownStores(o.stores)

	o.cancel()
	<-o.stopped
	o.logger.Info("Elapsed output stopped")
	return errs
}

func (o *Output) shutdownStores(stores []Store) error {
	var errs error
	for i, store := range stores {
		if err := store.Shutdown(); err != nil {
			o.logger.Error("Failed to shut down store", zap.Int("store", i), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%w: store #%d: %w", ErrStoreShutdownFailed, i, err))
		}
	}
	return errs
}

// run is the flush loop. It polls the clock and flushes once at least one
// interval has passed since the previous flush.
func (o *Output) run(ctx context.Context, ticker *clock.Ticker, lastFlush time.Time) {
	defer close(o.stopped)
	defer ticker.Stop()

	sugar := o.logger.Sugar()
	sugar.Debug("Flush loop started")
	defer sugar.Debug("Flush loop stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			now := o.clock.Now()
			if now.Sub(lastFlush) >= o.interval {
				o.flushAt(ctx, now)
				lastFlush = now
			}
		}
	}
}

// Flush drains the aggregator immediately and emits the summaries stamped
// with the current clock time.
func (o *Output) Flush(ctx context.Context) map[string]Summary {
	return o.flushAt(ctx, o.clock.Now())
}

func (o *Output) flushAt(ctx context.Context, now time.Time) map[string]Summary {
	var summaries map[string]Summary
	if o.zeroEmit {
		summaries = o.agg.DrainWithSeeding(true)
	} else {
		summaries = o.agg.Drain()
	}
	flushesTotal.Inc()

	keys := make([]string, 0, len(summaries))
	for key := range summaries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	o.series.retain(keys)

	for _, key := range keys {
		s := summaries[key]
		observeSummary(key, s)
		if err := o.emitter.Emit(ctx, key, now, s.Record()); err != nil {
			emitFailures.WithLabelValues(key).Inc()
			o.logger.Warn("Failed to emit summary, skipping",
				zap.String("tag", key),
				zap.Int("num", s.Count),
				zap.Error(err),
			)
			continue
		}
		o.logger.Debug("Emitted summary",
			zap.String("tag", key),
			zap.Float64("max", s.Max),
			zap.Float64("avg", s.Avg),
			zap.Int("num", s.Count),
		)
	}
	return summaries
}
