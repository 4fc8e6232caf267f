package elapsed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanspareilsmyn/elapsedtime/internal/config"
)

func flushConfig() config.ElapsedConfig {
	cfg := config.DefaultElapsedConfig(config.ProfileElapsedTime)
	cfg.Interval = time.Second
	cfg.Each = config.EachMessage
	return cfg
}

func TestStartShutdownOrder(t *testing.T) {
	log := &callLog{}
	stores := []Store{
		&fakeStore{name: "a", log: log},
		&fakeStore{name: "b", log: log},
	}
	o := newTestOutput(t, flushConfig(), stores, &fakeEmitter{}, WithClock(clock.NewMock()))

	require.ErrorIs(t, o.Shutdown(), ErrNotRunning)
	require.NoError(t, o.Start())
	require.ErrorIs(t, o.Start(), ErrAlreadyStarted)
	require.NoError(t, o.Shutdown())

	assert.Equal(t, []string{"a.start", "b.start", "a.shutdown", "b.shutdown"}, log.all())
	require.ErrorIs(t, o.Shutdown(), ErrNotRunning)
	require.ErrorIs(t, o.Start(), ErrAlreadyStarted)
}

func TestStartFailureShutsDownStartedStores(t *testing.T) {
	log := &callLog{}
	stores := []Store{
		&fakeStore{name: "a", log: log},
		&fakeStore{name: "b", log: log, startErr: errors.New("disk full")},
		&fakeStore{name: "c", log: log},
	}
	o := newTestOutput(t, flushConfig(), stores, &fakeEmitter{}, WithClock(clock.NewMock()))

	err := o.Start()
	require.ErrorIs(t, err, ErrStoreStartFailed)
	assert.Equal(t, []string{"a.start", "b.start", "a.shutdown"}, log.all())
	require.ErrorIs(t, o.Shutdown(), ErrNotRunning)
}

func TestPeriodicFlush(t *testing.T) {
	clk := clock.NewMock()
	emitter := &fakeEmitter{}
	o := newTestOutput(t, flushConfig(), []Store{&fakeStore{}}, emitter, WithClock(clk))
	require.NoError(t, o.Start())
	defer func() { require.NoError(t, o.Shutdown()) }()

	require.NoError(t, o.Process(context.Background(), "syslog.host1", fourEvents(), nil))

	clk.Add(500 * time.Millisecond)
	assert.Never(t, func() bool { return len(emitter.all()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	clk.Add(500 * time.Millisecond)
	require.Eventually(t, func() bool { return len(emitter.all()) == 1 }, time.Second, 10*time.Millisecond)

	rec := emitter.all()[0]
	assert.Equal(t, "elapsed", rec.tag)
	assert.True(t, rec.ts.Equal(clk.Now()), "summary stamped with the flush tick")
	assert.Equal(t, 4, rec.record["num"])
	assert.Zero(t, o.Aggregator().Len("elapsed"))

	// Nothing new: the next interval emits nothing.
	clk.Add(time.Second)
	assert.Never(t, func() bool { return len(emitter.all()) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestPeriodicFlushMeasuresFromLastFlush(t *testing.T) {
	clk := clock.NewMock()
	start := clk.Now()
	emitter := &fakeEmitter{}
	o := newTestOutput(t, flushConfig(), []Store{&fakeStore{}}, emitter,
		WithClock(clk), WithPollInterval(300*time.Millisecond))
	require.NoError(t, o.Start())
	defer func() { require.NoError(t, o.Shutdown()) }()

	tick := func() {
		clk.Add(300 * time.Millisecond)
	}
	quiet := func(n int) {
		assert.Never(t, func() bool { return len(emitter.all()) > n }, 50*time.Millisecond, 5*time.Millisecond)
	}

	require.NoError(t, o.Process(context.Background(), "web", fourEvents(), nil))
	for i := 0; i < 3; i++ {
		tick()
		quiet(0)
	}

	// First tick at or past the interval: 1.2s.
	tick()
	require.Eventually(t, func() bool { return len(emitter.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, emitter.all()[0].ts.Equal(start.Add(1200*time.Millisecond)))

	require.NoError(t, o.Process(context.Background(), "web", fourEvents(), nil))
	// 1.5s, 1.8s and 2.1s are all less than an interval after 1.2s.
	for i := 0; i < 3; i++ {
		tick()
		quiet(1)
	}

	tick()
	require.Eventually(t, func() bool { return len(emitter.all()) == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, emitter.all()[1].ts.Equal(start.Add(2400*time.Millisecond)))
}

func TestFlushForgetsSilentBucketSeries(t *testing.T) {
	cfg := flushConfig()
	cfg.Tag = "series.cleanup"
	o := newTestOutput(t, cfg, []Store{&fakeStore{}}, &fakeEmitter{}, WithClock(clock.NewMock()))

	require.NoError(t, o.Process(context.Background(), "web", fourEvents(), nil))
	o.Flush(context.Background())
	assert.Equal(t, float64(4), testutil.ToFloat64(summaryCount.WithLabelValues("series.cleanup")))

	o.Flush(context.Background())
	assert.False(t, summaryCount.DeleteLabelValues("series.cleanup"))
	assert.False(t, summaryMax.DeleteLabelValues("series.cleanup"))
	assert.False(t, storeDuration.DeleteLabelValues("series.cleanup"))
}

func TestPeriodicFlushSurvivesEmitFailure(t *testing.T) {
	clk := clock.NewMock()
	cfg := flushConfig()
	cfg.Tag = "flaky"
	emitter := &fakeEmitter{failFirst: 1, err: errors.New("pipeline closed")}
	o := newTestOutput(t, cfg, []Store{&fakeStore{}}, emitter, WithClock(clk))
	require.NoError(t, o.Start())
	defer func() { require.NoError(t, o.Shutdown()) }()

	require.NoError(t, o.Process(context.Background(), "web", fourEvents(), nil))
	clk.Add(time.Second)
	require.Eventually(t, func() bool { return emitter.attemptCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Empty(t, emitter.all())
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(emitFailures.WithLabelValues("flaky")) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, o.Process(context.Background(), "web", fourEvents(), nil))
	clk.Add(time.Second)
	require.Eventually(t, func() bool { return len(emitter.all()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 4, emitter.all()[0].record["num"])
}

func TestPeriodicFlushZeroEmit(t *testing.T) {
	clk := clock.NewMock()
	cfg := flushConfig()
	cfg.ZeroEmit = true
	emitter := &fakeEmitter{}
	o := newTestOutput(t, cfg, []Store{&fakeStore{}}, emitter, WithClock(clk))
	require.NoError(t, o.Start())
	defer func() { require.NoError(t, o.Shutdown()) }()

	require.NoError(t, o.Process(context.Background(), "web", fourEvents(), nil))

	clk.Add(time.Second)
	require.Eventually(t, func() bool { return len(emitter.all()) == 1 }, time.Second, 10*time.Millisecond)
	clk.Add(time.Second)
	require.Eventually(t, func() bool { return len(emitter.all()) == 2 }, time.Second, 10*time.Millisecond)
	clk.Add(time.Second)
	assert.Never(t, func() bool { return len(emitter.all()) > 2 }, 100*time.Millisecond, 10*time.Millisecond)

	records := emitter.all()
	assert.Equal(t, 4, records[0].record["num"])
	assert.Equal(t, 0, records[1].record["num"])
}

func TestShutdownStopsLoop(t *testing.T) {
	clk := clock.NewMock()
	emitter := &fakeEmitter{}
	o := newTestOutput(t, flushConfig(), []Store{&fakeStore{}}, emitter, WithClock(clk))
	require.NoError(t, o.Start())
	require.NoError(t, o.Process(context.Background(), "web", fourEvents(), nil))
	require.NoError(t, o.Shutdown())

	clk.Add(5 * time.Second)
	assert.Never(t, func() bool { return len(emitter.all()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 4, o.Aggregator().Len("elapsed"))
}
