package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sanspareilsmyn/elapsedtime/internal/config"
	"github.com/sanspareilsmyn/elapsedtime/internal/message"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestSummaryEmitterPublishes(t *testing.T) {
	w := &fakeWriter{}
	e := NewSummaryEmitterWithWriter("summaries", w, zaptest.NewLogger(t))
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, e.Emit(context.Background(), "elapsed.host1", ts, message.Record{"max": 0.2, "avg": 0.1, "num": 4}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "elapsed.host1", string(w.msgs[0].Key))

	env, err := message.ParseEnvelope(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "elapsed.host1", env.Tag)
	assert.True(t, env.Time.Equal(ts))
	assert.Equal(t, 4.0, env.Record["num"])

	require.NoError(t, e.Close())
	assert.True(t, w.closed)
}

func TestSummaryEmitterFailure(t *testing.T) {
	e := NewSummaryEmitterWithWriter("summaries", &fakeWriter{err: errors.New("broker down")}, zaptest.NewLogger(t))
	err := e.Emit(context.Background(), "elapsed", time.Now(), message.Record{"num": 1})
	require.ErrorIs(t, err, ErrSummaryPublishFailed)
}

func TestSummaryEmitterLogOnly(t *testing.T) {
	e := NewSummaryEmitter(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, zaptest.NewLogger(t))
	require.NoError(t, e.Emit(context.Background(), "elapsed", time.Now(), message.Record{"num": 1}))
	require.NoError(t, e.Close())
}
