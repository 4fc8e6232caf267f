package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sanspareilsmyn/elapsedtime/internal/config"
	"github.com/sanspareilsmyn/elapsedtime/internal/message"
	"github.com/sanspareilsmyn/elapsedtime/internal/sink"
)

// SummaryEmitter re-injects summaries into the pipeline by publishing them
// to the summary topic. Without a topic it only logs them.
type SummaryEmitter struct {
	writer sink.MessageWriter
	topic  string
	logger *zap.Logger
}

// NewSummaryEmitter builds an emitter for cfg.SummaryTopic.
func NewSummaryEmitter(cfg config.KafkaConfig, logger *zap.Logger) *SummaryEmitter {
	if cfg.SummaryTopic == "" {
		logger.Info("No summary topic configured, summaries will only be logged")
		return NewSummaryEmitterWithWriter("", nil, logger)
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.SummaryTopic,
		Balancer: &kafka.Hash{},
	}
	return NewSummaryEmitterWithWriter(cfg.SummaryTopic, w, logger)
}

// NewSummaryEmitterWithWriter wraps an existing writer; w may be nil.
func NewSummaryEmitterWithWriter(topic string, w sink.MessageWriter, logger *zap.Logger) *SummaryEmitter {
	return &SummaryEmitter{writer: w, topic: topic, logger: logger}
}

// Emit implements elapsed.Emitter.
func (e *SummaryEmitter) Emit(ctx context.Context, tag string, ts time.Time, record message.Record) error {
	e.logger.Info("Elapsed summary",
		zap.String("tag", tag),
		zap.Time("time", ts),
		zap.Any("max", record["max"]),
		zap.Any("avg", record["avg"]),
		zap.Any("num", record["num"]),
	)
	if e.writer == nil {
		return nil
	}

	value, err := message.EncodeEnvelope(message.Envelope{Tag: tag, Time: ts, Record: record})
	if err != nil {
		return err
	}
	if err := e.writer.WriteMessages(ctx, kafka.Message{Key: []byte(tag), Value: value, Time: ts}); err != nil {
		return fmt.Errorf("%w: %w", ErrSummaryPublishFailed, err)
	}
	return nil
}

// Close releases the writer.
func (e *SummaryEmitter) Close() error {
	if e.writer == nil {
		return nil
	}
	return e.writer.Close()
}
