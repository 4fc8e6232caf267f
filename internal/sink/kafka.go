package sink

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sanspareilsmyn/elapsedtime/internal/config"
	"github.com/sanspareilsmyn/elapsedtime/internal/message"
)

// MessageWriter is the part of *kafka.Writer the store uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaStore publishes each event as a JSON envelope keyed by tag.
type KafkaStore struct {
	topic  string
	writer MessageWriter
	logger *zap.Logger
}

func NewKafkaStore(cfg config.StoreConfig, logger *zap.Logger) (*KafkaStore, error) {
	if cfg.Topic == "" {
		return nil, ErrMissingTopic
	}
	if len(cfg.Brokers) == 0 {
		return nil, ErrMissingBrokers
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	return NewKafkaStoreWithWriter(cfg.Topic, w, logger), nil
}

// NewKafkaStoreWithWriter wraps an existing writer.
func NewKafkaStoreWithWriter(topic string, w MessageWriter, logger *zap.Logger) *KafkaStore {
	return &KafkaStore{topic: topic, writer: w, logger: logger}
}

func (s *KafkaStore) Start() error {
	s.logger.Info("Kafka store ready", zap.String("topic", s.topic))
	return nil
}

func (s *KafkaStore) Shutdown() error {
	if err := s.writer.Close(); err != nil {
		s.logger.Error("Failed to close Kafka writer cleanly", zap.Error(err))
		return err
	}
	return nil
}

func (s *KafkaStore) Process(ctx context.Context, tag string, batch message.Batch) error {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, env := range batch.Envelopes(tag) {
		value, err := message.EncodeEnvelope(env)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(tag), Value: value, Time: env.Time})
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("%w: kafka topic %s: %w", ErrWriteFailed, s.topic, err)
	}
	return nil
}
