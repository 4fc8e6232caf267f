// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sanspareilsmyn/elapsedtime/internal/config"
	"github.com/sanspareilsmyn/elapsedtime/internal/message"
)

const channelBufferSize = 100

// Pipeline orchestrates the stages: consumer, parsing, batching, and the
// timed output the batches are delivered to.
type Pipeline struct {
	cfg      *config.Config
	consumer *Consumer
	batcher  *Batcher
	logger   *zap.Logger

	rawMessages chan kafka.Message
	events      chan taggedEvent
}

// New creates and wires up a new pipeline feeding processor.
func New(cfg *config.Config, processor Processor, logger *zap.Logger) (*Pipeline, error) {
	initLogger := logger.Named("pipeline.init")
	initLogger.Debug("Creating pipeline components...")

	rawMessages := make(chan kafka.Message, channelBufferSize)
	events := make(chan taggedEvent, channelBufferSize)
	initLogger.Debug("Channels created", zap.Int("bufferSize", channelBufferSize))

	consumerInstance, err := NewConsumer(cfg.Kafka, rawMessages, logger.Named("consumer"))
	if err != nil {
		initLogger.Error("Failed to create consumer", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrConsumerCreationFailed, err)
	}
	initLogger.Debug("Consumer created")

	batcherInstance := NewBatcher(cfg.Pipeline, events, processor, consumerInstance.Commit, clock.New(), logger.Named("batcher"))
	initLogger.Debug("Batcher created")

	p := &Pipeline{
		cfg:         cfg,
		consumer:    consumerInstance,
		batcher:     batcherInstance,
		logger:      logger.Named("pipeline"),
		rawMessages: rawMessages,
		events:      events,
	}

	initLogger.Info("Pipeline instance created successfully")
	return p, nil
}

// Run starts all pipeline components and waits for them to complete or context cancellation.
func (p *Pipeline) Run(ctx context.Context) error {
	sugar := p.logger.Sugar()
	var wg sync.WaitGroup
	pipelineErr := make(chan error, 3) // consumer, parser, batcher

	sugar.Info("Pipeline Run: Starting components...")

	wg.Add(3)
	go p.runConsumer(ctx, &wg, pipelineErr)
	go p.runParser(ctx, &wg)
	go p.runBatcher(ctx, &wg, pipelineErr)

	var firstErr error
	select {
	case <-ctx.Done():
		sugar.Info("Pipeline Run: Context cancelled. Waiting for components to finish...")
		firstErr = ctx.Err()
	case err := <-pipelineErr:
		sugar.Errorw("Pipeline Run: Received error from a component, initiating shutdown...", zap.Error(err))
		firstErr = err
	}

	sugar.Debug("Pipeline Run: Waiting on WaitGroup...")
	wg.Wait()
	_ = p.consumer.Close()
	sugar.Info("Pipeline Run: All components finished.")

	if firstErr != nil && !errors.Is(firstErr, context.Canceled) {
		return firstErr
	}
	return nil
}

// runConsumer executes the consumer component logic in a goroutine.
func (p *Pipeline) runConsumer(ctx context.Context, wg *sync.WaitGroup, errCh chan<- error) {
	defer wg.Done()
	defer func() {
		close(p.rawMessages)
		p.logger.Debug("Raw messages channel closed")
	}()

	p.logger.Debug("Starting consumer goroutine...")
	if err := p.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Error("Consumer component exited with error", zap.Error(err))
		errCh <- fmt.Errorf("%w: %w", ErrConsumerRunFailed, err)
	} else if err == nil {
		p.logger.Debug("Consumer goroutine finished normally")
	} else {
		p.logger.Debug("Consumer goroutine cancelled gracefully")
	}
}

// runParser decodes raw messages into tagged events.
func (p *Pipeline) runParser(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		close(p.events)
		p.logger.Debug("Events channel closed")
	}()

	parserLogger := p.logger.Named("parser").Sugar()
	parserLogger.Debug("Starting parser goroutine...")

	for {
		select {
		case raw, ok := <-p.rawMessages:
			if !ok {
				parserLogger.Debug("Parser finished (raw message channel closed).")
				return
			}

			ev, err := toTaggedEvent(raw)
			if err != nil {
				parserLogger.Warnw("Failed to parse message, skipping",
					zap.String("topic", raw.Topic),
					zap.Int64("offset", raw.Offset),
					zap.Error(err),
				)
				continue
			}

			select {
			case p.events <- ev:

			case <-ctx.Done():
				parserLogger.Debug("Parser context cancelled during send.", zap.Error(ctx.Err()))
				return
			}

		case <-ctx.Done():
			parserLogger.Debug("Parser context cancelled while waiting for raw message.", zap.Error(ctx.Err()))
			return
		}
	}
}

// runBatcher executes the batcher component logic in a goroutine.
func (p *Pipeline) runBatcher(ctx context.Context, wg *sync.WaitGroup, errCh chan<- error) {
	defer wg.Done()

	p.logger.Debug("Starting batcher goroutine...")
	if err := p.batcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Error("Batcher component exited with error", zap.Error(err))
		errCh <- fmt.Errorf("%w: %w", ErrBatcherRunFailed, err)
	} else if err == nil {
		p.logger.Debug("Batcher goroutine finished normally")
	} else {
		p.logger.Debug("Batcher goroutine cancelled gracefully")
	}
}

// toTaggedEvent decodes an envelope. The tag falls back to the topic and the
// time to the Kafka message time.
func toTaggedEvent(raw kafka.Message) (taggedEvent, error) {
	env, err := message.ParseEnvelope(raw.Value)
	if err != nil {
		return taggedEvent{}, err
	}
	if env.Tag == "" {
		env.Tag = raw.Topic
	}
	if env.Time.IsZero() {
		env.Time = raw.Time
	}
	if env.Time.IsZero() {
		env.Time = time.Now()
	}
	return taggedEvent{tag: env.Tag, event: env.Event(), source: raw}, nil
}
