// Package sink provides the concrete stores the elapsed output can wrap.
package sink

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/sanspareilsmyn/elapsedtime/internal/config"
	"github.com/sanspareilsmyn/elapsedtime/internal/elapsed"
)

// Store types accepted in the `type` field of a store entry.
const (
	TypeStdout = "stdout"
	TypeFile   = "file"
	TypeKafka  = "kafka"
	TypeNull   = "null"
)

// New builds the store named by cfg.Type. Kafka stores without their own
// brokers use the pipeline's brokers.
func New(cfg config.StoreConfig, kafkaCfg config.KafkaConfig, logger *zap.Logger) (elapsed.Store, error) {
	if cfg.Type == "" {
		return nil, config.ErrMissingStoreType
	}
	storeLogger := logger.Named(cfg.Type)

	switch strings.ToLower(cfg.Type) {
	case TypeStdout:
		return NewLineStore(TypeStdout, os.Stdout, storeLogger), nil
	case TypeFile:
		store, err := NewFileStore(cfg, storeLogger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case TypeKafka:
		if len(cfg.Brokers) == 0 {
			cfg.Brokers = kafkaCfg.Brokers
		}
		store, err := NewKafkaStore(cfg, storeLogger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case TypeNull:
		return NewNullStore(cfg.Delay), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStoreType, cfg.Type)
	}
}

// NewAll builds every configured store in order.
func NewAll(cfgs []config.StoreConfig, kafkaCfg config.KafkaConfig, logger *zap.Logger) ([]elapsed.Store, error) {
	stores := make([]elapsed.Store, 0, len(cfgs))
	for i, cfg := range cfgs {
		store, err := New(cfg, kafkaCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("store #%d: %w", i, err)
		}
		logger.Debug("Adding store", zap.Int("index", i), zap.String("type", cfg.Type))
		stores = append(stores, store)
	}
	return stores, nil
}
