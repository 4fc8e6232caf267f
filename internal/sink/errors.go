package sink

import "errors"

var (
	ErrUnknownStoreType = errors.New("unknown store type")
	ErrMissingTopic     = errors.New("kafka store requires a topic")
	ErrMissingBrokers   = errors.New("kafka store requires brokers")
	ErrMissingPath      = errors.New("file store requires a path")
	ErrNotStarted       = errors.New("store not started")
	ErrWriteFailed      = errors.New("failed to write batch")
)
