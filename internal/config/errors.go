package config

import "errors"

var (
	ErrReadingConfigFile         = errors.New("failed to read config file")
	ErrUnmarshallingConfig       = errors.New("failed to unmarshal config")
	ErrEmptyKafkaBrokers         = errors.New("kafka brokers list cannot be empty")
	ErrEmptyKafkaTopic           = errors.New("kafka topic cannot be empty")
	ErrEmptyKafkaGroupID         = errors.New("kafka groupID cannot be empty")
	ErrInvalidPipelineBatchSize  = errors.New("pipeline batchSize must be positive")
	ErrInvalidPipelineWindowSize = errors.New("pipeline batchWindow must be positive")
	ErrConfigFileMissing         = errors.New("config file not found")

	ErrInvalidEach       = errors.New("elapsed: each should be 'es' or 'message'")
	ErrMissingTag        = errors.New("elapsed: tag must be specified with aggregate all")
	ErrMissingTagRewrite = errors.New("elapsed: add_tag_prefix or remove_tag_prefix must be specified with aggregate tag")
	ErrInvalidAggregate  = errors.New("elapsed: aggregate allows 'tag' or 'all'")
	ErrMissingStoreType  = errors.New("elapsed: missing 'type' parameter on store")
	ErrInvalidTagSlice   = errors.New("elapsed: remove_tag_slice must be formatted like [num]..[num]")
	ErrInvalidInterval   = errors.New("elapsed: interval must be positive")
	ErrUnknownProfile    = errors.New("elapsed: profile must be 'elapsed_time', 'measure_time' or 'performance'")
)
