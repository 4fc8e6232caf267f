package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultKafkaGroupID        = "elapsedtime-default-group"
	defaultPipelineBatchSize   = 100
	defaultPipelineBatchWindow = 1 * time.Second
	defaultElapsedProfile      = ProfileElapsedTime
	defaultElapsedAggregate    = AggregateAll
	defaultElapsedInterval     = 60 * time.Second
	defaultElapsedEach         = EachES
	defaultElapsedZeroEmit     = false
	defaultMetricsAddr         = ":9100"
	defaultLogLevel            = "info"
	defaultLogFormat           = "console"
	defaultLogFileEnabled      = false
	defaultLogDirectory        = "log"
	defaultLogFilename         = "app.log"
	defaultLogMaxSizeMB        = 100
	defaultLogMaxBackups       = 3
	defaultLogMaxAgeDays       = 7
	defaultLogCompress         = false

	// Environment variable prefix
	envPrefix = "ELAPSEDTIME"
)

// Granularity of a timed unit of work.
const (
	EachES      = "es"
	EachMessage = "message"
)

// Aggregation modes.
const (
	AggregateAll = "all"
	AggregateTag = "tag"
)

// Profiles only differ in the default summary tag.
const (
	ProfileElapsedTime = "elapsed_time"
	ProfileMeasureTime = "measure_time"
	ProfilePerformance = "performance"
)

var profileTags = map[string]string{
	ProfileElapsedTime: "elapsed",
	ProfileMeasureTime: "measure_time",
	ProfilePerformance: "performance",
}

var sliceIndexPattern = regexp.MustCompile(`^-?\d+$`)

type Config struct {
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Elapsed  ElapsedConfig  `mapstructure:"elapsed"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	GroupID      string   `mapstructure:"groupID"`
	SummaryTopic string   `mapstructure:"summaryTopic"` // empty: summaries are only logged
}

type PipelineConfig struct {
	BatchSize   int           `mapstructure:"batchSize"`
	BatchWindow time.Duration `mapstructure:"batchWindow"`
}

// ElapsedConfig configures the timing stage. Its keys are snake_case.
type ElapsedConfig struct {
	Profile         string        `mapstructure:"profile"`
	Tag             string        `mapstructure:"tag"`
	Aggregate       string        `mapstructure:"aggregate"`
	AddTagPrefix    string        `mapstructure:"add_tag_prefix"`
	AddTagSuffix    string        `mapstructure:"add_tag_suffix"`
	RemoveTagPrefix string        `mapstructure:"remove_tag_prefix"`
	RemoveTagSuffix string        `mapstructure:"remove_tag_suffix"`
	RemoveTagSlice  string        `mapstructure:"remove_tag_slice"` // "l..r"
	Interval        time.Duration `mapstructure:"interval"`
	Each            string        `mapstructure:"each"`
	ZeroEmit        bool          `mapstructure:"zero_emit"`
	Stores          []StoreConfig `mapstructure:"stores"`
}

// StoreConfig describes one wrapped store. Only Type is mandatory; the other
// fields are read by the store types that need them.
type StoreConfig struct {
	Type       string        `mapstructure:"type"`
	Brokers    []string      `mapstructure:"brokers"`
	Topic      string        `mapstructure:"topic"`
	Path       string        `mapstructure:"path"`
	MaxSize    int           `mapstructure:"maxSize"`
	MaxBackups int           `mapstructure:"maxBackups"`
	MaxAge     int           `mapstructure:"maxAge"`
	Compress   bool          `mapstructure:"compress"`
	Delay      time.Duration `mapstructure:"delay"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level              string `mapstructure:"level"`
	Format             string `mapstructure:"format"`
	FileLoggingEnabled bool   `mapstructure:"fileLoggingEnabled"`
	Directory          string `mapstructure:"directory"`
	Filename           string `mapstructure:"filename"`
	MaxSize            int    `mapstructure:"maxSize"`    // Max size in MB
	MaxBackups         int    `mapstructure:"maxBackups"` // Max backup files
	MaxAge             int    `mapstructure:"maxAge"`     // Max days to retain
	Compress           bool   `mapstructure:"compress"`   // Compress rotated files?
}

// Load initializes viper, reads config, applies defaults, unmarshals, and validates.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	configureViper(v, configPath)

	// Set default values before reading config source .yaml
	setDefaults(v)

	// Read configuration from file (error if mandatory file is missing)
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnmarshallingConfig, err)
	}

	// An explicitly empty tag must survive so validation can reject it.
	if !v.IsSet("elapsed.tag") {
		cfg.Elapsed.Tag = DefaultTag(cfg.Elapsed.Profile)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultElapsedConfig returns the stage defaults for the given profile.
func DefaultElapsedConfig(profile string) ElapsedConfig {
	return ElapsedConfig{
		Profile:   profile,
		Tag:       DefaultTag(profile),
		Aggregate: defaultElapsedAggregate,
		Interval:  defaultElapsedInterval,
		Each:      defaultElapsedEach,
		ZeroEmit:  defaultElapsedZeroEmit,
	}
}

// DefaultTag returns the summary tag used by a profile when none is configured.
func DefaultTag(profile string) string {
	if tag, ok := profileTags[profile]; ok {
		return tag
	}
	return profileTags[defaultElapsedProfile]
}

// configureViper sets up viper instance for file and environment variables.
func configureViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults applies default configuration values using Viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("kafka.groupID", defaultKafkaGroupID)
	v.SetDefault("pipeline.batchSize", defaultPipelineBatchSize)
	v.SetDefault("pipeline.batchWindow", defaultPipelineBatchWindow)
	v.SetDefault("elapsed.profile", defaultElapsedProfile)
	v.SetDefault("elapsed.aggregate", defaultElapsedAggregate)
	v.SetDefault("elapsed.interval", defaultElapsedInterval)
	v.SetDefault("elapsed.each", defaultElapsedEach)
	v.SetDefault("elapsed.zero_emit", defaultElapsedZeroEmit)
	v.SetDefault("metrics.addr", defaultMetricsAddr)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", defaultLogFormat)
	v.SetDefault("log.fileLoggingEnabled", defaultLogFileEnabled)
	v.SetDefault("log.directory", defaultLogDirectory)
	v.SetDefault("log.filename", defaultLogFilename)
	v.SetDefault("log.maxSize", defaultLogMaxSizeMB)
	v.SetDefault("log.maxBackups", defaultLogMaxBackups)
	v.SetDefault("log.maxAge", defaultLogMaxAgeDays)
	v.SetDefault("log.compress", defaultLogCompress)
}

// readConfigFile attempts to read the configuration file specified in viper.
func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return ErrConfigFileMissing
		}
		return fmt.Errorf("%w: %w", ErrReadingConfigFile, err)
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return ErrEmptyKafkaBrokers
	}
	if cfg.Kafka.Topic == "" {
		return ErrEmptyKafkaTopic
	}
	if cfg.Kafka.GroupID == "" {
		return ErrEmptyKafkaGroupID
	}
	if cfg.Pipeline.BatchSize <= 0 {
		return ErrInvalidPipelineBatchSize
	}
	if cfg.Pipeline.BatchWindow <= 0 {
		return ErrInvalidPipelineWindowSize
	}
	return cfg.Elapsed.Validate()
}

// Validate checks the option combinations the timing stage cannot run with.
func (c ElapsedConfig) Validate() error {
	if c.Profile != "" {
		if _, ok := profileTags[c.Profile]; !ok {
			return fmt.Errorf("%w: got %q", ErrUnknownProfile, c.Profile)
		}
	}
	switch strings.ToLower(c.Each) {
	case EachES, EachMessage:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidEach, c.Each)
	}

	switch c.Aggregate {
	case AggregateAll:
		if c.Tag == "" {
			return ErrMissingTag
		}
	case AggregateTag:
		if c.AddTagPrefix == "" && c.RemoveTagPrefix == "" {
			return ErrMissingTagRewrite
		}
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidAggregate, c.Aggregate)
	}

	if c.Interval <= 0 {
		return ErrInvalidInterval
	}

	for i, store := range c.Stores {
		if store.Type == "" {
			return fmt.Errorf("%w: store #%d", ErrMissingStoreType, i)
		}
	}

	if c.RemoveTagSlice != "" {
		if _, _, err := ParseTagSlice(c.RemoveTagSlice); err != nil {
			return err
		}
	}
	return nil
}

// ParseTagSlice parses an inclusive "l..r" segment range. Either bound may be negative.
func ParseTagSlice(value string) (int, int, error) {
	lindex, rindex, found := strings.Cut(value, "..")
	if !found || !sliceIndexPattern.MatchString(lindex) || !sliceIndexPattern.MatchString(rindex) {
		return 0, 0, fmt.Errorf("%w: got %q", ErrInvalidTagSlice, value)
	}
	l, err := strconv.Atoi(lindex)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidTagSlice, err)
	}
	r, err := strconv.Atoi(rindex)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidTagSlice, err)
	}
	return l, r, nil
}
