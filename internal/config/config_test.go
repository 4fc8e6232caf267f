package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
kafka:
  brokers: ["localhost:9092"]
  topic: logs
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseYAML+body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "elapsed", cfg.Elapsed.Tag)
	assert.Equal(t, AggregateAll, cfg.Elapsed.Aggregate)
	assert.Equal(t, 60*time.Second, cfg.Elapsed.Interval)
	assert.Equal(t, EachES, cfg.Elapsed.Each)
	assert.False(t, cfg.Elapsed.ZeroEmit)
	assert.Equal(t, defaultKafkaGroupID, cfg.Kafka.GroupID)
	assert.Equal(t, defaultPipelineBatchSize, cfg.Pipeline.BatchSize)
	assert.Equal(t, defaultMetricsAddr, cfg.Metrics.Addr)
}

func TestLoadElapsedSection(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
elapsed:
  tag: tag
  interval: 120s
  each: message
  aggregate: tag
  add_tag_prefix: elapsed
  remove_tag_prefix: syslog
  remove_tag_slice: "0..-2"
  zero_emit: true
  stores:
    - type: stdout
    - type: kafka
      topic: archive
`))
	require.NoError(t, err)

	assert.Equal(t, "tag", cfg.Elapsed.Tag)
	assert.Equal(t, 120*time.Second, cfg.Elapsed.Interval)
	assert.Equal(t, EachMessage, cfg.Elapsed.Each)
	assert.Equal(t, "elapsed", cfg.Elapsed.AddTagPrefix)
	assert.Equal(t, "syslog", cfg.Elapsed.RemoveTagPrefix)
	assert.Equal(t, "0..-2", cfg.Elapsed.RemoveTagSlice)
	assert.True(t, cfg.Elapsed.ZeroEmit)
	require.Len(t, cfg.Elapsed.Stores, 2)
	assert.Equal(t, "stdout", cfg.Elapsed.Stores[0].Type)
	assert.Equal(t, "archive", cfg.Elapsed.Stores[1].Topic)
}

func TestLoadProfileDefaultTag(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
elapsed:
  profile: measure_time
`))
	require.NoError(t, err)
	assert.Equal(t, "measure_time", cfg.Elapsed.Tag)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsBadElapsedSection(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"invalid each", "elapsed:\n  each: foobar\n", ErrInvalidEach},
		{"empty tag with aggregate all", "elapsed:\n  tag: \"\"\n", ErrMissingTag},
		{"aggregate tag without prefix rule", "elapsed:\n  aggregate: tag\n  add_tag_suffix: x\n", ErrMissingTagRewrite},
		{"unknown aggregate", "elapsed:\n  aggregate: host\n", ErrInvalidAggregate},
		{"store without type", "elapsed:\n  stores:\n    - topic: x\n", ErrMissingStoreType},
		{"malformed slice", "elapsed:\n  remove_tag_slice: \"1..b\"\n", ErrInvalidTagSlice},
		{"unknown profile", "elapsed:\n  profile: fast\n", ErrUnknownProfile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestElapsedConfigValidate(t *testing.T) {
	cfg := DefaultElapsedConfig(ProfilePerformance)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "performance", cfg.Tag)

	cfg.Each = "MESSAGE"
	require.NoError(t, cfg.Validate())

	cfg.Interval = 0
	require.ErrorIs(t, cfg.Validate(), ErrInvalidInterval)
}

func TestParseTagSlice(t *testing.T) {
	l, r, err := ParseTagSlice("0..-2")
	require.NoError(t, err)
	assert.Equal(t, 0, l)
	assert.Equal(t, -2, r)

	l, r, err = ParseTagSlice("-3..10")
	require.NoError(t, err)
	assert.Equal(t, -3, l)
	assert.Equal(t, 10, r)

	for _, bad := range []string{"", "1", "1..", "..2", "a..b", "1...2", "1..2..3"} {
		_, _, err := ParseTagSlice(bad)
		assert.ErrorIs(t, err, ErrInvalidTagSlice, bad)
	}
}
