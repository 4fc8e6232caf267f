package elapsed

import (
	"strings"

	"github.com/sanspareilsmyn/elapsedtime/internal/config"
)

const tagSeparator = "."

// KeyTransformer derives the bucket key for a summary from an event tag.
// The rewrite stages are resolved once from configuration.
type KeyTransformer struct {
	fixed    string
	useFixed bool
	stages   []func(string) string
}

// NewKeyTransformer compiles the tag rewrite rules of cfg. In aggregate "all"
// mode every key resolves to cfg.Tag.
func NewKeyTransformer(cfg config.ElapsedConfig) (*KeyTransformer, error) {
	kt := &KeyTransformer{}
	if cfg.Aggregate == config.AggregateAll {
		kt.fixed = cfg.Tag
		kt.useFixed = true
		return kt, nil
	}

	if cfg.RemoveTagSlice != "" {
		l, r, err := config.ParseTagSlice(cfg.RemoveTagSlice)
		if err != nil {
			return nil, err
		}
		kt.stages = append(kt.stages, func(key string) string {
			return sliceSegments(key, l, r)
		})
	}
	if cfg.RemoveTagPrefix != "" {
		match := strings.TrimSuffix(cfg.RemoveTagPrefix, tagSeparator) + tagSeparator
		kt.stages = append(kt.stages, func(key string) string {
			return strings.TrimPrefix(key, match)
		})
	}
	if cfg.RemoveTagSuffix != "" {
		match := tagSeparator + strings.TrimPrefix(cfg.RemoveTagSuffix, tagSeparator)
		kt.stages = append(kt.stages, func(key string) string {
			return strings.TrimSuffix(key, match)
		})
	}

	var prefix, suffix string
	if cfg.AddTagPrefix != "" {
		prefix = strings.TrimSuffix(cfg.AddTagPrefix, tagSeparator) + tagSeparator
	}
	if cfg.AddTagSuffix != "" {
		suffix = tagSeparator + strings.TrimPrefix(cfg.AddTagSuffix, tagSeparator)
	}
	if prefix != "" || suffix != "" {
		kt.stages = append(kt.stages, func(key string) string {
			return prefix + key + suffix
		})
	}
	return kt, nil
}

// Transform returns the bucket key for tag.
func (kt *KeyTransformer) Transform(tag string) string {
	if kt.useFixed {
		return kt.fixed
	}
	for _, stage := range kt.stages {
		tag = stage(tag)
	}
	return tag
}

// sliceSegments keeps the inclusive segment range [l..r]; negative indices
// count from the end. An out-of-range start or an empty range yields "".
func sliceSegments(key string, l, r int) string {
	segs := strings.Split(key, tagSeparator)
	for len(segs) > 0 && segs[len(segs)-1] == "" {
		segs = segs[:len(segs)-1]
	}
	n := len(segs)
	if l < 0 {
		l += n
	}
	if l < 0 || l > n {
		return ""
	}
	if r < 0 {
		r += n
	}
	if r >= n {
		r = n - 1
	}
	if r < l {
		return ""
	}
	return strings.Join(segs[l:r+1], tagSeparator)
}
