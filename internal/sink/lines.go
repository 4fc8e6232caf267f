package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/sanspareilsmyn/elapsedtime/internal/config"
	"github.com/sanspareilsmyn/elapsedtime/internal/logging"
	"github.com/sanspareilsmyn/elapsedtime/internal/message"
)

// LineStore writes every event as one JSON envelope per line.
type LineStore struct {
	name   string
	logger *zap.Logger

	mu  sync.Mutex
	enc *json.Encoder
}

func NewLineStore(name string, w io.Writer, logger *zap.Logger) *LineStore {
	return &LineStore{name: name, enc: json.NewEncoder(w), logger: logger}
}

func (s *LineStore) Start() error    { return nil }
func (s *LineStore) Shutdown() error { return nil }

func (s *LineStore) Process(_ context.Context, tag string, batch message.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return ErrNotStarted
	}
	for _, env := range batch.Envelopes(tag) {
		if err := s.enc.Encode(env); err != nil {
			s.logger.Error("Failed to write event", zap.String("tag", tag), zap.Error(err))
			return fmt.Errorf("%w: %s: %w", ErrWriteFailed, s.name, err)
		}
	}
	return nil
}

// FileStore is a LineStore over a size-rotated file opened on Start.
type FileStore struct {
	*LineStore
	rotation logging.RotationConfig
	closer   io.Closer
}

func NewFileStore(cfg config.StoreConfig, logger *zap.Logger) (*FileStore, error) {
	if cfg.Path == "" {
		return nil, ErrMissingPath
	}
	return &FileStore{
		LineStore: &LineStore{name: TypeFile, logger: logger},
		rotation: logging.RotationConfig{
			Path:       cfg.Path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		},
	}, nil
}

func (s *FileStore) Start() error {
	w, err := logging.NewRotatingWriter(s.rotation)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.enc, s.closer = json.NewEncoder(w), w
	s.mu.Unlock()
	s.logger.Info("File store opened", zap.String("path", s.rotation.Path))
	return nil
}

func (s *FileStore) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.enc, s.closer = nil, nil
	return err
}
