package sink

import (
	"context"
	"time"

	"github.com/sanspareilsmyn/elapsedtime/internal/message"
)

// NullStore discards events, optionally after a fixed delay per batch.
type NullStore struct {
	delay time.Duration
}

func NewNullStore(delay time.Duration) *NullStore {
	return &NullStore{delay: delay}
}

func (s *NullStore) Start() error    { return nil }
func (s *NullStore) Shutdown() error { return nil }

func (s *NullStore) Process(ctx context.Context, _ string, _ message.Batch) error {
	if s.delay <= 0 {
		return nil
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
