package elapsed

import (
	"context"
	"time"

	"github.com/sanspareilsmyn/elapsedtime/internal/message"
)

// Store is a wrapped downstream output whose processing time is measured.
// Process may block.
type Store interface {
	Start() error
	Shutdown() error
	Process(ctx context.Context, tag string, batch message.Batch) error
}

// Emitter re-injects a record into the host pipeline.
type Emitter interface {
	Emit(ctx context.Context, tag string, ts time.Time, record message.Record) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, tag string, ts time.Time, record message.Record) error

func (f EmitterFunc) Emit(ctx context.Context, tag string, ts time.Time, record message.Record) error {
	return f(ctx, tag, ts, record)
}

// Chain is signalled once a batch has been handed to every store.
type Chain interface {
	Next(ctx context.Context) error
}

// NullChain acknowledges nothing.
type NullChain struct{}

func (NullChain) Next(context.Context) error { return nil }
