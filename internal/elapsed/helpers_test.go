package elapsed

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sanspareilsmyn/elapsedtime/internal/message"
)

type callLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *callLog) add(entry string) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// fakeStore advances clk by cost on every Process call and fails on the
// failOn-th call when failOn > 0. Start returns startErr.
type fakeStore struct {
	name     string
	clk      *clock.Mock
	cost     time.Duration
	failOn   int
	err      error
	startErr error
	log      *callLog

	mu      sync.Mutex
	batches []message.Batch
	tags    []string
}

func (s *fakeStore) Start() error {
	if s.log != nil {
		s.log.add(s.name + ".start")
	}
	return s.startErr
}

func (s *fakeStore) Shutdown() error {
	if s.log != nil {
		s.log.add(s.name + ".shutdown")
	}
	return nil
}

func (s *fakeStore) Process(_ context.Context, tag string, batch message.Batch) error {
	s.mu.Lock()
	s.batches = append(s.batches, batch)
	s.tags = append(s.tags, tag)
	calls := len(s.batches)
	s.mu.Unlock()

	if s.failOn > 0 && calls == s.failOn {
		return s.err
	}
	if s.clk != nil && s.cost > 0 {
		s.clk.Add(s.cost)
	}
	return nil
}

func (s *fakeStore) calls() []message.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Batch(nil), s.batches...)
}

type emitted struct {
	tag    string
	ts     time.Time
	record message.Record
}

// fakeEmitter fails the first failFirst emits.
type fakeEmitter struct {
	failFirst int
	err       error

	mu       sync.Mutex
	attempts int
	records  []emitted
}

func (e *fakeEmitter) Emit(_ context.Context, tag string, ts time.Time, record message.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts++
	if e.attempts <= e.failFirst {
		return e.err
	}
	e.records = append(e.records, emitted{tag: tag, ts: ts, record: record})
	return nil
}

func (e *fakeEmitter) all() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emitted(nil), e.records...)
}

func (e *fakeEmitter) attemptCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

type countingChain struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingChain) Next(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func fourEvents() message.Batch {
	messages := []string{
		"2013/01/13T07:02:11.124202 INFO GET /ping",
		"2013/01/13T07:02:13.232645 WARN POST /auth",
		"2013/01/13T07:02:21.542145 WARN GET /favicon.ico",
		"2013/01/13T07:02:43.632145 WARN POST /login",
	}
	now := time.Now()
	batch := make(message.Batch, 0, len(messages))
	for _, m := range messages {
		batch = append(batch, message.Event{Time: now, Record: message.Record{"message": m}})
	}
	return batch
}
