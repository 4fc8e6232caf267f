package pipeline

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

type partitionKey struct {
	topic     string
	partition int
}

type trackedOffset struct {
	msg  kafka.Message
	done bool
}

// partitionOffsets holds the messages of one partition in fetch order.
// Once a batch fails the partition is blocked: nothing past the failed
// offset may be committed until the group rebalances or restarts.
type partitionOffsets struct {
	queue   []trackedOffset
	blocked bool
}

// offsetTracker turns out-of-order batch acknowledgements into a commit
// watermark. A Kafka commit covers every lower offset of the partition, so
// a message is only committable once it and every message fetched before it
// on the same partition went through the output.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[partitionKey]*partitionOffsets
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: make(map[partitionKey]*partitionOffsets)}
}

func (t *offsetTracker) partition(m kafka.Message) *partitionOffsets {
	key := partitionKey{topic: m.Topic, partition: m.Partition}
	p, ok := t.partitions[key]
	if !ok {
		p = &partitionOffsets{}
		t.partitions[key] = p
	}
	return p
}

// track registers m as fetched but not yet acknowledged.
func (t *offsetTracker) track(m kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.partition(m)
	if p.blocked {
		return
	}
	p.queue = append(p.queue, trackedOffset{msg: m})
}

// complete marks msgs as processed and returns, per partition, the highest
// message whose predecessors are all processed too.
func (t *offsetTracker) complete(msgs []kafka.Message) []kafka.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	touched := make(map[*partitionOffsets]struct{})
	for _, m := range msgs {
		p := t.partition(m)
		if p.blocked {
			continue
		}
		for i := range p.queue {
			if p.queue[i].msg.Offset == m.Offset {
				p.queue[i].done = true
				break
			}
		}
		touched[p] = struct{}{}
	}

	var commits []kafka.Message
	for p := range touched {
		n := 0
		for n < len(p.queue) && p.queue[n].done {
			n++
		}
		if n == 0 {
			continue
		}
		commits = append(commits, p.queue[n-1].msg)
		p.queue = p.queue[n:]
	}
	return commits
}

// fail blocks every partition msgs belong to. It returns the partitions
// that were blocked by this call.
func (t *offsetTracker) fail(msgs []kafka.Message) []partitionKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	var blocked []partitionKey
	for _, m := range msgs {
		p := t.partition(m)
		if p.blocked {
			continue
		}
		p.blocked = true
		p.queue = nil
		blocked = append(blocked, partitionKey{topic: m.Topic, partition: m.Partition})
	}
	return blocked
}

// outstanding reports how many tracked messages still wait for a commit.
func (t *offsetTracker) outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, p := range t.partitions {
		n += len(p.queue)
	}
	return n
}
