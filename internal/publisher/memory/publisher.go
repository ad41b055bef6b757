// Package memory contains an in-memory event publisher used when no broker
// is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// DefaultCapacity bounds the number of retained messages.
const DefaultCapacity = 256

// Publisher keeps the most recent published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	capacity int
	seq      int
	messages []PublishedMessage
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// New returns a memory Publisher retaining at most capacity messages.
func New(capacity int) *Publisher {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Publisher{capacity: capacity}
}

// Publish records the message and returns a pseudo ID. The oldest message is
// dropped once the buffer is full.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	if len(p.messages) == p.capacity {
		copy(p.messages, p.messages[1:])
		p.messages = p.messages[:len(p.messages)-1]
	}
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Messages returns the recorded publishes, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
