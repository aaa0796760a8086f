// Package memory records published session reports in memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/opinion-crawler/internal/crawler"
)

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// Publisher keeps every published payload.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the message and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns a copy of the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PublishedMessage(nil), p.messages...)
}

// Reports returns the SessionReport payloads published to topic, in order.
func (p *Publisher) Reports(topic string) []crawler.SessionReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []crawler.SessionReport
	for _, m := range p.messages {
		if m.Topic != topic {
			continue
		}
		if rep, ok := m.Payload.(crawler.SessionReport); ok {
			out = append(out, rep)
		}
	}
	return out
}
