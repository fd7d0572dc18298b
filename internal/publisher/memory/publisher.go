// Package memory publishes payloads in process. Subscribers run
// synchronously inside Publish.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Handler receives the JSON payload of a published message.
type Handler func(ctx context.Context, data []byte) error

// Publisher stores published payloads and hands them to subscribers.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	handlers map[string][]Handler
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
	Data    []byte
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{handlers: make(map[string][]Handler)}
}

// Subscribe registers h for messages on topic.
func (p *Publisher) Subscribe(topic string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[topic] = append(p.handlers[topic], h)
}

// Publish records the message, delivers it to the topic's subscribers and
// returns a pseudo ID. A subscriber error fails the publish.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	p.mu.Lock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload, Data: data})
	handlers := append([]Handler(nil), p.handlers[topic]...)
	p.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, data); err != nil {
			return id, fmt.Errorf("deliver %s: %w", id, err)
		}
	}
	return id, nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
