package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"chat-core/internal/observability"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// RecordingPublisher keeps every domain event it is handed.
type RecordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []any
}

func (p *RecordingPublisher) Publish(_ context.Context, routingKey string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

// Keys returns the routing keys published so far.
func (p *RecordingPublisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// Envelopes returns the domain events published under routingKey.
func (p *RecordingPublisher) Envelopes(routingKey string) []observability.EventEnvelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []observability.EventEnvelope
	for i, key := range p.keys {
		if env, ok := p.events[i].(observability.EventEnvelope); ok && key == routingKey {
			out = append(out, env)
		}
	}
	return out
}
