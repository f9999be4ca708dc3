package observability

import (
	"context"
	"sync"
)

// Publisher ships domain events to the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

var (
	defaultPublisher Publisher
	publisherMu      sync.RWMutex
)

func SetPublisher(publisher Publisher) {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	defaultPublisher = publisher
}

// PublishEvent is best-effort: a nil publisher drops the event and errors only count.
func PublishEvent(ctx context.Context, routingKey string, event EventEnvelope) error {
	publisherMu.RLock()
	publisher := defaultPublisher
	publisherMu.RUnlock()
	if publisher == nil {
		return nil
	}

	err := publisher.Publish(ctx, routingKey, event)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
