package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"chat-core/internal/observability"
	"chat-core/internal/telemetry"
)

// Publisher publishes domain and audit events on the topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher connects to the broker. Without a reachable broker it returns a publisher
// that only logs, so socket traffic never waits on AMQP.
func NewPublisher(amqpURL, exchange string) Publisher {
	s, err := dial(amqpURL, exchange)
	if err != nil {
		log.Printf("rabbitmq publisher degraded to noop: %v", err)
		return noopPublisher{reason: err.Error()}
	}
	log.Printf("rabbitmq publisher connected exchange=%s", exchange)
	return &amqpPublisher{session: s, exchange: exchange}
}

type amqpPublisher struct {
	session  *session
	exchange string
	// amqp channels must not be shared by concurrent publishers
	mu sync.Mutex
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", routingKey, err)
	}
	msg := amqp.Publishing{
		MessageId:    uuid.NewString(),
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      headerTable(observability.HeadersFromContext(ctx)),
		Body:         body,
	}

	p.mu.Lock()
	err = p.session.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	p.mu.Unlock()
	if err != nil {
		log.Printf("rabbitmq publish routing_key=%s message_id=%s failed: %v", routingKey, msg.MessageId, err)
		return err
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	return p.session.close()
}

func headerTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}
	table := make(amqp.Table, len(headers))
	for k, v := range headers {
		table[k] = v
	}
	return table
}

// noopPublisher keeps a trace of what would have been published.
type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(_ context.Context, routingKey string, event any) error {
	switch e := event.(type) {
	case telemetry.AuditEnvelope:
		log.Printf("rabbitmq noop routing_key=%s audit level=%s text=%q", routingKey, e.Payload.Level, e.Payload.Text)
	case observability.EventEnvelope:
		log.Printf("rabbitmq noop routing_key=%s event=%s/%s", routingKey, e.EventType, e.EventName)
	default:
		log.Printf("rabbitmq noop routing_key=%s type=%T", routingKey, event)
	}
	return nil
}

func (noopPublisher) Close() error { return nil }

// PublisherMode is "amqp" or "noop", for the startup log line.
func PublisherMode(p Publisher) string {
	if _, ok := p.(*amqpPublisher); ok {
		return "amqp"
	}
	return "noop"
}

// PublisherNoopReason explains why a publisher is a noop; empty otherwise.
func PublisherNoopReason(p Publisher) string {
	if n, ok := p.(noopPublisher); ok {
		return n.reason
	}
	return ""
}
