package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"chat-core/internal/observability"
)

// Routing keys published by the external user store.
const (
	RouteUserCreated = "users.created"
	RouteUserUpdated = "users.updated"
)

// ErrPermanent marks a delivery that must not be requeued.
var ErrPermanent = errors.New("permanent delivery failure")

// HandlerFunc processes one delivery body.
type HandlerFunc func(ctx context.Context, routingKey string, body []byte) error

// Consumer reads user lifecycle events from a durable queue bound to the exchange.
type Consumer struct {
	session *session
	queue   string
}

// NewConsumer declares the queue and binds it to routingKeys.
func NewConsumer(amqpURL, exchange, queue string, routingKeys ...string) (*Consumer, error) {
	s, err := dial(amqpURL, exchange)
	if err != nil {
		return nil, err
	}
	if err := bind(s.ch, exchange, queue, routingKeys); err != nil {
		s.close()
		return nil, err
	}
	log.Printf("rabbitmq consumer ready queue=%s keys=%v", queue, routingKeys)
	return &Consumer{session: s, queue: queue}, nil
}

func bind(ch *amqp.Channel, exchange, queue string, routingKeys []string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	for _, key := range routingKeys {
		if err := ch.QueueBind(queue, key, exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	if err := ch.Qos(32, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	return nil
}

// Run consumes until ctx is cancelled or the channel closes. Handler errors nack the
// delivery; ErrPermanent drops it instead of requeueing.
func (c *Consumer) Run(ctx context.Context, handle HandlerFunc) error {
	deliveries, err := c.session.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			dispatch(ctx, d, handle)
		}
	}
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func dispatch(ctx context.Context, d amqp.Delivery, handle HandlerFunc) {
	settle(ctx, &d, d.RoutingKey, d.Body, handle)
}

func settle(ctx context.Context, ack acknowledger, routingKey string, body []byte, handle HandlerFunc) {
	if requestID, ok := headerString(ack, "x-request-id"); ok {
		ctx = observability.WithRequestID(ctx, requestID)
	}

	err := handle(ctx, routingKey, body)
	switch {
	case err == nil:
		observability.IncBrokerEvent(routingKey, "ok")
		_ = ack.Ack(false)
	case errors.Is(err, ErrPermanent):
		log.Printf("rabbitmq drop routing_key=%s: %v", routingKey, err)
		observability.IncBrokerEvent(routingKey, "dropped")
		_ = ack.Nack(false, false)
	default:
		log.Printf("rabbitmq requeue routing_key=%s: %v", routingKey, err)
		observability.IncBrokerEvent(routingKey, "requeued")
		_ = ack.Nack(false, true)
	}
}

func headerString(ack acknowledger, key string) (string, bool) {
	d, ok := ack.(*amqp.Delivery)
	if !ok || d.Headers == nil {
		return "", false
	}
	v, ok := d.Headers[key].(string)
	return v, ok
}

func (c *Consumer) Close() error {
	return c.session.close()
}
