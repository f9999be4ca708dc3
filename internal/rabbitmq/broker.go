// Package rabbitmq connects the chat core to the AMQP topic exchange: domain and audit
// events go out, user lifecycle events from the external user store come in.
package rabbitmq

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

var errNoURL = errors.New("empty amqp url")

// session is one connection with one channel on which exchange is declared.
type session struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func dial(amqpURL, exchange string) (*session, error) {
	if amqpURL == "" {
		return nil, errNoURL
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel: %w", err)
	}
	s := &session{conn: conn, ch: ch}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		s.close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return s, nil
}

func (s *session) close() error {
	if s == nil {
		return nil
	}
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
