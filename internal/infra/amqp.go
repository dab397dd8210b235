package infra

import (
	"fmt"
	"net/url"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPChannel is an open broker channel plus its connection.
type AMQPChannel struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// Close releases the channel and its connection.
func (a *AMQPChannel) Close() error {
	if a == nil {
		return nil
	}
	if a.Channel != nil {
		_ = a.Channel.Close()
	}
	if a.Conn != nil {
		return a.Conn.Close()
	}
	return nil
}

// NewAMQPChannel dials RabbitMQ and opens a channel.
func NewAMQPChannel(rawURL string) (*AMQPChannel, error) {
	clean := strings.Trim(strings.TrimSpace(rawURL), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("parse amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return nil, fmt.Errorf("amqp url scheme must be amqp or amqps, got %q", u.Scheme)
	}

	conn, err := amqp.Dial(clean)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return &AMQPChannel{Conn: conn, Channel: ch}, nil
}
