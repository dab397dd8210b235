package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier hands mail messages to a downstream mail worker through a
// durable topic exchange.
type AMQPNotifier struct {
	ch         Channel
	exchange   string
	routingKey string
}

// NewAMQPNotifier declares the exchange and returns the notifier.
func NewAMQPNotifier(ch Channel, exchange, routingKey string) (*AMQPNotifier, error) {
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	); err != nil {
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return &AMQPNotifier{ch: ch, exchange: exchange, routingKey: routingKey}, nil
}

// Send publishes the message as JSON. The routing key is suffixed with the
// message kind so workers can bind per template.
func (n *AMQPNotifier) Send(ctx context.Context, message Message) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}
	key := n.routingKey
	if message.Kind != "" {
		key = key + "." + message.Kind
	}
	return n.ch.PublishWithContext(ctx, n.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}
