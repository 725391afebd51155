package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/solestore/api/internal/services"
)

// amqpChannel is the part of *amqp.Channel the notifier uses.
type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQNotifier publishes events to a durable topic exchange with routing key order.<kind>.
type RabbitMQNotifier struct {
	exchange string
	conn     *amqp.Connection

	mu      sync.Mutex
	channel amqpChannel
}

var _ services.OrderNotifier = (*RabbitMQNotifier)(nil)

// DialRabbitMQ connects to url and declares exchange.
func DialRabbitMQ(url, exchange string) (*RabbitMQNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq notifier: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq notifier: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq notifier: declare exchange %q: %w", exchange, err)
	}
	notifier, err := newRabbitMQNotifier(ch, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	notifier.conn = conn
	return notifier, nil
}

func newRabbitMQNotifier(ch amqpChannel, exchange string) (*RabbitMQNotifier, error) {
	if ch == nil || exchange == "" {
		return nil, errors.New("rabbitmq notifier: channel and exchange are required")
	}
	return &RabbitMQNotifier{exchange: exchange, channel: ch}, nil
}

func (r *RabbitMQNotifier) Notify(ctx context.Context, n services.OrderNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event := NewEvent(n)
	body, err := event.encode()
	if err != nil {
		return fmt.Errorf("rabbitmq notifier: marshal event: %w", err)
	}
	headers := amqp.Table{}
	for key, value := range event.Attributes() {
		headers[key] = value
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.channel.Publish(r.exchange, event.RoutingKey(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.OrderID + ":" + event.Kind + ":" + event.Status,
		Timestamp:    event.OccurredAt,
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq notifier: publish %s: %w", event.RoutingKey(), err)
	}
	return nil
}

func (r *RabbitMQNotifier) Close() error {
	err := r.channel.Close()
	if r.conn != nil {
		err = errors.Join(err, r.conn.Close())
	}
	return err
}
