package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/solestore/api/internal/services"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier writes events keyed by order ID so one order's events stay on one partition.
type KafkaNotifier struct {
	writer messageWriter
}

var _ services.OrderNotifier = (*KafkaNotifier)(nil)

// NewKafkaNotifier builds a synchronous writer for topic on brokers.
func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka notifier: brokers and topic are required")
	}
	return &KafkaNotifier{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}}, nil
}

func (k *KafkaNotifier) Notify(ctx context.Context, n services.OrderNotification) error {
	event := NewEvent(n)
	value, err := event.encode()
	if err != nil {
		return fmt.Errorf("kafka notifier: marshal event: %w", err)
	}
	headers := make([]kafka.Header, 0, 4)
	for key, attr := range event.Attributes() {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(attr)})
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.OrderID),
		Value:   value,
		Headers: headers,
		Time:    event.OccurredAt,
	}); err != nil {
		return fmt.Errorf("kafka notifier: write %s: %w", event.Kind, err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
