package notifications

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/solestore/api/internal/platform/config"
)

// Build assembles the sinks selected by cfg.Drivers. Driver "none" contributes nothing, so a
// configuration of only "none" yields an empty MultiNotifier.
func Build(ctx context.Context, cfg config.NotifierConfig, logger *zap.Logger) (*MultiNotifier, error) {
	multi := &MultiNotifier{}
	fail := func(err error) (*MultiNotifier, error) {
		_ = multi.Close()
		return nil, err
	}

	for _, driver := range cfg.Drivers {
		switch driver {
		case config.NotifierPubSub:
			client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
			if err != nil {
				return fail(fmt.Errorf("notifications: pubsub client: %w", err))
			}
			notifier, err := NewPubSubNotifier(client.Topic(cfg.PubSub.Topic))
			if err != nil {
				_ = client.Close()
				return fail(err)
			}
			notifier.client = client
			multi.add(driver, notifier)
		case config.NotifierRabbitMQ:
			notifier, err := DialRabbitMQ(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
			if err != nil {
				return fail(err)
			}
			multi.add(driver, notifier)
		case config.NotifierKafka:
			notifier, err := NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			if err != nil {
				return fail(err)
			}
			multi.add(driver, notifier)
		case config.NotifierLog:
			multi.add(driver, NewLogNotifier(logger))
		case config.NotifierNone:
		default:
			return fail(fmt.Errorf("notifications: unknown driver %q", driver))
		}
	}
	return multi, nil
}
