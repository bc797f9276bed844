package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaNotifier publishes domain events to a Kafka topic for the external
// fan-out consumers. Produce is asynchronous; delivery failures are logged
// and dropped, matching the fire-and-forget contract.
type KafkaNotifier struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaNotifier connects a producer to the given brokers.
func NewKafkaNotifier(brokers []string, topic string, logger *slog.Logger) (*KafkaNotifier, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaNotifier{client: client, topic: topic, logger: logger}, nil
}

func (n *KafkaNotifier) Publish(ctx context.Context, event DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal domain event: %w", err)
	}

	record := &kgo.Record{
		Topic: n.topic,
		Key:   []byte(event.EventType),
		Value: payload,
	}
	n.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil && n.logger != nil {
			n.logger.Error("domain event publish failed",
				"event_type", event.EventType,
				"event_id", event.ID,
				"error", err,
			)
		}
	})
	return nil
}

// Close flushes pending records and releases the client.
func (n *KafkaNotifier) Close(ctx context.Context) error {
	if err := n.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush kafka producer: %w", err)
	}
	n.client.Close()
	return nil
}
