// Package publisher relays audit events to Kafka. The outbox table is the
// write path for compliance events; this producer serves the relay worker and
// the operational fire-and-forget path.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	audit "kta/pkg/platform/audit"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Kafka publishes audit events to a single topic, keyed by subject so all
// events for one request or batch land on the same partition in order.
type Kafka struct {
	client *kgo.Client
	topic  string
}

// NewKafka connects a producer to the given brokers.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Kafka{client: client, topic: topic}, nil
}

// Emit synchronously produces one audit event.
func (k *Kafka) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(event.Subject),
		Value: payload,
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes and releases the producer.
func (k *Kafka) Close() error {
	k.client.Close()
	return nil
}
