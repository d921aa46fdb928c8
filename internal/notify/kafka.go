package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Kafka publishes notifications to a single topic keyed by recipient, so one
// wallet's notifications stay ordered within a partition.
type Kafka struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// KafkaOption configures a Kafka dispatcher.
type KafkaOption func(*Kafka)

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(k *Kafka) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// NewKafka connects to the brokers and ensures the topic exists. Topic
// creation is idempotent; an already-exists response is not an error.
func NewKafka(ctx context.Context, brokers []string, topic string, opts ...KafkaOption) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(1<<20),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, 3, 1, nil, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("notify: create topic: %w", err)
	}
	for _, ctr := range resp.Sorted() {
		if ctr.Err != nil && !errors.Is(ctr.Err, kerr.TopicAlreadyExists) {
			client.Close()
			return nil, fmt.Errorf("notify: create topic %s: %w", ctr.Topic, ctr.Err)
		}
	}

	k := &Kafka{client: client, topic: topic, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(k)
		}
	}
	return k, nil
}

func (k *Kafka) Enqueue(ctx context.Context, recipient, eventType string, payload map[string]string) error {
	n := Notification{
		Recipient: recipient,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	record := &kgo.Record{Topic: k.topic, Key: []byte(recipient), Value: value}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("notify: produce: %w", err)
	}
	k.logger.DebugContext(ctx, "notification published",
		"recipient", recipient, "event_type", eventType)
	return nil
}

// Close flushes outstanding records and releases the client.
func (k *Kafka) Close() {
	k.client.Close()
}
