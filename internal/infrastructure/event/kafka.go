package event

import (
	"context"
	"fmt"
	"time"

	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

const produceTimeout = 5 * time.Second

// Producer is the subset of *kgo.Client the forwarder needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaConfig configures the forwarder's client.
type KafkaConfig struct {
	Brokers  []string
	ClientID string
	Topic    string
}

// KafkaForwarder is a wildcard event handler that publishes every domain
// event to a Kafka topic, keyed by aggregate ID so all events for one post
// land on the same partition.
type KafkaForwarder struct {
	producer Producer
	client   *kgo.Client
	topic    string
	source   string
	logger   *zap.Logger
}

// NewKafkaForwarder connects to the brokers and returns a forwarder.
func NewKafkaForwarder(cfg KafkaConfig, logger *zap.Logger) (*KafkaForwarder, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	f := NewKafkaForwarderWithProducer(client, cfg.Topic, cfg.ClientID, logger)
	f.client = client
	return f, nil
}

// NewKafkaForwarderWithProducer builds a forwarder over an existing producer.
func NewKafkaForwarderWithProducer(p Producer, topic, source string, logger *zap.Logger) *KafkaForwarder {
	return &KafkaForwarder{
		producer: p,
		topic:    topic,
		source:   source,
		logger:   logger.Named("kafka_forwarder"),
	}
}

// EventTypes returns nil: the forwarder receives every event.
func (f *KafkaForwarder) EventTypes() []string { return nil }

// Handle publishes e and waits for the broker acknowledgement.
func (f *KafkaForwarder) Handle(ctx context.Context, e shared.DomainEvent) error {
	env, err := NewEnvelope(f.source, e)
	if err != nil {
		return err
	}
	value, err := env.Marshal()
	if err != nil {
		return err
	}

	record := &kgo.Record{
		Topic: f.topic,
		Key:   []byte(e.AggregateID()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.EventType())},
			{Key: "source", Value: []byte(f.source)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, produceTimeout)
	defer cancel()

	if err := f.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce %s: %w", e.EventType(), err)
	}
	f.logger.Debug("event forwarded", zap.String("event_type", e.EventType()), zap.String("topic", f.topic))
	return nil
}

// Ping checks broker connectivity.
func (f *KafkaForwarder) Ping(ctx context.Context) error {
	if f.client == nil {
		return nil
	}
	return f.client.Ping(ctx)
}

// Close flushes and closes the client.
func (f *KafkaForwarder) Close() {
	if f.client != nil {
		f.client.Close()
	}
}
