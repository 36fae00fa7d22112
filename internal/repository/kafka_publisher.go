package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rishigupta87/open-ta/internal/domain/models"
	pkgkafka "github.com/rishigupta87/open-ta/pkg/kafka"
)

// KafkaSignalSink implements SignalSink by publishing to a Kafka topic.
// Messages are keyed by token so per-token order is preserved downstream.
type KafkaSignalSink struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaSignalSink creates a Kafka-backed signal sink.
func NewKafkaSignalSink(producer *pkgkafka.Producer, topic string) *KafkaSignalSink {
	return &KafkaSignalSink{producer: producer, topic: topic}
}

// Ensure is a no-op; topics are provisioned by the broker.
func (p *KafkaSignalSink) Ensure(context.Context) error { return nil }

func (p *KafkaSignalSink) Append(ctx context.Context, s *models.Signal) error {
	return p.producer.Publish(ctx, p.topic, []byte(s.Token), s)
}

func (p *KafkaSignalSink) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// KafkaAnalyticsSink publishes window summaries, keyed by underlying. The
// Kafka backend is write-only: range queries need the ClickHouse backend.
type KafkaAnalyticsSink struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaAnalyticsSink creates a Kafka-backed analytics sink.
func NewKafkaAnalyticsSink(producer *pkgkafka.Producer, topic string) *KafkaAnalyticsSink {
	return &KafkaAnalyticsSink{producer: producer, topic: topic}
}

func (p *KafkaAnalyticsSink) Ensure(context.Context) error { return nil }

func (p *KafkaAnalyticsSink) Append(ctx context.Context, a *models.UnderlyingAnalytics) error {
	return p.producer.Publish(ctx, p.topic, []byte(a.Underlying), a)
}

func (p *KafkaAnalyticsSink) QueryRange(context.Context, string, time.Time, time.Time, int) ([]*models.UnderlyingAnalytics, error) {
	return nil, fmt.Errorf("analytics history is not queryable on the kafka backend")
}

func (p *KafkaAnalyticsSink) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
