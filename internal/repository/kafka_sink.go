package repository

import (
	"context"

	"SignalHub/internal/domain/models"
	drepo "SignalHub/internal/domain/repository"
	pkgkafka "SignalHub/pkg/kafka"
)

// KafkaSnapshotSink mirrors every published snapshot onto a Kafka topic for
// downstream analytics. Best effort; the Redis publish is the source of
// truth.
type KafkaSnapshotSink struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ drepo.SnapshotSink = (*KafkaSnapshotSink)(nil)

func NewKafkaSnapshotSink(producer *pkgkafka.Producer, topic string) *KafkaSnapshotSink {
	return &KafkaSnapshotSink{producer: producer, topic: topic}
}

func (s *KafkaSnapshotSink) Send(ctx context.Context, snap *models.Snapshot) error {
	key := []byte(snap.GeneratedAt.UTC().Format("20060102T150405.000"))
	return s.producer.Publish(ctx, s.topic, key, snap)
}

func (s *KafkaSnapshotSink) Close() error {
	return s.producer.Close()
}
