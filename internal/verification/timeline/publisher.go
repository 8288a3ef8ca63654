package timeline

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultTopic receives timeline events when no topic is configured.
const DefaultTopic = "bgv.timeline"

// Producer is the part of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher writes outbox records to a Kafka topic, keyed by case so
// a case's events stay ordered within one partition.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaPublisher(producer Producer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, records ...OutboxRecord) error {
	if len(records) == 0 {
		return nil
	}
	rs := make([]*kgo.Record, 0, len(records))
	for _, r := range records {
		rs = append(rs, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(r.AggregateID),
			Value: r.Payload,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(r.EventType)},
				{Key: "outbox_id", Value: []byte(r.ID.String())},
			},
		})
	}
	return p.producer.ProduceSync(ctx, rs...).FirstErr()
}
