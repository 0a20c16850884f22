// Package messaging mirrors accepted push events to Kafka for downstream
// consumers (audit, analytics). The mirror is best-effort and strictly off
// the fan-out path: a broker outage costs the mirror copies, never the push.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Zain-surge/thevillage-backend/internal/domain"
)

// eventEnvelope is the Kafka message body for mirrored events.
type eventEnvelope struct {
	EventType  string          `json:"event_type"`
	Tenant     string          `json:"tenant"`
	Seq        uint64          `json:"seq"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// KafkaSink implements domain.EventSink on a kafka-go writer. Messages are
// keyed by tenant so per-tenant ordering survives partitioning.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink builds a sink writing to the given brokers and topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
	}
}

// Append writes one mirrored event.
func (s *KafkaSink) Append(ctx context.Context, event domain.Event) error {
	envelope := eventEnvelope{
		EventType:  string(event.Type),
		Tenant:     event.Tenant,
		Seq:        event.Seq,
		OccurredAt: time.Now().UTC(),
		Data:       event.Data,
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Tenant),
		Value: value,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
