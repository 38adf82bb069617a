package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the JSON body published for every event.
type Envelope struct {
	ID         string    `json:"event_id"`
	Kind       Kind      `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       Event     `json:"data"`
}

// KafkaSink publishes events to one topic, keyed by user id so a user's
// events stay ordered within a partition.
type KafkaSink struct {
	writer MessageWriter
	topic  string
	now    func() time.Time
}

// NewKafkaWriter builds the writer used in production.
func NewKafkaWriter(brokers []string) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker")
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}, nil
}

func NewKafkaSink(writer MessageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: writer, topic: topic, now: func() time.Time { return time.Now().UTC() }}
}

func (s *KafkaSink) Notify(ctx context.Context, e Event) error {
	now := s.now()
	body, err := json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Kind:       e.Kind(),
		OccurredAt: now,
		Data:       e,
	})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Kind(), err)
	}

	var key []byte
	if id := UserID(e); id != 0 {
		key = []byte(strconv.FormatInt(id, 10))
	}
	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Topic: s.topic,
		Key:   key,
		Value: body,
		Time:  now,
	}); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Kind(), err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
