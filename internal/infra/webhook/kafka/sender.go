// Package kafka forwards webhook deliveries to a Kafka topic. A downstream
// relay owns the per-user HTTP endpoints.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"gibiertrace/internal/core"
	"gibiertrace/pkg/domain"
)

// DefaultTopic receives webhook deliveries when no topic is configured.
const DefaultTopic = "gibiertrace.events"

const (
	headerEvent    = "event"
	headerEventKey = "event_key"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Sender publishes one message per webhook delivery, keyed by user so a
// user's deliveries stay ordered within a partition.
type Sender struct {
	writer messageWriter
	topic  string
	nowFn  func() time.Time
}

var _ core.WebhookSender = (*Sender)(nil)

// New dials no connection up front; the writer connects on first write.
func New(brokers []string, topic string) (*Sender, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka webhook sender requires at least one broker")
	}
	return newSender(&kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		RequiredAcks: kafkago.RequireAll,
		Balancer:     &kafkago.Hash{},
	}, topic), nil
}

func newSender(w messageWriter, topic string) *Sender {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Sender{writer: w, topic: topic, nowFn: time.Now}
}

// Send implements core.WebhookSender.
func (s *Sender) Send(ctx context.Context, userID string, eventName string, payload domain.DomainEvent) error {
	value, err := json.Marshal(struct {
		UserID string             `json:"user_id"`
		Event  string             `json:"event"`
		Data   domain.DomainEvent `json:"data"`
	}{UserID: userID, Event: eventName, Data: payload})
	if err != nil {
		return fmt.Errorf("encode webhook %s: %w", eventName, err)
	}
	msg := kafkago.Message{
		Topic: s.topic,
		Key:   []byte(userID),
		Value: value,
		Headers: []kafkago.Header{
			{Key: headerEvent, Value: []byte(eventName)},
			{Key: headerEventKey, Value: []byte(payload.Key)},
		},
		Time: s.nowFn().UTC(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish webhook %s for %s: %w", eventName, userID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *Sender) Close() error {
	return s.writer.Close()
}
