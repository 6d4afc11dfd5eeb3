// Package events publishes queue lifecycle events for downstream consumers
// such as dashboards and analytics. Publishing is fire-and-forget and never
// blocks the request path.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	TypeAdmitted = "patient.admitted"
	TypeServed   = "patient.served"
	TypeCleared  = "queue.cleared"
	TypeFeedback = "feedback.recorded"
)

// Event is one queue lifecycle notification.
type Event struct {
	Type      string                 `json:"type"`
	PatientID string                 `json:"patient_id,omitempty"`
	RiskLevel string                 `json:"risk_level,omitempty"`
	At        time.Time              `json:"at"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event)
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
func (NopPublisher) Close() error                   { return nil }

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by patient id.
type KafkaPublisher struct {
	writer MessageWriter
	logger zerolog.Logger
}

// NewKafkaWriter builds an async writer. Delivery errors are reported to
// the logger from the writer's completion callback.
func NewKafkaWriter(brokers, topic string, logger zerolog.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error().Err(err).Int("messages", len(messages)).Msg("kafka delivery failed")
			}
		},
	}
}

func NewKafkaPublisher(writer MessageWriter, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		p.logger.Error().Err(err).Str("type", e.Type).Msg("encode event")
		return
	}
	// The writer is async, so this only enqueues the message.
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.PatientID),
		Value: value,
		Time:  e.At,
	}); err != nil {
		p.logger.Error().Err(err).Str("type", e.Type).Msg("publish event")
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
