package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/airblackbox/runtime-aibom-emitter/internal/kafkaconn"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes payloads as JSON records keyed by AIBOM id.
type KafkaSink struct {
	writer MessageWriter
}

// NewKafkaSink creates a sink writing to topic on the configured brokers,
// using TLS and SASL when the settings ask for them.
func NewKafkaSink(settings kafkaconn.Settings, topic string) (*KafkaSink, error) {
	if len(settings.Brokers) == 0 {
		return nil, errors.New("kafka sink: no brokers configured")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka sink: no topic configured")
	}
	transport, err := settings.Transport()
	if err != nil {
		return nil, fmt.Errorf("kafka sink: %w", err)
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(settings.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		Transport:    transport,
	}
	return &KafkaSink{writer: w}, nil
}

// NewKafkaSinkWithWriter wraps an existing writer.
func NewKafkaSinkWithWriter(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

// Send implements Sink.
func (s *KafkaSink) Send(ctx context.Context, p Payload) error {
	value, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	msg := kafka.Message{
		Key:     []byte(p.TargetID),
		Value:   value,
		Headers: []kafka.Header{
			{Key: "emission_id", Value: []byte(p.EmissionID)},
			{Key: "component_type", Value: []byte(p.ComponentType)},
		},
		Time:    time.Now(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: kafka write: %w", ErrDownstreamUnavailable, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
