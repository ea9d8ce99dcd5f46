package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaOptions configure the Kafka sink.
type KafkaOptions struct {
	Brokers      []string
	Topic        string
	Destination  string
	WriteTimeout time.Duration
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications to a topic, keyed by destination.
type KafkaNotifier struct {
	writer      kafkaMessageWriter
	destination string
	timeout     time.Duration
	logger      zerolog.Logger
}

// NewKafkaNotifier builds a synchronous kafka-go writer for the given topic.
func NewKafkaNotifier(opts KafkaOptions, logger zerolog.Logger) (*KafkaNotifier, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("kafka brokers required")
	}
	if opts.Topic == "" {
		return nil, errors.New("kafka topic required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: opts.WriteTimeout,
	}
	return newKafkaNotifier(writer, opts, logger), nil
}

func newKafkaNotifier(writer kafkaMessageWriter, opts KafkaOptions, logger zerolog.Logger) *KafkaNotifier {
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KafkaNotifier{
		writer:      writer,
		destination: opts.Destination,
		timeout:     timeout,
		logger:      logger.With().Str("component", "alert_kafka").Logger(),
	}
}

func (k *KafkaNotifier) Notify(ctx context.Context, note Notification) error {
	value, err := json.Marshal(newPayload(note, k.destination))
	if err != nil {
		return fmt.Errorf("kafka: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(k.destination),
		Value: value,
		Time:  note.At,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write: %w", err)
	}

	k.logger.Info().Str("kind", string(note.Kind)).Msg("alert published (kafka)")
	return nil
}

// Close flushes and releases the writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

var _ Notifier = (*KafkaNotifier)(nil)
