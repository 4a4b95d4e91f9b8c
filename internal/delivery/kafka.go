package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"voice-widget/internal/models"
)

// KafkaConfig holds Kafka sink configuration.
type KafkaConfig struct {
	Brokers   []string
	Topic     string
	Principal string
	Enabled   bool
}

// KafkaPoster publishes transcript records to a Kafka topic keyed by room,
// so one conversation stays on one partition.
type KafkaPoster struct {
	writer    *kafka.Writer
	topic     string
	principal string
	enabled   bool
}

// NewKafkaPoster creates a Kafka poster. When disabled, or with no brokers,
// records are only logged.
func NewKafkaPoster(cfg *KafkaConfig) *KafkaPoster {
	if cfg == nil {
		log.Info().Msg("Kafka sink disabled (nil config), using log-only mode")
		return &KafkaPoster{}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka sink disabled, using log-only mode")
		return &KafkaPoster{
			topic:     cfg.Topic,
			principal: cfg.Principal,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("principal", cfg.Principal).
		Msg("Kafka transcript sink initialized")

	return &KafkaPoster{
		writer:    writer,
		topic:     cfg.Topic,
		principal: cfg.Principal,
		enabled:   true,
	}
}

// Name implements Poster.
func (p *KafkaPoster) Name() string {
	return "kafka"
}

// Post implements Poster.
func (p *KafkaPoster) Post(ctx context.Context, rec models.TranscriptRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", p.topic).
		Str("key", rec.Room).
		RawJSON("payload", payload).
		Msg("Publishing transcript record")

	if !p.enabled || p.writer == nil {
		return nil
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.Room),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("transcript." + rec.Type)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	})
}

// Close closes the Kafka writer.
func (p *KafkaPoster) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
