package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/segmentio/kafka-go"

	"voice-widget/internal/models"
)

// ConsumerConfig selects the transcript topic to follow.
type ConsumerConfig struct {
	Brokers    []string
	Topic      string
	Lookback   time.Duration // replay window on start
	Partitions []int         // partitions to read; empty reads every partition
}

// Consume reads transcript records from every partition of the topic and
// broadcasts them until ctx is cancelled. The producer keys records by room,
// so each partition carries a different set of conversations.
func (h *Hub) Consume(ctx context.Context, cfg ConsumerConfig) error {
	partitions := cfg.Partitions
	if len(partitions) == 0 {
		var err error
		partitions, err = lookupPartitions(ctx, cfg.Brokers, cfg.Topic)
		if err != nil {
			return err
		}
	}

	h.logger.Info().
		Str("topic", cfg.Topic).
		Ints("partitions", partitions).
		Dur("lookback", cfg.Lookback).
		Msg("Consuming transcript records")

	var wg sync.WaitGroup
	for _, partition := range partitions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.consumePartition(ctx, cfg, partition)
		}()
	}
	wg.Wait()
	return nil
}

// lookupPartitions asks the first reachable broker for the topic's partitions.
func lookupPartitions(ctx context.Context, brokers []string, topic string) ([]int, error) {
	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}

	var errs []error
	for _, broker := range brokers {
		parts, err := dialer.LookupPartitions(ctx, "tcp", broker, topic)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return partitionIDs(parts), nil
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("lookup partitions of %s: no brokers configured", topic)
	}
	return nil, fmt.Errorf("lookup partitions of %s: %w", topic, errors.Join(errs...))
}

// partitionIDs returns the sorted, distinct IDs of parts.
func partitionIDs(parts []kafka.Partition) []int {
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.ID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func (h *Hub) consumePartition(ctx context.Context, cfg ConsumerConfig, partition int) {
	// Partition reader without a consumer group works through port-forwards.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   cfg.Brokers,
		Topic:     cfg.Topic,
		Partition: partition,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	logger := h.logger.With().Str("topic", cfg.Topic).Int("partition", partition).Logger()

	if cfg.Lookback > 0 {
		if err := reader.SetOffsetAt(ctx, time.Now().Add(-cfg.Lookback)); err != nil {
			logger.Warn().Err(err).Msg("Failed to seek transcript partition")
		}
	}

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		rec, err := decodeRecord(msg)
		if err != nil {
			logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping undecodable record")
			continue
		}

		logger.Debug().
			Str("room", rec.Room).
			Str("type", rec.Type).
			Str("text", truncate(rec.Text, 40)).
			Msg("Transcript record received")
		h.Broadcast(ctx, rec)
	}
}

func decodeRecord(msg kafka.Message) (models.TranscriptRecord, error) {
	var rec models.TranscriptRecord
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		return models.TranscriptRecord{}, err
	}
	if rec.Room == "" {
		rec.Room = string(msg.Key)
	}
	return rec, nil
}

// truncate shortens s to at most maxLen characters, never splitting one.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
