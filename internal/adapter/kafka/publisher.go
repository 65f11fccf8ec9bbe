package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/storm-risk-service/internal/domain"
	"github.com/couchcryptid/storm-risk-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// Write retry schedule: 200ms doubling up to 2s, three attempts in total.
const (
	publishAttempts   = 3
	publishBackoff    = 200 * time.Millisecond
	publishMaxBackoff = 2 * time.Second
)

// Publisher writes each completed hot-zone cycle to a Kafka topic, one
// message per zone keyed by region.
type Publisher struct {
	writer  *kafkago.Writer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a Kafka producer for the hot-zone topic.
func NewPublisher(brokers []string, topic string, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, metrics: metrics, logger: logger}
}

// Publish serializes the snapshot and writes it in a single WriteMessages
// call, retrying failed writes with backoff until ctx is done.
func (p *Publisher) Publish(ctx context.Context, snap domain.HotZoneSnapshot) error {
	if len(snap.Zones) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(snap.Zones))
	for i := range snap.Zones {
		msg, err := serializeZone(snap, i)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	backoff := publishBackoff
	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		if err = p.writer.WriteMessages(ctx, msgs...); err == nil {
			break
		}
		if attempt == publishAttempts {
			break
		}
		p.logger.Warn("publish hot zones failed, retrying",
			"cycle_id", snap.CycleID, "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, publishMaxBackoff)
	}
	if err != nil {
		return fmt.Errorf("publish hot zones: %w", err)
	}
	p.metrics.PublishedZones.Add(float64(len(msgs)))
	p.logger.Debug("hot zones published", "cycle_id", snap.CycleID, "count", len(msgs))
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeZone marshals the zone at rank i into a Kafka message.
func serializeZone(snap domain.HotZoneSnapshot, i int) (kafkago.Message, error) {
	zone := snap.Zones[i]
	data, err := json.Marshal(zone)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize hot zone %q: %w", zone.Region, err)
	}
	return kafkago.Message{
		Key:   []byte(zone.Region),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "cycle_id", Value: []byte(snap.CycleID)},
			{Key: "generated_at", Value: []byte(snap.GeneratedAt.Format(time.RFC3339))},
			{Key: "rank", Value: []byte(strconv.Itoa(i + 1))},
			{Key: "level", Value: []byte(zone.Assessment.Level)},
		},
	}, nil
}
