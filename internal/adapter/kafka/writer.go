package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/covid-capacity-etl/internal/config"
	"github.com/couchcryptid/covid-capacity-etl/internal/domain"
	"github.com/couchcryptid/covid-capacity-etl/internal/observability"
	"github.com/couchcryptid/covid-capacity-etl/internal/pipeline"
)

// Writer publishes each dataset snapshot to a Kafka topic, one message per
// place. It implements pipeline.SnapshotLoader.
type Writer struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Kafka producer for the configured dataset topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger, metrics: metrics}
}

// PlaceMessage is the value of a dataset message: the full series of one
// place, with the date index inlined.
type PlaceMessage struct {
	domain.PlaceSeries
	Dates   []string  `json:"dates"`
	BuiltAt time.Time `json:"built_at"`
}

// LoadSnapshot serializes every place of the snapshot and publishes them in
// a single WriteMessages call.
func (w *Writer) LoadSnapshot(ctx context.Context, snap pipeline.Snapshot) error {
	msgs, err := snapshotMessages(snap)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish dataset: %w", err)
	}
	w.metrics.PublishedMessages.Add(float64(len(msgs)))
	w.logger.Info("dataset published", "topic", w.writer.Topic, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func snapshotMessages(snap pipeline.Snapshot) ([]kafkago.Message, error) {
	ds := snap.Dataset
	if ds == nil {
		return nil, nil
	}

	msgs := make([]kafkago.Message, 0, len(ds.Places))
	for _, p := range ds.Places {
		series, ok := ds.Series(p.Name)
		if !ok {
			continue
		}
		// Dates the place does not report are left out of its message.
		series, kept := series.Compact(ds.Dates)
		dates := make([]string, len(kept))
		for i, d := range kept {
			dates[i] = d.Format(domain.DateLayout)
		}
		msg, err := serializeToMessage(PlaceMessage{PlaceSeries: series, Dates: dates, BuiltAt: snap.BuiltAt})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// serializeToMessage marshals one place into a Kafka message keyed by place ID.
func serializeToMessage(pm PlaceMessage) (kafkago.Message, error) {
	data, err := json.Marshal(pm)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize place series: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(pm.Place.Name),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "built_at", Value: []byte(pm.BuiltAt.Format(time.RFC3339))},
			{Key: "place_level", Value: []byte(pm.Place.Level)},
		},
	}, nil
}
