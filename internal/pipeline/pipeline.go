package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/covid-capacity-etl/internal/domain"
	"github.com/couchcryptid/covid-capacity-etl/internal/observability"
)

// MetricSource reads the raw rows for one metric.
type MetricSource interface {
	ReadMetric(ctx context.Context, metric domain.Metric) ([]domain.RawDailyRecord, error)
}

// LoadMetric reads every row for metric from src and aggregates it by place
// and by subregion.
func LoadMetric(ctx context.Context, src MetricSource, metric domain.Metric) (domain.MetricSeries, error) {
	records, err := src.ReadMetric(ctx, metric)
	if err != nil {
		return domain.MetricSeries{}, fmt.Errorf("load %s: %w", metric, err)
	}
	return domain.AggregateMetric(metric, records), nil
}

// Builder runs the full load-aggregate-derive transform.
type Builder struct {
	source    MetricSource
	allowlist domain.Allowlist
	constants domain.CapacityConstants
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewBuilder creates a Builder over src with the given allow-list and
// capacity constants.
func NewBuilder(src MetricSource, allow domain.Allowlist, caps domain.CapacityConstants, logger *slog.Logger, metrics *observability.Metrics) *Builder {
	return &Builder{
		source:    src,
		allowlist: allow,
		constants: caps,
		logger:    logger,
		metrics:   metrics,
	}
}

// Build loads the three metrics and builds the dataset. It returns either a
// complete dataset or an error, never a partial result.
func (b *Builder) Build(ctx context.Context) (*domain.Dataset, error) {
	start := time.Now()

	series := make(map[domain.Metric]domain.MetricSeries, len(domain.Metrics))
	for _, m := range domain.Metrics {
		ms, err := LoadMetric(ctx, b.source, m)
		if err != nil {
			return nil, b.fail(err)
		}
		series[m] = ms
	}

	ds, err := domain.BuildDataset(series, b.allowlist, b.constants)
	if err != nil {
		return nil, b.fail(fmt.Errorf("build dataset: %w", err))
	}

	b.metrics.BuildsTotal.WithLabelValues("success").Inc()
	b.metrics.BuildDuration.Observe(time.Since(start).Seconds())
	b.logger.Info("dataset built",
		"places", len(ds.Places),
		"dates", len(ds.Dates),
		"duration", time.Since(start),
	)
	return ds, nil
}

func (b *Builder) fail(err error) error {
	b.metrics.BuildsTotal.WithLabelValues("error").Inc()
	return err
}
