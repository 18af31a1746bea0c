package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for dataset builds.
type Metrics struct {
	RecordsRead *prometheus.CounterVec // labels: metric={confirmed,deaths,recovered}

	BuildsTotal       *prometheus.CounterVec // labels: outcome={success,error}
	BuildDuration     prometheus.Histogram
	RefreshCoalesced  prometheus.Counter
	DatasetPlaces     prometheus.Gauge
	DatasetDates      prometheus.Gauge
	LastBuildUnixTime prometheus.Gauge

	// Kafka publishing metrics.
	PublishedMessages prometheus.Counter
	PublishErrors     prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsRead,
		m.BuildsTotal,
		m.BuildDuration,
		m.RefreshCoalesced,
		m.DatasetPlaces,
		m.DatasetDates,
		m.LastBuildUnixTime,
		m.PublishedMessages,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// NewUnregisteredMetrics is for one-shot CLIs that build a dataset without
// serving /metrics.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "records_read_total",
			Help:      "CSV rows read from the data directory, by metric.",
		}, []string{"metric"}),
		BuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "builds_total",
			Help:      "Dataset builds by outcome.",
		}, []string{"outcome"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "covid_etl",
			Name:      "build_duration_seconds",
			Help:      "Duration of a complete load-aggregate-derive build.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		RefreshCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "refresh_coalesced_total",
			Help:      "Refresh requests that joined a build already in progress.",
		}),
		DatasetPlaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "covid_etl",
			Name:      "dataset_places",
			Help:      "Places in the current dataset.",
		}),
		DatasetDates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "covid_etl",
			Name:      "dataset_dates",
			Help:      "Dates in the current dataset.",
		}),
		LastBuildUnixTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "covid_etl",
			Name:      "last_build_timestamp_seconds",
			Help:      "Unix time of the last successful build.",
		}),
		PublishedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "published_messages_total",
			Help:      "Place messages written to the dataset topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "publish_errors_total",
			Help:      "Failed dataset publications.",
		}),
	}
}
