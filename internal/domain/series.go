package domain

import (
	"fmt"
	"time"
)

// Metric selects one of the three cumulative count series published by JHU.
type Metric string

const (
	MetricConfirmed Metric = "confirmed"
	MetricDeaths    Metric = "deaths"
	MetricRecovered Metric = "recovered"
)

// Metrics lists every raw metric in load order.
var Metrics = []Metric{MetricConfirmed, MetricDeaths, MetricRecovered}

// Label returns the capitalized token that JHU file names carry for the metric.
func (m Metric) Label() string {
	switch m {
	case MetricConfirmed:
		return "Confirmed"
	case MetricDeaths:
		return "Deaths"
	case MetricRecovered:
		return "Recovered"
	default:
		return ""
	}
}

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricConfirmed, MetricDeaths, MetricRecovered:
		return m, nil
	default:
		return "", fmt.Errorf("unknown metric %q", s)
	}
}

// DailyCount is one date cell of a raw CSV row.
type DailyCount struct {
	Date  time.Time
	Count int64
}

// RawDailyRecord is one CSV row: a subregion reported under a place, with
// one cumulative count per date column. Names are kept as read.
type RawDailyRecord struct {
	Subregion string
	Place     string
	Counts    []DailyCount

	// Source and Line locate the row for diagnostics.
	Source string
	Line   int
}

// Observation is a cumulative count on a date.
type Observation struct {
	Date  time.Time
	Count int64
}

// NormalizedSeries maps a normalized name to its observations, sorted by
// ascending date with no duplicate dates.
type NormalizedSeries map[string][]Observation

// MetricSeries holds one metric aggregated two ways: by place (country) and
// by subregion name, regardless of the place it was reported under.
type MetricSeries struct {
	Metric      Metric
	ByPlace     NormalizedSeries
	BySubregion NormalizedSeries
}
