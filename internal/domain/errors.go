package domain

import (
	"fmt"
	"strings"
	"time"
)

// DataSourceError reports that no input could be found for a metric.
type DataSourceError struct {
	Metric Metric
	Dir    string
	Err    error
}

func (e *DataSourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data source %q for %s: %v", e.Dir, e.Metric, e.Err)
	}
	return fmt.Sprintf("data source %q: no %s files found", e.Dir, e.Metric)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// MalformedRecordError reports a CSV header or cell that cannot be parsed.
// Line is 1-based; line 1 is the header row.
type MalformedRecordError struct {
	Source string
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	msg := fmt.Sprintf("malformed record %s:%d", e.Source, e.Line)
	if e.Column != "" {
		msg += fmt.Sprintf(" column %q", e.Column)
	}
	if e.Value != "" {
		msg += fmt.Sprintf(" value %q", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// AlignmentError reports a (place, date) cell that is missing from one metric
// while present in another. A zero Date means the place is absent from the
// metric altogether.
type AlignmentError struct {
	Place  string
	Date   time.Time
	Metric Metric
}

func (e *AlignmentError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("alignment: place %q has no %s series", e.Place, e.Metric)
	}
	return fmt.Sprintf("alignment: place %q missing %s on %s", e.Place, e.Metric, e.Date.Format(DateLayout))
}

// MissingConstantsError lists allow-listed places without a capacity entry.
type MissingConstantsError struct {
	Places []string
}

func (e *MissingConstantsError) Error() string {
	return "missing capacity constants for: " + strings.Join(e.Places, ", ")
}

// InvalidConstantsError lists allow-listed places whose population or
// beds_per_1000 is not positive.
type InvalidConstantsError struct {
	Places []string
}

func (e *InvalidConstantsError) Error() string {
	return "non-positive capacity constants for: " + strings.Join(e.Places, ", ")
}
