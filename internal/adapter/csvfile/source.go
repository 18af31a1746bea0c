// Package csvfile reads JHU time-series CSV files from a local directory.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/covid-capacity-etl/internal/domain"
	"github.com/couchcryptid/covid-capacity-etl/internal/observability"
)

var (
	subregionColumns  = []string{"Province/State", "Province_State"}
	placeColumns      = []string{"Country/Region", "Country_Region"}
	coordinateColumns = []string{"Lat", "Long", "Long_"}

	// Identity columns of the per-county U.S. exports that carry no counts.
	ignoredColumns = []string{"UID", "iso2", "iso3", "code3", "FIPS", "Admin2", "Combined_Key", "Population"}
)

// Source reads metric files from a directory.
// It implements pipeline.MetricSource.
type Source struct {
	dir     string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewSource creates a Source rooted at dir.
func NewSource(dir string, logger *slog.Logger, metrics *observability.Metrics) *Source {
	return &Source{dir: dir, logger: logger, metrics: metrics}
}

// Dir returns the directory the source reads from.
func (s *Source) Dir() string { return s.dir }

// MatchFiles returns the CSV files whose base name contains the metric label,
// compared case-insensitively, sorted by name.
func (s *Source) MatchFiles(metric domain.Metric) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &domain.DataSourceError{Metric: metric, Dir: s.dir, Err: err}
	}
	label := strings.ToLower(metric.Label())
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if filepath.Ext(name) == ".csv" && strings.Contains(name, label) {
			files = append(files, filepath.Join(s.dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, &domain.DataSourceError{Metric: metric, Dir: s.dir}
	}
	sort.Strings(files)
	return files, nil
}

// ReadMetric reads and concatenates every file for metric. Rows are not
// deduplicated across files.
func (s *Source) ReadMetric(ctx context.Context, metric domain.Metric) ([]domain.RawDailyRecord, error) {
	files, err := s.MatchFiles(metric)
	if err != nil {
		return nil, err
	}

	var records []domain.RawDailyRecord
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := readFile(path)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("read metric file", "metric", metric, "file", filepath.Base(path), "rows", len(recs))
		records = append(records, recs...)
	}
	s.metrics.RecordsRead.WithLabelValues(string(metric)).Add(float64(len(records)))
	return records, nil
}

func readFile(path string) ([]domain.RawDailyRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return parseCSV(f, filepath.Base(path))
}

// layout locates the columns of one file.
type layout struct {
	subregion int
	place     int
	dates     []dateColumn
}

type dateColumn struct {
	index int
	date  time.Time
}

func parseCSV(r io.Reader, source string) ([]domain.RawDailyRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &domain.MalformedRecordError{Source: source, Line: 1, Err: errors.New("missing header")}
		}
		return nil, &domain.MalformedRecordError{Source: source, Line: 1, Err: err}
	}

	lay, err := parseHeader(header, source)
	if err != nil {
		return nil, err
	}

	var records []domain.RawDailyRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			line := 0
			if errors.As(err, &perr) {
				line = perr.Line
			}
			return nil, &domain.MalformedRecordError{Source: source, Line: line, Err: err}
		}
		line, _ := reader.FieldPos(0)

		rec := domain.RawDailyRecord{
			Subregion: row[lay.subregion],
			Place:     row[lay.place],
			Counts:    make([]domain.DailyCount, 0, len(lay.dates)),
			Source:    source,
			Line:      line,
		}
		for _, col := range lay.dates {
			n, err := domain.ParseCount(row[col.index])
			if err != nil {
				return nil, &domain.MalformedRecordError{
					Source: source,
					Line:   line,
					Column: header[col.index],
					Value:  row[col.index],
					Err:    err,
				}
			}
			rec.Counts = append(rec.Counts, domain.DailyCount{Date: col.date, Count: n})
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseHeader(header []string, source string) (layout, error) {
	lay := layout{subregion: -1, place: -1}
	for i, raw := range header {
		name := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
		switch {
		case slices.Contains(subregionColumns, name):
			lay.subregion = i
		case slices.Contains(placeColumns, name):
			lay.place = i
		case slices.Contains(coordinateColumns, name), slices.Contains(ignoredColumns, name):
			continue
		default:
			d, err := domain.ParseDateHeader(name)
			if err != nil {
				return layout{}, &domain.MalformedRecordError{Source: source, Line: 1, Column: name, Err: err}
			}
			lay.dates = append(lay.dates, dateColumn{index: i, date: d})
		}
	}
	if lay.subregion < 0 {
		return layout{}, &domain.MalformedRecordError{Source: source, Line: 1, Err: errors.New("missing subregion column")}
	}
	if lay.place < 0 {
		return layout{}, &domain.MalformedRecordError{Source: source, Line: 1, Err: errors.New("missing place column")}
	}
	return lay, nil
}

