// Command validate checks a directory of JHU time-series CSV files against a
// places file before it is served: every metric parses, every allow-listed
// place is present in every metric, cumulative counts never decrease, and the
// full dataset builds with non-negative active cases.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -data-dir data/csse_covid_19_time_series \
//	  -places configs/places.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/couchcryptid/covid-capacity-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/covid-capacity-etl/internal/config"
	"github.com/couchcryptid/covid-capacity-etl/internal/domain"
	"github.com/couchcryptid/covid-capacity-etl/internal/observability"
	"github.com/couchcryptid/covid-capacity-etl/internal/pipeline"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dataDir := flag.String("data-dir", "data/csse_covid_19_time_series", "directory of JHU time-series CSV files")
	placesFile := flag.String("places", "configs/places.yaml", "places file with the allow-list and capacity constants")
	flag.Parse()

	if code := run(os.Stdout, *dataDir, *placesFile); code != 0 {
		os.Exit(code)
	}
}

func run(out io.Writer, dataDir, placesFile string) int {
	fmt.Fprintln(out, "=== COVID Time-Series Validation ===")
	fmt.Fprintln(out)

	places, err := config.LoadPlaces(placesFile)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load places: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewUnregisteredMetrics()
	source := csvfile.NewSource(dataDir, logger, metrics)
	allow := places.Allowlist()
	caps := places.Constants()

	loadPhase, series, rows := validateMetricFiles(source)
	phases := []*phase{
		loadPhase,
		validateCoverage(series, allow),
		validateMonotonic(series, allow),
		validateConstants(allow, caps),
	}
	if loadPhase.passed() {
		phases = append(phases, validateBuild(source, allow, caps, logger, metrics))
	}

	// ── Report results ──
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-46s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Rows: %d confirmed, %d deaths, %d recovered\n",
		rows[domain.MetricConfirmed], rows[domain.MetricDeaths], rows[domain.MetricRecovered])

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Phases ──

func validateMetricFiles(src *csvfile.Source) (*phase, map[domain.Metric]domain.MetricSeries, map[domain.Metric]int) {
	p := &phase{name: "Phase 1: Metric files (parse)"}
	series := make(map[domain.Metric]domain.MetricSeries, len(domain.Metrics))
	rows := make(map[domain.Metric]int, len(domain.Metrics))

	for _, m := range domain.Metrics {
		records, err := src.ReadMetric(context.Background(), m)
		if err != nil {
			p.errorf("%s: %v", m, err)
			continue
		}
		rows[m] = len(records)
		series[m] = domain.AggregateMetric(m, records)
	}
	return p, series, rows
}

func validateCoverage(series map[domain.Metric]domain.MetricSeries, allow domain.Allowlist) *phase {
	p := &phase{name: "Phase 2: Place coverage (allow-list)"}
	for _, place := range allow.Places() {
		for _, m := range domain.Metrics {
			ms, ok := series[m]
			if !ok {
				continue
			}
			if _, ok := lookup(ms, place); !ok {
				p.errorf("%s %q: no %s rows", place.Level, place.Name, m)
			}
		}
	}
	return p
}

func validateMonotonic(series map[domain.Metric]domain.MetricSeries, allow domain.Allowlist) *phase {
	p := &phase{name: "Phase 3: Cumulative counts (non-decreasing)"}
	for _, place := range allow.Places() {
		for _, m := range domain.Metrics {
			obs, ok := lookup(series[m], place)
			if !ok {
				continue
			}
			for i := 1; i < len(obs); i++ {
				if obs[i].Count < obs[i-1].Count {
					p.errorf("%s %s: %d on %s after %d on %s", place.Name, m,
						obs[i].Count, obs[i].Date.Format(domain.DateLayout),
						obs[i-1].Count, obs[i-1].Date.Format(domain.DateLayout))
				}
			}
		}
	}
	return p
}

func validateConstants(allow domain.Allowlist, caps domain.CapacityConstants) *phase {
	p := &phase{name: "Phase 4: Capacity constants (complete)"}
	for _, place := range allow.Places() {
		if _, ok := caps[place.Name]; !ok {
			p.errorf("%q has no capacity entry", place.Name)
		}
	}
	return p
}

func validateBuild(src pipeline.MetricSource, allow domain.Allowlist, caps domain.CapacityConstants, logger *slog.Logger, metrics *observability.Metrics) *phase {
	p := &phase{name: "Phase 5: Dataset build (aligned, active >= 0)"}
	ds, err := pipeline.NewBuilder(src, allow, caps, logger, metrics).Build(context.Background())
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	for _, place := range ds.Places {
		s, _ := ds.Series(place.Name)
		for i, a := range s.Active {
			if s.Present[i] && a < 0 {
				p.errorf("%s: active %d on %s", place.Name, a, ds.Dates[i].Format(domain.DateLayout))
			}
		}
	}
	return p
}

func lookup(ms domain.MetricSeries, place domain.Place) ([]domain.Observation, bool) {
	src := ms.ByPlace
	if place.Level == domain.LevelState {
		src = ms.BySubregion
	}
	obs, ok := src[place.Name]
	return obs, ok
}
