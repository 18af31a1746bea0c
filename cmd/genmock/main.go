// Command genmock writes synthetic JHU time-series CSV files for every place
// in a places file. The counts follow a seeded logistic outbreak curve, so the
// same flags always produce byte-identical fixtures that the ETL can build.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -places configs/places.yaml \
//	  -out data/mock \
//	  -start 2020-01-22 -days 90 -seed 42
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/covid-capacity-etl/internal/config"
	"github.com/couchcryptid/covid-capacity-etl/internal/domain"
)

const (
	defaultPopulation = 1_000_000
	headerDateLayout  = "1/2/06"
	statesCountry     = "US"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	placesFile := flag.String("places", "configs/places.yaml", "places file listing the countries and states to generate")
	outDir := flag.String("out", "", "output directory for the generated CSV files")
	start := flag.String("start", "2020-01-22", "first date column (YYYY-MM-DD)")
	days := flag.Int("days", 90, "number of date columns")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	startDate, err := time.Parse(domain.DateLayout, *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	if *days < 2 {
		return fmt.Errorf("invalid -days: need at least 2, got %d", *days)
	}

	places, err := config.LoadPlaces(*placesFile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	opts := options{start: startDate, days: *days, seed: *seed}
	files, err := writeFixtures(*outDir, places, opts)
	if err != nil {
		return err
	}
	for _, f := range files {
		log.Printf("wrote %s", f)
	}
	log.Printf("%d places, %d days from %s", len(places.Countries)+len(places.States), *days, *start)
	return nil
}

type options struct {
	start time.Time
	days  int
	seed  uint64
}

// row is one generated place: its display names and outbreak curve.
type row struct {
	subregion string
	place     string
	lat, long float64
	curve     curve
}

// curve is a logistic cumulative case curve. Deaths and recoveries trail
// confirmed cases by fixed lags, which keeps every series non-decreasing and
// active cases non-negative.
type curve struct {
	peak         float64
	rate         float64
	midpoint     float64
	deathRate    float64
	recoveryRate float64
}

const (
	deathLag    = 7
	recoveryLag = 14
)

func (c curve) confirmed(day int) int64 {
	return int64(c.peak / (1 + math.Exp(-c.rate*(float64(day)-c.midpoint))))
}

func (c curve) count(m domain.Metric, day int) int64 {
	switch m {
	case domain.MetricDeaths:
		return int64(c.deathRate * float64(c.confirmed(day-deathLag)))
	case domain.MetricRecovered:
		return int64(c.recoveryRate * float64(c.confirmed(day-recoveryLag)))
	default:
		return c.confirmed(day)
	}
}

// writeFixtures writes one file per metric into dir and returns their paths.
func writeFixtures(dir string, places *config.Places, opts options) ([]string, error) {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	caps := places.Constants()

	var rows []row
	add := func(name, subregion, place string) {
		pop := float64(defaultPopulation)
		if c, ok := caps[domain.NormalizeName(name)]; ok {
			pop = float64(c.Population)
		}
		rows = append(rows, row{
			subregion: subregion,
			place:     place,
			lat:       math.Round((rng.Float64()*120-60)*1e4) / 1e4,
			long:      math.Round((rng.Float64()*360-180)*1e4) / 1e4,
			curve: curve{
				peak:         pop * (0.002 + rng.Float64()*0.008),
				rate:         0.1 + rng.Float64()*0.15,
				midpoint:     float64(opts.days)*0.4 + rng.Float64()*float64(opts.days)*0.4,
				deathRate:    0.02 + rng.Float64()*0.08,
				recoveryRate: 0.3 + rng.Float64()*0.4,
			},
		})
	}
	for _, c := range places.Countries {
		add(c, "", displayName(c))
	}
	for _, s := range places.States {
		add(s, displayName(s), statesCountry)
	}

	header := []string{"Province/State", "Country/Region", "Lat", "Long"}
	for d := range opts.days {
		header = append(header, opts.start.AddDate(0, 0, d).Format(headerDateLayout))
	}

	paths := make([]string, 0, len(domain.Metrics))
	for _, m := range domain.Metrics {
		path := filepath.Join(dir, fmt.Sprintf("time_series_19-covid-%s.csv", m.Label()))
		if err := writeMetric(path, header, rows, m, opts.days); err != nil {
			return nil, fmt.Errorf("write %s: %w", m, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeMetric(path string, header []string, rows []row, m domain.Metric, days int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, r.subregion, r.place,
			strconv.FormatFloat(r.lat, 'f', -1, 64),
			strconv.FormatFloat(r.long, 'f', -1, 64))
		for d := range days {
			rec = append(rec, strconv.FormatInt(r.curve.count(m, d), 10))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// displayName turns a normalized name back into the form JHU publishes:
// "korea,_south" becomes "Korea, South" and "us" becomes "US".
func displayName(normalized string) string {
	if len(normalized) <= 2 {
		return strings.ToUpper(normalized)
	}
	words := strings.Split(normalized, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
