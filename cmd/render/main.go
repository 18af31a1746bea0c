// Command render builds the dataset once and writes one PNG panel per field
// and scale, named <field>_<scale>.png, to an output directory.
//
// Usage:
//
//	go run ./cmd/render \
//	  -data-dir data/csse_covid_19_time_series \
//	  -places configs/places.yaml \
//	  -out panels -from 2020-03-01
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/covid-capacity-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/covid-capacity-etl/internal/config"
	"github.com/couchcryptid/covid-capacity-etl/internal/domain"
	"github.com/couchcryptid/covid-capacity-etl/internal/observability"
	"github.com/couchcryptid/covid-capacity-etl/internal/pipeline"
	"github.com/couchcryptid/covid-capacity-etl/internal/render"
)

type options struct {
	dataDir    string
	placesFile string
	outDir     string
	fields     []domain.Field
	from, to   time.Time
	width      int
	height     int
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		logger.Error("invalid arguments", "error", err)
		os.Exit(2)
	}

	if err := run(context.Background(), opts, logger); err != nil {
		logger.Error("render failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	dataDir := fs.String("data-dir", "data/csse_covid_19_time_series", "directory of JHU time-series CSV files")
	placesFile := fs.String("places", "configs/places.yaml", "places file with the allow-list and capacity constants")
	outDir := fs.String("out", "panels", "output directory for PNG panels")
	fields := fs.String("fields", "", "comma-separated fields to render (default all)")
	from := fs.String("from", "", "first date to plot (YYYY-MM-DD)")
	to := fs.String("to", "", "last date to plot (YYYY-MM-DD)")
	width := fs.Int("width", 1024, "panel width in pixels")
	height := fs.Int("height", 576, "panel height in pixels")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{
		dataDir:    *dataDir,
		placesFile: *placesFile,
		outDir:     *outDir,
		fields:     domain.Fields,
		width:      *width,
		height:     *height,
	}
	if *fields != "" {
		opts.fields = nil
		for _, name := range strings.Split(*fields, ",") {
			f, err := domain.ParseField(strings.TrimSpace(name))
			if err != nil {
				return options{}, err
			}
			opts.fields = append(opts.fields, f)
		}
	}

	var err error
	if opts.from, err = parseDate(*from); err != nil {
		return options{}, fmt.Errorf("invalid -from: %w", err)
	}
	if opts.to, err = parseDate(*to); err != nil {
		return options{}, fmt.Errorf("invalid -to: %w", err)
	}
	return opts, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(domain.DateLayout, s)
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	places, err := config.LoadPlaces(opts.placesFile)
	if err != nil {
		return err
	}

	metrics := observability.NewUnregisteredMetrics()
	source := csvfile.NewSource(opts.dataDir, logger, metrics)
	ds, err := pipeline.NewBuilder(source, places.Allowlist(), places.Constants(), logger, metrics).Build(ctx)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	for _, f := range opts.fields {
		for _, scale := range render.Scales {
			path := filepath.Join(opts.outDir, fmt.Sprintf("%s_%s.png", f, scale))
			if err := writePanel(path, ds, render.Options{
				Field:  f,
				Scale:  scale,
				From:   opts.from,
				To:     opts.to,
				Width:  opts.width,
				Height: opts.height,
			}); errors.Is(err, render.ErrNothingToPlot) {
				logger.Warn("panel skipped", "field", f, "scale", scale, "error", err)
				continue
			} else if err != nil {
				return err
			}
			logger.Info("panel written", "file", path)
		}
	}
	return nil
}

func writePanel(path string, ds *domain.Dataset, opts render.Options) error {
	var buf bytes.Buffer
	if err := render.RenderPNG(&buf, ds, opts); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write panel: %w", err)
	}
	return nil
}
