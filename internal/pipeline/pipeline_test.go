package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/covid-capacity-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/covid-capacity-etl/internal/domain"
	"github.com/couchcryptid/covid-capacity-etl/internal/observability"
	"github.com/couchcryptid/covid-capacity-etl/internal/pipeline"
)

const (
	confirmedA = "Province/State,Country/Region,Lat,Long,3/1/20,3/2/20\n,X,41.9,12.5,60,70\n"
	confirmedB = "Province/State,Country/Region,Lat,Long,3/1/20,3/2/20\n,X,41.9,12.5,40,50\n"
	deathsCSV  = "Province/State,Country/Region,Lat,Long,3/1/20,3/2/20\n,X,41.9,12.5,10,12\n"
	recovCSV   = "Province/State,Country/Region,Lat,Long,3/1/20,3/2/20\n,X,41.9,12.5,20,25\n"
)

var (
	march1 = time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)
	march2 = time.Date(2020, time.March, 2, 0, 0, 0, 0, time.UTC)
)

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

// exampleDir writes the worked example for place x, with confirmed counts
// split over two snapshot files.
func exampleDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "time_series_19-covid-Confirmed.csv", confirmedA)
	writeFile(t, dir, "time_series_19-covid-Confirmed_archive.csv", confirmedB)
	writeFile(t, dir, "time_series_19-covid-Deaths.csv", deathsCSV)
	writeFile(t, dir, "time_series_19-covid-Recovered.csv", recovCSV)
	return dir
}

func exampleAllowlist() domain.Allowlist {
	return domain.Allowlist{Countries: []string{"x"}}
}

func exampleConstants() domain.CapacityConstants {
	return domain.CapacityConstants{"x": {Population: 1_000_000, BedsPer1000: 2.0}}
}

func newBuilder(dir string, metrics *observability.Metrics) *pipeline.Builder {
	src := csvfile.NewSource(dir, discardLogger(), metrics)
	return pipeline.NewBuilder(src, exampleAllowlist(), exampleConstants(), discardLogger(), metrics)
}

// --- tests ---

func TestLoadMetric_SumsSnapshotFiles(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	src := csvfile.NewSource(exampleDir(t), discardLogger(), metrics)

	ms, err := pipeline.LoadMetric(context.Background(), src, domain.MetricConfirmed)
	require.NoError(t, err)

	assert.Equal(t, []domain.Observation{{Date: march1, Count: 100}, {Date: march2, Count: 120}}, ms.ByPlace["x"])
	assert.Equal(t, []domain.Observation{{Date: march1, Count: 100}, {Date: march2, Count: 120}}, ms.BySubregion["none"])
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.RecordsRead.WithLabelValues("confirmed")), 0)
}

func TestLoadMetric_NoFiles(t *testing.T) {
	src := csvfile.NewSource(t.TempDir(), discardLogger(), observability.NewMetricsForTesting())

	_, err := pipeline.LoadMetric(context.Background(), src, domain.MetricDeaths)

	var dse *domain.DataSourceError
	require.ErrorAs(t, err, &dse)
	assert.Equal(t, domain.MetricDeaths, dse.Metric)
}

func TestBuilder_Build_WorkedExample(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	b := newBuilder(exampleDir(t), metrics)

	ds, err := b.Build(context.Background())
	require.NoError(t, err)

	x, ok := ds.Series("x")
	require.True(t, ok)
	assert.Equal(t, []int64{100, 120}, x.Confirmed)
	assert.Equal(t, []int64{70, 83}, x.Active)
	assert.InDelta(t, 2000.0, x.Beds, 1e-9)
	assert.InDelta(t, 0.014, x.ActivePerBeds[0], 1e-9)
	assert.InDelta(t, 0.0166, x.ActivePerBeds[1], 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.BuildsTotal.WithLabelValues("success")), 0)
}

func TestBuilder_Build_Deterministic(t *testing.T) {
	b := newBuilder(exampleDir(t), observability.NewMetricsForTesting())

	first, err := b.Build(context.Background())
	require.NoError(t, err)
	second, err := b.Build(context.Background())
	require.NoError(t, err)

	if diff := cmp.Diff(first, second, cmp.AllowUnexported(domain.Dataset{})); diff != "" {
		t.Fatalf("rebuild mismatch (-first +second):\n%s", diff)
	}
}

func TestBuilder_Build_MissingMetricFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "time_series_19-covid-Confirmed.csv", confirmedA)
	writeFile(t, dir, "time_series_19-covid-Deaths.csv", deathsCSV)
	metrics := observability.NewMetricsForTesting()

	ds, err := newBuilder(dir, metrics).Build(context.Background())

	assert.Nil(t, ds)
	var dse *domain.DataSourceError
	require.ErrorAs(t, err, &dse)
	assert.Equal(t, domain.MetricRecovered, dse.Metric)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.BuildsTotal.WithLabelValues("error")), 0)
}

func TestBuilder_Build_MissingConstants(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	src := csvfile.NewSource(exampleDir(t), discardLogger(), metrics)
	b := pipeline.NewBuilder(src, exampleAllowlist(), domain.CapacityConstants{}, discardLogger(), metrics)

	ds, err := b.Build(context.Background())

	assert.Nil(t, ds)
	var mce *domain.MissingConstantsError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, []string{"x"}, mce.Places)
}

func TestBuilder_Build_MalformedCount(t *testing.T) {
	dir := exampleDir(t)
	writeFile(t, dir, "time_series_19-covid-Deaths.csv",
		"Province/State,Country/Region,Lat,Long,3/1/20,3/2/20\n,X,41.9,12.5,10,-3\n")

	_, err := newBuilder(dir, observability.NewMetricsForTesting()).Build(context.Background())

	var mre *domain.MalformedRecordError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, 2, mre.Line)
	assert.Equal(t, "3/2/20", mre.Column)
}

func TestBuilder_Build_Misaligned(t *testing.T) {
	dir := exampleDir(t)
	writeFile(t, dir, "time_series_19-covid-Recovered.csv",
		"Province/State,Country/Region,Lat,Long,3/1/20\n,X,41.9,12.5,20\n")

	_, err := newBuilder(dir, observability.NewMetricsForTesting()).Build(context.Background())

	var ae *domain.AlignmentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, domain.MetricRecovered, ae.Metric)
}

func TestBuilder_Build_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newBuilder(exampleDir(t), observability.NewMetricsForTesting()).Build(ctx)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
