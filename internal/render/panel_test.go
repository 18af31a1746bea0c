package render

import (
	"bytes"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/couchcryptid/covid-capacity-etl/internal/domain"
)

var (
	day1 = time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2020, time.March, 2, 0, 0, 0, 0, time.UTC)
	day3 = time.Date(2020, time.March, 3, 0, 0, 0, 0, time.UTC)
)

// testDataset builds two countries over three days. Country "b" has no
// confirmed cases on the first day.
func testDataset(t *testing.T) *domain.Dataset {
	t.Helper()
	obs := func(a, b, c int64) []domain.Observation {
		return []domain.Observation{{Date: day1, Count: a}, {Date: day2, Count: b}, {Date: day3, Count: c}}
	}
	ds, err := domain.BuildDataset(
		map[domain.Metric]domain.MetricSeries{
			domain.MetricConfirmed: {ByPlace: domain.NormalizedSeries{"a": obs(10, 100, 1000), "b": obs(0, 5, 50)}},
			domain.MetricDeaths:    {ByPlace: domain.NormalizedSeries{"a": obs(0, 1, 10), "b": obs(0, 0, 1)}},
			domain.MetricRecovered: {ByPlace: domain.NormalizedSeries{"a": obs(0, 2, 20), "b": obs(0, 0, 2)}},
		},
		domain.Allowlist{Countries: []string{"a", "b"}},
		domain.CapacityConstants{
			"a": {Population: 1_000_000, BedsPer1000: 2},
			"b": {Population: 2_000_000, BedsPer1000: 3},
		},
	)
	require.NoError(t, err)
	return ds
}

func TestParseScale(t *testing.T) {
	s, err := ParseScale("")
	require.NoError(t, err)
	assert.Equal(t, ScaleLinear, s)

	s, err = ParseScale("log")
	require.NoError(t, err)
	assert.Equal(t, ScaleLog, s)

	_, err = ParseScale("sqrt")
	assert.ErrorIs(t, err, ErrUnknownScale)
}

func TestPanel_LinearOverlaysEveryPlace(t *testing.T) {
	ch, err := Panel(testDataset(t), Options{Field: domain.FieldConfirmed, Scale: ScaleLinear})
	require.NoError(t, err)

	require.Len(t, ch.Series, 2)
	a := ch.Series[0].(chart.TimeSeries)
	b := ch.Series[1].(chart.TimeSeries)
	assert.Equal(t, "a", a.Name)
	assert.Equal(t, []float64{10, 100, 1000}, a.YValues)
	assert.Equal(t, []float64{0, 5, 50}, b.YValues)

	rng := ch.YAxis.Range.(*chart.ContinuousRange)
	assert.InDelta(t, 0, rng.Min, 0)
	assert.InDelta(t, 1000, rng.Max, 0)
}

func TestPanel_LogDropsNonPositive(t *testing.T) {
	ch, err := Panel(testDataset(t), Options{Field: domain.FieldConfirmed, Scale: ScaleLog})
	require.NoError(t, err)

	require.Len(t, ch.Series, 2)
	a := ch.Series[0].(chart.TimeSeries)
	b := ch.Series[1].(chart.TimeSeries)
	assert.InDeltaSlice(t, []float64{1, 2, 3}, a.YValues, 1e-12)
	assert.Equal(t, []time.Time{day2, day3}, b.XValues)
	assert.InDeltaSlice(t, []float64{math.Log10(5), math.Log10(50)}, b.YValues, 1e-12)

	require.Len(t, ch.YAxis.Ticks, 4)
	assert.Equal(t, "1", ch.YAxis.Ticks[0].Label)
	assert.Equal(t, "1000", ch.YAxis.Ticks[3].Label)
}

func TestPanel_Window(t *testing.T) {
	ch, err := Panel(testDataset(t), Options{Field: domain.FieldActive, From: day2, To: day3})
	require.NoError(t, err)

	a := ch.Series[0].(chart.TimeSeries)
	assert.Equal(t, []time.Time{day2, day3}, a.XValues)
	assert.Equal(t, []float64{97, 970}, a.YValues)
}

func TestPanel_ConstantFieldGetsNonEmptyRange(t *testing.T) {
	ch, err := Panel(testDataset(t), Options{Field: domain.FieldBeds})
	require.NoError(t, err)

	rng := ch.YAxis.Range.(*chart.ContinuousRange)
	assert.Greater(t, rng.Max, rng.Min)
}

func TestPanel_Errors(t *testing.T) {
	ds := testDataset(t)

	_, err := Panel(ds, Options{Field: domain.FieldConfirmed, From: day3})
	assert.ErrorIs(t, err, ErrTooFewDates)

	_, err = Panel(ds, Options{Field: "hospitalized"})
	assert.ErrorIs(t, err, domain.ErrUnknownField)

	_, err = Panel(ds, Options{Field: domain.FieldConfirmed, Scale: "sqrt"})
	assert.ErrorIs(t, err, ErrUnknownScale)

	// Deaths for "b" are 0, 0, 1 and "a" has only two positive days, so "b"
	// drops out but "a" still plots.
	ch, err := Panel(ds, Options{Field: domain.FieldDeaths, Scale: ScaleLog})
	require.NoError(t, err)
	assert.Len(t, ch.Series, 1)

	_, err = Panel(ds, Options{Field: domain.FieldDeaths, Scale: ScaleLog, To: day2})
	assert.ErrorIs(t, err, ErrNothingToPlot)
}

func TestPanel_SkipsUnreportedDates(t *testing.T) {
	// "late" starts reporting on day2.
	late := func(b, c int64) []domain.Observation {
		return []domain.Observation{{Date: day2, Count: b}, {Date: day3, Count: c}}
	}
	full := func(a, b, c int64) []domain.Observation {
		return []domain.Observation{{Date: day1, Count: a}, {Date: day2, Count: b}, {Date: day3, Count: c}}
	}
	ds, err := domain.BuildDataset(
		map[domain.Metric]domain.MetricSeries{
			domain.MetricConfirmed: {ByPlace: domain.NormalizedSeries{"a": full(10, 100, 1000), "late": late(5, 50)}},
			domain.MetricDeaths:    {ByPlace: domain.NormalizedSeries{"a": full(0, 1, 10), "late": late(0, 1)}},
			domain.MetricRecovered: {ByPlace: domain.NormalizedSeries{"a": full(0, 2, 20), "late": late(0, 2)}},
		},
		domain.Allowlist{Countries: []string{"a", "late"}},
		domain.CapacityConstants{
			"a":    {Population: 1_000_000, BedsPer1000: 2},
			"late": {Population: 2_000_000, BedsPer1000: 3},
		},
	)
	require.NoError(t, err)

	ch, err := Panel(ds, Options{Field: domain.FieldConfirmed})
	require.NoError(t, err)
	require.Len(t, ch.Series, 2)
	lateSeries := ch.Series[1].(chart.TimeSeries)
	assert.Equal(t, []time.Time{day2, day3}, lateSeries.XValues)
	assert.Equal(t, []float64{5, 50}, lateSeries.YValues)

	// "late" has a single point in [day1, day2] and drops out.
	ch, err = Panel(ds, Options{Field: domain.FieldConfirmed, To: day2})
	require.NoError(t, err)
	assert.Len(t, ch.Series, 1)
}

func TestRenderPNG(t *testing.T) {
	ds := testDataset(t)

	for _, scale := range Scales {
		t.Run(string(scale), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, RenderPNG(&buf, ds, Options{
				Field:  domain.FieldActivePerBeds,
				Scale:  scale,
				Width:  640,
				Height: 360,
			}))

			cfg, err := png.DecodeConfig(&buf)
			require.NoError(t, err)
			assert.Equal(t, 640, cfg.Width)
			assert.Equal(t, 360, cfg.Height)
		})
	}
}

func TestDateFormatter(t *testing.T) {
	assert.Equal(t, "2020-03-02", dateFormatter(chart.TimeToFloat64(day2)))
	assert.Empty(t, dateFormatter("x"))
}
