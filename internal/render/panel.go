// Package render draws dataset panels: one chart per field, overlaying every
// place on a shared date axis, on a linear or base-10 logarithmic y-axis.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/couchcryptid/covid-capacity-etl/internal/domain"
)

// Scale selects the y-axis transform of a panel.
type Scale string

const (
	ScaleLinear Scale = "linear"
	ScaleLog    Scale = "log"
)

// Scales lists every scale in rendering order.
var Scales = []Scale{ScaleLinear, ScaleLog}

const (
	defaultWidth  = 1024
	defaultHeight = 576
)

var (
	ErrUnknownScale = errors.New("unknown scale")

	// ErrTooFewDates is returned when the window holds fewer than two dates.
	ErrTooFewDates = errors.New("panel needs at least two dates")

	// ErrNothingToPlot is returned when no place has two drawable values in
	// the window: reported dates, and positive ones on a log axis.
	ErrNothingToPlot = errors.New("no place has two values to plot")
)

// ParseScale validates a scale name. An empty name selects ScaleLinear.
func ParseScale(s string) (Scale, error) {
	switch Scale(s) {
	case "", ScaleLinear:
		return ScaleLinear, nil
	case ScaleLog:
		return ScaleLog, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownScale, s)
	}
}

// Options describes one panel.
type Options struct {
	Field domain.Field
	Scale Scale

	// From and To bound the date window inclusively; a zero bound is open.
	From time.Time
	To   time.Time

	Width  int
	Height int
}

var fieldTitles = map[domain.Field]string{
	domain.FieldConfirmed:     "Confirmed cases",
	domain.FieldDeaths:        "Deaths",
	domain.FieldRecovered:     "Recovered",
	domain.FieldActive:        "Active cases",
	domain.FieldBeds:          "Hospital beds",
	domain.FieldActivePerBeds: "Severe active cases per COVID bed",
}

// Panel builds the chart for opts without rendering it.
func Panel(ds *domain.Dataset, opts Options) (*chart.Chart, error) {
	if _, err := domain.ParseField(string(opts.Field)); err != nil {
		return nil, err
	}
	scale, err := ParseScale(string(opts.Scale))
	if err != nil {
		return nil, err
	}
	opts.Scale = scale

	if len(ds.DatesIn(opts.From, opts.To)) < 2 {
		return nil, ErrTooFewDates
	}

	var (
		series     []chart.Series
		minY, maxY = math.Inf(1), math.Inf(-1)
	)
	for _, p := range ds.Places {
		points, err := ds.Query(opts.Field, p.Name, opts.From, opts.To)
		if err != nil {
			return nil, err
		}

		xs := make([]time.Time, 0, len(points))
		ys := make([]float64, 0, len(points))
		for _, pt := range points {
			v := pt.Value
			if opts.Scale == ScaleLog {
				if v <= 0 {
					continue
				}
				v = math.Log10(v)
			}
			xs = append(xs, pt.Date)
			ys = append(ys, v)
			minY = math.Min(minY, v)
			maxY = math.Max(maxY, v)
		}
		if len(xs) < 2 {
			continue
		}
		series = append(series, chart.TimeSeries{
			Name:    p.Name,
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeWidth: 2},
		})
	}
	if len(series) == 0 {
		return nil, ErrNothingToPlot
	}

	yAxis := chart.YAxis{Name: string(opts.Field)}
	if opts.Scale == ScaleLog {
		lo, hi := math.Floor(minY), math.Ceil(maxY)
		if hi <= lo {
			hi = lo + 1
		}
		yAxis.Range = &chart.ContinuousRange{Min: lo, Max: hi}
		yAxis.Ticks = powerTicks(int(lo), int(hi))
	} else {
		lo := math.Min(0, minY)
		hi := maxY
		if hi <= lo {
			hi = lo + 1
		}
		yAxis.Range = &chart.ContinuousRange{Min: lo, Max: hi}
	}

	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}

	ch := &chart.Chart{
		Title:      fmt.Sprintf("%s (%s)", fieldTitles[opts.Field], opts.Scale),
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 28}},
		XAxis:      chart.XAxis{Name: "date", ValueFormatter: dateFormatter},
		YAxis:      yAxis,
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(ch)}
	return ch, nil
}

// RenderPNG draws the panel described by opts to w as a PNG image.
func RenderPNG(w io.Writer, ds *domain.Dataset, opts Options) error {
	ch, err := Panel(ds, opts)
	if err != nil {
		return err
	}
	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render %s panel: %w", opts.Field, err)
	}
	return nil
}

// powerTicks labels every integer exponent in [lo, hi] with its power of ten.
func powerTicks(lo, hi int) []chart.Tick {
	ticks := make([]chart.Tick, 0, hi-lo+1)
	for k := lo; k <= hi; k++ {
		ticks = append(ticks, chart.Tick{
			Value: float64(k),
			Label: strconv.FormatFloat(math.Pow(10, float64(k)), 'g', -1, 64),
		})
	}
	return ticks
}

func dateFormatter(v any) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	return time.Unix(0, int64(f)).UTC().Format(domain.DateLayout)
}
