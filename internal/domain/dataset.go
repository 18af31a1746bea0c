package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Policy constants for the severe-case load estimate.
const (
	// SevereCaseFraction is the share of active infections assumed to need
	// a hospital bed.
	SevereCaseFraction = 0.12
	// COVIDBedShare is the share of bed capacity assumed available for
	// COVID patients.
	COVIDBedShare = 0.3
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrUnknownPlace = errors.New("unknown place")
)

// Field is a queryable value of the dataset.
type Field string

const (
	FieldConfirmed     Field = "confirmed"
	FieldDeaths        Field = "deaths"
	FieldRecovered     Field = "recovered"
	FieldActive        Field = "active"
	FieldBeds          Field = "beds"
	FieldActivePerBeds Field = "active_per_beds"
)

// Fields lists every field in presentation order.
var Fields = []Field{FieldConfirmed, FieldDeaths, FieldRecovered, FieldActive, FieldBeds, FieldActivePerBeds}

// ParseField validates a field name.
func ParseField(s string) (Field, error) {
	for _, f := range Fields {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownField, s)
}

// PlaceSeries holds every field for one place, index-aligned with
// Dataset.Dates. Present marks the dates the place is reported on; columns
// hold zero where it is false.
type PlaceSeries struct {
	Place         Place     `json:"place"`
	Population    int64     `json:"population"`
	BedsPer1000   float64   `json:"beds_per_1000"`
	Beds          float64   `json:"beds"`
	Present       []bool    `json:"present,omitempty"`
	Confirmed     []int64   `json:"confirmed"`
	Deaths        []int64   `json:"deaths"`
	Recovered     []int64   `json:"recovered"`
	Active        []int64   `json:"active"`
	ActivePerBeds []float64 `json:"active_per_beds"`
}

// Value returns field f at date index i.
func (s PlaceSeries) Value(f Field, i int) float64 {
	switch f {
	case FieldConfirmed:
		return float64(s.Confirmed[i])
	case FieldDeaths:
		return float64(s.Deaths[i])
	case FieldRecovered:
		return float64(s.Recovered[i])
	case FieldActive:
		return float64(s.Active[i])
	case FieldBeds:
		return s.Beds
	case FieldActivePerBeds:
		return s.ActivePerBeds[i]
	default:
		return 0
	}
}

// Compact returns the series restricted to its present dates, along with
// those dates. The result has no Present mask.
func (s PlaceSeries) Compact(dates []time.Time) (PlaceSeries, []time.Time) {
	n := 0
	for _, ok := range s.Present {
		if ok {
			n++
		}
	}
	out := s
	out.Present = nil
	out.Confirmed = make([]int64, 0, n)
	out.Deaths = make([]int64, 0, n)
	out.Recovered = make([]int64, 0, n)
	out.Active = make([]int64, 0, n)
	out.ActivePerBeds = make([]float64, 0, n)
	kept := make([]time.Time, 0, n)
	for i, d := range dates {
		if !s.Present[i] {
			continue
		}
		kept = append(kept, d)
		out.Confirmed = append(out.Confirmed, s.Confirmed[i])
		out.Deaths = append(out.Deaths, s.Deaths[i])
		out.Recovered = append(out.Recovered, s.Recovered[i])
		out.Active = append(out.Active, s.Active[i])
		out.ActivePerBeds = append(out.ActivePerBeds, s.ActivePerBeds[i])
	}
	return out, kept
}

// Point is one (date, value) pair returned by Query.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Dataset is the immutable (date, place) cube. It is built once by
// BuildDataset and never mutated; slices returned from it must not be
// modified by callers.
type Dataset struct {
	Dates  []time.Time
	Places []Place
	series map[string]PlaceSeries
}

// Series returns the columns for one place.
func (d *Dataset) Series(place string) (PlaceSeries, bool) {
	s, ok := d.series[place]
	return s, ok
}

// Query returns field values for place within [from, to]. A zero bound is
// open.
func (d *Dataset) Query(f Field, place string, from, to time.Time) ([]Point, error) {
	if _, err := ParseField(string(f)); err != nil {
		return nil, err
	}
	s, ok := d.series[place]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPlace, place)
	}
	lo, hi := d.window(from, to)
	points := make([]Point, 0, hi-lo)
	for i := lo; i < hi; i++ {
		if !s.Present[i] {
			continue
		}
		points = append(points, Point{Date: d.Dates[i], Value: s.Value(f, i)})
	}
	return points, nil
}

// DatesIn returns the dataset dates inside [from, to]. A zero bound is open.
func (d *Dataset) DatesIn(from, to time.Time) []time.Time {
	lo, hi := d.window(from, to)
	return d.Dates[lo:hi]
}

// window returns the half-open index range of Dates inside [from, to].
func (d *Dataset) window(from, to time.Time) (int, int) {
	lo := 0
	if !from.IsZero() {
		lo = sort.Search(len(d.Dates), func(i int) bool { return !d.Dates[i].Before(from) })
	}
	hi := len(d.Dates)
	if !to.IsZero() {
		hi = sort.Search(len(d.Dates), func(i int) bool { return d.Dates[i].After(to) })
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// BuildDataset selects the allow-listed places from the three metric series,
// aligns them on a common date index, and derives active cases, bed capacity
// and severe-case load. Construction is all-or-nothing.
//
// Each place must report the same dates in all three metrics. Dates a place
// is missing from every metric are gaps, not alignment faults.
func BuildDataset(series map[Metric]MetricSeries, allow Allowlist, caps CapacityConstants) (*Dataset, error) {
	if err := allow.Validate(); err != nil {
		return nil, err
	}
	places := allow.Places()

	if err := checkCapacity(places, caps); err != nil {
		return nil, err
	}

	// cells[metric][place][date]
	cells := make(map[Metric]map[string]map[time.Time]int64, len(Metrics))
	placeDates := make(map[string]map[time.Time]struct{}, len(places))
	dateSet := make(map[time.Time]struct{})
	for _, m := range Metrics {
		cells[m] = make(map[string]map[time.Time]int64, len(places))
		ms := series[m]
		for _, p := range places {
			obs, ok := selectPlace(ms, p)
			if !ok {
				return nil, &AlignmentError{Place: p.Name, Metric: m}
			}
			if placeDates[p.Name] == nil {
				placeDates[p.Name] = make(map[time.Time]struct{})
			}
			byDate := make(map[time.Time]int64, len(obs))
			for _, o := range obs {
				byDate[o.Date] = o.Count
				placeDates[p.Name][o.Date] = struct{}{}
				dateSet[o.Date] = struct{}{}
			}
			cells[m][p.Name] = byDate
		}
	}

	dates := sortedDates(dateSet)
	for _, p := range places {
		for _, d := range sortedDates(placeDates[p.Name]) {
			for _, m := range Metrics {
				if _, ok := cells[m][p.Name][d]; !ok {
					return nil, &AlignmentError{Place: p.Name, Date: d, Metric: m}
				}
			}
		}
	}

	ds := &Dataset{
		Dates:  dates,
		Places: places,
		series: make(map[string]PlaceSeries, len(places)),
	}
	for _, p := range places {
		present := make([]bool, len(dates))
		for i, d := range dates {
			_, present[i] = placeDates[p.Name][d]
		}
		columns := make(map[Metric][]int64, len(Metrics))
		for _, m := range Metrics {
			col := make([]int64, len(dates))
			for i, d := range dates {
				col[i] = cells[m][p.Name][d]
			}
			columns[m] = col
		}
		ds.series[p.Name] = derive(p, caps[p.Name], present, columns)
	}
	return ds, nil
}

func sortedDates(set map[time.Time]struct{}) []time.Time {
	dates := make([]time.Time, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func derive(p Place, c Capacity, present []bool, columns map[Metric][]int64) PlaceSeries {
	confirmed := columns[MetricConfirmed]
	deaths := columns[MetricDeaths]
	recovered := columns[MetricRecovered]

	beds := c.Beds()
	active := make([]int64, len(confirmed))
	perBeds := make([]float64, len(confirmed))
	for i := range confirmed {
		if !present[i] {
			continue
		}
		active[i] = confirmed[i] - deaths[i] - recovered[i]
		perBeds[i] = SevereCaseFraction * float64(active[i]) / (beds * COVIDBedShare)
	}

	return PlaceSeries{
		Place:         p,
		Population:    c.Population,
		BedsPer1000:   c.BedsPer1000,
		Beds:          beds,
		Present:       present,
		Confirmed:     confirmed,
		Deaths:        deaths,
		Recovered:     recovered,
		Active:        active,
		ActivePerBeds: perBeds,
	}
}

func selectPlace(ms MetricSeries, p Place) ([]Observation, bool) {
	var src NormalizedSeries
	switch p.Level {
	case LevelCountry:
		src = ms.ByPlace
	case LevelState:
		src = ms.BySubregion
	}
	obs, ok := src[p.Name]
	return obs, ok
}

func checkCapacity(places []Place, caps CapacityConstants) error {
	var missing, invalid []string
	for _, p := range places {
		c, ok := caps[p.Name]
		switch {
		case !ok:
			missing = append(missing, p.Name)
		case c.Population <= 0 || c.BedsPer1000 <= 0:
			invalid = append(invalid, p.Name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingConstantsError{Places: missing}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return &InvalidConstantsError{Places: invalid}
	}
	return nil
}
