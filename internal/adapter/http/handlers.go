package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/couchcryptid/covid-capacity-etl/internal/domain"
	"github.com/couchcryptid/covid-capacity-etl/internal/pipeline"
	"github.com/couchcryptid/covid-capacity-etl/internal/render"
)

var errNotBuilt = errors.New("dataset has not been built yet")

type datasetSummary struct {
	Places        []domain.Place `json:"places"`
	Dates         int            `json:"dates"`
	From          string         `json:"from,omitempty"`
	To            string         `json:"to,omitempty"`
	BuiltAt       time.Time      `json:"built_at"`
	BuildDuration string         `json:"build_duration"`
}

type placeInfo struct {
	domain.Place
	Population  int64   `json:"population"`
	BedsPer1000 float64 `json:"beds_per_1000"`
	Beds        float64 `json:"beds"`
}

type seriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type placePoints struct {
	Place  string        `json:"place"`
	Points []seriesPoint `json:"points"`
}

type seriesResponse struct {
	Field  domain.Field  `json:"field"`
	Series []placePoints `json:"series"`
}

func summarize(snap *pipeline.Snapshot) datasetSummary {
	ds := snap.Dataset
	sum := datasetSummary{
		Places:        ds.Places,
		Dates:         len(ds.Dates),
		BuiltAt:       snap.BuiltAt,
		BuildDuration: snap.Duration.String(),
	}
	if n := len(ds.Dates); n > 0 {
		sum.From = ds.Dates[0].Format(domain.DateLayout)
		sum.To = ds.Dates[n-1].Format(domain.DateLayout)
	}
	return sum
}

// snapshot writes 503 and returns nil when no dataset has been built.
func (s *Server) snapshot(w http.ResponseWriter) *pipeline.Snapshot {
	snap := s.service.Current()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, errNotBuilt)
		return nil
	}
	return snap
}

func (s *Server) handleDataset(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	writeJSON(w, http.StatusOK, summarize(snap))
}

func (s *Server) handlePlaces(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	places := make([]placeInfo, 0, len(snap.Dataset.Places))
	for _, p := range snap.Dataset.Places {
		series, _ := snap.Dataset.Series(p.Name)
		places = append(places, placeInfo{
			Place:       p,
			Population:  series.Population,
			BedsPer1000: series.BedsPer1000,
			Beds:        series.Beds,
		})
	}
	writeJSON(w, http.StatusOK, places)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	field, err := domain.ParseField(mux.Vars(r)["field"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	from, to, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap := s.snapshot(w)
	if snap == nil {
		return
	}

	names := parsePlaces(r)
	if len(names) == 0 {
		for _, p := range snap.Dataset.Places {
			names = append(names, p.Name)
		}
	}

	resp := seriesResponse{Field: field, Series: make([]placePoints, 0, len(names))}
	for _, name := range names {
		points, err := snap.Dataset.Query(field, name, from, to)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		pp := placePoints{Place: name, Points: make([]seriesPoint, len(points))}
		for i, pt := range points {
			pp.Points[i] = seriesPoint{Date: pt.Date.Format(domain.DateLayout), Value: pt.Value}
		}
		resp.Series = append(resp.Series, pp)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	field, err := domain.ParseField(mux.Vars(r)["field"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	scale, err := render.ParseScale(r.URL.Query().Get("scale"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	from, to, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap := s.snapshot(w)
	if snap == nil {
		return
	}

	img, err := s.panels.Render(snap.Dataset, snap.BuiltAt, render.Options{Field: field, Scale: scale, From: from, To: to})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(img) //nolint:errcheck // client disconnects are not actionable
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Refresh(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(snap))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownPlace):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownField),
		errors.Is(err, render.ErrTooFewDates),
		errors.Is(err, render.ErrNothingToPlot):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parsePlaces(r *http.Request) []string {
	var names []string
	for _, v := range r.URL.Query()["place"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, domain.NormalizeName(name))
			}
		}
	}
	return names
}

func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %w", err)
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %w", err)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to is before from")
	}
	return from, to, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(domain.DateLayout, s)
}
