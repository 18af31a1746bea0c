package csvfile

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/covid-capacity-etl/internal/domain"
	"github.com/couchcryptid/covid-capacity-etl/internal/observability"
)

var (
	jan22 = time.Date(2020, time.January, 22, 0, 0, 0, 0, time.UTC)
	jan23 = time.Date(2020, time.January, 23, 0, 0, 0, 0, time.UTC)
)

func newTestSource(t *testing.T, files map[string]string) *Source {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return NewSource(dir, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
}

func TestParseCSV_GlobalLayout(t *testing.T) {
	in := "Province/State,Country/Region,Lat,Long,1/22/20,1/23/20\n" +
		",Italy,43.0,12.0,0,2\n" +
		"New York,US,42.1,-74.9,1,3\n"

	recs, err := parseCSV(strings.NewReader(in), "confirmed.csv")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, domain.RawDailyRecord{
		Subregion: "",
		Place:     "Italy",
		Counts:    []domain.DailyCount{{Date: jan22, Count: 0}, {Date: jan23, Count: 2}},
		Source:    "confirmed.csv",
		Line:      2,
	}, recs[0])
	assert.Equal(t, "New York", recs[1].Subregion)
	assert.Equal(t, "US", recs[1].Place)
	assert.Equal(t, 3, recs[1].Line)
}

func TestParseCSV_USLayout(t *testing.T) {
	in := "UID,iso2,iso3,code3,FIPS,Admin2,Province_State,Country_Region,Lat,Long_,Combined_Key,Population,1/22/20,1/23/20\n" +
		"84036061,US,USA,840,36061,New York,New York,US,40.7,-73.9,\"New York, New York, US\",1628706,0,5\n"

	recs, err := parseCSV(strings.NewReader(in), "us.csv")
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, "New York", recs[0].Subregion)
	assert.Equal(t, "US", recs[0].Place)
	assert.Equal(t, []domain.DailyCount{{Date: jan22, Count: 0}, {Date: jan23, Count: 5}}, recs[0].Counts)
}

func TestParseCSV_ByteOrderMark(t *testing.T) {
	in := "\ufeffProvince/State,Country/Region,Lat,Long,1/22/20\n,Spain,40.0,-4.0,7\n"

	recs, err := parseCSV(strings.NewReader(in), "bom.csv")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Spain", recs[0].Place)
}

func TestParseCSV_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		line   int
		column string
		value  string
	}{
		{
			name: "empty file",
			in:   "",
			line: 1,
		},
		{
			name:   "bad date header",
			in:     "Province/State,Country/Region,Lat,Long,notadate\n",
			line:   1,
			column: "notadate",
		},
		{
			name: "missing place column",
			in:   "Province/State,Lat,Long,1/22/20\n,1,2,3\n",
			line: 1,
		},
		{
			name: "missing subregion column",
			in:   "Country/Region,Lat,Long,1/22/20\nItaly,1,2,3\n",
			line: 1,
		},
		{
			name:   "negative count",
			in:     "Province/State,Country/Region,Lat,Long,1/22/20\n,Italy,1,2,-4\n",
			line:   2,
			column: "1/22/20",
			value:  "-4",
		},
		{
			name:   "empty count",
			in:     "Province/State,Country/Region,Lat,Long,1/22/20,1/23/20\n,Italy,1,2,3,\n",
			line:   2,
			column: "1/23/20",
		},
		{
			name:   "non-numeric count",
			in:     "Province/State,Country/Region,Lat,Long,1/22/20\n,Italy,1,2,3\n,Spain,1,2,n/a\n",
			line:   3,
			column: "1/22/20",
			value:  "n/a",
		},
		{
			name: "short row",
			in:   "Province/State,Country/Region,Lat,Long,1/22/20\n,Italy,1,2\n",
			line: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCSV(strings.NewReader(tt.in), "bad.csv")

			var mre *domain.MalformedRecordError
			require.ErrorAs(t, err, &mre)
			assert.Equal(t, "bad.csv", mre.Source)
			assert.Equal(t, tt.line, mre.Line)
			assert.Equal(t, tt.column, mre.Column)
			assert.Equal(t, tt.value, mre.Value)
		})
	}
}

func TestSource_MatchFiles(t *testing.T) {
	src := newTestSource(t, map[string]string{
		"time_series_covid19_confirmed_global.csv":   "",
		"time_series_19-covid-Confirmed.csv":         "",
		"time_series_19-covid-Confirmed_archive.CSV": "",
		"time_series_19-covid-Deaths.csv":            "",
		"confirmed_notes.txt":                        "",
	})

	files, err := src.MatchFiles(domain.MetricConfirmed)
	require.NoError(t, err)

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.Equal(t, []string{
		"time_series_19-covid-Confirmed.csv",
		"time_series_19-covid-Confirmed_archive.CSV",
		"time_series_covid19_confirmed_global.csv",
	}, names)
}

func TestSource_MatchFiles_NoMatch(t *testing.T) {
	src := newTestSource(t, map[string]string{"time_series_19-covid-Deaths.csv": ""})

	_, err := src.MatchFiles(domain.MetricRecovered)

	var dse *domain.DataSourceError
	require.ErrorAs(t, err, &dse)
	assert.Equal(t, domain.MetricRecovered, dse.Metric)
	assert.Equal(t, src.Dir(), dse.Dir)
	assert.NoError(t, dse.Err)
}

func TestSource_MatchFiles_MissingDir(t *testing.T) {
	src := NewSource(filepath.Join(t.TempDir(), "absent"), slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())

	_, err := src.MatchFiles(domain.MetricDeaths)

	var dse *domain.DataSourceError
	require.ErrorAs(t, err, &dse)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSource_ReadMetric_ConcatenatesFiles(t *testing.T) {
	header := "Province/State,Country/Region,Lat,Long,1/22/20\n"
	src := newTestSource(t, map[string]string{
		"a_Deaths.csv": header + ",Italy,1,2,1\n",
		"b_Deaths.csv": header + ",Italy,1,2,1\n,Spain,1,2,4\n",
	})

	recs, err := src.ReadMetric(context.Background(), domain.MetricDeaths)
	require.NoError(t, err)

	require.Len(t, recs, 3)
	assert.Equal(t, "a_Deaths.csv", recs[0].Source)
	assert.Equal(t, "b_Deaths.csv", recs[1].Source)
	assert.Equal(t, "Spain", recs[2].Place)
}

func TestSource_ReadMetric_Cancelled(t *testing.T) {
	src := newTestSource(t, map[string]string{"x_Deaths.csv": "Province/State,Country/Region,1/22/20\n,Italy,1\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.ReadMetric(ctx, domain.MetricDeaths)
	assert.ErrorIs(t, err, context.Canceled)
}
