// Package domain models the JHU CSSE COVID-19 time-series data and the
// hospital-capacity cube derived from it.
//
// # Data Source
//
// The Johns Hopkins CSSE repository publishes one CSV per metric under
// csse_covid_19_data/csse_covid_19_time_series/. File names carry the metric
// label, e.g. "time_series_19-covid-Confirmed.csv". Several historical
// snapshots may sit side by side; their rows are concatenated and summed.
//
// # CSV Conventions
//
// Header row:
//
//	Province/State,Country/Region,Lat,Long,1/22/20,1/23/20,...
//
// Later exports spell the identity columns Province_State / Country_Region
// and the longitude column Long_. Lat and Long are dropped. Every remaining
// column is a date; JHU writes M/D/YY, and M/D/YYYY and YYYY-MM-DD are also
// accepted.
//
// Cells hold cumulative totals (running counts, not daily new cases). A
// count must be a non-negative integer. Totals that go down between days are
// a data-quality issue upstream and are passed through unchanged.
//
// # Names
//
// Subregion (province/state) and place (country) names are lower-cased and
// each whitespace rune is replaced by "_": "New York" -> "new_york". An empty
// name becomes "none", which is how country-level rows without a province
// are keyed.
//
// # Aggregation
//
// Each metric is aggregated twice: by place, summing every row of a country,
// and by subregion, summing every row sharing a province/state name. U.S.
// states are read from the second aggregation.
//
// # Derived Fields
//
//	active          = confirmed - deaths - recovered
//	beds            = population * beds_per_1000 / 1000
//	active_per_beds = 0.12 * active / (beds * 0.3)
//
// 0.12 is the share of active cases assumed severe ([SevereCaseFraction]);
// 0.3 is the share of beds assumed free for COVID patients
// ([COVIDBedShare]). Population and beds per 1000 come from configuration;
// a place without an entry fails the build with [MissingConstantsError].
package domain
