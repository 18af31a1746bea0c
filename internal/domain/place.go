package domain

import "fmt"

// PlaceLevel says which aggregation a place is selected from.
type PlaceLevel string

const (
	LevelCountry PlaceLevel = "country"
	LevelState   PlaceLevel = "state"
)

// Place is a country or U.S. state retained in the dataset. Name is the
// normalized identifier and is unique across levels.
type Place struct {
	Name  string     `json:"name"`
	Level PlaceLevel `json:"level"`
}

// Allowlist names the places kept in the dataset. Countries are taken from
// the by-place aggregation, states from the by-subregion aggregation.
type Allowlist struct {
	Countries []string
	States    []string
}

// Places returns the allow-listed places, countries first, each group in
// configured order, with names normalized.
func (a Allowlist) Places() []Place {
	out := make([]Place, 0, len(a.Countries)+len(a.States))
	for _, c := range a.Countries {
		out = append(out, Place{Name: NormalizeName(c), Level: LevelCountry})
	}
	for _, s := range a.States {
		out = append(out, Place{Name: NormalizeName(s), Level: LevelState})
	}
	return out
}

// Validate rejects an empty allow-list and names that collide after
// normalization.
func (a Allowlist) Validate() error {
	places := a.Places()
	if len(places) == 0 {
		return fmt.Errorf("allow-list is empty")
	}
	seen := make(map[string]PlaceLevel, len(places))
	for _, p := range places {
		if lvl, dup := seen[p.Name]; dup {
			return fmt.Errorf("place %q listed as both %s and %s", p.Name, lvl, p.Level)
		}
		seen[p.Name] = p.Level
	}
	return nil
}

// Capacity is the hand-maintained reference data for one place.
type Capacity struct {
	Population  int64   `yaml:"population" json:"population"`
	BedsPer1000 float64 `yaml:"beds_per_1000" json:"beds_per_1000"`
}

// Beds returns the estimated total hospital beds.
func (c Capacity) Beds() float64 {
	return float64(c.Population) * c.BedsPer1000 / 1000
}

// CapacityConstants maps a normalized place name to its capacity.
type CapacityConstants map[string]Capacity
