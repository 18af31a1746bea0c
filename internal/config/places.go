package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/covid-capacity-etl/internal/domain"
)

var errEmptyPlaces = errors.New("places file is empty")

// Places is the allow-list and capacity reference data, read from PLACES_FILE.
//
//	countries: [italy, spain]
//	states: [new_york]
//	capacity:
//	  italy: {population: 60360000, beds_per_1000: 3.2}
type Places struct {
	Countries []string                   `yaml:"countries"`
	States    []string                   `yaml:"states"`
	Capacity  map[string]domain.Capacity `yaml:"capacity"`
}

// LoadPlaces reads and validates a places file.
func LoadPlaces(path string) (*Places, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read places file: %w", err)
	}
	return ParsePlaces(data)
}

// ParsePlaces decodes places YAML. Unknown keys are rejected.
func ParsePlaces(data []byte) (*Places, error) {
	var p Places
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errEmptyPlaces
		}
		return nil, fmt.Errorf("parse places file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the allow-list and every capacity entry. It does not
// require an entry per allow-listed place; that is reported by the build
// as a MissingConstantsError.
func (p *Places) Validate() error {
	if err := p.Allowlist().Validate(); err != nil {
		return err
	}
	seen := make(map[string]string, len(p.Capacity))
	for name, c := range p.Capacity {
		key := domain.NormalizeName(name)
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("capacity entries %q and %q normalize to %q", prev, name, key)
		}
		seen[key] = name
		if c.Population <= 0 {
			return fmt.Errorf("capacity %q: population must be positive", name)
		}
		if c.BedsPer1000 <= 0 {
			return fmt.Errorf("capacity %q: beds_per_1000 must be positive", name)
		}
	}
	return nil
}

// Allowlist returns the configured places.
func (p *Places) Allowlist() domain.Allowlist {
	return domain.Allowlist{Countries: p.Countries, States: p.States}
}

// Constants returns capacity entries keyed by normalized place name.
func (p *Places) Constants() domain.CapacityConstants {
	out := make(domain.CapacityConstants, len(p.Capacity))
	for name, c := range p.Capacity {
		out[domain.NormalizeName(name)] = c
	}
	return out
}
