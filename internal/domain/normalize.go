package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// DateLayout is the canonical date format used in output and queries.
const DateLayout = "2006-01-02"

// NoneName replaces empty subregion and place names.
const NoneName = "none"

// dateHeaderLayouts are tried in order. JHU uses M/D/YY; later snapshot
// exports use four-digit years, and some mirrors rewrite headers as ISO dates.
var dateHeaderLayouts = []string{"1/2/06", "1/2/2006", DateLayout}

var errNegativeCount = errors.New("count is negative")

// NormalizeName lower-cases a name and replaces every whitespace rune with an
// underscore. An empty name becomes "none". The result is a fixed point:
// NormalizeName(NormalizeName(s)) == NormalizeName(s).
func NormalizeName(s string) string {
	if s == "" {
		return NoneName
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return unicode.ToLower(r)
	}, s)
}

// ParseDateHeader parses a CSV date column header into a UTC midnight time.
func ParseDateHeader(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateHeaderLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date header %q", s)
}

// ParseCount parses a cumulative count cell. Counts must be non-negative
// integers; empty cells are rejected.
func ParseCount(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	if v < 0 {
		return 0, errNegativeCount
	}
	return v, nil
}
