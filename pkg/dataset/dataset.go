// Package dataset describes the Copernicus Global Land Cover (PROBA-V
// LC100) collection: which archive record holds which year, which layers
// a record contains and how the discrete classification is coded.
package dataset

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultYear is used when no year is requested.
const DefaultYear = 2019

// ErrNoOutputs is returned when no layer has an output name.
var ErrNoOutputs = errors.New("at least one output raster name is required")

// Records maps a year to the archive record that publishes it.
var Records = map[int]string{
	2015: "3939038",
	2016: "3518026",
	2017: "3518036",
	2018: "3518038",
	2019: "3939050",
}

// Years returns the supported years in ascending order.
func Years() []int {
	years := make([]int, 0, len(Records))
	for y := range Records {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// ResolveRecord returns the archive record id for year.
func ResolveRecord(year int) (string, error) {
	record, ok := Records[year]
	if !ok {
		return "", fmt.Errorf("unsupported year %d (available: %s)", year, yearList())
	}
	return record, nil
}

// ParseYear parses and validates a year string. Empty means DefaultYear.
func ParseYear(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultYear, nil
	}
	year, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid year %q: %w", s, err)
	}
	if _, err := ResolveRecord(year); err != nil {
		return 0, err
	}
	return year, nil
}

func yearList() string {
	years := Years()
	return fmt.Sprintf("%d-%d", years[0], years[len(years)-1])
}
