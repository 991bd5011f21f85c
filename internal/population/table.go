package population

import (
	"fmt"
	"strings"
)

// Table resolves the total population of a country for a two-digit year.
type Table interface {
	// TotalPopulation returns the total for countryCode in the year ending
	// in yearSuffix (0-99). The second result is false when either the
	// country or the year is absent.
	TotalPopulation(countryCode string, yearSuffix int) (float64, bool)
}

// Map is an in-memory Table keyed by upper-case country code, then by
// two-digit year suffix.
type Map map[string]map[int]float64

// TotalPopulation implements Table. Non-positive totals count as absent.
func (m Map) TotalPopulation(countryCode string, yearSuffix int) (float64, bool) {
	years, ok := m[strings.ToUpper(countryCode)]
	if !ok {
		return 0, false
	}
	total, ok := years[yearSuffix]
	if !ok || total <= 0 {
		return 0, false
	}
	return total, true
}

// Set records total for countryCode in the year ending in yearSuffix.
func (m Map) Set(countryCode string, yearSuffix int, total float64) {
	code := strings.ToUpper(countryCode)
	years, ok := m[code]
	if !ok {
		years = make(map[int]float64)
		m[code] = years
	}
	years[yearSuffix] = total
}

// Len returns the number of country/year entries.
func (m Map) Len() int {
	n := 0
	for _, years := range m {
		n += len(years)
	}
	return n
}

// Suffix reduces a year to the two-digit key used by tables. Values
// already below 100 are returned unchanged.
func Suffix(year int) int {
	return year % 100
}

func (m Map) add(countryCode string, year int, total float64) error {
	if year < 0 {
		return fmt.Errorf("population: %s: negative year %d", countryCode, year)
	}
	if total <= 0 {
		return fmt.Errorf("population: %s/%d: total must be positive, got %v", countryCode, year, total)
	}
	suffix := Suffix(year)
	if _, ok := m[strings.ToUpper(countryCode)][suffix]; ok {
		return fmt.Errorf("population: %s/%02d: duplicate year", strings.ToUpper(countryCode), suffix)
	}
	m.Set(countryCode, suffix, total)
	return nil
}
