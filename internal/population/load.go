package population

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

// SQLiteScheme prefixes sources that name a SQLite database.
const SQLiteScheme = "sqlite://"

const sqliteQuery = `SELECT iso, year, total FROM total_population`

// Load reads a population table from source.
//
// A source starting with sqlite:// names a SQLite database holding a
// total_population(iso TEXT, year INTEGER, total REAL) table. Anything else
// is read as a YAML or JSON document mapping country codes to year totals:
//
//	KEN:
//	  15: 47878339
//	  16: 49051531
//
// Year keys may be two-digit suffixes or full years. Two keys naming the
// same year, such as 15 and 2015, are rejected.
func Load(ctx context.Context, source string) (Map, error) {
	if path, ok := strings.CutPrefix(source, SQLiteScheme); ok {
		return LoadSQLite(ctx, path)
	}
	return LoadFile(source)
}

// LoadFile reads a YAML or JSON population table.
func LoadFile(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("population: read table: %w", err)
	}

	// String year keys so that quoted JSON keys and bare YAML keys decode alike.
	var raw map[string]map[string]float64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("population: parse table: %w", err)
	}

	m := make(Map, len(raw))
	for code, years := range raw {
		for key, total := range years {
			year, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				return nil, fmt.Errorf("population: %s: invalid year %q", code, key)
			}
			if err := m.add(code, year, total); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// LoadSQLite reads a population table from the SQLite database at path.
func LoadSQLite(ctx context.Context, path string) (Map, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("population: open database: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("population: open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, sqliteQuery)
	if err != nil {
		return nil, fmt.Errorf("population: query database: %w", err)
	}
	defer rows.Close()

	m := make(Map)
	for rows.Next() {
		var (
			code  string
			year  int
			total float64
		)
		if err := rows.Scan(&code, &year, &total); err != nil {
			return nil, fmt.Errorf("population: scan row: %w", err)
		}
		if err := m.add(code, year, total); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("population: read rows: %w", err)
	}
	return m, nil
}
