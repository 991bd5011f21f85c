// Package population provides total-population lookup tables.
//
// A [Table] maps a country code and a two-digit year suffix to the total
// population used as the denominator of the UN adjustment. Tables are
// read-only and passed to the adjuster explicitly.
//
// [Load] accepts either a YAML/JSON file or a sqlite:// database path.
package population
