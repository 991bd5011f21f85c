package adjust

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ligustah/unadj/internal/fetch"
	"github.com/ligustah/unadj/internal/population"
	"github.com/ligustah/unadj/internal/rastercalc"
)

// Supported years.
const (
	MinYear = 2000
	MaxYear = 2020
)

var (
	// ErrInvalidJob is returned by NewJob for malformed parameters.
	ErrInvalidJob = errors.New("adjust: invalid job")

	// ErrCountryUnavailable is returned by FetchSourceRaster when the
	// population table has no total for the job's country and year.
	// Nothing is downloaded in that case.
	ErrCountryUnavailable = errors.New("adjust: country unavailable")

	// ErrPrerequisiteUnmet is returned by ApplyAdjustment when the total
	// population is unknown or the source raster is missing.
	ErrPrerequisiteUnmet = errors.New("adjust: prerequisite unmet")
)

// Params identifies one unit of work.
type Params struct {
	// CountryCode is a 3-character alphanumeric code, any case.
	CountryCode string
	// Year is between MinYear and MaxYear inclusive.
	Year int
	// Factor is the UN adjustment multiplier. It must not be negative.
	Factor float64
	// OutputDir receives both the source raster and the output raster.
	OutputDir string
	// DeleteSource removes the source raster once the output is written.
	DeleteSource bool
	// NoData is the output no-data value. Nil selects rastercalc.DefaultNoData.
	NoData *float64
	// CreationOptions override rastercalc.DefaultCreationOptions when set.
	CreationOptions []string
}

// Job is a validated adjustment with its total population resolved.
// A Job is immutable once constructed.
type Job struct {
	countryCode     string
	year            int
	factor          float64
	outputDir       string
	keepSource      bool
	noData          float64
	creationOptions []string

	totalPopulation float64
	populationKnown bool
}

// NewJob validates p and looks up the total population in table.
//
// A missing table entry is not an error: the job is returned with
// PopulationKnown false and the fetch and apply steps refuse to run.
func NewJob(table population.Table, p Params) (*Job, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: population table is required", ErrInvalidJob)
	}
	if !validCountryCode(p.CountryCode) {
		return nil, fmt.Errorf("%w: country code %q must be 3 alphanumeric characters", ErrInvalidJob, p.CountryCode)
	}
	if p.Year < MinYear || p.Year > MaxYear {
		return nil, fmt.Errorf("%w: year %d outside %d-%d", ErrInvalidJob, p.Year, MinYear, MaxYear)
	}
	if math.IsNaN(p.Factor) || math.IsInf(p.Factor, 0) {
		return nil, fmt.Errorf("%w: factor must be finite", ErrInvalidJob)
	}
	if p.Factor < 0 {
		return nil, fmt.Errorf("%w: factor %v must not be negative", ErrInvalidJob, p.Factor)
	}
	if p.OutputDir == "" {
		return nil, fmt.Errorf("%w: output directory is required", ErrInvalidJob)
	}

	j := &Job{
		countryCode:     strings.ToUpper(p.CountryCode),
		year:            p.Year,
		factor:          p.Factor,
		outputDir:       p.OutputDir,
		keepSource:      !p.DeleteSource,
		noData:          rastercalc.DefaultNoData,
		creationOptions: slices.Clone(p.CreationOptions),
	}
	if p.NoData != nil {
		j.noData = *p.NoData
	}
	if len(j.creationOptions) == 0 {
		j.creationOptions = slices.Clone(rastercalc.DefaultCreationOptions)
	}

	j.totalPopulation, j.populationKnown = table.TotalPopulation(j.countryCode, j.YearSuffix())
	return j, nil
}

// ParseYear parses a year given on the command line.
func ParseYear(s string) (int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: year %q is not an integer", ErrInvalidJob, s)
	}
	return year, nil
}

// ParseFactor parses an adjustment factor given on the command line.
func ParseFactor(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: factor %q is not a number", ErrInvalidJob, s)
	}
	return f, nil
}

func validCountryCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// CountryCode returns the upper-case country code.
func (j *Job) CountryCode() string { return j.countryCode }

// Year returns the four-digit year.
func (j *Job) Year() int { return j.year }

// YearSuffix returns the last two digits of the year.
func (j *Job) YearSuffix() int { return population.Suffix(j.year) }

// Factor returns the adjustment multiplier.
func (j *Job) Factor() float64 { return j.factor }

// OutputDir returns the directory holding source and output rasters.
func (j *Job) OutputDir() string { return j.outputDir }

// KeepSource reports whether the source raster survives ApplyAdjustment.
func (j *Job) KeepSource() bool { return j.keepSource }

// PopulationKnown reports whether the population table had an entry.
func (j *Job) PopulationKnown() bool { return j.populationKnown }

// TotalPopulation returns the looked-up total and whether it was found.
func (j *Job) TotalPopulation() (float64, bool) {
	return j.totalPopulation, j.populationKnown
}

// RasterIdentifier names the source raster on the remote server.
func (j *Job) RasterIdentifier() string {
	return fmt.Sprintf("ccilc_dst011_%d", j.year)
}

// SourceRasterName is the local file name of the downloaded raster.
func (j *Job) SourceRasterName() string {
	return fetch.FileName(j.countryCode, j.RasterIdentifier())
}

// SourceRasterPath is SourceRasterName inside OutputDir.
func (j *Job) SourceRasterPath() string {
	return filepath.Join(j.outputDir, j.SourceRasterName())
}

// OutputRasterName is the file name of the adjusted raster.
func (j *Job) OutputRasterName() string {
	return fmt.Sprintf("%s_UNAdj_ppp_%d.tif", strings.ToLower(j.countryCode), j.year)
}

// OutputRasterPath is OutputRasterName inside OutputDir.
func (j *Job) OutputRasterPath() string {
	return filepath.Join(j.outputDir, j.OutputRasterName())
}

// Expression returns the per-pixel calculation, "(A * factor)/total".
// Both numbers use their shortest exact decimal form.
func (j *Job) Expression() string {
	return fmt.Sprintf("(A * %s)/%s", formatNumber(j.factor), formatNumber(j.totalPopulation))
}

// Scale applies the adjustment to a single pixel value. Scale(1) is the
// effective multiplier.
func (j *Job) Scale(a float64) float64 {
	return (a * j.factor) / j.totalPopulation
}

// Request builds the calculation request reading from sourcePath.
func (j *Job) Request(sourcePath string) rastercalc.Request {
	return rastercalc.Request{
		Input:           sourcePath,
		Output:          j.OutputRasterPath(),
		Expression:      j.Expression(),
		NoData:          j.noData,
		CreationOptions: slices.Clone(j.creationOptions),
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
