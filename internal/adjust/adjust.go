package adjust

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/ligustah/unadj/internal/fetch"
	"github.com/ligustah/unadj/internal/rastercalc"
)

func (j *Job) fields() log.Fields {
	return log.Fields{
		"iso":  j.countryCode,
		"year": j.year,
	}
}

// FetchSourceRaster downloads the job's source raster into OutputDir and
// returns its local path.
//
// When the total population is unknown nothing is downloaded and
// ErrCountryUnavailable is returned. Fetcher errors are returned wrapped.
func (j *Job) FetchSourceRaster(ctx context.Context, f fetch.Fetcher) (string, error) {
	if !j.populationKnown {
		log.WithFields(j.fields()).Infof("%s is currently unavailable for download.", j.countryCode)
		return "", fmt.Errorf("%w: no total population for %s in %d", ErrCountryUnavailable, j.countryCode, j.year)
	}

	paths, err := f.Fetch(ctx, j.countryCode, j.outputDir, []string{j.RasterIdentifier()})
	if err != nil {
		return "", fmt.Errorf("fetch source raster: %w", err)
	}
	if len(paths) != 1 {
		return "", fmt.Errorf("fetch source raster: expected 1 file, got %d", len(paths))
	}

	log.WithFields(j.fields()).WithField("path", paths[0]).Info("Downloaded")
	return paths[0], nil
}

// ApplyAdjustment writes the adjusted raster computed from sourcePath and
// returns its path. Every pixel A becomes (A * factor) / total population.
//
// The job must have a known total population and sourcePath must exist,
// otherwise ErrPrerequisiteUnmet is returned. A calculator failure is
// returned wrapping its *rastercalc.CalculationError and any partial
// output it wrote is removed. An output left by an earlier run that the
// failed calculation never touched is kept. When the job does not keep
// its source, sourcePath is removed after a successful calculation.
func (j *Job) ApplyAdjustment(ctx context.Context, calc rastercalc.Calculator, sourcePath string) (string, error) {
	if !j.populationKnown {
		return "", fmt.Errorf("%w: no total population for %s in %d", ErrPrerequisiteUnmet, j.countryCode, j.year)
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return "", fmt.Errorf("%w: source raster: %w", ErrPrerequisiteUnmet, err)
	}

	req := j.Request(sourcePath)
	if samePath(req.Input, req.Output) {
		return "", fmt.Errorf("%w: source raster %s is the output raster", ErrPrerequisiteUnmet, sourcePath)
	}

	log.WithFields(j.fields()).WithFields(log.Fields{
		"expression": req.Expression,
		"multiplier": j.Scale(1),
		"output":     req.Output,
	}).Info("applying UN adjustment")

	before, statErr := os.Stat(req.Output)
	if err := calc.Calculate(ctx, req); err != nil {
		var result error = fmt.Errorf("adjust %s %d: %w", j.countryCode, j.year, err)
		if touched(req.Output, before, statErr == nil) {
			if rmErr := os.Remove(req.Output); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				result = multierror.Append(result, fmt.Errorf("remove partial output: %w", rmErr))
			}
		}
		return "", result
	}

	if !j.keepSource {
		if err := os.Remove(sourcePath); err != nil {
			return req.Output, fmt.Errorf("remove source raster: %w", err)
		}
		log.WithFields(j.fields()).WithField("path", sourcePath).Debug("removed source raster")
	}

	return req.Output, nil
}

// Run fetches the source raster and applies the adjustment to exactly the
// file that was fetched.
func (j *Job) Run(ctx context.Context, f fetch.Fetcher, calc rastercalc.Calculator) (string, error) {
	src, err := j.FetchSourceRaster(ctx, f)
	if err != nil {
		return "", err
	}
	return j.ApplyAdjustment(ctx, calc, src)
}

// touched reports whether path was created or rewritten since before was
// taken. existed is false when path did not exist at that point.
func touched(path string, before os.FileInfo, existed bool) bool {
	after, err := os.Stat(path)
	if err != nil {
		return false
	}
	if !existed {
		return true
	}
	return !after.ModTime().Equal(before.ModTime()) || after.Size() != before.Size()
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
