package rastercalc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// DefaultProgram is the GDAL raster calculator script.
const DefaultProgram = "gdal_calc.py"

// DefaultNoData marks pixels without data in the output raster.
const DefaultNoData = 9999

// DefaultCreationOptions produce an LZW-compressed, horizontally
// differenced raster that may exceed 4GiB.
var DefaultCreationOptions = []string{"COMPRESS=LZW", "PREDICTOR=2", "BIGTIFF=YES"}

// ErrProgramNotFound is returned when the calculator program is not on PATH.
var ErrProgramNotFound = errors.New("rastercalc: program not found")

// Request describes one per-pixel calculation over a single-band input.
type Request struct {
	// Input is the raster bound to band variable A.
	Input string
	// Output is the raster to create. An existing file is replaced.
	Output string
	// Expression is evaluated per pixel, e.g. "(A * 1.05)/57000000".
	Expression string
	// NoData is written where the input has no data.
	NoData float64
	// CreationOptions are GDAL driver options such as COMPRESS=LZW.
	CreationOptions []string
}

// Calculator produces an output raster from a Request.
type Calculator interface {
	Calculate(ctx context.Context, req Request) error
}

// CalculationError reports a calculator run that did not succeed.
//
// Use errors.As to extract it and inspect ExitCode and Stderr.
type CalculationError struct {
	Program  string
	ExitCode int    // -1 when the process did not run to completion
	Stderr   string // trimmed standard error of the process
	Err      error
}

func (e *CalculationError) Error() string {
	msg := fmt.Sprintf("rastercalc: %s exited with code %d", e.Program, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + lastLine(e.Stderr)
	}
	return msg
}

func (e *CalculationError) Unwrap() error {
	return e.Err
}

// Options configures a GDAL calculator.
type Options struct {
	// Program is the calculator executable.
	// Default: gdal_calc.py
	Program string

	// Stdout receives the program's standard output. Default: discarded.
	Stdout io.Writer
}

// GDAL runs gdal_calc.py as a child process.
type GDAL struct {
	opts Options
}

// NewGDAL creates a GDAL calculator.
func NewGDAL(opts Options) *GDAL {
	if opts.Program == "" {
		opts.Program = DefaultProgram
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	return &GDAL{opts: opts}
}

// Program returns the executable the calculator runs.
func (g *GDAL) Program() string {
	return g.opts.Program
}

// Available reports whether the program can be found.
func (g *GDAL) Available() error {
	if _, err := exec.LookPath(g.opts.Program); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrProgramNotFound, g.opts.Program, err)
	}
	return nil
}

// Args returns the command-line arguments for req.
func (g *GDAL) Args(req Request) []string {
	args := []string{
		"-A", req.Input,
		"--outfile=" + req.Output,
		"--calc=" + req.Expression,
		"--NoDataValue=" + strconv.FormatFloat(req.NoData, 'f', -1, 64),
	}
	for _, co := range req.CreationOptions {
		args = append(args, "--co", co)
	}
	return append(args, "--overwrite")
}

// Calculate runs the program and waits for it to exit. Any non-zero exit
// status is returned as a *CalculationError.
func (g *GDAL) Calculate(ctx context.Context, req Request) error {
	if req.Input == "" || req.Output == "" || req.Expression == "" {
		return errors.New("rastercalc: input, output and expression are required")
	}

	args := g.Args(req)
	log.WithFields(log.Fields{
		"program": g.opts.Program,
		"args":    strings.Join(args, " "),
	}).Debug("running raster calculation")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.opts.Program, args...)
	cmd.Stdout = g.opts.Stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		calcErr := &CalculationError{
			Program:  g.opts.Program,
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			calcErr.ExitCode = exitErr.ExitCode()
		}
		return calcErr
	}

	return nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
