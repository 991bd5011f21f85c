package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/unadj/internal/adjust"
	"github.com/ligustah/unadj/internal/config"
	"github.com/ligustah/unadj/internal/fetch"
	unadjhttp "github.com/ligustah/unadj/internal/http"
	"github.com/ligustah/unadj/internal/logging"
	"github.com/ligustah/unadj/internal/population"
	"github.com/ligustah/unadj/internal/publish"
	"github.com/ligustah/unadj/internal/rastercalc"
)

type options struct {
	keepRaster      string
	configFile      string
	populationTable string
	sourceBucket    string
	calcProgram     string
	publishBucket   string
	logLevel        string
}

func rootCmd(stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "unadj ISO Year n download_loc",
		Short: "Rescale a WorldPop ppp raster so its pixels sum to a UN-adjusted total.",
		Long: `unadj downloads the WorldPop ppp raster for a country and year, then writes
{iso}_UNAdj_ppp_{year}.tif where every pixel A becomes

  (A * n) / totalPopulation

totalPopulation comes from the population table (YAML, JSON or sqlite://).
Countries without a total are reported as unavailable and nothing is
downloaded. n must not be negative; a value starting with "-" is read as a
flag unless it follows "--".

Configuration is read from --config, then UNADJ_* environment variables,
then flags.`,
		Args:          cobra.ExactArgs(4),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			keep := parseKeepRaster(cmd.Flags().Changed("keep_raster"), opts.keepRaster)
			return runAdjust(cmd.Context(), args, keep, opts, stderr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.keepRaster, "keep_raster", "True", "Keep the downloaded raster: True keeps, anything else deletes it")
	f.StringVar(&opts.configFile, "config", "", "Path to a YAML config file")
	f.StringVar(&opts.populationTable, "population-table", "", "Population totals: YAML/JSON file or sqlite://path")
	f.StringVar(&opts.sourceBucket, "source-bucket", "", "Fetch rasters from this bucket URL instead of HTTP")
	f.StringVar(&opts.calcProgram, "calc-program", "", "Raster calculator program (default gdal_calc.py)")
	f.StringVar(&opts.publishBucket, "publish-bucket", "", "Copy the output raster to this bucket URL")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	return cmd
}

// parseKeepRaster reports whether the source raster should survive. An
// omitted flag keeps it; a given flag keeps it only when it is "True".
func parseKeepRaster(given bool, value string) bool {
	if !given {
		return true
	}
	return value == "True"
}

func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(opts.configFile)
		if err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	cfg = cfg.Merge(config.Config{
		PopulationTable: opts.populationTable,
		Source:          config.SourceConfig{Bucket: opts.sourceBucket},
		Calc:            config.CalcConfig{Program: opts.calcProgram},
		Publish:         config.PublishConfig{Bucket: opts.publishBucket},
		Log:             config.LogConfig{Level: opts.logLevel},
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runAdjust(ctx context.Context, args []string, keep bool, opts options, stderr io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return withCode(ExitInvalidArgs, err)
	}
	if err := logging.Configure(cfg.Log, stderr); err != nil {
		return withCode(ExitInvalidArgs, err)
	}

	iso, downloadLoc := args[0], args[3]
	log.WithFields(log.Fields{"iso": iso, "download_loc": downloadLoc}).Info("starting UN adjustment")

	year, err := adjust.ParseYear(args[1])
	if err != nil {
		return withCode(ExitInvalidArgs, err)
	}
	factor, err := adjust.ParseFactor(args[2])
	if err != nil {
		return withCode(ExitInvalidArgs, err)
	}

	table, err := population.Load(ctx, cfg.PopulationTable)
	if err != nil {
		return withCode(ExitInvalidArgs, err)
	}
	log.WithField("entries", table.Len()).Debug("loaded population table")

	noData := cfg.Calc.NoData
	job, err := adjust.NewJob(table, adjust.Params{
		CountryCode:     iso,
		Year:            year,
		Factor:          factor,
		OutputDir:       downloadLoc,
		DeleteSource:    !keep,
		NoData:          &noData,
		CreationOptions: cfg.Calc.CreationOptions,
	})
	if err != nil {
		return withCode(ExitInvalidArgs, err)
	}

	calc := rastercalc.NewGDAL(rastercalc.Options{Program: cfg.Calc.Program})
	if job.PopulationKnown() {
		if err := calc.Available(); err != nil {
			return withCode(ExitCalculationFailed, err)
		}
	}

	fetcher, closeFetcher, err := newFetcher(ctx, cfg.Source)
	if err != nil {
		return withCode(ExitDownloadFailed, err)
	}
	defer closeFetcher()

	src, err := job.FetchSourceRaster(ctx, fetcher)
	if errors.Is(err, adjust.ErrCountryUnavailable) {
		return nil
	}
	if err != nil {
		return withCode(ExitDownloadFailed, err)
	}

	out, err := job.ApplyAdjustment(ctx, calc, src)
	if err != nil {
		var calcErr *rastercalc.CalculationError
		switch {
		case errors.As(err, &calcErr):
			return withCode(ExitCalculationFailed, err)
		case out != "":
			// The output exists but the source could not be removed.
			return withCode(ExitStorageError, err)
		default:
			return withCode(ExitGeneralError, err)
		}
	}

	if cfg.Publish.Bucket != "" {
		if err := publishOutput(ctx, cfg.Publish, job, out); err != nil {
			return withCode(ExitStorageError, err)
		}
	}

	log.WithField("path", out).Info("UN adjustment complete")
	return nil
}

func newFetcher(ctx context.Context, cfg config.SourceConfig) (fetch.Fetcher, func(), error) {
	if cfg.Bucket != "" {
		f, err := fetch.OpenBucket(ctx, cfg.Bucket, cfg.KeyTemplate)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { f.Close() }, nil
	}

	httpOpts := unadjhttp.DefaultOptions()
	httpOpts.Timeout = cfg.Timeout
	return fetch.NewHTTPFetcher(cfg.URLTemplate, httpOpts), func() {}, nil
}

func publishOutput(ctx context.Context, cfg config.PublishConfig, job *adjust.Job, path string) error {
	p, err := publish.Open(ctx, cfg.Bucket, cfg.Prefix)
	if err != nil {
		return err
	}
	defer p.Close()

	total, _ := job.TotalPopulation()
	_, err = p.Publish(ctx, path, map[string]string{
		"iso":              job.CountryCode(),
		"year":             strconv.Itoa(job.Year()),
		"factor":           strconv.FormatFloat(job.Factor(), 'f', -1, 64),
		"total_population": strconv.FormatFloat(total, 'f', -1, 64),
		"expression":       job.Expression(),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}
