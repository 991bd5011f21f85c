package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ligustah/unadj/internal/rastercalc"
)

// DefaultURLTemplate points at the WorldPop covariate tree.
const DefaultURLTemplate = "https://data.worldpop.org/GIS/Covariates/Global_2000_2020/{ISO}/{file}"

// Config defines configuration for the unadj CLI.
type Config struct {
	PopulationTable string        `yaml:"population_table"`
	Source          SourceConfig  `yaml:"source"`
	Calc            CalcConfig    `yaml:"calc"`
	Publish         PublishConfig `yaml:"publish"`
	Log             LogConfig     `yaml:"log"`
}

// SourceConfig defines where source rasters are fetched from.
// When Bucket is set it takes precedence over URLTemplate.
type SourceConfig struct {
	URLTemplate string        `yaml:"url_template"`
	Bucket      string        `yaml:"bucket"`
	KeyTemplate string        `yaml:"key_template"`
	Timeout     time.Duration `yaml:"timeout"`
}

// CalcConfig defines the raster calculation tool.
type CalcConfig struct {
	Program         string   `yaml:"program"`
	NoData          float64  `yaml:"nodata"`
	CreationOptions []string `yaml:"creation_options"`
}

// PublishConfig defines the optional bucket the output raster is copied to.
type PublishConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// LogConfig defines log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Source: SourceConfig{
			URLTemplate: DefaultURLTemplate,
			KeyTemplate: "{ISO}/{file}",
		},
		Calc: CalcConfig{
			Program:         rastercalc.DefaultProgram,
			NoData:          rastercalc.DefaultNoData,
			CreationOptions: slices.Clone(rastercalc.DefaultCreationOptions),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// yamlConfig is used for YAML unmarshaling with a string timeout and an
// optional nodata value.
type yamlConfig struct {
	PopulationTable string           `yaml:"population_table"`
	Source          yamlSourceConfig `yaml:"source"`
	Calc            yamlCalcConfig   `yaml:"calc"`
	Publish         PublishConfig    `yaml:"publish"`
	Log             LogConfig        `yaml:"log"`
}

type yamlSourceConfig struct {
	URLTemplate string `yaml:"url_template"`
	Bucket      string `yaml:"bucket"`
	KeyTemplate string `yaml:"key_template"`
	Timeout     string `yaml:"timeout"`
}

type yamlCalcConfig struct {
	Program         string   `yaml:"program"`
	NoData          *float64 `yaml:"nodata"`
	CreationOptions []string `yaml:"creation_options"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.PopulationTable != "" {
		cfg.PopulationTable = yc.PopulationTable
	}
	if yc.Source.URLTemplate != "" {
		cfg.Source.URLTemplate = yc.Source.URLTemplate
	}
	if yc.Source.Bucket != "" {
		cfg.Source.Bucket = yc.Source.Bucket
	}
	if yc.Source.KeyTemplate != "" {
		cfg.Source.KeyTemplate = yc.Source.KeyTemplate
	}
	if yc.Source.Timeout != "" {
		d, err := time.ParseDuration(yc.Source.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse source.timeout: %w", err)
		}
		cfg.Source.Timeout = d
	}
	if yc.Calc.Program != "" {
		cfg.Calc.Program = yc.Calc.Program
	}
	if yc.Calc.NoData != nil {
		cfg.Calc.NoData = *yc.Calc.NoData
	}
	if len(yc.Calc.CreationOptions) > 0 {
		cfg.Calc.CreationOptions = yc.Calc.CreationOptions
	}
	cfg.Publish = yc.Publish
	if yc.Log.Level != "" {
		cfg.Log.Level = yc.Log.Level
	}
	if yc.Log.Format != "" {
		cfg.Log.Format = yc.Log.Format
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the UNADJ_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("UNADJ_POPULATION_TABLE"); v != "" {
		c.PopulationTable = v
	}
	if v := os.Getenv("UNADJ_SOURCE_URL_TEMPLATE"); v != "" {
		c.Source.URLTemplate = v
	}
	if v := os.Getenv("UNADJ_SOURCE_BUCKET"); v != "" {
		c.Source.Bucket = v
	}
	if v := os.Getenv("UNADJ_SOURCE_KEY_TEMPLATE"); v != "" {
		c.Source.KeyTemplate = v
	}
	if v := os.Getenv("UNADJ_SOURCE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse UNADJ_SOURCE_TIMEOUT: %w", err)
		}
		c.Source.Timeout = d
	}
	if v := os.Getenv("UNADJ_CALC_PROGRAM"); v != "" {
		c.Calc.Program = v
	}
	if v := os.Getenv("UNADJ_CALC_NODATA"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse UNADJ_CALC_NODATA: %w", err)
		}
		c.Calc.NoData = f
	}
	if v := os.Getenv("UNADJ_CALC_CREATION_OPTIONS"); v != "" {
		c.Calc.CreationOptions = strings.Split(v, ",")
	}
	if v := os.Getenv("UNADJ_PUBLISH_BUCKET"); v != "" {
		c.Publish.Bucket = v
	}
	if v := os.Getenv("UNADJ_PUBLISH_PREFIX"); v != "" {
		c.Publish.Prefix = v
	}
	if v := os.Getenv("UNADJ_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("UNADJ_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.PopulationTable == "" {
		return errors.New("config: population_table is required")
	}
	if c.Source.Bucket == "" && !strings.Contains(c.Source.URLTemplate, "{file}") && !strings.Contains(c.Source.URLTemplate, "{id}") {
		return errors.New("config: source.url_template must contain {file} or {id}")
	}
	if c.Source.Bucket != "" && !strings.Contains(c.Source.KeyTemplate, "{file}") && !strings.Contains(c.Source.KeyTemplate, "{id}") {
		return errors.New("config: source.key_template must contain {file} or {id}")
	}
	if c.Source.Timeout < 0 {
		return errors.New("config: source.timeout must not be negative")
	}
	if c.Calc.Program == "" {
		return errors.New("config: calc.program is required")
	}
	if math.IsNaN(c.Calc.NoData) || math.IsInf(c.Calc.NoData, 0) {
		return errors.New("config: calc.nodata must be finite")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.PopulationTable != "" {
		c.PopulationTable = override.PopulationTable
	}
	if override.Source.URLTemplate != "" {
		c.Source.URLTemplate = override.Source.URLTemplate
	}
	if override.Source.Bucket != "" {
		c.Source.Bucket = override.Source.Bucket
	}
	if override.Source.KeyTemplate != "" {
		c.Source.KeyTemplate = override.Source.KeyTemplate
	}
	if override.Source.Timeout != 0 {
		c.Source.Timeout = override.Source.Timeout
	}
	if override.Calc.Program != "" {
		c.Calc.Program = override.Calc.Program
	}
	if override.Calc.NoData != 0 {
		c.Calc.NoData = override.Calc.NoData
	}
	if len(override.Calc.CreationOptions) > 0 {
		c.Calc.CreationOptions = override.Calc.CreationOptions
	}
	if override.Publish.Bucket != "" {
		c.Publish.Bucket = override.Publish.Bucket
	}
	if override.Publish.Prefix != "" {
		c.Publish.Prefix = override.Publish.Prefix
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		c.Log.Format = override.Log.Format
	}
	return c
}
