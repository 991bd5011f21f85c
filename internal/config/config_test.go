package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ligustah/unadj/internal/rastercalc"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Source.URLTemplate != DefaultURLTemplate {
		t.Errorf("expected default url template %q, got %q", DefaultURLTemplate, cfg.Source.URLTemplate)
	}
	if cfg.Source.KeyTemplate != "{ISO}/{file}" {
		t.Errorf("expected default key template {ISO}/{file}, got %q", cfg.Source.KeyTemplate)
	}
	if cfg.Source.Timeout != 0 {
		t.Errorf("expected no default timeout, got %v", cfg.Source.Timeout)
	}
	if cfg.Calc.Program != "gdal_calc.py" {
		t.Errorf("expected default program gdal_calc.py, got %q", cfg.Calc.Program)
	}
	if cfg.Calc.NoData != 9999 {
		t.Errorf("expected default nodata 9999, got %v", cfg.Calc.NoData)
	}
	if len(cfg.Calc.CreationOptions) != 3 {
		t.Errorf("expected 3 default creation options, got %v", cfg.Calc.CreationOptions)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("expected info/text logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestDefaultCreationOptionsNotShared(t *testing.T) {
	cfg := Default()
	cfg.Calc.CreationOptions[0] = "COMPRESS=NONE"

	if got := Default().Calc.CreationOptions[0]; got != "COMPRESS=LZW" {
		t.Errorf("Default() creation options were mutated through an earlier copy: %q", got)
	}
	if got := rastercalc.DefaultCreationOptions[0]; got != "COMPRESS=LZW" {
		t.Errorf("rastercalc.DefaultCreationOptions mutated: %q", got)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
population_table: sqlite:///data/totals.db
source:
  bucket: s3://rasters?region=eu-west-2
  key_template: covariates/{ISO}/{file}
  timeout: 2h
calc:
  program: /opt/gdal/bin/gdal_calc.py
  nodata: -1
publish:
  bucket: mem://
  prefix: out/
log:
  level: debug
  format: json
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.PopulationTable != "sqlite:///data/totals.db" {
		t.Errorf("expected population table from file, got %q", cfg.PopulationTable)
	}
	if cfg.Source.Bucket != "s3://rasters?region=eu-west-2" {
		t.Errorf("expected source bucket from file, got %q", cfg.Source.Bucket)
	}
	if cfg.Source.KeyTemplate != "covariates/{ISO}/{file}" {
		t.Errorf("expected key template from file, got %q", cfg.Source.KeyTemplate)
	}
	if cfg.Source.URLTemplate != DefaultURLTemplate {
		t.Errorf("expected url template default preserved, got %q", cfg.Source.URLTemplate)
	}
	if cfg.Source.Timeout != 2*time.Hour {
		t.Errorf("expected timeout 2h, got %v", cfg.Source.Timeout)
	}
	if cfg.Calc.Program != "/opt/gdal/bin/gdal_calc.py" {
		t.Errorf("expected program from file, got %q", cfg.Calc.Program)
	}
	if cfg.Calc.NoData != -1 {
		t.Errorf("expected nodata -1, got %v", cfg.Calc.NoData)
	}
	if len(cfg.Calc.CreationOptions) != 3 {
		t.Errorf("expected default creation options preserved, got %v", cfg.Calc.CreationOptions)
	}
	if cfg.Publish.Bucket != "mem://" || cfg.Publish.Prefix != "out/" {
		t.Errorf("expected publish mem:// out/, got %s %s", cfg.Publish.Bucket, cfg.Publish.Prefix)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("expected debug/json logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestLoadFromYAMLZeroNoData(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("calc:\n  nodata: 0\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Calc.NoData != 0 {
		t.Errorf("expected explicit nodata 0, got %v", cfg.Calc.NoData)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("UNADJ_POPULATION_TABLE", "totals.yaml")
	t.Setenv("UNADJ_SOURCE_URL_TEMPLATE", "https://mirror.example.com/{iso}/{file}")
	t.Setenv("UNADJ_SOURCE_TIMEOUT", "90m")
	t.Setenv("UNADJ_CALC_PROGRAM", "gdal_calc")
	t.Setenv("UNADJ_CALC_NODATA", "-9999")
	t.Setenv("UNADJ_CALC_CREATION_OPTIONS", "COMPRESS=DEFLATE,BIGTIFF=IF_SAFER")
	t.Setenv("UNADJ_LOG_LEVEL", "warn")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.PopulationTable != "totals.yaml" {
		t.Errorf("expected population table totals.yaml, got %q", cfg.PopulationTable)
	}
	if cfg.Source.URLTemplate != "https://mirror.example.com/{iso}/{file}" {
		t.Errorf("unexpected url template %q", cfg.Source.URLTemplate)
	}
	if cfg.Source.Timeout != 90*time.Minute {
		t.Errorf("expected timeout 90m, got %v", cfg.Source.Timeout)
	}
	if cfg.Calc.Program != "gdal_calc" {
		t.Errorf("expected program gdal_calc, got %q", cfg.Calc.Program)
	}
	if cfg.Calc.NoData != -9999 {
		t.Errorf("expected nodata -9999, got %v", cfg.Calc.NoData)
	}
	if len(cfg.Calc.CreationOptions) != 2 || cfg.Calc.CreationOptions[0] != "COMPRESS=DEFLATE" {
		t.Errorf("unexpected creation options %v", cfg.Calc.CreationOptions)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected log level warn, got %q", cfg.Log.Level)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("UNADJ_CALC_NODATA", "lots")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("expected error for invalid UNADJ_CALC_NODATA")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.PopulationTable = "totals.yaml"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing population table", mutate: func(c *Config) { c.PopulationTable = "" }, wantErr: true},
		{name: "url template without file", mutate: func(c *Config) { c.Source.URLTemplate = "https://example.com/{ISO}" }, wantErr: true},
		{name: "url template with id", mutate: func(c *Config) { c.Source.URLTemplate = "https://example.com/{ISO}/{id}.tif" }},
		{name: "bucket ignores url template", mutate: func(c *Config) {
			c.Source.Bucket = "mem://"
			c.Source.URLTemplate = ""
		}},
		{name: "bucket key template without file", mutate: func(c *Config) {
			c.Source.Bucket = "mem://"
			c.Source.KeyTemplate = "{ISO}"
		}, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.Source.Timeout = -time.Second }, wantErr: true},
		{name: "missing program", mutate: func(c *Config) { c.Calc.Program = "" }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	base.PopulationTable = "totals.yaml"
	base.Publish.Bucket = "mem://"

	override := Config{
		Calc: CalcConfig{Program: "/usr/local/bin/gdal_calc.py"},
		Log:  LogConfig{Level: "debug"},
	}

	merged := base.Merge(override)

	if merged.PopulationTable != "totals.yaml" {
		t.Errorf("expected PopulationTable preserved, got %s", merged.PopulationTable)
	}
	if merged.Publish.Bucket != "mem://" {
		t.Errorf("expected Publish.Bucket preserved, got %s", merged.Publish.Bucket)
	}
	if merged.Calc.NoData != 9999 {
		t.Errorf("expected NoData preserved, got %v", merged.Calc.NoData)
	}
	if merged.Log.Format != "text" {
		t.Errorf("expected Log.Format preserved, got %s", merged.Log.Format)
	}

	if merged.Calc.Program != "/usr/local/bin/gdal_calc.py" {
		t.Errorf("expected Program overridden, got %s", merged.Calc.Program)
	}
	if merged.Log.Level != "debug" {
		t.Errorf("expected Log.Level overridden, got %s", merged.Log.Level)
	}
}

func TestLoadYAMLFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadYAMLInvalidTimeout(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("source:\n  timeout: soon\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid timeout")
	}
}
