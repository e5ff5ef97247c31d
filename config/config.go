// Package config loads the forecast pipeline configuration from environment
// variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/grid"
	"github.com/Noofbiz/gridcast/log"
)

// EnvPrefix is the prefix of every environment variable, e.g.
// GRIDCAST_DATA_SERIES or GRIDCAST_FORECAST_STEPS.
const EnvPrefix = "GRIDCAST"

// Config holds all pipeline settings.
type Config struct {
	Data     DataConfig     `yaml:"data" split_words:"true"`
	Model    ModelConfig    `yaml:"model" split_words:"true"`
	Forecast ForecastConfig `yaml:"forecast" split_words:"true"`
	Remap    RemapConfig    `yaml:"remap" split_words:"true"`
	Output   OutputConfig   `yaml:"output" split_words:"true"`
	Logging  LoggingConfig  `yaml:"logging" split_words:"true"`
}

// DataConfig describes the input series and how windows are cut from it.
type DataConfig struct {
	// Series is a netCDF file with a predictors variable.
	Series string `yaml:"series" split_words:"true" validate:"required"`
	// Scale is an optional netCDF file with mean/std per varlev. When set the
	// series is scaled before the rollout and the forecast is scaled back.
	Scale string `yaml:"scale" split_words:"true"`
	// Selection lists the varlevs the model predicts, e.g. z/500. Empty
	// selects every varlev in the series.
	Selection       []string `yaml:"selection" split_words:"true"`
	InputTimeSteps  int      `yaml:"input_time_steps" split_words:"true" validate:"min=1"`
	OutputTimeSteps int      `yaml:"output_time_steps" split_words:"true" validate:"min=1"`
	Insolation      bool     `yaml:"insolation" split_words:"true"`
	Layout          string   `yaml:"layout" split_words:"true" validate:"oneof=first last channels_first channels_last"`
}

// ModelConfig describes the predictor.
type ModelConfig struct {
	// Kind is "mlp" for weights loaded from Path, "tensor" for the same
	// weights evaluated on stacked gomlx tensors, or "analog" for the
	// nearest-neighbor ensemble built from the series itself.
	Kind string `yaml:"kind" split_words:"true" validate:"oneof=mlp tensor analog"`
	Path string `yaml:"path" split_words:"true" validate:"required_unless=Kind analog"`
	// K and Sims configure the analog predictor.
	K    int   `yaml:"k" split_words:"true" validate:"min=1"`
	Sims int   `yaml:"sims" split_words:"true" validate:"min=0"`
	Seed int64 `yaml:"seed" split_words:"true"`
	// MaxBatch caps initializations per predictor call; 0 means unlimited.
	MaxBatch int `yaml:"max_batch" split_words:"true" validate:"min=0"`
	// Workers is the number of batches rolled out at once.
	Workers int `yaml:"workers" split_words:"true" validate:"min=1"`
}

// ForecastConfig selects initializations and the number of lead times.
type ForecastConfig struct {
	// Inits are snapshot indices. Empty means every index with enough history.
	Inits []int `yaml:"inits" split_words:"true" validate:"dive,min=0"`
	Steps int   `yaml:"steps" split_words:"true" validate:"min=1"`
}

// RemapConfig enables the lat/lon output. Remapping is skipped when no map
// files are given.
type RemapConfig struct {
	Forward string `yaml:"forward" split_words:"true" validate:"required_with=Inverse"`
	Inverse string `yaml:"inverse" split_words:"true" validate:"required_with=Forward"`
	NLat    int    `yaml:"nlat" split_words:"true" validate:"required_with=Inverse,min=0"`
	NLon    int    `yaml:"nlon" split_words:"true" validate:"required_with=Inverse,min=0"`
	// Selection restricts which varlevs are remapped. Empty remaps all.
	Selection []string `yaml:"selection" split_words:"true"`
}

// OutputConfig controls what the pipeline writes.
type OutputConfig struct {
	Dir     string `yaml:"dir" split_words:"true" validate:"required"`
	NetCDF  bool   `yaml:"netcdf" split_words:"true"`
	Archive bool   `yaml:"archive" split_words:"true"`
	Plots   bool   `yaml:"plots" split_words:"true"`
	// Scores writes RMSE and bias against the input series, with a
	// persistence baseline.
	Scores bool `yaml:"scores" split_words:"true"`
}

// LoggingConfig mirrors log.Options.
type LoggingConfig struct {
	Level      string `yaml:"level" split_words:"true" validate:"oneof=debug info warn error"`
	Dir        string `yaml:"dir" split_words:"true"`
	File       string `yaml:"file" split_words:"true"`
	MaxSizeMB  int    `yaml:"max_size_mb" split_words:"true" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" split_words:"true" validate:"min=0"`
	MaxAgeDays int    `yaml:"max_age_days" split_words:"true" validate:"min=0"`
	Compress   bool   `yaml:"compress" split_words:"true"`
	Stderr     bool   `yaml:"stderr" split_words:"true"`
}

// Default returns the configuration produced by an empty environment and no
// file. Read starts from it. It does not pass Validate until the required
// paths are set.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			InputTimeSteps:  2,
			OutputTimeSteps: 1,
			Insolation:      true,
			Layout:          "first",
		},
		Model:    ModelConfig{Kind: "mlp", K: 8, Workers: 1},
		Forecast: ForecastConfig{Steps: 4},
		Output:   OutputConfig{Dir: "output", NetCDF: true, Archive: true, Plots: true, Scores: true},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "logs",
			File:       "gridcast.log",
			MaxSizeMB:  64,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
			Stderr:     true,
		},
	}
}

// Read builds a configuration from defaults and environment variables, then
// overlays the YAML file at path when path is not empty. Keys present in the
// file win over the environment. The result is not validated.
func Read(path string) (*Config, error) {
	cfg := Default()
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Load is Read followed by Validate.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks struct constraints and that every label parses.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	if _, err := c.Data.ChannelLayout(); err != nil {
		return err
	}
	if _, err := c.Data.VarLevels(); err != nil {
		return fmt.Errorf("data.selection: %w", err)
	}
	if _, err := c.Remap.VarLevels(); err != nil {
		return fmt.Errorf("remap.selection: %w", err)
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) { return yaml.Marshal(c) }

// ChannelLayout parses Layout.
func (d DataConfig) ChannelLayout() (datasets.Layout, error) {
	return datasets.ParseLayout(d.Layout)
}

// VarLevels parses Selection.
func (d DataConfig) VarLevels() ([]datasets.VarLevel, error) {
	return datasets.ParseVarLevels(d.Selection)
}

// GeneratorConfig converts the data section into a datasets.Config.
func (d DataConfig) GeneratorConfig() (datasets.Config, error) {
	layout, err := d.ChannelLayout()
	if err != nil {
		return datasets.Config{}, err
	}
	sel, err := d.VarLevels()
	if err != nil {
		return datasets.Config{}, err
	}
	return datasets.Config{
		InputTimeSteps:  d.InputTimeSteps,
		OutputTimeSteps: d.OutputTimeSteps,
		Selection:       sel,
		AddInsolation:   d.Insolation,
		Layout:          layout,
	}, nil
}

// Enabled reports whether map files are configured.
func (r RemapConfig) Enabled() bool { return r.Forward != "" && r.Inverse != "" }

// LatLon returns the target grid.
func (r RemapConfig) LatLon() grid.Topology { return grid.LatLon(r.NLat, r.NLon) }

// VarLevels parses Selection.
func (r RemapConfig) VarLevels() ([]datasets.VarLevel, error) {
	return datasets.ParseVarLevels(r.Selection)
}

// Options converts the logging section into log.Options.
func (l LoggingConfig) Options() log.Options {
	return log.Options{
		Level:      l.Level,
		Dir:        l.Dir,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
		Stderr:     l.Stderr,
	}
}
