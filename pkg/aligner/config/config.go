// Package config loads aligner settings from YAML files.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/aligner/pkg/aligner/diagonal"
	"github.com/cognicore/aligner/pkg/aligner/internalerr"
	"github.com/cognicore/aligner/pkg/aligner/model"
	"github.com/cognicore/aligner/pkg/aligner/ttable"
)

// Config is the root of an aligner configuration file
type Config struct {
	Model Model `yaml:"model"`
	Batch Batch `yaml:"batch"`
	Table Table `yaml:"table"`
}

// Model holds the alignment model settings
type Model struct {
	Reverse         bool    `yaml:"reverse"`
	UseNull         bool    `yaml:"use_null"`
	FavorDiagonal   bool    `yaml:"favor_diagonal"`
	ProbAlignNull   float64 `yaml:"prob_align_null"`
	DiagonalTension float64 `yaml:"diagonal_tension"`
	Partition       string  `yaml:"partition"` // direct | closed
}

// Batch holds the batch scheduling settings
type Batch struct {
	Workers     int    `yaml:"workers"` // 0 = GOMAXPROCS
	Grain       int    `yaml:"grain"`
	ErrorPolicy string `yaml:"error_policy"` // abort | skip
}

// Table holds the translation table settings
type Table struct {
	Floor            float64 `yaml:"floor"`
	Shards           int     `yaml:"shards"`
	VariationalBayes bool    `yaml:"variational_bayes"`
	Alpha            float64 `yaml:"alpha"`
}

// Default returns the configuration used for keys missing from a file.
func Default() *Config {
	mo := model.DefaultOptions()
	to := ttable.DefaultOptions()
	return &Config{
		Model: Model{
			UseNull:         mo.UseNull,
			FavorDiagonal:   mo.FavorDiagonal,
			ProbAlignNull:   mo.ProbAlignNull,
			DiagonalTension: mo.DiagonalTension,
			Partition:       mo.Partition.String(),
		},
		Batch: Batch{
			Grain:       mo.Grain,
			ErrorPolicy: mo.ErrorPolicy.String(),
		},
		Table: Table{
			Floor:  to.Floor,
			Shards: to.Shards,
			Alpha:  to.Alpha,
		},
	}
}

// Load reads and validates a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enum values
func (c *Config) Validate() error {
	if _, err := c.ModelOptions(nil); err != nil {
		return err
	}
	if !(c.Table.Floor > 0) {
		return fmt.Errorf("%w: table.floor must be > 0, got %v", internalerr.ErrInvalidConfig, c.Table.Floor)
	}
	if c.Table.Shards < 0 {
		return fmt.Errorf("%w: table.shards must be >= 0, got %d", internalerr.ErrInvalidConfig, c.Table.Shards)
	}
	if c.Table.VariationalBayes && !(c.Table.Alpha > 0) {
		return fmt.Errorf("%w: table.alpha must be > 0 with variational_bayes, got %v", internalerr.ErrInvalidConfig, c.Table.Alpha)
	}
	return nil
}

// ModelOptions converts the model and batch sections into model.Options.
// logger may be nil.
func (c *Config) ModelOptions(logger *slog.Logger) (model.Options, error) {
	partition, err := diagonal.ParseMethod(c.Model.Partition)
	if err != nil {
		return model.Options{}, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	policy, err := model.ParseErrorPolicy(c.Batch.ErrorPolicy)
	if err != nil {
		return model.Options{}, err
	}
	opts := model.Options{
		Reverse:         c.Model.Reverse,
		UseNull:         c.Model.UseNull,
		FavorDiagonal:   c.Model.FavorDiagonal,
		ProbAlignNull:   c.Model.ProbAlignNull,
		DiagonalTension: c.Model.DiagonalTension,
		Partition:       partition,
		Workers:         c.Batch.Workers,
		Grain:           c.Batch.Grain,
		ErrorPolicy:     policy,
		Logger:          logger,
	}
	if err := opts.Validate(); err != nil {
		return model.Options{}, err
	}
	return opts, nil
}

// TableOptions converts the table section into ttable.Options.
func (c *Config) TableOptions() ttable.Options {
	return ttable.Options{
		Floor:            c.Table.Floor,
		Shards:           c.Table.Shards,
		VariationalBayes: c.Table.VariationalBayes,
		Alpha:            c.Table.Alpha,
	}
}
