package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/aligner/pkg/aligner/diagonal"
	"github.com/cognicore/aligner/pkg/aligner/internalerr"
	"github.com/cognicore/aligner/pkg/aligner/model"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}

	opts, err := cfg.ModelOptions(nil)
	if err != nil {
		t.Fatalf("ModelOptions: %v", err)
	}
	if !opts.UseNull || !opts.FavorDiagonal {
		t.Error("Default should enable null alignment and the diagonal prior")
	}
	if opts.DiagonalTension != model.DefaultDiagonalTension {
		t.Errorf("Expected tension %v, got %v", model.DefaultDiagonalTension, opts.DiagonalTension)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	data := []byte(`
model:
  reverse: true
  diagonal_tension: 7.5
  partition: closed
batch:
  workers: 3
  error_policy: skip
table:
  variational_bayes: true
  alpha: 0.5
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	opts, err := cfg.ModelOptions(nil)
	if err != nil {
		t.Fatalf("ModelOptions: %v", err)
	}
	if !opts.Reverse {
		t.Error("reverse should be set")
	}
	if opts.DiagonalTension != 7.5 {
		t.Errorf("Expected tension 7.5, got %v", opts.DiagonalTension)
	}
	if opts.Partition != diagonal.ClosedForm {
		t.Errorf("Expected closed-form partition, got %v", opts.Partition)
	}
	if opts.Workers != 3 || opts.ErrorPolicy != model.Skip {
		t.Errorf("Unexpected batch options: workers=%d policy=%v", opts.Workers, opts.ErrorPolicy)
	}
	// untouched keys keep their defaults
	if !opts.UseNull || opts.ProbAlignNull != model.DefaultProbAlignNull {
		t.Error("unset model keys should keep defaults")
	}

	to := cfg.TableOptions()
	if !to.VariationalBayes || to.Alpha != 0.5 {
		t.Errorf("Unexpected table options: %+v", to)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := map[string]string{
		"null mass":    "model:\n  prob_align_null: 1.0\n",
		"tension":      "model:\n  diagonal_tension: -2\n",
		"partition":    "model:\n  partition: magic\n",
		"policy":       "batch:\n  error_policy: retry\n",
		"workers":      "batch:\n  workers: -1\n",
		"floor":        "table:\n  floor: 0\n",
		"alpha":        "table:\n  variational_bayes: true\n  alpha: 0\n",
		"syntax error": "model: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			if !errors.Is(err, internalerr.ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aligner.yaml")
	if err := os.WriteFile(path, []byte("model:\n  use_null: false\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.UseNull {
		t.Error("use_null should be false")
	}
}

func TestLoadNonExistent(t *testing.T) {
	if _, err := Load("/nonexistent/aligner.yaml"); err == nil {
		t.Error("Should error on nonexistent config")
	}
}
