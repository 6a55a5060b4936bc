// Package config holds the settings of an analysis run.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pbnvs/unitreg/electoral"
	"github.com/pbnvs/unitreg/gamlss"
	"github.com/pbnvs/unitreg/statmodel"
)

// Config is the complete configuration of an analysis run.
type Config struct {
	Data   DataConfig   `yaml:"data"`
	Model  ModelConfig  `yaml:"model"`
	Step   StepConfig   `yaml:"step"`
	Output OutputConfig `yaml:"output"`
}

// DataConfig locates the dataset and maps its columns.
type DataConfig struct {
	Path       string   `yaml:"path"`
	Sheet      string   `yaml:"sheet"`
	Response   string   `yaml:"response"`
	Covariates []string `yaml:"covariates"`
	Region     string   `yaml:"region"`
	UF         string   `yaml:"uf"`
	ID         string   `yaml:"id"`

	// Fraction of rows held out for forecast accuracy, 0 for none
	TestFraction float64 `yaml:"test_fraction"`
	Seed         uint64  `yaml:"seed"`
}

// ModelConfig controls the model fits.
type ModelConfig struct {
	Families     []string `yaml:"families"`
	SigmaFormula string   `yaml:"sigma_formula"`
	Scale        string   `yaml:"scale"`
	MaxIter      int      `yaml:"max_iter"`

	// Number of fits run at the same time, 0 for the number of CPUs
	Concurrency int `yaml:"concurrency"`
}

// StepConfig controls stepwise covariate selection.
type StepConfig struct {
	Direction string `yaml:"direction"`

	// "aic", "bic" or a number giving the penalty per degree of freedom
	Criterion string `yaml:"criterion"`
	MaxSteps  int    `yaml:"max_steps"`

	// Family used for selection, empty for the best family of the comparison
	Family string `yaml:"family"`

	// Include the regional random intercept in the selected models
	Random bool `yaml:"random"`
}

// OutputConfig controls the files written.
type OutputConfig struct {
	Dir        string `yaml:"dir"`
	PlotFormat string `yaml:"plot_format"`
	Report     string `yaml:"report"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Path:         "data/pbnvs.xlsx",
			Response:     "PBNVS",
			Covariates:   []string{"MHDI_I", "MHDI_L", "MHDI_E"},
			Region:       "REGION",
			UF:           "UF",
			ID:           "MUNICIPALITY",
			TestFraction: 0,
			Seed:         20221030,
		},
		Model: ModelConfig{
			Families:     []string{"BE", "SIMPLEX", "KW", "UW", "RUBXII"},
			SigmaFormula: "~ 1",
			Scale:        "none",
			MaxIter:      1000,
		},
		Step: StepConfig{
			Direction: "both",
			Criterion: "aic",
		},
		Output: OutputConfig{
			Dir:        "out",
			PlotFormat: "png",
			Report:     "report",
		},
	}
}

// Load reads a YAML configuration file on top of the defaults.  An empty
// path gives the defaults.  Environment overrides are applied last.
func Load(path string) (*Config, error) {

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// LoadDotEnv loads environment variables from the given .env files, or
// from ./.env if none are given.  Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("UNITREG_DATA"); path != "" {
		c.Data.Path = path
	}
	if dir := os.Getenv("UNITREG_OUT"); dir != "" {
		c.Output.Dir = dir
	}
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {

	var errs []error
	if c.Data.Path == "" {
		errs = append(errs, errors.New("data.path is required"))
	}
	if c.Data.Response == "" {
		errs = append(errs, errors.New("data.response is required"))
	}
	if c.Data.TestFraction < 0 || c.Data.TestFraction >= 1 {
		errs = append(errs, fmt.Errorf("data.test_fraction must be in [0, 1), got %v", c.Data.TestFraction))
	}
	if _, err := c.Families(); err != nil {
		errs = append(errs, err)
	}
	if _, err := statmodel.ParseScaleType(c.Model.Scale); err != nil {
		errs = append(errs, err)
	}
	if _, err := gamlss.ParseDirection(c.Step.Direction); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.StepPenalty(100); err != nil {
		errs = append(errs, err)
	}
	if c.Step.Family != "" {
		if _, err := gamlss.ParseFamily(c.Step.Family); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Output.Dir == "" {
		errs = append(errs, errors.New("output.dir is required"))
	}

	return errors.Join(errs...)
}

// Families returns the configured response distributions.
func (c *Config) Families() ([]*gamlss.Family, error) {
	if len(c.Model.Families) == 0 {
		return nil, errors.New("model.families is empty")
	}
	var fams []*gamlss.Family
	for _, na := range c.Model.Families {
		fam, err := gamlss.ParseFamily(na)
		if err != nil {
			return nil, err
		}
		fams = append(fams, fam)
	}
	return fams, nil
}

// StepPenalty returns the GAIC penalty per degree of freedom for a sample
// of size n.
func (c *Config) StepPenalty(n int) (float64, error) {
	switch s := strings.ToLower(strings.TrimSpace(c.Step.Criterion)); s {
	case "", "aic":
		return 2, nil
	case "bic":
		return math.Log(float64(n)), nil
	default:
		k := electoral.ParseNumber(s)
		if math.IsNaN(k) || k <= 0 {
			return 0, fmt.Errorf("unknown stepwise criterion %q", c.Step.Criterion)
		}
		return k, nil
	}
}

// Columns returns the column mapping of the dataset.
func (c *Config) Columns() electoral.Columns {
	return electoral.Columns{
		Response:   c.Data.Response,
		Covariates: c.Data.Covariates,
		Region:     c.Data.Region,
		UF:         c.Data.UF,
		ID:         c.Data.ID,
	}
}
