// Package pipeline runs the analysis of blank and null votes: load the
// data, describe it, fit every family with and without the regional
// random intercept, compare the fits, select covariates stepwise for the
// best family, draw diagnostic plots and write the report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/optimize"

	"github.com/pbnvs/unitreg/electoral"
	"github.com/pbnvs/unitreg/gamlss"
	"github.com/pbnvs/unitreg/internal/config"
	"github.com/pbnvs/unitreg/internal/logging"
	"github.com/pbnvs/unitreg/report"
	"github.com/pbnvs/unitreg/statmodel"
)

// Fit is the outcome of fitting one family.
type Fit struct {
	Family  *gamlss.Family
	Random  bool
	Formula string
	Results *gamlss.Results
	Err     error
}

// Name identifies the fit in file names and logs, e.g. "BE" or "BE_re".
func (f Fit) Name() string {
	if f.Random {
		return f.Family.Name + "_re"
	}
	return f.Family.Name
}

// Outcome collects everything produced by Run.
type Outcome struct {
	Data     *electoral.Data
	Train    *statmodel.Dataset
	Test     *statmodel.Dataset
	Desc     []electoral.Descriptive
	ByRegion []electoral.Descriptive

	Fits       []Fit
	Comparison []report.ModelRow
	Step       *gamlss.StepResult
	StepFamily string

	// Paths of all files written
	Files []string
}

// LoadData reads the dataset and splits off the test set, if configured.
func LoadData(cfg *config.Config, logger *zap.Logger) (*electoral.Data, *statmodel.Dataset, *statmodel.Dataset, error) {

	data, err := electoral.Load(cfg.Data.Path, cfg.Data.Sheet, cfg.Columns())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading %s: %w", cfg.Data.Path, err)
	}
	logger.Info("data loaded",
		zap.String("path", cfg.Data.Path),
		zap.Int("rows", data.NumObs()),
		zap.Int("dropped", data.Dropped),
		zap.Bool("rescaled", data.Rescaled),
		zap.Bool("region", hasRegion(data.Dataset)))

	train, test, err := electoral.Split(data.Dataset, cfg.Data.TestFraction, cfg.Data.Seed)
	if err != nil {
		return nil, nil, nil, err
	}
	if test != nil {
		logger.Info("holdout split", zap.Int("train", train.NumObs()), zap.Int("test", test.NumObs()))
	}

	return data, train, test, nil
}

func hasRegion(ds *statmodel.Dataset) bool {
	_, ok := ds.Factor(electoral.RegionVar)
	return ok
}

// Describe computes the descriptive statistics of all variables and of
// the response by region.
func Describe(cfg *config.Config, data *electoral.Data, logger *zap.Logger) ([]electoral.Descriptive, []electoral.Descriptive, error) {

	desc, err := electoral.DescribeAll(data.Dataset)
	if err != nil {
		return nil, nil, err
	}

	var byRegion []electoral.Descriptive
	if reg, ok := data.Factor(electoral.RegionVar); ok {
		y, _ := data.Var(cfg.Data.Response)
		if byRegion, err = electoral.DescribeByGroup(y, reg); err != nil {
			return nil, nil, err
		}
	}

	for _, d := range desc {
		logger.Debug("descriptive", zap.String("variable", d.Name), zap.Float64("mean", d.Mean),
			zap.Float64("sd", d.SD), zap.Float64("median", d.Median))
	}

	return desc, byRegion, nil
}

// MuFormula returns the formula for mu with all configured covariates.
func MuFormula(cfg *config.Config, covariates []string, random bool) string {
	f := &gamlss.Formula{Response: cfg.Data.Response, Terms: covariates, Intercept: true}
	if random {
		f.Random = []string{electoral.RegionVar}
	}
	return f.String()
}

// NewModel builds an unfitted model of the configured form.
func NewModel(cfg *config.Config, ds *statmodel.Dataset, fam *gamlss.Family, formula string, logger *zap.Logger) (*gamlss.Model, error) {

	scale, err := statmodel.ParseScaleType(cfg.Model.Scale)
	if err != nil {
		return nil, err
	}

	m := gamlss.NewModel(ds, formula).Family(fam).CovariateScale(scale).
		Log(logging.StdLog(logger, "gamlss"))
	if cfg.Model.SigmaFormula != "" {
		m = m.SigmaFormula(cfg.Model.SigmaFormula)
	}
	if cfg.Model.MaxIter > 0 {
		m = m.OptSettings(&optimize.Settings{
			GradientThreshold: 1e-4,
			MajorIterations:   cfg.Model.MaxIter,
		})
	}

	return m.Done()
}

// FitOne fits a single family.
func FitOne(cfg *config.Config, ds *statmodel.Dataset, fam *gamlss.Family, random bool, logger *zap.Logger) Fit {

	fit := Fit{
		Family:  fam,
		Random:  random,
		Formula: MuFormula(cfg, cfg.Data.Covariates, random),
	}

	m, err := NewModel(cfg, ds, fam, fit.Formula, logger)
	if err == nil {
		fit.Results, err = m.Fit()
	}
	if err != nil {
		fit.Err = err
		logger.Warn("fit failed", zap.String("model", fit.Name()), zap.Error(err))
		return fit
	}

	logger.Info("fit done",
		zap.String("model", fit.Name()),
		zap.Float64("aic", fit.Results.AIC()),
		zap.Float64("bic", fit.Results.BIC()),
		zap.Bool("converged", fit.Results.Converged()))

	return fit
}

// FitAll fits every configured family without and, if the data has a
// region, with the regional random intercept.  The fits run concurrently
// and are returned in a fixed order: by family, fixed effects first.
// Failed fits are returned with their error.
func FitAll(ctx context.Context, cfg *config.Config, ds *statmodel.Dataset, logger *zap.Logger) ([]Fit, error) {

	fams, err := cfg.Families()
	if err != nil {
		return nil, err
	}

	randoms := []bool{false}
	if hasRegion(ds) {
		randoms = append(randoms, true)
	} else {
		logger.Warn("no region variable, fitting fixed effects models only")
	}

	fits := make([]Fit, len(fams)*len(randoms))

	conc := cfg.Model.Concurrency
	if conc <= 0 {
		conc = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conc)

	for i, fam := range fams {
		for j, random := range randoms {
			k := i*len(randoms) + j
			fam, random := fam, random
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				fits[k] = FitOne(cfg, ds, fam, random, logger)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fits, nil
}

// Compare computes the comparison table of the fits, ranked by AIC.
func Compare(fits []Fit, test *statmodel.Dataset, logger *zap.Logger) []report.ModelRow {

	var rows []report.ModelRow
	for _, f := range fits {
		if f.Err != nil {
			rows = append(rows, report.FailedRow(f.Family.Name, f.Random, f.Formula, f.Err))
			continue
		}
		row, err := report.NewModelRow(f.Results, test)
		if err != nil {
			logger.Warn("comparison failed", zap.String("model", f.Name()), zap.Error(err))
			row = report.FailedRow(f.Family.Name, f.Random, f.Formula, err)
		}
		rows = append(rows, row)
	}
	report.Rank(rows)

	if best, ok := report.Best(rows); ok {
		logger.Info("best model", zap.String("family", best.Family), zap.Bool("random", best.Random),
			zap.Float64("aic", best.AIC))
	}

	return rows
}

// Stepwise selects the covariates of the mu formula for the given family.
func Stepwise(ctx context.Context, cfg *config.Config, ds *statmodel.Dataset, fam *gamlss.Family, logger *zap.Logger) (*gamlss.StepResult, error) {

	dir, err := gamlss.ParseDirection(cfg.Step.Direction)
	if err != nil {
		return nil, err
	}
	k, err := cfg.StepPenalty(ds.NumObs())
	if err != nil {
		return nil, err
	}

	start := cfg.Data.Covariates
	if dir == gamlss.Forward {
		start = nil
	}
	random := cfg.Step.Random && hasRegion(ds)

	m, err := NewModel(cfg, ds, fam, MuFormula(cfg, start, random), logger)
	if err != nil {
		return nil, err
	}

	logger.Info("stepwise selection", zap.String("family", fam.Name), zap.Stringer("direction", dir),
		zap.Float64("k", k))

	res, err := gamlss.StepGAIC(ctx, m, gamlss.StepOptions{
		Direction:   dir,
		Scope:       cfg.Data.Covariates,
		K:           k,
		MaxSteps:    cfg.Step.MaxSteps,
		Concurrency: cfg.Model.Concurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("stepwise selection: %w", err)
	}

	logger.Info("stepwise selection done", zap.String("formula", res.Formula.String()),
		zap.Int("steps", len(res.Trace)-1))

	return res, nil
}

// StepFamily returns the family used for stepwise selection: the
// configured one, or else the best family of the comparison.
func StepFamily(cfg *config.Config, rows []report.ModelRow) (*gamlss.Family, error) {
	if cfg.Step.Family != "" {
		return gamlss.ParseFamily(cfg.Step.Family)
	}
	best, ok := report.Best(rows)
	if !ok {
		return nil, errors.New("no model could be fit")
	}
	return gamlss.ParseFamily(best.Family)
}

// writeFile creates a file in dir and calls write on it.
func writeFile(dir, name string, write func(f *os.File) error) (string, error) {

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := write(f); err != nil {
		f.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}

	return path, f.Close()
}

func writeString(dir, name, s string) (string, error) {
	return writeFile(dir, name, func(f *os.File) error {
		_, err := f.WriteString(s)
		return err
	})
}

// plotName returns a file name with the configured plot format.
func plotName(cfg *config.Config, base string) string {
	ext := strings.TrimPrefix(strings.ToLower(cfg.Output.PlotFormat), ".")
	if ext == "" {
		ext = "png"
	}
	return base + "." + ext
}
