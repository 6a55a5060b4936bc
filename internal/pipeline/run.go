package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/pbnvs/unitreg/gamlss"
	"github.com/pbnvs/unitreg/internal/config"
	"github.com/pbnvs/unitreg/plots"
	"github.com/pbnvs/unitreg/report"
)

// Run executes the complete analysis and writes all output files to the
// configured directory.  A failed model fit is recorded in the comparison
// table and does not stop the run.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Outcome, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	dir := cfg.Output.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	out := &Outcome{}
	var err error

	step := func(name string) func() {
		logger.Info("step started", zap.String("step", name))
		t0 := time.Now()
		return func() {
			logger.Info("step finished", zap.String("step", name), zap.Duration("elapsed", time.Since(t0)))
		}
	}

	// 1. Load
	done := step("load")
	out.Data, out.Train, out.Test, err = LoadData(cfg, logger)
	if err != nil {
		return nil, err
	}
	done()

	// 2. Describe
	done = step("describe")
	out.Desc, out.ByRegion, err = Describe(cfg, out.Data, logger)
	if err != nil {
		return nil, err
	}
	if err := out.writeDescriptive(dir); err != nil {
		return nil, err
	}
	done()

	// 3. Fit
	done = step("fit")
	out.Fits, err = FitAll(ctx, cfg, out.Train, logger)
	if err != nil {
		return nil, err
	}
	for _, f := range out.Fits {
		if f.Err != nil {
			continue
		}
		path, err := writeString(dir, "summary_"+f.Name()+".txt", f.Results.Summary().String())
		if err != nil {
			return nil, err
		}
		out.Files = append(out.Files, path)
	}
	done()

	// 4. Compare
	done = step("compare")
	out.Comparison = Compare(out.Fits, out.Test, logger)
	path, err := writeFile(dir, "comparison.csv", func(f *os.File) error {
		return report.WriteComparisonCSV(f, out.Comparison)
	})
	if err != nil {
		return nil, err
	}
	out.Files = append(out.Files, path)
	done()

	// 5. Stepwise selection
	done = step("stepwise")
	fam, err := StepFamily(cfg, out.Comparison)
	if err != nil {
		logger.Warn("stepwise selection skipped", zap.Error(err))
	} else {
		out.StepFamily = fam.Name
		out.Step, err = Stepwise(ctx, cfg, out.Train, fam, logger)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("stepwise selection failed", zap.Error(err))
		} else {
			path, err := writeFile(dir, "stepwise.csv", func(f *os.File) error {
				return report.WriteStepCSV(f, out.Step.Trace)
			})
			if err != nil {
				return nil, err
			}
			out.Files = append(out.Files, path)
		}
	}
	done()

	// 6. Plots
	done = step("plots")
	if best := out.BestFit(); best != nil {
		paths, err := WritePlots(cfg, best, dir)
		if err != nil {
			return nil, err
		}
		out.Files = append(out.Files, paths...)
	}
	done()

	// 7. Report
	done = step("report")
	paths, err := out.Document(cfg).WriteFiles(dir, cfg.Output.Report)
	if err != nil {
		return nil, err
	}
	out.Files = append(out.Files, paths...)
	done()

	logger.Info("analysis finished", zap.String("dir", dir), zap.Int("files", len(out.Files)))

	return out, nil
}

// BestFit returns the fit ranked first in the comparison, or nil.
func (out *Outcome) BestFit() *Fit {
	best, ok := report.Best(out.Comparison)
	if !ok {
		return nil
	}
	for i, f := range out.Fits {
		if f.Err == nil && f.Family.Name == best.Family && f.Random == best.Random {
			return &out.Fits[i]
		}
	}
	return nil
}

func (out *Outcome) writeDescriptive(dir string) error {

	path, err := writeFile(dir, "descriptive.csv", func(f *os.File) error {
		return report.WriteDescriptiveCSV(f, "variable", out.Desc)
	})
	if err != nil {
		return err
	}
	out.Files = append(out.Files, path)

	if out.ByRegion == nil {
		return nil
	}
	path, err = writeFile(dir, "descriptive_region.csv", func(f *os.File) error {
		return report.WriteDescriptiveCSV(f, "region", out.ByRegion)
	})
	if err != nil {
		return err
	}
	out.Files = append(out.Files, path)

	return nil
}

// WritePlots draws the diagnostic plots of a fit.
func WritePlots(cfg *config.Config, fit *Fit, dir string) ([]string, error) {

	rslt := fit.Results
	resid := rslt.QuantileResid()
	name := fit.Name()

	type plotFunc func(path string) error
	todo := []struct {
		base string
		draw plotFunc
	}{
		{"hist_response", func(p string) error {
			return plots.Histogram(rslt.Response(), 0, nil, cfg.Data.Response, p)
		}},
		{"hist_" + name, func(p string) error {
			return plots.Histogram(rslt.Response(), 0, rslt, cfg.Data.Response+", fitted "+rslt.Family().Long, p)
		}},
		{"qq_" + name, func(p string) error {
			return plots.QQPlot(resid, "Normal Q-Q plot, "+name, p)
		}},
		{"worm_" + name, func(p string) error {
			return plots.WormPlot(resid, "Worm plot, "+name, p)
		}},
		{"resid_" + name, func(p string) error {
			return plots.ResidIndex(resid, "Quantile residuals, "+name, p)
		}},
		{"fitted_" + name, func(p string) error {
			return plots.ObservedFitted(rslt.Response(), rslt.FittedMu(), "Observed and fitted, "+name, p)
		}},
	}

	var paths []string
	for _, t := range todo {
		path := filepath.Join(dir, plotName(cfg, t.base))
		if err := t.draw(path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	return paths, nil
}

// Document assembles the Markdown report of the run.
func (out *Outcome) Document(cfg *config.Config) *report.Document {

	doc := report.NewDocument("Blank and null votes: distributional regression")

	d := out.Data
	doc.AddSection("Data", fmt.Sprintf("File `%s`: %d municipalities used, %d rows dropped (missing values or %s outside (0, 1)).%s\n",
		cfg.Data.Path, d.NumObs(), d.Dropped, cfg.Data.Response, rescaledNote(d.Rescaled)))
	doc.AddSection("Descriptive statistics", report.DescriptiveMarkdown("variable", out.Desc))
	if out.ByRegion != nil {
		doc.AddSection(cfg.Data.Response+" by region", report.DescriptiveMarkdown("region", out.ByRegion))
	}

	cmp := report.ComparisonMarkdown(out.Comparison)
	if out.Test != nil {
		cmp = fmt.Sprintf("Fit on %d rows, holdout accuracy on %d rows.\n\n", out.Train.NumObs(), out.Test.NumObs()) + cmp
	}
	doc.AddSection("Model comparison", cmp+"\nModels are sorted by AIC, the best one is marked with *.\n")

	if best := out.BestFit(); best != nil {
		doc.AddText("Best model: "+best.Name(), best.Results.Summary().String())
	}

	if out.Step != nil {
		doc.AddSection(fmt.Sprintf("Stepwise selection (%s)", out.StepFamily), report.StepMarkdown(out.Step.Trace))
		doc.AddText("Selected model", out.Step.Results.Summary().String())
	}

	return doc
}

func rescaledNote(rescaled bool) string {
	if rescaled {
		return " The response was given in percent and divided by 100."
	}
	return ""
}

// FitFamily fits a single family on the training data, for the fit command.
func FitFamily(cfg *config.Config, name string, random bool, logger *zap.Logger) (*Fit, error) {

	fam, err := gamlss.ParseFamily(name)
	if err != nil {
		return nil, err
	}
	_, train, _, err := LoadData(cfg, logger)
	if err != nil {
		return nil, err
	}
	if random && !hasRegion(train) {
		return nil, fmt.Errorf("the data has no region variable for the random intercept")
	}

	fit := FitOne(cfg, train, fam, random, logger)
	if fit.Err != nil {
		return nil, fit.Err
	}

	return &fit, nil
}
