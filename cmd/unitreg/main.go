// Command unitreg fits distributional regression models for the
// proportion of blank and null votes in Brazilian municipalities.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pbnvs/unitreg/gamlss"
	"github.com/pbnvs/unitreg/internal/config"
	"github.com/pbnvs/unitreg/internal/logging"
	"github.com/pbnvs/unitreg/internal/pipeline"
	"github.com/pbnvs/unitreg/report"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dataPath   string
	outDir     string

	// fit flags
	family string
	random bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "unitreg",
	Short: "Distributional regression for blank and null votes",
	Long: `unitreg loads a municipal electoral dataset, describes it, fits Beta,
Simplex, Kumaraswamy, Unit Weibull and Reflected Unit Burr XII regressions
for the proportion of blank and null votes, with and without a regional
random intercept, compares the fits, selects covariates stepwise and draws
diagnostic plots.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		if err != nil {
			return err
		}
		cfg, err = loadConfig(configPath, dataPath, outDir)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Print descriptive statistics of the dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, _, _, err := pipeline.LoadData(cfg, logger)
		if err != nil {
			return err
		}
		desc, byRegion, err := pipeline.Describe(cfg, data, logger)
		if err != nil {
			return err
		}
		fmt.Println(report.DescriptiveMarkdown("variable", desc))
		if byRegion != nil {
			fmt.Println(report.DescriptiveMarkdown("region", byRegion))
		}
		return nil
	},
}

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit one family and print the model summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		fit, err := pipeline.FitFamily(cfg, family, random, logger)
		if err != nil {
			return err
		}
		rs := fit.Results
		s := rs.Summary()
		if r2, err := rs.Rsq(); err == nil {
			s.AddMessage(fmt.Sprintf("Generalized R-squared: %.4f", r2))
		}
		if acc, err := rs.Accuracy(); err == nil {
			s.AddMessage(fmt.Sprintf("MAPE: %.4f%%  MAE: %.6f  RMSE: %.6f", acc.MAPE, acc.MAE, acc.RMSE))
		}
		fmt.Println(s)
		return nil
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Fit all families and print the comparison table",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, train, test, err := pipeline.LoadData(cfg, logger)
		if err != nil {
			return err
		}
		fits, err := pipeline.FitAll(cmd.Context(), cfg, train, logger)
		if err != nil {
			return err
		}
		fmt.Println(report.ComparisonMarkdown(pipeline.Compare(fits, test, logger)))
		return nil
	},
}

var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Select the covariates stepwise by GAIC",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, train, test, err := pipeline.LoadData(cfg, logger)
		if err != nil {
			return err
		}

		var fam *gamlss.Family
		if cfg.Step.Family != "" {
			fam, err = gamlss.ParseFamily(cfg.Step.Family)
		} else {
			var fits []pipeline.Fit
			if fits, err = pipeline.FitAll(cmd.Context(), cfg, train, logger); err != nil {
				return err
			}
			fam, err = pipeline.StepFamily(cfg, pipeline.Compare(fits, test, logger))
		}
		if err != nil {
			return err
		}

		res, err := pipeline.Stepwise(cmd.Context(), cfg, train, fam, logger)
		if err != nil {
			return err
		}
		fmt.Println(report.StepMarkdown(res.Trace))
		fmt.Println(res.Results.Summary())
		return nil
	},
}

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Draw the diagnostic plots of one family",
	RunE: func(cmd *cobra.Command, args []string) error {
		fit, err := pipeline.FitFamily(cfg, family, random, logger)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
			return err
		}
		paths, err := pipeline.WritePlots(cfg, fit, cfg.Output.Dir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the complete analysis and write the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := pipeline.Run(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %d files to %s\n", len(out.Files), cfg.Output.Dir)
		fmt.Println(filepath.Join(cfg.Output.Dir, cfg.Output.Report+".html"))
		return nil
	},
}

// loadConfig builds the run configuration.  Later sources win: the
// defaults, the YAML file, the .env files and the environment, then the
// command line flags.
func loadConfig(path, data, out string, envFiles ...string) (*config.Config, error) {

	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if data != "" {
		c.Data.Path = data
	}
	if out != "" {
		c.Output.Dir = out
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dataPath, "data", "", "dataset (.xlsx or .csv), overrides the configuration")
	rootCmd.PersistentFlags().StringVarP(&outDir, "out", "o", "", "output directory, overrides the configuration")

	for _, c := range []*cobra.Command{fitCmd, plotCmd} {
		c.Flags().StringVarP(&family, "family", "f", "BE", "response distribution: BE, SIMPLEX, KW, UW or RUBXII")
		c.Flags().BoolVarP(&random, "random", "r", false, "add the regional random intercept")
	}

	rootCmd.AddCommand(describeCmd, fitCmd, compareCmd, stepCmd, plotCmd, runCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
