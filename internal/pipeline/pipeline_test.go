package pipeline

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pbnvs/unitreg/gamlss"
	"github.com/pbnvs/unitreg/internal/config"
)

// writeData writes a synthetic municipal dataset with the response in
// percent, a state column and one row with a missing covariate.
func writeData(t *testing.T, n int) string {
	t.Helper()

	rng := rand.New(rand.NewPCG(99, 100))
	fam := gamlss.NewFamily(gamlss.BetaFamily)
	ufs := []string{"BA", "SP", "RS", "GO", "AM"}
	re := []float64{0.3, -0.2, -0.3, 0, 0.2}

	var b strings.Builder
	b.WriteString("MUNICIPALITY,UF,PBNVS,MHDI_I,MHDI_E\n")
	for i := 0; i < n; i++ {
		k := i % len(ufs)
		x1 := 0.7 + 0.05*rng.NormFloat64()
		x2 := 0.65 + 0.06*rng.NormFloat64()
		eta := -2.5 - 8*(x1-0.7) + re[k]
		y := fam.Rand(1/(1+math.Exp(-eta)), 0.15, rng)
		fmt.Fprintf(&b, "M%d,%s,%.4f,%.4f,%.4f\n", i, ufs[k], 100*y, x1, x2)
	}
	b.WriteString("MX,SP,5.0,NA,0.6\n")

	path := filepath.Join(t.TempDir(), "votes.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testConfig(t *testing.T, path string) *config.Config {
	cfg := config.Default()
	cfg.Data.Path = path
	cfg.Data.Covariates = []string{"MHDI_I", "MHDI_E"}
	cfg.Data.Region = ""
	cfg.Data.TestFraction = 0.2
	cfg.Model.Families = []string{"BE", "UW"}
	cfg.Model.Concurrency = 2
	cfg.Step.Criterion = "bic"
	cfg.Output.Dir = filepath.Join(t.TempDir(), "out")
	return cfg
}

func TestRun(t *testing.T) {

	cfg := testConfig(t, writeData(t, 250))
	out, err := Run(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, 250, out.Data.NumObs())
	assert.Equal(t, 1, out.Data.Dropped)
	assert.True(t, out.Data.Rescaled)
	assert.Equal(t, 200, out.Train.NumObs())
	assert.Equal(t, 50, out.Test.NumObs())
	assert.Len(t, out.Desc, 3)
	assert.Len(t, out.ByRegion, 5)

	// Fixed order: by family, fixed effects first.
	require.Len(t, out.Fits, 4)
	var names []string
	for _, f := range out.Fits {
		require.NoError(t, f.Err)
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"BE", "BE_re", "UW", "UW_re"}, names)

	require.Len(t, out.Comparison, 4)
	assert.True(t, out.Comparison[0].Best)
	for k := 1; k < 4; k++ {
		assert.LessOrEqual(t, out.Comparison[k-1].AIC, out.Comparison[k].AIC)
		assert.NotNil(t, out.Comparison[k].Holdout)
	}
	best := out.BestFit()
	require.NotNil(t, best)
	assert.Equal(t, out.Comparison[0].Family, best.Family.Name)

	require.NotNil(t, out.Step)
	assert.Equal(t, best.Family.Name, out.StepFamily)
	assert.True(t, out.Step.Formula.Has("MHDI_I"))

	for _, f := range out.Files {
		fi, err := os.Stat(f)
		require.NoError(t, err, f)
		assert.Greater(t, fi.Size(), int64(0), f)
	}
	for _, na := range []string{"descriptive.csv", "descriptive_region.csv", "comparison.csv", "stepwise.csv",
		"summary_BE_re.txt", "report.md", "report.html", "worm_" + best.Name() + ".png"} {
		_, err := os.Stat(filepath.Join(cfg.Output.Dir, na))
		assert.NoError(t, err, na)
	}

	md, err := os.ReadFile(filepath.Join(cfg.Output.Dir, "report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "## Model comparison")
	assert.Contains(t, string(md), "## Stepwise selection")
}

func TestFailedFits(t *testing.T) {

	cfg := testConfig(t, writeData(t, 60))
	cfg.Data.TestFraction = 0
	cfg.Model.SigmaFormula = "~ NOPE"
	logger := zaptest.NewLogger(t)

	_, train, test, err := LoadData(cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, test)

	fits, err := FitAll(context.Background(), cfg, train, logger)
	require.NoError(t, err)
	require.Len(t, fits, 4)
	for _, f := range fits {
		assert.Error(t, f.Err)
	}

	rows := Compare(fits, nil, logger)
	require.Len(t, rows, 4)
	for _, r := range rows {
		assert.NotEmpty(t, r.Err)
		assert.False(t, r.Best)
	}

	_, err = StepFamily(cfg, rows)
	assert.Error(t, err)

	// The run itself completes and reports the failures.
	out, err := Run(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, out.BestFit())
	assert.Nil(t, out.Step)
}

func TestFitFamily(t *testing.T) {

	cfg := testConfig(t, writeData(t, 120))
	logger := zaptest.NewLogger(t)

	fit, err := FitFamily(cfg, "KW", true, logger)
	require.NoError(t, err)
	assert.Equal(t, "KW_re", fit.Name())
	assert.Equal(t, "PBNVS ~ 1 + MHDI_I + MHDI_E + re(REGION)", fit.Formula)
	assert.True(t, fit.Results.GAMLSS().HasRandom())

	_, err = FitFamily(cfg, "GAMMA", false, logger)
	assert.Error(t, err)

	cfg.Data.UF = ""
	_, err = FitFamily(cfg, "KW", true, logger)
	assert.Error(t, err)
}

func TestCanceled(t *testing.T) {

	cfg := testConfig(t, writeData(t, 60))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, cfg, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, context.Canceled)
}

// One family fails and the others are fit: the failure is ranked last
// and the best of the remaining fits is flagged.
func TestPartialFailure(t *testing.T) {

	cfg := testConfig(t, writeData(t, 120))
	cfg.Data.TestFraction = 0
	cfg.Data.UF = ""
	logger := zaptest.NewLogger(t)

	_, train, _, err := LoadData(cfg, logger)
	require.NoError(t, err)

	// Without a region only the fixed effects models are fit.
	fits, err := FitAll(context.Background(), cfg, train, logger)
	require.NoError(t, err)
	require.Len(t, fits, 2)
	assert.Equal(t, "BE", fits[0].Name())
	assert.Equal(t, "UW", fits[1].Name())

	bad := *cfg
	bad.Model.SigmaFormula = "~ NOPE"
	fits[0] = FitOne(&bad, train, fits[0].Family, false, logger)
	require.Error(t, fits[0].Err)
	require.NoError(t, fits[1].Err)

	rows := Compare(fits, nil, logger)
	require.Len(t, rows, 2)
	assert.Equal(t, "UW", rows[0].Family)
	assert.True(t, rows[0].Best)
	assert.Empty(t, rows[0].Err)
	assert.Equal(t, "BE", rows[1].Family)
	assert.False(t, rows[1].Best)
	assert.NotEmpty(t, rows[1].Err)

	out := &Outcome{Fits: fits, Comparison: rows}
	best := out.BestFit()
	require.NotNil(t, best)
	assert.Equal(t, "UW", best.Name())

	fam, err := StepFamily(cfg, rows)
	require.NoError(t, err)
	assert.Equal(t, "UW", fam.Name)
}
