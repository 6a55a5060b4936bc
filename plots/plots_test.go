package plots

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/pbnvs/unitreg/gamlss"
	"github.com/pbnvs/unitreg/statmodel"
)

func fitted(t *testing.T) *gamlss.Results {
	t.Helper()
	rng := rand.New(rand.NewPCG(5, 6))
	fam := gamlss.NewFamily(gamlss.KumaraswamyFamily)
	n := 200
	y := make([]float64, n)
	x := make([]float64, n)
	for i := range y {
		x[i] = rng.NormFloat64()
		y[i] = fam.Rand(1/(1+math.Exp(1-0.4*x[i])), 2, rng)
	}
	ds, err := statmodel.NewDataset([][]float64{y, x}, []string{"y", "x"})
	require.NoError(t, err)
	m, err := gamlss.NewModel(ds, "y ~ x").Family(fam).Done()
	require.NoError(t, err)
	rslt, err := m.Fit()
	require.NoError(t, err)
	return rslt
}

func nonEmpty(t *testing.T, path string) {
	t.Helper()
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, fi.Size(), int64(0))
}

func TestPlots(t *testing.T) {

	rslt := fitted(t)
	dir := t.TempDir()
	resid := rslt.QuantileResid()

	p := filepath.Join(dir, "hist.png")
	require.NoError(t, Histogram(rslt.Response(), 0, rslt, "Response", p))
	nonEmpty(t, p)

	p = filepath.Join(dir, "hist_plain.pdf")
	require.NoError(t, Histogram(rslt.Response(), 10, nil, "Response", p))
	nonEmpty(t, p)

	p = filepath.Join(dir, "qq.png")
	require.NoError(t, QQPlot(resid, "Normal Q-Q", p))
	nonEmpty(t, p)

	p = filepath.Join(dir, "worm.png")
	require.NoError(t, WormPlot(resid, "Worm plot", p))
	nonEmpty(t, p)

	p = filepath.Join(dir, "index.svg")
	require.NoError(t, ResidIndex(resid, "Residuals", p))
	nonEmpty(t, p)

	p = filepath.Join(dir, "obsfit.png")
	require.NoError(t, ObservedFitted(rslt.Response(), rslt.FittedMu(), "Observed vs fitted", p))
	nonEmpty(t, p)

	assert.Error(t, ObservedFitted([]float64{1}, nil, "", filepath.Join(dir, "x.png")))
	assert.Error(t, QQPlot(nil, "", filepath.Join(dir, "x.png")))
	assert.Error(t, WormPlot(resid, "", filepath.Join(dir, "x.unknown")))
}

func TestWormPoints(t *testing.T) {

	resid := []float64{0.3, -1.2, 0.8, 0.1, -0.4, 1.9, -0.1, 0.5, -0.7, 1.1, 0}
	z, d, band := WormPoints(resid)

	n := len(resid)
	require.Len(t, z, n)
	assert.True(t, floats.EqualApprox(z, gamlss.NormalQuantiles(n), 1e-12))

	r := sorted(resid)
	for i := range z {
		assert.InDelta(t, r[i]-z[i], d[i], 1e-12)
		assert.Greater(t, band[i], 0.0)
	}

	// The median point: p = 1/2, z = 0, phi(0) = 1/sqrt(2 pi).
	assert.InDelta(t, 0, z[5], 1e-12)
	assert.InDelta(t, 1.96*math.Sqrt(0.25/11)*math.Sqrt(2*math.Pi), band[5], 1e-9)

	// The bands widen in the tails.
	assert.Greater(t, band[0], band[5])
	assert.InDelta(t, band[0], band[n-1], 1e-9)
}
