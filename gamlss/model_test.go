package gamlss

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/pbnvs/unitreg/statmodel"
)

// simData simulates n observations from the family with
// linkMu(mu) = b0 + b1*x1 + re[g], a constant sigma and an unrelated
// covariate x2.  The levels of the grouping factor g are g0, g1, ...
func simData(ft FamilyType, n int, seed uint64, b0, b1, sigma float64, re []float64) *statmodel.Dataset {

	rng := rand.New(rand.NewPCG(seed, seed+1))
	fam := NewFamily(ft)
	link := NewLink(fam.MuLink)

	y := make([]float64, n)
	x1 := make([]float64, n)
	x2 := make([]float64, n)
	var g []string
	if re != nil {
		g = make([]string, n)
	}

	for i := 0; i < n; i++ {
		x1[i] = rng.NormFloat64()
		x2[i] = rng.NormFloat64()
		eta := b0 + b1*x1[i]
		if re != nil {
			k := i % len(re)
			g[i] = fmt.Sprintf("g%d", k)
			eta += re[k]
		}
		y[i] = fam.Rand(link.InvLink(eta), sigma, rng)
	}

	ds, err := statmodel.NewDataset([][]float64{y, x1, x2}, []string{"y", "x1", "x2"})
	if err != nil {
		panic(err)
	}
	if g != nil {
		if err := ds.AddFactor("g", g); err != nil {
			panic(err)
		}
	}

	return ds
}

func fitModel(t *testing.T, ds *statmodel.Dataset, ft FamilyType, formula string) *Results {
	t.Helper()
	m, err := NewModel(ds, formula).Family(NewFamily(ft)).Done()
	require.NoError(t, err)
	rslt, err := m.Fit()
	require.NoError(t, err)
	return rslt
}

func TestFitRecovery(t *testing.T) {

	for _, tc := range []struct {
		ft       FamilyType
		sigma    float64
		sigmaEta float64
	}{
		{BetaFamily, 0.2, math.Log(0.2 / 0.8)},
		{KumaraswamyFamily, 2, math.Log(2)},
		{UnitWeibullFamily, 2, math.Log(2)},
		{RUBXIIFamily, 1.5, math.Log(1.5)},
	} {
		ds := simData(tc.ft, 800, 1, -1, 0.5, tc.sigma, nil)
		rslt := fitModel(t, ds, tc.ft, "y ~ x1")
		name := rslt.Family().Name

		assert.Equal(t, []string{"mu:(Intercept)", "mu:x1", "sigma:(Intercept)"}, rslt.Names(), name)

		par := rslt.Params()
		assert.InDelta(t, -1, par[0], 0.15, name)
		assert.InDelta(t, 0.5, par[1], 0.1, name)
		assert.InDelta(t, tc.sigmaEta, par[2], 0.2, name)

		for j, se := range rslt.StdErr() {
			assert.True(t, se > 0 && se < 1, "%s: standard error %d is %v", name, j, se)
		}

		assert.Equal(t, 800, rslt.NumObs())
		assert.Equal(t, 3.0, rslt.Df())
		assert.InDelta(t, -2*rslt.LogLike()+6, rslt.AIC(), 1e-9)
		assert.InDelta(t, rslt.AIC(), rslt.GAIC(2), 1e-9)
		assert.InDelta(t, -2*rslt.LogLike()+3*math.Log(800), rslt.BIC(), 1e-9)
		assert.Equal(t, 0.0, rslt.Tau2())
		assert.Nil(t, rslt.RandomEffects())

		rs := rslt.ResidSummary()
		assert.InDelta(t, 0, rs.Mean, 0.15, name)
		assert.InDelta(t, 1, rs.Variance, 0.2, name)
		assert.Greater(t, rs.Filliben, 0.99, name)
	}
}

func TestFitSimplex(t *testing.T) {

	ds := simData(SimplexFamily, 300, 2, -0.5, 0.4, 1, nil)
	rslt := fitModel(t, ds, SimplexFamily, "y ~ x1")

	par := rslt.Params()
	assert.InDelta(t, -0.5, par[0], 0.2)
	assert.InDelta(t, 0.4, par[1], 0.15)
	assert.InDelta(t, 0, par[2], 0.25)
}

// The internal covariate scaling must not change the estimates.
func TestCovariateScale(t *testing.T) {

	ds := simData(BetaFamily, 500, 3, -0.5, 0.3, 0.3, nil)

	// Put x1 on a large scale.
	x1, _ := ds.Var("x1")
	xl := make([]float64, len(x1))
	for i, v := range x1 {
		xl[i] = 1000 * v
	}
	require.NoError(t, ds.AddVar("xl", xl))

	var par [][]float64
	for _, st := range []statmodel.ScaleType{statmodel.NoScale, statmodel.L2Norm, statmodel.Variance} {
		m, err := NewModel(ds, "y ~ xl").Family(NewFamily(BetaFamily)).CovariateScale(st).Done()
		require.NoError(t, err)
		rslt, err := m.Fit()
		require.NoError(t, err)
		par = append(par, rslt.Params())
	}

	for k := 1; k < len(par); k++ {
		if !floats.EqualApprox(par[0], par[k], 1e-3) {
			t.Errorf("estimates depend on scaling: %v %v", par[0], par[k])
		}
	}
	assert.InDelta(t, 0.0003, par[1][1], 0.0001)
}

func TestPredict(t *testing.T) {

	ds := simData(UnitWeibullFamily, 400, 4, -1, 0.5, 2, nil)
	rslt := fitModel(t, ds, UnitWeibullFamily, "y ~ x1")

	mu, sigma, err := rslt.Predict(ds)
	require.NoError(t, err)
	assert.True(t, floats.EqualApprox(mu, rslt.FittedMu(), 1e-12))
	assert.True(t, floats.EqualApprox(sigma, rslt.FittedSigma(), 1e-12))

	mu2, _, err := rslt.Predict(ds.Rows([]int{5, 1}))
	require.NoError(t, err)
	assert.Equal(t, []float64{mu[5], mu[1]}, mu2)

	bad, _ := statmodel.NewDataset([][]float64{{0.5}}, []string{"x2"})
	_, _, err = rslt.Predict(bad)
	assert.Error(t, err)

	acc, err := rslt.Accuracy()
	require.NoError(t, err)
	assert.Equal(t, 400, acc.N)
	assert.True(t, acc.MAE > 0 && acc.MAE <= acc.RMSE)

	r2, err := rslt.Rsq()
	require.NoError(t, err)
	assert.True(t, r2 > 0 && r2 < 1, "R2=%v", r2)

	ll0, err := rslt.NullLogLike()
	require.NoError(t, err)
	assert.Less(t, ll0, rslt.LogLike())
}

func TestRandomIntercept(t *testing.T) {

	re := []float64{-0.6, -0.3, -0.1, 0.1, 0.3, 0.6}
	ds := simData(BetaFamily, 900, 5, -1, 0.5, 0.2, re)
	rslt := fitModel(t, ds, BetaFamily, "y ~ x1 + re(g)")

	m := rslt.GAMLSS()
	assert.True(t, m.HasRandom())
	assert.Equal(t, 9, m.NumParams())
	assert.Equal(t, 3, m.NumFixed())
	assert.Equal(t, "re(g):g0", rslt.Names()[3])

	tau2 := rslt.Tau2()
	assert.True(t, tau2 > 0.02 && tau2 < 1.5, "tau2=%v", tau2)
	edf := rslt.RandomEdf()
	assert.True(t, edf > 3 && edf < 6, "edf=%v", edf)
	assert.InDelta(t, 3+edf, rslt.Df(), 1e-12)

	// The reported variance is the one the coefficients and their
	// covariance were computed at: edf = q - tr(V_bb) / tau2.
	vc := rslt.VCov()
	require.NotNil(t, vc)
	var tr float64
	for j := 3; j < 9; j++ {
		tr += vc[j*9+j]
	}
	assert.InDelta(t, 6-tr/tau2, edf, 1e-9)

	b := rslt.RandomEffects()
	require.Len(t, b, 6)
	assert.Less(t, b["g0"], b["g2"])
	assert.Less(t, b["g2"], b["g5"])

	par := rslt.Params()
	assert.InDelta(t, 0.5, par[1], 0.1)

	// Unseen levels get a zero random intercept.
	nd, _ := statmodel.NewDataset([][]float64{{0}}, []string{"x1"})
	require.NoError(t, nd.AddFactor("g", []string{"new"}))
	mu, _, err := rslt.Predict(nd)
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-par[0])), mu[0], 1e-12)

	s := rslt.Summary().String()
	assert.True(t, strings.Contains(s, "tau2"))
	assert.True(t, strings.Contains(s, "re(g):g5"))
}

func TestFixedVariance(t *testing.T) {

	ds := simData(BetaFamily, 300, 6, -1, 0.5, 0.2, []float64{-0.4, 0, 0.4})
	m, err := NewModel(ds, "y ~ x1 + re(g)").Family(NewFamily(BetaFamily)).RandomVariance(0.5, true).Done()
	require.NoError(t, err)
	rslt, err := m.Fit()
	require.NoError(t, err)
	assert.Equal(t, 0.5, rslt.Tau2())

	// A tiny variance shrinks the random intercepts to zero.
	m, err = NewModel(ds, "y ~ x1 + re(g)").Family(NewFamily(BetaFamily)).RandomVariance(1e-8, true).Done()
	require.NoError(t, err)
	rslt, err = m.Fit()
	require.NoError(t, err)
	for _, b := range rslt.RandomEffects() {
		assert.InDelta(t, 0, b, 1e-3)
	}
}

func TestDoneErrors(t *testing.T) {

	ds := simData(BetaFamily, 20, 7, 0, 0.5, 0.3, nil)
	beta := NewFamily(BetaFamily)

	_, err := NewModel(ds, "y ~ x1").Done()
	assert.Error(t, err, "missing family")

	_, err = NewModel(ds, "y ~ x3").Family(beta).Done()
	assert.Error(t, err, "unknown covariate")

	_, err = NewModel(ds, "z ~ x1").Family(beta).Done()
	assert.Error(t, err, "unknown response")

	_, err = NewModel(ds, "~ x1").Family(beta).Done()
	assert.Error(t, err, "no response")

	_, err = NewModel(ds, "y ~ x1 + re(h)").Family(beta).Done()
	assert.Error(t, err, "unknown grouping factor")

	_, err = NewModel(ds, "y ~ x1").Family(beta).Start([]float64{0, 0}).Done()
	assert.Error(t, err, "wrong number of starting values")

	_, err = NewModel(ds, "y ~ x1").Family(beta).SigmaFormula("~ re(x2)").Done()
	assert.Error(t, err, "random sigma")

	_, err = NewModel(ds, "y ~ x1").Family(beta).RandomVariance(-1, false).Done()
	assert.Error(t, err, "negative variance")

	small := ds.Rows([]int{0, 1, 2})
	_, err = NewModel(small, "y ~ x1 + x2").Family(beta).SigmaFormula("~ x1").Done()
	assert.Error(t, err, "too few observations")

	x1, _ := ds.Var("x1")
	out, _ := statmodel.NewDataset([][]float64{x1, x1}, []string{"y", "x1"})
	_, err = NewModel(out, "y ~ x1").Family(beta).Done()
	assert.Error(t, err, "response outside (0, 1)")

	_, err = NewModel(ds, "y ~ x1").Family(beta).Fit()
	assert.Error(t, err, "Fit before Done")
}

func TestSigmaFormula(t *testing.T) {

	rng := rand.New(rand.NewPCG(8, 9))
	fam := NewFamily(UnitWeibullFamily)
	n := 800
	y := make([]float64, n)
	x := make([]float64, n)
	for i := range y {
		x[i] = rng.NormFloat64()
		y[i] = fam.Rand(0.3, math.Exp(0.7+0.3*x[i]), rng)
	}
	ds, err := statmodel.NewDataset([][]float64{y, x}, []string{"y", "x"})
	require.NoError(t, err)

	m, err := NewModel(ds, "y ~ 1").Family(fam).SigmaFormula("~ x").Done()
	require.NoError(t, err)
	rslt, err := m.Fit()
	require.NoError(t, err)

	assert.Equal(t, []string{"mu:(Intercept)", "sigma:(Intercept)", "sigma:x"}, rslt.Names())
	par := rslt.Params()
	assert.InDelta(t, math.Log(0.3/0.7), par[0], 0.1)
	assert.InDelta(t, 0.7, par[1], 0.1)
	assert.InDelta(t, 0.3, par[2], 0.1)
}

func TestPPoints(t *testing.T) {

	p := PPoints(5)
	assert.InDelta(t, (1-0.375)/(5+0.25), p[0], 1e-12)
	assert.InDelta(t, 0.5, p[2], 1e-12)

	p = PPoints(20)
	assert.InDelta(t, 0.5/20, p[0], 1e-12)
	assert.InDelta(t, 19.5/20, p[19], 1e-12)

	q := NormalQuantiles(11)
	assert.InDelta(t, 0, q[5], 1e-12)
	assert.InDelta(t, -q[0], q[10], 1e-12)
}

func TestSummarizeResid(t *testing.T) {

	rng := rand.New(rand.NewPCG(10, 11))
	r := make([]float64, 5000)
	for i := range r {
		r[i] = rng.NormFloat64()
	}
	rs := SummarizeResid(r)
	assert.InDelta(t, 0, rs.Mean, 0.05)
	assert.InDelta(t, 1, rs.Variance, 0.06)
	assert.InDelta(t, 0, rs.Skewness, 0.15)
	assert.InDelta(t, 3, rs.Kurtosis, 0.3)
	assert.Greater(t, rs.Filliben, 0.998)
}

func TestProfile(t *testing.T) {

	ds := simData(BetaFamily, 500, 12, -1, 0.5, 0.2, nil)
	rslt := fitModel(t, ds, BetaFamily, "y ~ x1")

	_, err := NewProfiler(rslt, "mu:x9")
	assert.Error(t, err)

	pr, err := NewProfiler(rslt, "mu:x1")
	require.NoError(t, err)

	est := rslt.Params()[1]
	se := rslt.StdErr()[1]
	assert.InDelta(t, rslt.LogLike(), pr.LogLike(est), 1e-3)

	lo, hi, err := pr.ConfInt(0.95)
	require.NoError(t, err)
	assert.Less(t, lo, est)
	assert.Greater(t, hi, est)

	// Close to the Wald interval for a well-behaved likelihood.
	assert.InDelta(t, est-1.96*se, lo, 0.2*se)
	assert.InDelta(t, est+1.96*se, hi, 0.2*se)

	for k := 1; k < len(pr.Profile); k++ {
		assert.LessOrEqual(t, pr.Profile[k-1][0], pr.Profile[k][0])
	}
}
