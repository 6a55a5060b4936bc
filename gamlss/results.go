package gamlss

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pbnvs/unitreg/statmodel"
)

// Results describes the results of a fitted model.
type Results struct {
	statmodel.BaseResults

	model *Model

	// Fitted distribution parameters and linear predictors
	mu, sigma       []float64
	etaMu, etaSigma []float64

	// Variance and effective degrees of freedom of the random intercepts
	tau2 float64
	edf  float64

	converged bool

	resid []float64
}

func (m *Model) newResults(coeff, vcov []float64, tau2, edf float64, conv bool) *Results {

	n := m.NumObs()
	rslt := &Results{
		BaseResults: statmodel.NewBaseResults(m, m.dataLogLike(coeff), coeff, m.Names(), vcov),
		model:       m,
		mu:          make([]float64, n),
		sigma:       make([]float64, n),
		etaMu:       make([]float64, n),
		etaSigma:    make([]float64, n),
		tau2:        tau2,
		edf:         edf,
		converged:   conv,
	}

	m.predictors(coeff, rslt.etaMu, rslt.etaSigma)
	for i := range rslt.mu {
		rslt.mu[i] = m.muLink.InvLink(rslt.etaMu[i])
		rslt.sigma[i] = m.sigmaLink.InvLink(rslt.etaSigma[i])
	}

	return rslt
}

// GAMLSS returns the model that was fit.
func (rslt *Results) GAMLSS() *Model {
	return rslt.model
}

// Family returns the response distribution.
func (rslt *Results) Family() *Family {
	return rslt.model.fam
}

// Converged returns false if the optimizer did not report convergence.
func (rslt *Results) Converged() bool {
	return rslt.converged
}

// NumObs returns the number of observations used in the fit.
func (rslt *Results) NumObs() int {
	return rslt.model.NumObs()
}

// Df returns the model degrees of freedom: the number of fixed
// coefficients plus the effective degrees of freedom of the random
// intercepts.
func (rslt *Results) Df() float64 {
	return float64(rslt.model.NumFixed()) + rslt.edf
}

// RandomEdf returns the effective degrees of freedom of the random intercepts.
func (rslt *Results) RandomEdf() float64 {
	return rslt.edf
}

// Tau2 returns the estimated variance of the random intercepts, or zero
// for a model without random effects.
func (rslt *Results) Tau2() float64 {
	if !rslt.model.HasRandom() {
		return 0
	}
	return rslt.tau2
}

// GlobalDeviance returns -2 times the log-likelihood.
func (rslt *Results) GlobalDeviance() float64 {
	return statmodel.GlobalDeviance(rslt.LogLike())
}

// GAIC returns the generalized AIC with penalty k per degree of freedom.
func (rslt *Results) GAIC(k float64) float64 {
	return statmodel.GAIC(rslt.LogLike(), rslt.Df(), k)
}

// AIC returns the Akaike information criterion.
func (rslt *Results) AIC() float64 {
	return statmodel.AIC(rslt.LogLike(), rslt.Df())
}

// BIC returns the Bayesian information criterion.
func (rslt *Results) BIC() float64 {
	return statmodel.BIC(rslt.LogLike(), rslt.Df(), rslt.NumObs())
}

// FittedMu returns the fitted location of every observation.
func (rslt *Results) FittedMu() []float64 {
	return rslt.mu
}

// FittedSigma returns the fitted sigma of every observation.
func (rslt *Results) FittedSigma() []float64 {
	return rslt.sigma
}

// LinearPredictor returns the fitted linear predictor for mu.
func (rslt *Results) LinearPredictor() []float64 {
	return rslt.etaMu
}

// Response returns the observed response.
func (rslt *Results) Response() []float64 {
	return rslt.model.y
}

// RandomEffects returns the predicted random intercept of every level of
// the grouping factor, or nil if the model has no random effects.
func (rslt *Results) RandomEffects() map[string]float64 {
	if !rslt.model.HasRandom() {
		return nil
	}
	_, _, re := rslt.model.split(rslt.Params())
	out := make(map[string]float64, len(re))
	for k, v := range rslt.model.levels {
		out[v] = re[k]
	}
	return out
}

// Predict returns mu and sigma for new data.  The location mu is the
// point forecast: the mean for the Beta and Simplex families, the median
// for the others.
func (rslt *Results) Predict(data *statmodel.Dataset) ([]float64, []float64, error) {
	return rslt.model.predict(rslt.Params(), data)
}

// QuantileResid returns the normalized quantile residuals, the standard
// normal quantiles of the fitted distribution function at the response.
func (rslt *Results) QuantileResid() []float64 {

	if rslt.resid != nil {
		return rslt.resid
	}

	fam := rslt.model.fam
	rslt.resid = make([]float64, len(rslt.mu))
	for i, y := range rslt.model.y {
		p := fam.CDF(y, rslt.mu[i], rslt.sigma[i])
		p = math.Min(math.Max(p, 1e-16), 1-1e-16)
		rslt.resid[i] = distuv.UnitNormal.Quantile(p)
	}

	return rslt.resid
}

// Accuracy compares the fitted locations to the observed responses.
func (rslt *Results) Accuracy() (statmodel.Accuracy, error) {
	return statmodel.ForecastAccuracy(rslt.model.y, rslt.mu)
}

// NullLogLike returns the log-likelihood of the intercept-only model of
// the same family, fit to the same data.
func (rslt *Results) NullLogLike() (float64, error) {

	m := rslt.model
	if len(m.muFormula.Terms) == 0 && !m.HasRandom() && len(m.sigmaFormula.Terms) == 0 {
		return rslt.LogLike(), nil
	}

	f := &Formula{Response: m.muFormula.Response, Intercept: true}
	nm := NewModel(m.data, f.String()).Family(m.fam).MuLink(m.muLink).SigmaLink(m.sigmaLink)
	nm.log = m.log
	nm, err := nm.Done()
	if err != nil {
		return 0, err
	}
	nr, err := nm.Fit()
	if err != nil {
		return 0, fmt.Errorf("null model: %w", err)
	}

	return nr.LogLike(), nil
}

// Rsq returns the generalized R-squared relative to the intercept-only model.
func (rslt *Results) Rsq() (float64, error) {
	ll0, err := rslt.NullLogLike()
	if err != nil {
		return math.NaN(), err
	}
	return statmodel.GenRsq(rslt.LogLike(), ll0, rslt.NumObs()), nil
}

// ResidSummary summarizes the distribution of the quantile residuals,
// which should be close to standard normal for a well-specified model.
type ResidSummary struct {
	Mean     float64
	Variance float64
	Skewness float64

	// Kurtosis is the (non-excess) coefficient of kurtosis, 3 for the normal.
	Kurtosis float64

	// Filliben is the correlation of the sorted residuals with the
	// normal quantiles.
	Filliben float64
}

// SummarizeResid returns the moments and the Filliben correlation of r.
func SummarizeResid(r []float64) ResidSummary {

	mn, va := stat.MeanVariance(r, nil)

	x := make([]float64, len(r))
	copy(x, r)
	sort.Float64s(x)

	return ResidSummary{
		Mean:     mn,
		Variance: va,
		Skewness: stat.Skew(r, nil),
		Kurtosis: stat.ExKurtosis(r, nil) + 3,
		Filliben: stat.Correlation(x, NormalQuantiles(len(x)), nil),
	}
}

// ResidSummary summarizes the quantile residuals of the fit.
func (rslt *Results) ResidSummary() ResidSummary {
	return SummarizeResid(rslt.QuantileResid())
}

// PPoints returns the plotting positions (i - a) / (n + 1 - 2a), with
// a = 3/8 for n <= 10 and a = 1/2 otherwise.
func PPoints(n int) []float64 {
	a := 0.5
	if n <= 10 {
		a = 3.0 / 8
	}
	p := make([]float64, n)
	for i := range p {
		p[i] = (float64(i+1) - a) / (float64(n) + 1 - 2*a)
	}
	return p
}

// NormalQuantiles returns the standard normal quantiles of PPoints(n).
func NormalQuantiles(n int) []float64 {
	q := PPoints(n)
	for i, p := range q {
		q[i] = distuv.UnitNormal.Quantile(p)
	}
	return q
}
