package gamlss

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/pbnvs/unitreg/statmodel"
)

// Model represents a distributional regression model for a response on
// the open unit interval.  Both the location (mu) and the shape (sigma)
// of the response distribution depend on covariates through link
// functions, and the linear predictor for mu may contain a random
// intercept for the levels of a grouping factor.
type Model struct {
	data *statmodel.Dataset

	muFormula    *Formula
	sigmaFormula *Formula

	// The response distribution
	fam *Family

	// Link functions for the two distribution parameters
	muLink    *Link
	sigmaLink *Link

	// Starting values, optional
	start []float64

	// The internal scaling of the covariates.
	scaletype statmodel.ScaleType

	// Optimization settings
	settings *optimize.Settings

	// Optimization method
	method optimize.Method

	// If not nil, write log messages here
	log *log.Logger

	// Variance of the random intercepts.  If fixTau2 is false this
	// is the starting value for the variance estimation.
	tau2    float64
	fixTau2 bool

	// Maximum number of variance updates for random effects models
	maxOuter int

	// Errors from the builder methods, reported by Done
	errs []error

	// The response
	y []float64

	// Design matrices stored by column, and their column names
	xmu, xsigma         [][]float64
	muNames, sigmaNames []string

	// Scale factors for the mu columns followed by the sigma columns
	xn []float64

	// Random effect grouping: the level index of every observation
	reName string
	levels []string
	groups []int

	done bool
}

// NewModel creates a new model for the given data and mu formula, e.g.
// "PBNVS ~ MHDI_I + MHDI_E + re(REGION)".  The family must be set
// before calling Done.
func NewModel(data *statmodel.Dataset, formula string) *Model {

	m := &Model{
		data:     data,
		tau2:     0.1,
		maxOuter: 20,
	}

	f, err := ParseFormula(formula)
	if err != nil {
		m.errs = append(m.errs, err)
	} else if f.Response == "" {
		m.errs = append(m.errs, fmt.Errorf("formula %q has no response", formula))
	}
	m.muFormula = f
	m.sigmaFormula = &Formula{Intercept: true}

	return m
}

// Family sets the response distribution.
func (m *Model) Family(fam *Family) *Model {
	m.fam = fam
	return m
}

// SigmaFormula sets the formula for the sigma parameter, e.g. "~ x1".
// The default is an intercept only.
func (m *Model) SigmaFormula(formula string) *Model {
	f, err := ParseFormula(formula)
	if err != nil {
		m.errs = append(m.errs, err)
		return m
	}
	if len(f.Random) > 0 {
		m.errs = append(m.errs, errors.New("random terms are only supported for mu"))
	}
	m.sigmaFormula = f
	return m
}

// MuLink overrides the family's default link for mu.
func (m *Model) MuLink(link *Link) *Model {
	m.muLink = link
	return m
}

// SigmaLink overrides the family's default link for sigma.
func (m *Model) SigmaLink(link *Link) *Model {
	m.sigmaLink = link
	return m
}

// Start sets starting values for the fitting algorithm, on the scale of
// the coefficients (mu coefficients, then sigma coefficients, then random
// effects).
func (m *Model) Start(start []float64) *Model {
	m.start = start
	return m
}

// CovariateScale determines the type of internal scaling of the covariates.
// The default is to do no rescaling of covariates.
func (m *Model) CovariateScale(scaletype statmodel.ScaleType) *Model {
	m.scaletype = scaletype
	return m
}

// OptSettings allows the caller to provide an optimization settings
// value.
func (m *Model) OptSettings(s *optimize.Settings) *Model {
	m.settings = s
	return m
}

// OptMethod sets the optimization method from gonum.Optimize.
func (m *Model) OptMethod(method optimize.Method) *Model {
	m.method = method
	return m
}

// Log takes a Logger value that will be used to log the progress of the fit.
func (m *Model) Log(logger *log.Logger) *Model {
	m.log = logger
	return m
}

// RandomVariance sets the variance of the random intercepts.  If fixed is
// true the variance is held at this value, otherwise it is the starting
// value for its estimation.
func (m *Model) RandomVariance(tau2 float64, fixed bool) *Model {
	if tau2 <= 0 {
		m.errs = append(m.errs, fmt.Errorf("random effect variance must be positive, got %v", tau2))
	}
	m.tau2 = tau2
	m.fixTau2 = fixed
	return m
}

// MaxOuter sets the maximum number of random effect variance updates.
func (m *Model) MaxOuter(n int) *Model {
	m.maxOuter = n
	return m
}

func (m *Model) logf(format string, args ...interface{}) {
	if m.log != nil {
		m.log.Printf(format, args...)
	}
}

// design returns the columns of the design matrix defined by f using the
// variables in data.
func design(data *statmodel.Dataset, f *Formula) ([][]float64, []string, error) {

	n := data.NumObs()
	var cols [][]float64
	var names []string

	if f.Intercept {
		one := make([]float64, n)
		for i := range one {
			one[i] = 1
		}
		cols = append(cols, one)
		names = append(names, "(Intercept)")
	}

	for _, t := range f.Terms {
		x, ok := data.Var(t)
		if !ok {
			return nil, nil, fmt.Errorf("variable %q not found", t)
		}
		for i, v := range x {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, fmt.Errorf("variable %q has a missing value in row %d", t, i)
			}
		}
		cols = append(cols, x)
		names = append(names, t)
	}

	return cols, names, nil
}

// factorValues returns the grouping variable as strings, converting a
// numeric column if needed.
func factorValues(data *statmodel.Dataset, name string) ([]string, error) {
	if g, ok := data.Factor(name); ok {
		return g, nil
	}
	if x, ok := data.Var(name); ok {
		g := make([]string, len(x))
		for i, v := range x {
			g[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return g, nil
	}
	return nil, fmt.Errorf("grouping variable %q not found", name)
}

// Done completes definition of a model.  After calling Done the model can
// be fit by calling the Fit method.
func (m *Model) Done() (*Model, error) {

	if len(m.errs) > 0 {
		return nil, errors.Join(m.errs...)
	}
	if m.fam == nil {
		return nil, errors.New("the family must be defined before calling Done")
	}
	if m.muLink == nil {
		m.muLink = NewLink(m.fam.MuLink)
	}
	if m.sigmaLink == nil {
		m.sigmaLink = NewLink(m.fam.SigmaLink)
	}

	y, ok := m.data.Var(m.muFormula.Response)
	if !ok {
		return nil, fmt.Errorf("outcome variable %q not found", m.muFormula.Response)
	}
	var bad int
	for _, v := range y {
		if !(v > 0 && v < 1) {
			bad++
		}
	}
	if bad > 0 {
		return nil, fmt.Errorf("outcome variable %q has %d values outside (0, 1)", m.muFormula.Response, bad)
	}
	m.y = y

	var err error
	m.xmu, m.muNames, err = design(m.data, m.muFormula)
	if err != nil {
		return nil, fmt.Errorf("mu formula: %w", err)
	}
	if len(m.xmu) == 0 {
		return nil, errors.New("mu formula has no terms")
	}
	m.xsigma, m.sigmaNames, err = design(m.data, m.sigmaFormula)
	if err != nil {
		return nil, fmt.Errorf("sigma formula: %w", err)
	}

	m.levels, m.groups, m.reName = nil, nil, ""
	if len(m.muFormula.Random) == 1 {
		m.reName = m.muFormula.Random[0]
		g, err := factorValues(m.data, m.reName)
		if err != nil {
			return nil, err
		}
		idx := make(map[string]int)
		for _, v := range g {
			if v == "" {
				return nil, fmt.Errorf("grouping variable %q has missing values", m.reName)
			}
			idx[v] = 0
		}
		for v := range idx {
			m.levels = append(m.levels, v)
		}
		sort.Strings(m.levels)
		for k, v := range m.levels {
			idx[v] = k
		}
		m.groups = make([]int, len(g))
		for i, v := range g {
			m.groups[i] = idx[v]
		}
	}

	if m.start != nil && len(m.start) != m.NumParams() {
		return nil, fmt.Errorf("%d starting values given for %d parameters", len(m.start), m.NumParams())
	}

	if n, p := m.NumObs(), len(m.xmu)+len(m.xsigma); n <= p {
		return nil, fmt.Errorf("%d observations are not enough for %d coefficients", n, p)
	}

	m.doScale()
	m.done = true

	return m, nil
}

// doScale calculates covariate scaling factors.
func (m *Model) doScale() {

	cols := append(append([][]float64(nil), m.xmu...), m.xsigma...)
	m.xn = make([]float64, len(cols))

	for j, x := range cols {
		m.xn[j] = 1
		if m.scaletype == statmodel.NoScale {
			continue
		}

		var ss float64
		constant := true
		for i := range x {
			ss += x[i] * x[i]
			if x[i] != x[0] {
				constant = false
			}
		}
		if constant || ss == 0 {
			continue
		}

		switch m.scaletype {
		case statmodel.L2Norm:
			m.xn[j] = math.Sqrt(ss)
		case statmodel.Variance:
			m.xn[j] = math.Sqrt(ss / float64(len(x)))
		}
	}
}

// NumParams returns the number of coefficients in the model, including
// one per level of the random effect.
func (m *Model) NumParams() int {
	return len(m.xmu) + len(m.xsigma) + len(m.levels)
}

// NumObs returns the number of observations.
func (m *Model) NumObs() int {
	return len(m.y)
}

// NumFixed returns the number of fixed-effect coefficients.
func (m *Model) NumFixed() int {
	return len(m.xmu) + len(m.xsigma)
}

// FamilyName returns the short name of the response distribution.
func (m *Model) FamilyName() string {
	return m.fam.Name
}

// HasRandom returns true if the mu predictor has a random intercept.
func (m *Model) HasRandom() bool {
	return len(m.levels) > 0
}

// MuFormula returns the formula for mu.
func (m *Model) MuFormula() *Formula {
	return m.muFormula
}

// Names returns the names of all coefficients.
func (m *Model) Names() []string {
	var na []string
	for _, v := range m.muNames {
		na = append(na, "mu:"+v)
	}
	for _, v := range m.sigmaNames {
		na = append(na, "sigma:"+v)
	}
	for _, v := range m.levels {
		na = append(na, fmt.Sprintf("re(%s):%s", m.reName, v))
	}
	return na
}

// split divides a coefficient vector into its mu, sigma and random parts.
func (m *Model) split(coeff []float64) ([]float64, []float64, []float64) {
	pm := len(m.xmu)
	ps := len(m.xsigma)
	return coeff[:pm], coeff[pm : pm+ps], coeff[pm+ps:]
}

// predictors computes the mu and sigma linear predictors.
func (m *Model) predictors(coeff []float64, etaMu, etaSigma []float64) {

	bmu, bsig, re := m.split(coeff)

	zero(etaMu)
	for j, x := range m.xmu {
		addScaled(etaMu, bmu[j], x)
	}
	for i, g := range m.groups {
		etaMu[i] += re[g]
	}

	zero(etaSigma)
	for j, x := range m.xsigma {
		addScaled(etaSigma, bsig[j], x)
	}
}

// dataLogLike returns the log-likelihood of the response at the given
// coefficients, not including the random effects penalty.
func (m *Model) dataLogLike(coeff []float64) float64 {

	n := m.NumObs()
	etaMu := make([]float64, n)
	etaSigma := make([]float64, n)
	m.predictors(coeff, etaMu, etaSigma)

	var ll float64
	for i, y := range m.y {
		mu := m.muLink.InvLink(etaMu[i])
		sigma := m.sigmaLink.InvLink(etaSigma[i])
		if !m.fam.Valid(mu, sigma) {
			return math.Inf(-1)
		}
		ll += m.fam.LogPDF(y, mu, sigma)
	}

	return ll
}

// penalty returns the log density of the random effects, up to a constant.
func (m *Model) penalty(coeff []float64, tau2 float64) float64 {
	_, _, re := m.split(coeff)
	var ss float64
	for _, b := range re {
		ss += b * b
	}
	return ss / (2 * tau2)
}

// LogLike returns the log-likelihood of the response at the given
// parameter values.  The random effects, if present, are treated as
// fixed at the values contained in the parameter.
func (m *Model) LogLike(params statmodel.Parameter) float64 {
	return m.dataLogLike(params.GetCoeff())
}

// PenalizedLogLike returns the log-likelihood minus the random effects
// penalty b'b / (2 tau2).
func (m *Model) PenalizedLogLike(params statmodel.Parameter, tau2 float64) float64 {
	coeff := params.GetCoeff()
	ll := m.dataLogLike(coeff)
	if m.HasRandom() {
		ll -= m.penalty(coeff, tau2)
	}
	return ll
}

// penalized is the model with the random effects penalty at a fixed
// variance, used for inference on all coefficients.
type penalized struct {
	m    *Model
	tau2 float64
}

func (p *penalized) NumParams() int {
	return p.m.NumParams()
}

func (p *penalized) NumObs() int {
	return p.m.NumObs()
}

func (p *penalized) LogLike(params statmodel.Parameter) float64 {
	return p.m.PenalizedLogLike(params, p.tau2)
}

// scaleCoeff maps coefficients to the internal (scaled covariate) coordinates.
func (m *Model) scaleCoeff(coeff []float64) []float64 {
	z := make([]float64, len(coeff))
	copy(z, coeff)
	for j, s := range m.xn {
		z[j] *= s
	}
	return z
}

// unscaleCoeff maps internal coordinates back to coefficients.
func (m *Model) unscaleCoeff(z []float64) []float64 {
	coeff := make([]float64, len(z))
	copy(coeff, z)
	for j, s := range m.xn {
		coeff[j] /= s
	}
	return coeff
}

// startValues returns starting coefficients: the least squares fit of the
// linked response for mu, and a grid search over the sigma intercept.
func (m *Model) startValues() []float64 {

	if m.start != nil {
		s := make([]float64, len(m.start))
		copy(s, m.start)
		return s
	}

	n := m.NumObs()
	pm := len(m.xmu)
	coeff := make([]float64, m.NumParams())

	ly := make([]float64, n)
	for i, y := range m.y {
		ly[i] = m.muLink.Link(y)
	}

	xm := mat.NewDense(n, pm, nil)
	for j, x := range m.xmu {
		for i := range x {
			xm.Set(i, j, x[i])
		}
	}
	var b mat.VecDense
	if err := b.SolveVec(xm, mat.NewVecDense(n, ly)); err == nil {
		for j := 0; j < pm; j++ {
			coeff[j] = b.AtVec(j)
		}
	} else {
		m.logf("%s: least squares starting values failed: %v", m.fam.Name, err)
		if m.muFormula.Intercept {
			coeff[0] = m.muLink.Link(mean(m.y))
		}
	}

	if !m.sigmaFormula.Intercept {
		return coeff
	}

	best := math.Inf(-1)
	bestEta := 0.0
	for eta := -6.0; eta <= 6; eta += 0.25 {
		coeff[pm] = eta
		ll := m.dataLogLike(coeff)
		if ll > best {
			best = ll
			bestEta = eta
		}
	}
	coeff[pm] = bestEta

	return coeff
}

// Fit estimates the parameters of the model and returns a results
// object.  For models with a random intercept, the coefficients are
// estimated by penalized maximum likelihood and the random effect
// variance is estimated by Schall's method: after each penalized fit
// it is set to b'b / edf, where edf = q - tr(V_bb) / tau2 is the
// effective number of random effect parameters.
func (m *Model) Fit() (*Results, error) {

	if !m.done {
		return nil, errors.New("Done must be called before Fit")
	}

	start := m.startValues()
	tau2 := m.tau2

	m.logf("%s: fitting %s, %d parameters", m.fam.Name, m.muFormula, m.NumParams())

	coeff, conv, err := m.fitPenalized(start, tau2)
	if err != nil {
		return nil, err
	}

	var vcov []float64
	edf := 0.0
	q := len(m.levels)

	for iter := 0; ; iter++ {

		vcov, err = statmodel.GetVcov(&penalized{m, tau2}, statmodel.NewGenericParameter(coeff))
		if err != nil {
			m.logf("%s: %v", m.fam.Name, err)
			vcov = nil
		}

		if q == 0 {
			break
		}

		// Effective degrees of freedom of the random effects.
		p := m.NumParams()
		var tr float64
		if vcov != nil {
			for j := p - q; j < p; j++ {
				tr += vcov[j*p+j]
			}
		}
		edf = float64(q) - tr/tau2
		if vcov == nil || edf < 1e-6 {
			edf = 1e-6
		}

		if m.fixTau2 || iter >= m.maxOuter {
			break
		}

		_, _, re := m.split(coeff)
		var ss float64
		for _, b := range re {
			ss += b * b
		}
		newTau2 := math.Min(math.Max(ss/edf, 1e-10), 1e4)
		m.logf("%s: variance update %d, tau2=%g, edf=%.3f", m.fam.Name, iter+1, newTau2, edf)

		// Stop at the variance used for the current coefficients.
		if math.Abs(newTau2-tau2) <= 1e-4*tau2 {
			break
		}
		tau2 = newTau2

		coeff, conv, err = m.fitPenalized(coeff, tau2)
		if err != nil {
			return nil, err
		}
	}

	return m.newResults(coeff, vcov, tau2, edf, conv), nil
}

// fitPenalized maximizes the penalized log-likelihood at a fixed random
// effects variance.  The returned flag is false if the optimizer did not
// report convergence.
func (m *Model) fitPenalized(start []float64, tau2 float64) ([]float64, bool, error) {

	f := func(z []float64) float64 {
		ll := m.PenalizedLogLike(statmodel.NewGenericParameter(m.unscaleCoeff(z)), tau2)
		if math.IsNaN(ll) || math.IsInf(ll, 0) {
			return math.MaxFloat64
		}
		return -ll
	}

	z0 := m.scaleCoeff(start)
	if f(z0) == math.MaxFloat64 {
		return nil, false, fmt.Errorf("%s: log-likelihood is not finite at the starting values", m.fam.Name)
	}

	z, fval, err := minimize(f, z0, m.settings, m.method)
	conv := err == nil
	if err != nil {
		m.logf("%s: %v, retrying with Nelder-Mead", m.fam.Name, err)
		z2, fval2, err2 := minimize(f, z, m.settings, &optimize.NelderMead{})
		if fval2 < fval {
			z, fval = z2, fval2
		}
		conv = err2 == nil
		if err2 != nil {
			m.failMessage(z)
		}
	}
	if fval == math.MaxFloat64 {
		return nil, false, fmt.Errorf("%s: optimization failed", m.fam.Name)
	}

	return m.unscaleCoeff(z), conv, nil
}

// minimize runs gonum optimization using central difference gradients
// and returns the best point found even if the optimizer fails.
func minimize(f func([]float64) float64, x0 []float64, settings *optimize.Settings, method optimize.Method) ([]float64, float64, error) {

	p := optimize.Problem{
		Func: f,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, f, x, &fd.Settings{Formula: fd.Central, Concurrent: true})
		},
	}

	if settings == nil {
		settings = &optimize.Settings{
			GradientThreshold: 1e-4,
			MajorIterations:   1000,
		}
	}
	if method == nil {
		method = &optimize.BFGS{}
	}

	rslt, err := optimize.Minimize(p, x0, settings, method)
	if rslt == nil || rslt.X == nil {
		if err == nil {
			err = errors.New("optimizer returned no result")
		}
		return x0, f(x0), err
	}
	if err == nil {
		err = rslt.Status.Err()
	}

	return rslt.X, rslt.F, err
}

// failMessage logs information that can help diagnose optimization failures.
func (m *Model) failMessage(z []float64) {

	if m.log == nil {
		return
	}

	coeff := m.unscaleCoeff(z)
	names := m.Names()
	m.log.Printf("%s: current point:", m.fam.Name)
	for j, c := range coeff {
		m.log.Printf("%16.8f %s", c, names[j])
	}
}

// Predict returns mu and sigma for new data containing the covariates of
// the model.  Levels of the random effect that were not seen in the
// training data get a random intercept of zero.
func (m *Model) predict(coeff []float64, data *statmodel.Dataset) ([]float64, []float64, error) {

	xmu, _, err := design(data, m.muFormula)
	if err != nil {
		return nil, nil, err
	}
	xsig, _, err := design(data, m.sigmaFormula)
	if err != nil {
		return nil, nil, err
	}

	bmu, bsig, re := m.split(coeff)
	n := data.NumObs()
	etaMu := make([]float64, n)
	etaSig := make([]float64, n)
	for j, x := range xmu {
		addScaled(etaMu, bmu[j], x)
	}
	for j, x := range xsig {
		addScaled(etaSig, bsig[j], x)
	}

	if m.HasRandom() {
		g, err := factorValues(data, m.reName)
		if err != nil {
			return nil, nil, err
		}
		lev := make(map[string]int)
		for k, v := range m.levels {
			lev[v] = k
		}
		for i, v := range g {
			if k, ok := lev[v]; ok {
				etaMu[i] += re[k]
			}
		}
	}

	mu := make([]float64, n)
	sigma := make([]float64, n)
	for i := range mu {
		mu[i] = m.muLink.InvLink(etaMu[i])
		sigma[i] = m.sigmaLink.InvLink(etaSig[i])
	}

	return mu, sigma, nil
}

// withMuFormula returns an unfitted copy of the model using a different
// mu formula and the same data, family, links and settings.
func (m *Model) withMuFormula(f *Formula) (*Model, error) {

	nm := NewModel(m.data, f.String()).Family(m.fam).MuLink(m.muLink).SigmaLink(m.sigmaLink)
	nm.sigmaFormula = m.sigmaFormula.Clone()
	nm.scaletype = m.scaletype
	nm.log = m.log
	nm.tau2 = m.tau2
	nm.fixTau2 = m.fixTau2
	nm.maxOuter = m.maxOuter
	if m.settings != nil {
		s := *m.settings
		nm.settings = &s
	}

	return nm.Done()
}

func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}

func addScaled(dst []float64, a float64, x []float64) {
	for i := range dst {
		dst[i] += a * x[i]
	}
}

func mean(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}
