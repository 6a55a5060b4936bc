package statmodel

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// ScaleType defines the way that the covariates are scaled prior to fitting a model.  This
// scaling is hidden from the caller, the results are back-transformed after fitting.
type ScaleType int

// NoScale indicates that covariates are not internally scaled prior to fitting, L2Norm
// indicates that each covariate is scaled to have unit L2Norm prior to fitting, and Variance
// indicates that each covariate is scaled to have unit mean square prior to fitting.  Scaling
// is not performed for covariates that do not vary (i.e. an intercept).
const (
	NoScale ScaleType = iota
	L2Norm
	Variance
)

// ParseScaleType maps "none", "l2norm" and "variance" to a ScaleType.
func ParseScaleType(name string) (ScaleType, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return NoScale, nil
	case "l2norm", "l2":
		return L2Norm, nil
	case "variance", "var":
		return Variance, nil
	default:
		return NoScale, fmt.Errorf("unknown covariate scaling %q", name)
	}
}

// Parameter is the parameter of a model.
type Parameter interface {

	// Get the coefficients of the model.  The returned value
	// should be a reference so that changes to it lead to
	// corresponding changes in the parameter itself.
	GetCoeff() []float64

	// Set the coefficients of the model.
	SetCoeff([]float64)

	// Clone creates a deep copy of the Parameter struct.
	Clone() Parameter
}

// GenericParameter is a Parameter holding nothing but a coefficient vector.
type GenericParameter struct {
	params []float64
}

// NewGenericParameter returns a GenericParameter that owns a copy of x.
func NewGenericParameter(x []float64) *GenericParameter {
	gp := &GenericParameter{params: make([]float64, len(x))}
	copy(gp.params, x)
	return gp
}

// GetCoeff returns the coefficient vector.
func (gp *GenericParameter) GetCoeff() []float64 {
	return gp.params
}

// SetCoeff copies x into the coefficient vector.
func (gp *GenericParameter) SetCoeff(x []float64) {
	if len(gp.params) != len(x) {
		gp.params = make([]float64, len(x))
	}
	copy(gp.params, x)
}

// Clone returns a deep copy.
func (gp *GenericParameter) Clone() Parameter {
	return NewGenericParameter(gp.params)
}

// RegFitter is a regression model that can be fit to data.
type RegFitter interface {

	// Number of parameters in the model.
	NumParams() int

	// Number of observations in the data set
	NumObs() int

	// The log-likelihood function (possibly penalized)
	LogLike(Parameter) float64
}

// BaseResultser is a fitted model that can produce results (parameter estimates, etc.).
type BaseResultser interface {
	Model() RegFitter
	Names() []string
	LogLike() float64
	Params() []float64
	VCov() []float64
	StdErr() []float64
	ZScores() []float64
	PValues() []float64
}

// BaseResults contains the results after fitting a model to data.
type BaseResults struct {
	model   RegFitter
	loglike float64
	params  []float64
	xnames  []string
	vcov    []float64
	stderr  []float64
	zscores []float64
	pvalues []float64
}

// NewBaseResults returns a BaseResults corresponding to the given fitted model.
func NewBaseResults(model RegFitter, loglike float64, params []float64, xnames []string, vcov []float64) BaseResults {
	return BaseResults{
		model:   model,
		loglike: loglike,
		params:  params,
		xnames:  xnames,
		vcov:    vcov,
	}
}

// Model produces the model value used to produce the results.
func (rslt *BaseResults) Model() RegFitter {
	return rslt.model
}

// Names returns the names of the parameters in the model.
func (rslt *BaseResults) Names() []string {
	return rslt.xnames
}

// Params returns the point estimates for the parameters in the model.
func (rslt *BaseResults) Params() []float64 {
	return rslt.params
}

// VCov returns the sampling variance/covariance model for the parameters in the model.
// The matrix is vectorized to one dimension in row-major order.
func (rslt *BaseResults) VCov() []float64 {
	return rslt.vcov
}

// LogLike returns the log-likelihood value for the fitted model.
func (rslt *BaseResults) LogLike() float64 {
	return rslt.loglike
}

// StdErr returns the standard errors for the parameters in the model.
func (rslt *BaseResults) StdErr() []float64 {

	// No vcov, no standard error
	if rslt.vcov == nil {
		return nil
	}
	if rslt.stderr != nil {
		return rslt.stderr
	}

	p := len(rslt.params)
	rslt.stderr = make([]float64, p)
	for i := range rslt.stderr {
		v := rslt.vcov[i*p+i]
		if v < 0 {
			v = math.NaN()
		}
		rslt.stderr[i] = math.Sqrt(v)
	}

	return rslt.stderr
}

// ZScores returns the Z-scores (the parameter estimates divided by the standard errors).
func (rslt *BaseResults) ZScores() []float64 {

	if rslt.vcov == nil {
		return nil
	}
	if rslt.zscores != nil {
		return rslt.zscores
	}

	std := rslt.StdErr()
	rslt.zscores = make([]float64, len(std))
	for i := range std {
		rslt.zscores[i] = rslt.params[i] / std[i]
	}

	return rslt.zscores
}

func normcdf(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt(2))
}

// PValues returns the p-values for the null hypothesis that each parameter's population
// value is equal to zero.
func (rslt *BaseResults) PValues() []float64 {

	if rslt.vcov == nil {
		return nil
	}
	if rslt.pvalues != nil {
		return rslt.pvalues
	}

	zs := rslt.ZScores()
	rslt.pvalues = make([]float64, len(zs))
	for i, z := range zs {
		rslt.pvalues[i] = 2 * normcdf(-math.Abs(z))
	}

	return rslt.pvalues
}

// NegHessian returns the negative Hessian of the model log-likelihood at
// params, obtained by central finite differences.
func NegHessian(model RegFitter, params Parameter) *mat.SymDense {

	nvar := model.NumParams()
	x := make([]float64, nvar)
	copy(x, params.GetCoeff())

	f := func(z []float64) float64 {
		p := params.Clone()
		p.SetCoeff(z)
		return model.LogLike(p)
	}

	hess := mat.NewSymDense(nvar, nil)
	fd.Hessian(hess, f, x, &fd.Settings{Formula: fd.Central})
	hess.ScaleSym(-1, hess)

	return hess
}

// GetVcov returns the sampling variance/covariance matrix for the parameter estimates,
// the inverse of the negative Hessian of the log-likelihood.
func GetVcov(model RegFitter, params Parameter) ([]float64, error) {

	nvar := model.NumParams()
	hess := NegHessian(model, params)

	var inv mat.Dense
	if err := inv.Inverse(hess); err != nil {
		return nil, fmt.Errorf("can't invert Hessian: %w", err)
	}

	vcov := make([]float64, nvar*nvar)
	for i := 0; i < nvar; i++ {
		for j := 0; j < nvar; j++ {
			vcov[i*nvar+j] = inv.At(i, j)
		}
	}

	return vcov, nil
}
