package gamlss

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pbnvs/unitreg/statmodel"
)

// Profiler is used to do likelihood profile analysis on one coefficient
// of a fitted model.  The remaining coefficients are re-estimated at
// every point of the profile, and the random effects variance (if any)
// is held at its fitted value.
type Profiler struct {

	// The profile analysis is done with respect to this fitted
	// model.
	results *Results

	// Position of the profiled coefficient
	pos int

	// The maximized (penalized) log-likelihood
	maxLogLike float64

	// A sequence of (coefficient, log-likelihood) values that lie on
	// the profile curve.
	Profile [][2]float64
}

// NewProfiler returns a Profiler for the coefficient with the given name.
func NewProfiler(result *Results, name string) (*Profiler, error) {

	pos := -1
	for j, na := range result.Names() {
		if na == name {
			pos = j
		}
	}
	if pos == -1 {
		return nil, fmt.Errorf("coefficient %q not found", name)
	}

	m := result.model
	ll := m.PenalizedLogLike(statmodel.NewGenericParameter(result.Params()), result.tau2)

	return &Profiler{
		results:    result,
		pos:        pos,
		maxLogLike: ll,
	}, nil
}

type profPoint [][2]float64

func (a profPoint) Len() int           { return len(a) }
func (a profPoint) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a profPoint) Less(i, j int) bool { return a[i][0] < a[j][0] }

// LogLike returns the profile log likelihood value at the given value of
// the coefficient.
func (ps *Profiler) LogLike(v float64) float64 {

	m := ps.results.model
	tau2 := ps.results.tau2
	full := ps.results.Params()
	p := len(full)

	expand := func(z []float64) []float64 {
		x := make([]float64, p)
		copy(x[:ps.pos], z[:ps.pos])
		x[ps.pos] = v
		copy(x[ps.pos+1:], z[ps.pos:])
		return x
	}

	f := func(z []float64) float64 {
		ll := m.PenalizedLogLike(statmodel.NewGenericParameter(expand(z)), tau2)
		if math.IsNaN(ll) || math.IsInf(ll, 0) {
			return math.MaxFloat64
		}
		return -ll
	}

	start := make([]float64, 0, p-1)
	start = append(start, full[:ps.pos]...)
	start = append(start, full[ps.pos+1:]...)

	var ll float64
	if len(start) == 0 {
		ll = -f(start)
	} else {
		_, fval, _ := minimize(f, start, nil, nil)
		ll = -fval
	}
	ps.Profile = append(ps.Profile, [2]float64{v, ll})

	return ll
}

func bisectroot(f func(float64) float64, x0, x1, y0, y1, yt float64) (float64, error) {

	if (y0-yt)*(y1-yt) > 0 {
		return 0, fmt.Errorf("invalid bracket [%g, %g]", x0, x1)
	}

	for math.Abs(x1-x0) > 1e-5*(1+math.Abs(x0)) {
		x := (x0 + x1) / 2
		y := f(x)
		if (y-yt)*(y0-yt) > 0 {
			x0 = x
			y0 = y
		} else {
			x1 = x
		}
	}

	return (x0 + x1) / 2, nil
}

// ConfInt returns the limits of a profile likelihood confidence interval
// with the given coverage probability.  All points on the profile
// visited during the search are added to the Profile field.
func (ps *Profiler) ConfInt(prob float64) (float64, float64, error) {

	qp := distuv.ChiSquared{K: 1}.Quantile(prob) / 2
	target := ps.maxLogLike - qp

	est := ps.results.Params()[ps.pos]
	step := 1.0
	if se := ps.results.StdErr(); se != nil && se[ps.pos] > 0 && !math.IsNaN(se[ps.pos]) {
		step = se[ps.pos]
	}

	bound := func(dir float64) (float64, error) {
		d := step
		x := est + dir*d
		y := ps.LogLike(x)
		for k := 0; y > target; k++ {
			if k > 30 {
				return 0, fmt.Errorf("profile likelihood does not cross the cutoff")
			}
			d *= 1.5
			x = est + dir*d
			y = ps.LogLike(x)
		}
		return bisectroot(ps.LogLike, est, x, ps.maxLogLike, y, target)
	}

	lo, err := bound(-1)
	if err != nil {
		return 0, 0, err
	}
	hi, err := bound(1)
	if err != nil {
		return 0, 0, err
	}

	sort.Sort(profPoint(ps.Profile))

	return lo, hi, nil
}
