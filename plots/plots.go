// Package plots draws the diagnostic plots of fitted distributional
// regression models with gonum/plot.  The output format follows the
// file extension (.png, .pdf, .svg, ...).
package plots

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/pbnvs/unitreg/gamlss"
)

// Default page size of the saved plots.
var (
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch
)

var errNoData = errors.New("plots: no data")

func save(p *plot.Plot, filename string) error {
	if err := p.Save(Width, Height, filename); err != nil {
		return fmt.Errorf("saving %s: %w", filename, err)
	}
	return nil
}

func dashed(l *plotter.Line) {
	l.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
}

// Histogram plots a density-scaled histogram of the response.  If rslt
// is not nil, the fitted marginal density (the average of the fitted
// densities of all observations) is drawn on top.
func Histogram(y []float64, bins int, rslt *gamlss.Results, title, filename string) error {

	if len(y) == 0 {
		return errNoData
	}
	if bins <= 0 {
		bins = int(math.Ceil(math.Log2(float64(len(y))) + 1))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Response"
	p.Y.Label.Text = "Density"

	h, err := plotter.NewHist(plotter.Values(y), bins)
	if err != nil {
		return err
	}
	h.Normalize(1)
	p.Add(h)

	if rslt != nil {
		fam := rslt.Family()
		mu := rslt.FittedMu()
		sigma := rslt.FittedSigma()
		f := plotter.NewFunction(func(t float64) float64 {
			if t <= 0 || t >= 1 {
				return 0
			}
			var d float64
			for i := range mu {
				d += math.Exp(fam.LogPDF(t, mu[i], sigma[i]))
			}
			return d / float64(len(mu))
		})
		f.XMin, f.XMax = h.Bins[0].Min, h.Bins[len(h.Bins)-1].Max
		f.Samples = 200
		f.Color = plotutil.Color(1)
		f.Width = vg.Points(1.5)
		p.Add(f)
		p.Legend.Add(fam.Name, f)
	}

	return save(p, filename)
}

// QQPlot plots the sorted residuals against standard normal quantiles,
// with the identity line for reference.
func QQPlot(resid []float64, title, filename string) error {

	if len(resid) == 0 {
		return errNoData
	}

	r := sorted(resid)
	z := gamlss.NormalQuantiles(len(r))

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Theoretical quantiles"
	p.Y.Label.Text = "Sample quantiles"

	pts := make(plotter.XYs, len(r))
	for i := range r {
		pts[i].X = z[i]
		pts[i].Y = r[i]
	}
	if err := plotutil.AddScatters(p, pts); err != nil {
		return err
	}

	lo := math.Min(z[0], r[0])
	hi := math.Max(z[len(z)-1], r[len(r)-1])
	ref, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return err
	}
	ref.Color = plotutil.Color(1)
	p.Add(ref)

	return save(p, filename)
}

// WormPoints returns the coordinates of a worm plot: the theoretical
// normal quantiles z, the deviations d = r(i) - z(i) of the sorted
// residuals, and the pointwise 95% band +/- 1.96 sqrt(p(1-p)/n) / phi(z).
func WormPoints(resid []float64) (z, d, band []float64) {

	n := len(resid)
	r := sorted(resid)
	pp := gamlss.PPoints(n)
	z = make([]float64, n)
	d = make([]float64, n)
	band = make([]float64, n)

	for i, p := range pp {
		z[i] = distuv.UnitNormal.Quantile(p)
		d[i] = r[i] - z[i]
		band[i] = 1.96 * math.Sqrt(p*(1-p)/float64(n)) / distuv.UnitNormal.Prob(z[i])
	}

	return z, d, band
}

// WormPlot draws a detrended normal Q-Q plot of the residuals with
// pointwise 95% bands.  For a well-specified model the points stay
// inside the bands and show no systematic shape.
func WormPlot(resid []float64, title, filename string) error {

	if len(resid) == 0 {
		return errNoData
	}

	z, d, band := WormPoints(resid)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Unit normal quantile"
	p.Y.Label.Text = "Deviation"

	pts := make(plotter.XYs, len(z))
	upper := make(plotter.XYs, len(z))
	lower := make(plotter.XYs, len(z))
	for i := range z {
		pts[i].X, pts[i].Y = z[i], d[i]
		upper[i].X, upper[i].Y = z[i], band[i]
		lower[i].X, lower[i].Y = z[i], -band[i]
	}

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	p.Add(sc)

	for _, b := range []plotter.XYs{upper, lower} {
		l, err := plotter.NewLine(b)
		if err != nil {
			return err
		}
		dashed(l)
		p.Add(l)
	}

	zero, err := plotter.NewLine(plotter.XYs{{X: z[0], Y: 0}, {X: z[len(z)-1], Y: 0}})
	if err != nil {
		return err
	}
	zero.Color = plotutil.Color(1)
	p.Add(zero)

	return save(p, filename)
}

// ResidIndex plots the residuals against the observation index, with
// reference lines at 0 and +/- 3.
func ResidIndex(resid []float64, title, filename string) error {

	if len(resid) == 0 {
		return errNoData
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Index"
	p.Y.Label.Text = "Quantile residual"

	pts := make(plotter.XYs, len(resid))
	for i, r := range resid {
		pts[i].X = float64(i + 1)
		pts[i].Y = r
	}
	if err := plotutil.AddScatters(p, pts); err != nil {
		return err
	}

	for _, h := range []float64{-3, 0, 3} {
		l, err := plotter.NewLine(plotter.XYs{{X: 1, Y: h}, {X: float64(len(resid)), Y: h}})
		if err != nil {
			return err
		}
		if h != 0 {
			dashed(l)
		}
		p.Add(l)
	}

	return save(p, filename)
}

// ObservedFitted plots the observed responses against the fitted values,
// with the identity line.
func ObservedFitted(obs, fitted []float64, title, filename string) error {

	if len(obs) == 0 {
		return errNoData
	}
	if len(obs) != len(fitted) {
		return fmt.Errorf("plots: %d observed and %d fitted values", len(obs), len(fitted))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Fitted"
	p.Y.Label.Text = "Observed"

	pts := make(plotter.XYs, len(obs))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range obs {
		pts[i].X = fitted[i]
		pts[i].Y = obs[i]
		lo = math.Min(lo, math.Min(obs[i], fitted[i]))
		hi = math.Max(hi, math.Max(obs[i], fitted[i]))
	}
	if err := plotutil.AddScatters(p, pts); err != nil {
		return err
	}

	ref, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return err
	}
	ref.Color = plotutil.Color(1)
	p.Add(ref)

	return save(p, filename)
}

func sorted(x []float64) []float64 {
	r := make([]float64, len(x))
	copy(r, x)
	sort.Float64s(r)
	return r
}
