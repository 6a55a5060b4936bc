package electoral

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/pbnvs/unitreg/statmodel"
)

// Descriptive holds summary statistics of one variable.
type Descriptive struct {
	Name   string
	N      int
	Mean   float64
	Median float64
	SD     float64
	Min    float64
	Max    float64
	Q1     float64
	Q3     float64

	Skewness float64

	// Kurtosis is the (non-excess) coefficient of kurtosis.
	Kurtosis float64

	// Coefficient of variation, SD / Mean
	CV float64
}

// Describe computes the summary statistics of x, ignoring missing (NaN)
// values.
func Describe(name string, x []float64) (Descriptive, error) {

	data := make(stats.Float64Data, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			data = append(data, v)
		}
	}
	if len(data) == 0 {
		return Descriptive{}, fmt.Errorf("%s: %w", name, statmodel.ErrEmpty)
	}

	d := Descriptive{Name: name, N: len(data)}

	var err error
	if d.Mean, err = stats.Mean(data); err != nil {
		return d, fmt.Errorf("%s: mean: %w", name, err)
	}
	if d.Median, err = stats.Median(data); err != nil {
		return d, fmt.Errorf("%s: median: %w", name, err)
	}
	if d.Min, err = stats.Min(data); err != nil {
		return d, fmt.Errorf("%s: min: %w", name, err)
	}
	if d.Max, err = stats.Max(data); err != nil {
		return d, fmt.Errorf("%s: max: %w", name, err)
	}

	d.SD, d.Q1, d.Q3 = math.NaN(), d.Median, d.Median
	d.Skewness, d.Kurtosis = math.NaN(), math.NaN()
	if len(data) > 1 {
		if d.SD, err = stats.StandardDeviationSample(data); err != nil {
			return d, fmt.Errorf("%s: standard deviation: %w", name, err)
		}
		if d.Q1, err = stats.Percentile(data, 25); err != nil {
			return d, fmt.Errorf("%s: first quartile: %w", name, err)
		}
		if d.Q3, err = stats.Percentile(data, 75); err != nil {
			return d, fmt.Errorf("%s: third quartile: %w", name, err)
		}
	}
	if len(data) > 2 && d.SD > 0 {
		d.Skewness = stat.Skew(data, nil)
		d.Kurtosis = stat.ExKurtosis(data, nil) + 3
	}
	d.CV = d.SD / d.Mean

	return d, nil
}

// DescribeAll describes every numeric variable of the dataset.
func DescribeAll(ds *statmodel.Dataset) ([]Descriptive, error) {

	var out []Descriptive
	for _, na := range ds.Names() {
		x, _ := ds.Var(na)
		d, err := Describe(na, x)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	return out, nil
}

// DescribeByGroup describes x separately within each level of g.  The
// levels are in sorted order and the Name field holds the level.
func DescribeByGroup(x []float64, g []string) ([]Descriptive, error) {

	if len(x) != len(g) {
		return nil, statmodel.ErrLength
	}

	groups := make(map[string][]float64)
	for i, v := range x {
		groups[g[i]] = append(groups[g[i]], v)
	}

	var levels []string
	for k := range groups {
		levels = append(levels, k)
	}
	sort.Strings(levels)

	var out []Descriptive
	for _, k := range levels {
		d, err := Describe(k, groups[k])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	return out, nil
}
