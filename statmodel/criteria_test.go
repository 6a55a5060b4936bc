package statmodel

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCriteria(t *testing.T) {

	assert.Equal(t, 20.0, GlobalDeviance(-10))
	assert.Equal(t, 26.0, AIC(-10, 3))
	assert.InDelta(t, 20+3*math.Log(100), BIC(-10, 3, 100), 1e-12)
	assert.Equal(t, 23.0, GAIC(-10, 1.5, 2))

	// Equal likelihoods give zero R-squared.
	assert.InDelta(t, 0, GenRsq(-5, -5, 50), 1e-12)
	assert.InDelta(t, 1-math.Exp(-0.4), GenRsq(0, -10, 50), 1e-12)
}

func TestForecastAccuracy(t *testing.T) {

	obs := []float64{0.1, 0.2, 0.4}
	pred := []float64{0.2, 0.2, 0.3}

	acc, err := ForecastAccuracy(obs, pred)
	require.NoError(t, err)

	assert.InDelta(t, 100*(1+0+0.25)/3, acc.MAPE, 1e-9)
	assert.InDelta(t, 0.2/3, acc.MAE, 1e-12)
	assert.InDelta(t, math.Sqrt(0.02/3), acc.RMSE, 1e-12)
	assert.Equal(t, 3, acc.N)

	_, err = ForecastAccuracy(obs, pred[:2])
	assert.ErrorIs(t, err, ErrLength)

	_, err = ForecastAccuracy(nil, nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = ForecastAccuracy([]float64{0, 1}, []float64{1, 1})
	assert.ErrorIs(t, err, ErrZeroObserved)
}

func TestDataset(t *testing.T) {

	ds, err := NewDataset([][]float64{
		{0.1, math.NaN(), 0.3, 0.4},
		{1, 2, 3, 4},
	}, []string{"y", "x"})
	require.NoError(t, err)
	require.NoError(t, ds.AddFactor("region", []string{"N", "S", "", "S"}))

	assert.Equal(t, 4, ds.NumObs())
	assert.Error(t, ds.AddVar("x", []float64{1, 2, 3, 4}))
	assert.Error(t, ds.AddVar("z", []float64{1}))

	cc, nd := ds.DropNA()
	assert.Equal(t, 2, nd)
	x, ok := cc.Var("x")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 4}, x)
	r, _ := cc.Factor("region")
	assert.Equal(t, []string{"N", "S"}, r)

	// Only the named variables count for completeness.
	cc, nd = ds.DropNA("x", "region")
	assert.Equal(t, 1, nd)
	assert.Equal(t, 3, cc.NumObs())

	sub := ds.Rows([]int{3, 0})
	y, _ := sub.Var("y")
	assert.Equal(t, []float64{0.4, 0.1}, y)

	_, err = NewDataset([][]float64{{1}}, []string{"a", "b"})
	assert.Error(t, err)
}

func TestSummaryTable(t *testing.T) {

	tab := &SummaryTable{
		Title:    "Test table",
		Top:      []string{"Family: BE", "Num obs: 10", "AIC: 3.5"},
		ColNames: []string{"Variable", "Estimate", "P-value"},
		ColFmt:   []Fmter{StringFmt, FloatFmt, PvalFmt},
		Cols: []interface{}{
			[]string{"(Intercept)", "x"},
			[]float64{1.5, -0.25},
			[]float64{0.5, 1e-8},
		},
		Msg: []string{"a message"},
	}

	s := tab.String()
	assert.Contains(t, s, "Test table")
	assert.Contains(t, s, "Family: BE")
	assert.Contains(t, s, "(Intercept)")
	assert.Contains(t, s, "-0.2500")
	assert.Contains(t, s, "1.00e-08")
	assert.True(t, strings.HasSuffix(s, "a message\n"))
}
