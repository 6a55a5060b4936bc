package statmodel

import (
	"errors"
	"math"
)

var (
	// ErrEmpty is returned when a metric is requested for no observations.
	ErrEmpty = errors.New("statmodel: no observations")

	// ErrLength is returned when observed and predicted values differ in length.
	ErrLength = errors.New("statmodel: observed and predicted lengths differ")

	// ErrZeroObserved is returned by MAPE when an observed value is zero.
	ErrZeroObserved = errors.New("statmodel: zero observed value in MAPE")
)

// GlobalDeviance returns -2 times the log-likelihood.
func GlobalDeviance(loglike float64) float64 {
	return -2 * loglike
}

// GAIC returns the generalized Akaike criterion -2*loglike + k*df.
func GAIC(loglike, df, k float64) float64 {
	return -2*loglike + k*df
}

// AIC returns the Akaike information criterion.
func AIC(loglike, df float64) float64 {
	return GAIC(loglike, df, 2)
}

// BIC returns the Bayesian (Schwarz) information criterion.
func BIC(loglike, df float64, nobs int) float64 {
	return GAIC(loglike, df, math.Log(float64(nobs)))
}

// GenRsq returns the generalized (Cox-Snell) R-squared comparing a model
// with log-likelihood loglike to a null model with log-likelihood loglike0.
func GenRsq(loglike, loglike0 float64, nobs int) float64 {
	return 1 - math.Exp(-2*(loglike-loglike0)/float64(nobs))
}

// Accuracy holds forecast-error metrics.
type Accuracy struct {

	// Mean absolute percentage error, in percent.
	MAPE float64

	// Mean absolute error.
	MAE float64

	// Root mean squared error.
	RMSE float64

	// Number of observations
	N int
}

// ForecastAccuracy compares observed values to predictions.
func ForecastAccuracy(obs, pred []float64) (Accuracy, error) {

	if len(obs) != len(pred) {
		return Accuracy{}, ErrLength
	}
	if len(obs) == 0 {
		return Accuracy{}, ErrEmpty
	}

	var ape, ae, se float64
	for i, y := range obs {
		if y == 0 {
			return Accuracy{}, ErrZeroObserved
		}
		r := y - pred[i]
		ape += math.Abs(r / y)
		ae += math.Abs(r)
		se += r * r
	}

	n := float64(len(obs))
	return Accuracy{
		MAPE: 100 * ape / n,
		MAE:  ae / n,
		RMSE: math.Sqrt(se / n),
		N:    len(obs),
	}, nil
}
