package gamlss

import (
	"fmt"

	"github.com/pbnvs/unitreg/statmodel"
)

// Summary summarizes a fitted model.
type Summary struct {

	// The results structure
	results *Results

	// Messages that are appended to the table
	messages []string
}

// Summary returns a summary table of the model results.
func (rslt *Results) Summary() *Summary {
	return &Summary{
		results: rslt,
	}
}

// AddMessage appends a line below the table.
func (s *Summary) AddMessage(msg string) *Summary {
	s.messages = append(s.messages, msg)
	return s
}

// String returns a string representation of a summary table for the model.
func (s *Summary) String() string {

	rslt := s.results
	m := rslt.model

	sum := &statmodel.SummaryTable{
		Title: fmt.Sprintf("Distributional regression: %s (%s)", m.fam.Long, m.fam.Name),
	}

	sum.Top = []string{
		fmt.Sprintf("mu:      %s", m.muFormula),
		fmt.Sprintf("sigma:   %s", m.sigmaFormula),
		fmt.Sprintf("mu link: %s (%s)", m.muLink.Name, m.fam.Location),
		fmt.Sprintf("sigma link: %s", m.sigmaLink.Name),
		fmt.Sprintf("Num obs: %d", rslt.NumObs()),
		fmt.Sprintf("Df:         %.3f", rslt.Df()),
		fmt.Sprintf("GD:      %.4f", rslt.GlobalDeviance()),
		fmt.Sprintf("AIC:        %.4f", rslt.AIC()),
		fmt.Sprintf("BIC:     %.4f", rslt.BIC()),
	}
	if m.HasRandom() {
		sum.Top = append(sum.Top,
			fmt.Sprintf("tau2:       %.6f", rslt.Tau2()),
			fmt.Sprintf("re edf:  %.3f", rslt.RandomEdf()))
	}

	names := rslt.Names()
	par := rslt.Params()

	if rslt.VCov() != nil {
		sum.ColNames = []string{"Variable", "Estimate", "SE", "Z-score", "P-value"}
		sum.ColFmt = []statmodel.Fmter{statmodel.StringFmt, statmodel.FloatFmt, statmodel.FloatFmt,
			statmodel.FloatFmt, statmodel.PvalFmt}
		sum.Cols = []interface{}{names, par, rslt.StdErr(), rslt.ZScores(), rslt.PValues()}
	} else {
		sum.ColNames = []string{"Variable", "Estimate"}
		sum.ColFmt = []statmodel.Fmter{statmodel.StringFmt, statmodel.FloatFmt}
		sum.Cols = []interface{}{names, par}
		sum.Msg = append(sum.Msg, "Standard errors unavailable: the Hessian could not be inverted.")
	}

	rs := rslt.ResidSummary()
	sum.Msg = append(sum.Msg, fmt.Sprintf("Quantile residuals: mean %.4f, variance %.4f, skewness %.4f, kurtosis %.4f, Filliben %.4f",
		rs.Mean, rs.Variance, rs.Skewness, rs.Kurtosis, rs.Filliben))
	if !rslt.Converged() {
		sum.Msg = append(sum.Msg, "Warning: the optimizer did not report convergence.")
	}
	sum.Msg = append(sum.Msg, s.messages...)

	return sum.String()
}
