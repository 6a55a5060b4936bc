// Package report formats descriptive statistics, model comparisons and
// stepwise selection traces as CSV, Markdown, text and HTML.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pbnvs/unitreg/gamlss"
	"github.com/pbnvs/unitreg/statmodel"
)

// ModelRow is one line of the model comparison table.
type ModelRow struct {
	Family  string
	Random  bool
	Formula string

	Df  float64
	GD  float64
	AIC float64
	BIC float64
	Rsq float64

	// Forecast accuracy of the fitted locations
	InSample statmodel.Accuracy

	// Forecast accuracy on the test set, nil without a test set
	Holdout *statmodel.Accuracy

	Converged bool

	// Non-empty if the fit failed, all statistics are then NaN.
	Err string

	Best bool
}

// FailedRow returns the comparison row of a fit that failed.
func FailedRow(family string, random bool, formula string, err error) ModelRow {
	nan := math.NaN()
	return ModelRow{
		Family:   family,
		Random:   random,
		Formula:  formula,
		Df:       nan,
		GD:       nan,
		AIC:      nan,
		BIC:      nan,
		Rsq:      nan,
		InSample: statmodel.Accuracy{MAPE: nan, MAE: nan, RMSE: nan},
		Err:      err.Error(),
	}
}

// NewModelRow computes the comparison statistics of a fitted model.  If
// test is not nil, the holdout accuracy is computed on it.
func NewModelRow(rslt *gamlss.Results, test *statmodel.Dataset) (ModelRow, error) {

	m := rslt.GAMLSS()
	row := ModelRow{
		Family:    m.FamilyName(),
		Random:    m.HasRandom(),
		Formula:   m.MuFormula().String(),
		Df:        rslt.Df(),
		GD:        rslt.GlobalDeviance(),
		AIC:       rslt.AIC(),
		BIC:       rslt.BIC(),
		Converged: rslt.Converged(),
	}

	var err error
	if row.Rsq, err = rslt.Rsq(); err != nil {
		return row, fmt.Errorf("%s: R-squared: %w", row.Family, err)
	}
	if row.InSample, err = rslt.Accuracy(); err != nil {
		return row, fmt.Errorf("%s: accuracy: %w", row.Family, err)
	}

	if test != nil {
		mu, _, err := rslt.Predict(test)
		if err != nil {
			return row, fmt.Errorf("%s: prediction: %w", row.Family, err)
		}
		y, ok := test.Var(m.MuFormula().Response)
		if !ok {
			return row, fmt.Errorf("%s: response missing from the test set", row.Family)
		}
		acc, err := statmodel.ForecastAccuracy(y, mu)
		if err != nil {
			return row, fmt.Errorf("%s: holdout accuracy: %w", row.Family, err)
		}
		row.Holdout = &acc
	}

	return row, nil
}

// Rank sorts the rows by AIC, failed fits last, and flags the first row
// as the best model.
func Rank(rows []ModelRow) {

	key := func(r ModelRow) float64 {
		if r.Err != "" || math.IsNaN(r.AIC) {
			return math.Inf(1)
		}
		return r.AIC
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return key(rows[i]) < key(rows[j])
	})

	for i := range rows {
		rows[i].Best = i == 0 && !math.IsInf(key(rows[i]), 1)
	}
}

// Best returns the best row, or false if every fit failed.
func Best(rows []ModelRow) (ModelRow, bool) {
	for _, r := range rows {
		if r.Best {
			return r, true
		}
	}
	return ModelRow{}, false
}

func hasHoldout(rows []ModelRow) bool {
	for _, r := range rows {
		if r.Holdout != nil {
			return true
		}
	}
	return false
}

func comparisonHeader(holdout bool) []string {
	h := []string{"family", "random", "df", "GD", "AIC", "BIC", "R2", "MAPE", "MAE", "RMSE"}
	if holdout {
		h = append(h, "MAPE_test", "MAE_test", "RMSE_test")
	}
	return append(h, "converged", "best", "error")
}

func ftoa(x float64, prec int) string {
	if math.IsNaN(x) {
		return "NA"
	}
	return strconv.FormatFloat(x, 'f', prec, 64)
}

func (r ModelRow) cells(holdout bool, prec int) []string {

	c := []string{
		r.Family,
		strconv.FormatBool(r.Random),
		ftoa(r.Df, 2),
		ftoa(r.GD, prec),
		ftoa(r.AIC, prec),
		ftoa(r.BIC, prec),
		ftoa(r.Rsq, prec),
		ftoa(r.InSample.MAPE, prec),
		ftoa(r.InSample.MAE, prec),
		ftoa(r.InSample.RMSE, prec),
	}
	if holdout {
		if r.Holdout != nil {
			c = append(c, ftoa(r.Holdout.MAPE, prec), ftoa(r.Holdout.MAE, prec), ftoa(r.Holdout.RMSE, prec))
		} else {
			c = append(c, "NA", "NA", "NA")
		}
	}

	return append(c, strconv.FormatBool(r.Converged), strconv.FormatBool(r.Best), r.Err)
}

// WriteComparisonCSV writes the comparison table as CSV.
func WriteComparisonCSV(w io.Writer, rows []ModelRow) error {

	holdout := hasHoldout(rows)
	cw := csv.NewWriter(w)
	if err := cw.Write(comparisonHeader(holdout)); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.cells(holdout, 6)); err != nil {
			return err
		}
	}
	cw.Flush()

	return cw.Error()
}

// ComparisonMarkdown returns the comparison table as a Markdown table.
// The best model is marked with an asterisk.
func ComparisonMarkdown(rows []ModelRow) string {

	holdout := hasHoldout(rows)
	head := comparisonHeader(holdout)
	head = head[:len(head)-3]

	var body [][]string
	var errs []string
	for _, r := range rows {
		c := r.cells(holdout, 4)
		c = c[:len(c)-3]
		if r.Best {
			c[0] = c[0] + " *"
		}
		if r.Random {
			c[1] = "yes"
		} else {
			c[1] = "no"
		}
		body = append(body, c)
		if r.Err != "" {
			errs = append(errs, fmt.Sprintf("- %s (random=%v): %s", r.Family, r.Random, r.Err))
		} else if !r.Converged {
			errs = append(errs, fmt.Sprintf("- %s (random=%v): the optimizer did not report convergence", r.Family, r.Random))
		}
	}

	s := markdownTable(head, body)
	if len(errs) > 0 {
		s += "\n" + strings.Join(errs, "\n") + "\n"
	}

	return s
}

func markdownTable(head []string, body [][]string) string {

	var b strings.Builder
	b.WriteString("| " + strings.Join(head, " | ") + " |\n")
	sep := make([]string, len(head))
	for j := range sep {
		sep[j] = "---"
	}
	b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for _, row := range body {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}

	return b.String()
}
