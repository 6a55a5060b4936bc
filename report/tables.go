package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pbnvs/unitreg/electoral"
	"github.com/pbnvs/unitreg/gamlss"
)

var descHeader = []string{"variable", "n", "mean", "median", "sd", "min", "max", "q1", "q3", "skewness", "kurtosis", "cv"}

func descCells(d electoral.Descriptive, prec int) []string {
	return []string{
		d.Name,
		strconv.Itoa(d.N),
		ftoa(d.Mean, prec),
		ftoa(d.Median, prec),
		ftoa(d.SD, prec),
		ftoa(d.Min, prec),
		ftoa(d.Max, prec),
		ftoa(d.Q1, prec),
		ftoa(d.Q3, prec),
		ftoa(d.Skewness, prec),
		ftoa(d.Kurtosis, prec),
		ftoa(d.CV, prec),
	}
}

// WriteDescriptiveCSV writes descriptive statistics as CSV.  The first
// column is labeled with label, e.g. "variable" or "region".
func WriteDescriptiveCSV(w io.Writer, label string, desc []electoral.Descriptive) error {

	cw := csv.NewWriter(w)
	head := append([]string{label}, descHeader[1:]...)
	if err := cw.Write(head); err != nil {
		return err
	}
	for _, d := range desc {
		if err := cw.Write(descCells(d, 6)); err != nil {
			return err
		}
	}
	cw.Flush()

	return cw.Error()
}

// DescriptiveMarkdown returns descriptive statistics as a Markdown table.
func DescriptiveMarkdown(label string, desc []electoral.Descriptive) string {
	head := append([]string{label}, descHeader[1:]...)
	var body [][]string
	for _, d := range desc {
		body = append(body, descCells(d, 4))
	}
	return markdownTable(head, body)
}

var stepHeader = []string{"step", "action", "term", "GAIC", "formula"}

func stepCells(r gamlss.StepRecord) []string {
	term := r.Action + r.Term
	if r.Action == "start" {
		term = ""
	}
	return []string{strconv.Itoa(r.Step), r.Action, term, ftoa(r.GAIC, 4), r.Formula}
}

// WriteStepCSV writes the trace of a stepwise selection as CSV.
func WriteStepCSV(w io.Writer, trace []gamlss.StepRecord) error {

	cw := csv.NewWriter(w)
	if err := cw.Write(stepHeader); err != nil {
		return err
	}
	for _, r := range trace {
		if err := cw.Write(stepCells(r)); err != nil {
			return err
		}
	}
	cw.Flush()

	return cw.Error()
}

// StepMarkdown returns the trace of a stepwise selection as a Markdown table.
func StepMarkdown(trace []gamlss.StepRecord) string {
	var body [][]string
	for _, r := range trace {
		c := stepCells(r)
		c[4] = "`" + c[4] + "`"
		body = append(body, c)
	}
	return markdownTable(stepHeader, body)
}
