package statmodel

import (
	"fmt"
	"math"
)

// Dataset holds column-major data for fitting regression models.  Numeric
// variables are float64 columns in which NaN marks a missing value.  Factor
// variables are string columns in which the empty string marks a missing
// value.
type Dataset struct {
	names []string
	data  [][]float64

	factorNames []string
	factors     [][]string

	pos map[string]int
	fac map[string]int
}

// NewDataset returns a dataset holding the given numeric columns.  All
// columns must have the same length.
func NewDataset(data [][]float64, names []string) (*Dataset, error) {

	if len(data) != len(names) {
		return nil, fmt.Errorf("dataset has %d columns but %d names", len(data), len(names))
	}

	ds := &Dataset{
		pos: make(map[string]int),
		fac: make(map[string]int),
	}
	for j := range data {
		if err := ds.AddVar(names[j], data[j]); err != nil {
			return nil, err
		}
	}

	return ds, nil
}

// NumObs returns the number of rows, or zero for a dataset with no columns.
func (ds *Dataset) NumObs() int {
	if len(ds.data) > 0 {
		return len(ds.data[0])
	}
	if len(ds.factors) > 0 {
		return len(ds.factors[0])
	}
	return 0
}

func (ds *Dataset) checkNew(name string, n int) error {
	if _, ok := ds.pos[name]; ok {
		return fmt.Errorf("variable %q already present", name)
	}
	if _, ok := ds.fac[name]; ok {
		return fmt.Errorf("variable %q already present", name)
	}
	if (len(ds.data) > 0 || len(ds.factors) > 0) && n != ds.NumObs() {
		return fmt.Errorf("variable %q has length %d, dataset has %d rows", name, n, ds.NumObs())
	}
	return nil
}

// AddVar appends a numeric column.
func (ds *Dataset) AddVar(name string, x []float64) error {
	if err := ds.checkNew(name, len(x)); err != nil {
		return err
	}
	ds.pos[name] = len(ds.names)
	ds.names = append(ds.names, name)
	ds.data = append(ds.data, x)
	return nil
}

// AddFactor appends a categorical column.
func (ds *Dataset) AddFactor(name string, x []string) error {
	if err := ds.checkNew(name, len(x)); err != nil {
		return err
	}
	ds.fac[name] = len(ds.factorNames)
	ds.factorNames = append(ds.factorNames, name)
	ds.factors = append(ds.factors, x)
	return nil
}

// Names returns the names of the numeric columns.
func (ds *Dataset) Names() []string {
	return ds.names
}

// FactorNames returns the names of the categorical columns.
func (ds *Dataset) FactorNames() []string {
	return ds.factorNames
}

// Var returns the numeric column with the given name.
func (ds *Dataset) Var(name string) ([]float64, bool) {
	j, ok := ds.pos[name]
	if !ok {
		return nil, false
	}
	return ds.data[j], true
}

// Factor returns the categorical column with the given name.
func (ds *Dataset) Factor(name string) ([]string, bool) {
	j, ok := ds.fac[name]
	if !ok {
		return nil, false
	}
	return ds.factors[j], true
}

// Rows returns a new dataset containing the given rows, in the given order.
func (ds *Dataset) Rows(idx []int) *Dataset {

	out := &Dataset{
		pos: make(map[string]int),
		fac: make(map[string]int),
	}

	for j, na := range ds.names {
		x := make([]float64, len(idx))
		for i, r := range idx {
			x[i] = ds.data[j][r]
		}
		out.pos[na] = j
		out.names = append(out.names, na)
		out.data = append(out.data, x)
	}

	for j, na := range ds.factorNames {
		x := make([]string, len(idx))
		for i, r := range idx {
			x[i] = ds.factors[j][r]
		}
		out.fac[na] = j
		out.factorNames = append(out.factorNames, na)
		out.factors = append(out.factors, x)
	}

	return out
}

// Filter returns the rows for which keep returns true.
func (ds *Dataset) Filter(keep func(i int) bool) *Dataset {
	var idx []int
	for i := 0; i < ds.NumObs(); i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return ds.Rows(idx)
}

// DropNA returns the complete cases over the named variables (all
// variables if no names are given), together with the number of rows
// that were dropped.
func (ds *Dataset) DropNA(names ...string) (*Dataset, int) {

	if len(names) == 0 {
		names = append(append(names, ds.names...), ds.factorNames...)
	}

	var num [][]float64
	var str [][]string
	for _, na := range names {
		if x, ok := ds.Var(na); ok {
			num = append(num, x)
		} else if x, ok := ds.Factor(na); ok {
			str = append(str, x)
		}
	}

	out := ds.Filter(func(i int) bool {
		for _, x := range num {
			if math.IsNaN(x[i]) || math.IsInf(x[i], 0) {
				return false
			}
		}
		for _, x := range str {
			if x[i] == "" {
				return false
			}
		}
		return true
	})

	return out, ds.NumObs() - out.NumObs()
}
