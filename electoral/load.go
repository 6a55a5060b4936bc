// Package electoral loads and describes municipal electoral and
// socioeconomic data for the analysis of blank and null votes.
package electoral

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pbnvs/unitreg/statmodel"
)

// RegionVar is the name of the region factor in a loaded dataset.
const RegionVar = "REGION"

// Table is the raw content of a spreadsheet: the header row and the
// remaining rows as strings.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadTable reads a .xlsx or .csv file.  For spreadsheets the named sheet
// is read, or the first sheet if sheet is empty.
func ReadTable(path, sheet string) (*Table, error) {

	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readExcel(path, sheet)
	case ".csv":
		rows, err = readCSV(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	if len(rows) < 2 {
		return nil, fmt.Errorf("%s must have a header row and at least one data row", path)
	}

	t := &Table{}
	for j, h := range rows[0] {
		if j == 0 {
			// Excel writes CSV files with a byte order mark.
			h = strings.TrimPrefix(h, "\ufeff")
		}
		t.Header = append(t.Header, strings.TrimSpace(h))
	}

	// Short rows are padded, spreadsheets omit trailing empty cells.
	for _, row := range rows[1:] {
		r := make([]string, len(t.Header))
		for j := 0; j < len(r) && j < len(row); j++ {
			r[j] = strings.TrimSpace(row[j])
		}
		t.Rows = append(t.Rows, r)
	}

	return t, nil
}

func readExcel(path, sheet string) ([][]string, error) {

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	return rows, nil
}

func readCSV(path string) ([][]string, error) {

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	// Semicolon separated files are common when decimal commas are used.
	head := make([]byte, 4096)
	n, _ := file.Read(head)
	semi := strings.Count(string(head[:n]), ";") > strings.Count(string(head[:n]), ",")
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	if semi {
		reader.Comma = ';'
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}

	return rows, nil
}

func (t *Table) index(name string) int {
	for j, h := range t.Header {
		if strings.EqualFold(h, name) {
			return j
		}
	}
	return -1
}

// Has returns true if the table has the named column.
func (t *Table) Has(name string) bool {
	return name != "" && t.index(name) >= 0
}

// Column returns the cells of the named column.
func (t *Table) Column(name string) ([]string, error) {
	j := t.index(name)
	if j < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	x := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		x[i] = r[j]
	}
	return x, nil
}

// ParseNumber converts a cell to a number.  Decimal commas are accepted,
// and empty cells or NA markers give NaN.
func ParseNumber(s string) float64 {

	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "", "NA", "N/A", "NAN", "-", ".":
		return math.NaN()
	}

	s = strings.TrimSuffix(s, "%")
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			// 1.234,5
			s = strings.ReplaceAll(s, ".", "")
		}
		s = strings.ReplaceAll(s, ",", ".")
	}

	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return x
}

// Columns maps the columns of a table to the variables of the analysis.
type Columns struct {

	// The response, a proportion or a percentage
	Response string

	// Numeric covariates
	Covariates []string

	// The region column.  If empty or absent, the region is derived
	// from the UF column.  With neither column the data has no region.
	Region string

	// A state (UF) abbreviation or IBGE code column
	UF string

	// Optional identifier, e.g. the municipality name.  Ignored if the
	// table has no such column.
	ID string
}

// Data is a loaded and cleaned analysis dataset.
type Data struct {
	*statmodel.Dataset

	Columns Columns

	// Row identifiers, if an ID column was given
	IDs []string

	// Number of rows dropped for missing values or a response outside (0, 1)
	Dropped int

	// True if the response was given in percent and divided by 100
	Rescaled bool
}

// Load reads a file and builds the analysis dataset.
func Load(path, sheet string, cols Columns) (*Data, error) {
	t, err := ReadTable(path, sheet)
	if err != nil {
		return nil, err
	}
	return Build(t, cols)
}

// Build converts the table to a dataset holding the response, the
// covariates and the region factor, keeping only complete rows with a
// response in (0, 1).
func Build(t *Table, cols Columns) (*Data, error) {

	if cols.Response == "" {
		return nil, errors.New("no response column given")
	}

	var names []string
	var data [][]float64
	for _, na := range append([]string{cols.Response}, cols.Covariates...) {
		s, err := t.Column(na)
		if err != nil {
			return nil, err
		}
		x := make([]float64, len(s))
		for i, v := range s {
			x[i] = ParseNumber(v)
		}
		names = append(names, na)
		data = append(data, x)
	}

	ds, err := statmodel.NewDataset(data, names)
	if err != nil {
		return nil, err
	}

	region, err := regionColumn(t, cols)
	if err != nil {
		return nil, err
	}
	if region != nil {
		if err := ds.AddFactor(RegionVar, region); err != nil {
			return nil, err
		}
	}

	var ids []string
	if t.Has(cols.ID) {
		if ids, err = t.Column(cols.ID); err != nil {
			return nil, err
		}
	}

	// Percentages are rescaled to proportions.
	y := data[0]
	rescaled := false
	var mx float64
	for _, v := range y {
		if !math.IsNaN(v) && v > mx {
			mx = v
		}
	}
	if mx > 1 {
		for i := range y {
			y[i] /= 100
		}
		rescaled = true
	}

	n := ds.NumObs()
	var keep []int
	for i := 0; i < n; i++ {
		ok := y[i] > 0 && y[i] < 1
		for _, x := range data[1:] {
			if math.IsNaN(x[i]) || math.IsInf(x[i], 0) {
				ok = false
			}
		}
		if region != nil && region[i] == "" {
			ok = false
		}
		if ok {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("no complete rows with %s in (0, 1)", cols.Response)
	}

	out := &Data{
		Dataset:  ds.Rows(keep),
		Columns:  cols,
		Dropped:  n - len(keep),
		Rescaled: rescaled,
	}
	if ids != nil {
		for _, i := range keep {
			out.IDs = append(out.IDs, ids[i])
		}
	}

	return out, nil
}

// regionColumn returns the region of every row, or nil if the table has
// neither the region nor the UF column.
func regionColumn(t *Table, cols Columns) ([]string, error) {

	if t.Has(cols.Region) {
		s, err := t.Column(cols.Region)
		if err != nil {
			return nil, err
		}
		for i, v := range s {
			if r, ok := regionCode(v); ok {
				s[i] = r
			}
		}
		return s, nil
	}

	if !t.Has(cols.UF) {
		return nil, nil
	}

	s, err := t.Column(cols.UF)
	if err != nil {
		return nil, err
	}
	r := make([]string, len(s))
	for i, v := range s {
		r[i], _ = RegionOf(v)
	}

	return r, nil
}
