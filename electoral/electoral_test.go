package electoral

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pbnvs/unitreg/statmodel"
)

var header = []interface{}{"MUNICIPIO", "UF", "PBNVS", "MHDI_I", "MHDI_E"}

var cells = [][]interface{}{
	{"Salvador", "BA", "7,5", "0,75", "0,68"},
	{"Recife", "PE", "8,1", "0,74", "0,70"},
	{"Campinas", "SP", "5,2", "0,83", "0,73"},
	{"Curitiba", "PR", "4,9", "0,82", "0,77"},
	{"Manaus", "AM", "NA", "0,73", "0,66"},
	{"Goiania", "GO", "6,0", "", "0,74"},
	{"Palmas", "TO", "6,6", "0,79", "0,75"},
	{"Brasilia", "DF", "5,5", "0,86", "0,74"},
}

func writeXLSX(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	for i, row := range cells {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(t.TempDir(), "data.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

var cols = Columns{
	Response:   "PBNVS",
	Covariates: []string{"MHDI_I", "MHDI_E"},
	UF:         "UF",
	ID:         "MUNICIPIO",
}

func TestLoadXLSX(t *testing.T) {

	data, err := Load(writeXLSX(t), "", cols)
	require.NoError(t, err)

	assert.Equal(t, 6, data.NumObs())
	assert.Equal(t, 2, data.Dropped)
	assert.True(t, data.Rescaled)
	assert.Equal(t, []string{"Salvador", "Recife", "Campinas", "Curitiba", "Palmas", "Brasilia"}, data.IDs)

	y, ok := data.Var("PBNVS")
	require.True(t, ok)
	assert.InDelta(t, 0.075, y[0], 1e-12)

	x, _ := data.Var("MHDI_I")
	assert.InDelta(t, 0.75, x[0], 1e-12)

	reg, ok := data.Factor(RegionVar)
	require.True(t, ok)
	assert.Equal(t, []string{"NE", "NE", "SE", "S", "N", "CO"}, reg)

	_, err = Load(writeXLSX(t), "Missing", cols)
	assert.Error(t, err)
}

func TestLoadCSV(t *testing.T) {

	path := filepath.Join(t.TempDir(), "data.csv")
	content := "MUNICIPIO;REGIAO;PBNVS;MHDI_I\nA;Nordeste;0,07;0,7\nB;SE;0,05;0,8\nC;Sul;0;0,8\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	data, err := Load(path, "", Columns{Response: "PBNVS", Covariates: []string{"MHDI_I"}, Region: "REGIAO"})
	require.NoError(t, err)

	// The response is already a proportion, zero is out of range.
	assert.False(t, data.Rescaled)
	assert.Equal(t, 1, data.Dropped)
	reg, _ := data.Factor(RegionVar)
	assert.Equal(t, []string{"NE", "SE"}, reg)

	_, err = Load(path, "", Columns{Response: "PBNVS", Covariates: []string{"GINI"}})
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "data.txt"), "", cols)
	assert.Error(t, err)
}

func TestParseNumber(t *testing.T) {

	for s, v := range map[string]float64{
		"1.5":      1.5,
		"1,5":      1.5,
		" 12 ":     12,
		"1.234,56": 1234.56,
		"7%":       7,
		"-0,25":    -0.25,
	} {
		assert.InDelta(t, v, ParseNumber(s), 1e-12, s)
	}

	for _, s := range []string{"", "NA", "n/a", "abc", "-"} {
		assert.True(t, math.IsNaN(ParseNumber(s)), s)
	}
}

func TestRegionOf(t *testing.T) {

	for s, r := range map[string]string{
		"ba":           "NE",
		"SE":           "NE",
		"RS":           "S",
		"29":           "NE",
		"3550308":      "SE",
		"5300108.0":    "CO",
		"110001":       "N",
		"Centro-Oeste": "CO",
		"sudeste":      "SE",
	} {
		got, ok := RegionOf(s)
		assert.True(t, ok, s)
		assert.Equal(t, r, got, s)
	}

	for _, s := range []string{"", "XX", "99", "812"} {
		_, ok := RegionOf(s)
		assert.False(t, ok, s)
	}

	r, ok := regionCode("SE")
	assert.True(t, ok)
	assert.Equal(t, "SE", r)
}

func TestDescribe(t *testing.T) {

	d, err := Describe("x", []float64{1, 2, 3, 4, math.NaN(), 10})
	require.NoError(t, err)

	assert.Equal(t, 5, d.N)
	assert.InDelta(t, 4, d.Mean, 1e-12)
	assert.InDelta(t, 3, d.Median, 1e-12)
	assert.InDelta(t, 1, d.Min, 1e-12)
	assert.InDelta(t, 10, d.Max, 1e-12)
	assert.InDelta(t, math.Sqrt(12.5), d.SD, 1e-12)
	assert.InDelta(t, d.SD/4, d.CV, 1e-12)
	assert.True(t, d.Q1 <= d.Median && d.Median <= d.Q3)
	assert.Greater(t, d.Skewness, 0.0)

	_, err = Describe("y", []float64{math.NaN()})
	assert.ErrorIs(t, err, statmodel.ErrEmpty)

	d, err = Describe("z", []float64{2})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(d.SD))
}

func TestDescribeByGroup(t *testing.T) {

	x := []float64{1, 2, 3, 10, 20}
	g := []string{"S", "NE", "S", "NE", "S"}

	ds, err := DescribeByGroup(x, g)
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "NE", ds[0].Name)
	assert.Equal(t, 2, ds[0].N)
	assert.InDelta(t, 6, ds[0].Mean, 1e-12)
	assert.Equal(t, "S", ds[1].Name)
	assert.InDelta(t, 8, ds[1].Mean, 1e-12)

	_, err = DescribeByGroup(x, g[:2])
	assert.ErrorIs(t, err, statmodel.ErrLength)
}

func TestSplit(t *testing.T) {

	x := make([]float64, 100)
	for i := range x {
		x[i] = float64(i)
	}
	ds, err := statmodel.NewDataset([][]float64{x}, []string{"x"})
	require.NoError(t, err)

	train, test, err := Split(ds, 0.2, 1)
	require.NoError(t, err)
	assert.Equal(t, 80, train.NumObs())
	assert.Equal(t, 20, test.NumObs())

	// Disjoint and complete.
	seen := make(map[float64]bool)
	for _, d := range []*statmodel.Dataset{train, test} {
		v, _ := d.Var("x")
		for _, u := range v {
			assert.False(t, seen[u])
			seen[u] = true
		}
	}
	assert.Len(t, seen, 100)

	// Deterministic for a given seed.
	_, test2, err := Split(ds, 0.2, 1)
	require.NoError(t, err)
	assert.Equal(t, test, test2)

	tr, te, err := Split(ds, 0, 1)
	require.NoError(t, err)
	assert.Nil(t, te)
	assert.Equal(t, ds, tr)

	_, _, err = Split(ds, 1, 1)
	assert.Error(t, err)
}

func TestLoadCSVByteOrderMark(t *testing.T) {

	path := filepath.Join(t.TempDir(), "excel.csv")
	content := "\ufeffPBNVS,MHDI_I,UF\n0.07,0.7,BA\n0.05,0.8,RS\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tab, err := ReadTable(path, "")
	require.NoError(t, err)
	assert.Equal(t, "PBNVS", tab.Header[0])
	assert.True(t, tab.Has("pbnvs"))
	assert.False(t, tab.Has(""))

	// Absent region and ID columns are not errors.
	data, err := Load(path, "", Columns{Response: "PBNVS", Covariates: []string{"MHDI_I"},
		Region: "REGION", UF: "UF", ID: "MUNICIPIO"})
	require.NoError(t, err)
	assert.Equal(t, 2, data.NumObs())
	assert.Nil(t, data.IDs)
	reg, _ := data.Factor(RegionVar)
	assert.Equal(t, []string{"NE", "S"}, reg)
}
