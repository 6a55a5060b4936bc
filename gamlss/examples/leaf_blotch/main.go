/*
This example revisits the leaf blotch data of McCullagh and Nelder's GLM
book with distributional regression models for proportions.

The data are percentages of leaf area affected by blotch, arranged in a
complete two-way layout of 10 sites by 9 varieties.  The response is
rescaled to (0, 1) with the transformation (y(n-1) + 1/2) / n of Smithson
and Verkuilen, since some observations are exactly zero.

Sites enter the mu predictor as fixed effects (indicator variables) and
varieties as a random intercept.  The Beta and the Simplex fits are
compared by their AIC, and the quantile residuals are plotted against
the linear predictor for both.
*/

package main

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/pbnvs/unitreg/gamlss"
	"github.com/pbnvs/unitreg/statmodel"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var raw string = `0.05,0.00,1.25,2.50,5.50,1.00,5.00,5.00,17.50
0.00,0.05,1.25,0.50,1.00,5.00,0.10,10.00,25.00
0.00,0.05,2.50,0.01,6.00,5.00,5.00,5.00,42.50
0.10,0.30,16.60,3.00,1.10,5.00,5.00,5.00,50.00
0.25,0.75,2.50,2.50,2.50,5.00,50.00,25.00,37.50
0.05,0.30,2.50,0.01,8.00,5.00,10.00,75.00,95.00
0.50,3.00,0.00,25.00,16.50,10.00,50.00,50.00,62.50
1.30,7.50,20.00,55.00,29.50,5.00,25.00,75.00,95.00
1.50,1.00,37.50,5.00,20.00,50.00,50.00,75.00,95.00
1.50,12.70,26.25,40.00,43.50,75.00,75.00,75.00,95.00`

// setup returns the data in long format, with indicators site1, ..., site9
// for the sites (site 0 is the reference) and the variety as a factor.
func setup() *statmodel.Dataset {

	rows, err := csv.NewReader(strings.NewReader(raw)).ReadAll()
	if err != nil {
		panic(err)
	}

	nsite := len(rows)
	var y []float64
	var site []int
	var variety []string
	for i, row := range rows {
		for j, v := range row {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				panic(err)
			}
			y = append(y, x/100)
			site = append(site, i)
			variety = append(variety, fmt.Sprintf("v%d", j))
		}
	}

	n := float64(len(y))
	for i := range y {
		y[i] = (y[i]*(n-1) + 0.5) / n
	}

	ds, err := statmodel.NewDataset([][]float64{y}, []string{"y"})
	if err != nil {
		panic(err)
	}
	for k := 1; k < nsite; k++ {
		ind := make([]float64, len(y))
		for i, s := range site {
			if s == k {
				ind[i] = 1
			}
		}
		if err := ds.AddVar(fmt.Sprintf("site%d", k), ind); err != nil {
			panic(err)
		}
	}
	if err := ds.AddFactor("variety", variety); err != nil {
		panic(err)
	}

	return ds
}

func residPlot(lp, resid []float64, title, filename string) {

	p := plot.New()

	p.Title.Text = title
	p.X.Label.Text = "Linear predictor"
	p.Y.Label.Text = "Quantile residual"

	pts := make(plotter.XYs, len(lp))
	for i := range lp {
		pts[i].X = lp[i]
		pts[i].Y = resid[i]
	}

	err := plotutil.AddScatters(p, pts)
	if err != nil {
		panic(err)
	}

	err = p.Save(6*vg.Inch, 4*vg.Inch, filename)
	if err != nil {
		panic(err)
	}
}

func main() {

	data := setup()

	var terms []string
	for k := 1; k < 10; k++ {
		terms = append(terms, fmt.Sprintf("site%d", k))
	}
	formula := "y ~ " + strings.Join(terms, " + ") + " + re(variety)"

	for _, ft := range []gamlss.FamilyType{gamlss.BetaFamily, gamlss.SimplexFamily} {
		fam := gamlss.NewFamily(ft)
		model, err := gamlss.NewModel(data, formula).Family(fam).Done()
		if err != nil {
			panic(err)
		}
		result, err := model.Fit()
		if err != nil {
			panic(err)
		}
		residPlot(result.LinearPredictor(), result.QuantileResid(),
			fam.Long, strings.ToLower(fam.Name)+".pdf")
		fmt.Printf("%v\n", result.Summary().AddMessage(fmt.Sprintf("AIC: %.3f", result.AIC())))
	}
}
