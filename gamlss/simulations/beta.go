//go:build ignore

/*
This simulation generates data from a Beta regression with a random
intercept, fits the model, and constructs a profile likelihood confidence
interval for the slope.  It also compares the fit of the median-based
families to the same data.
*/

package main

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pbnvs/unitreg/gamlss"
	"github.com/pbnvs/unitreg/statmodel"
)

func simulate(n int, sigma, tau float64) *statmodel.Dataset {

	rng := rand.New(rand.NewPCG(4523745, 1))
	fam := gamlss.NewFamily(gamlss.BetaFamily)

	// Random intercepts for 5 groups
	ngrp := 5
	re := make([]float64, ngrp)
	for k := range re {
		re[k] = tau * rng.NormFloat64()
	}

	x1 := make([]float64, n)
	x2 := make([]float64, n)
	g := make([]string, n)
	y := make([]float64, n)
	for i := range y {
		x1[i] = rng.NormFloat64()
		x2[i] = rng.NormFloat64()
		k := rng.IntN(ngrp)
		g[i] = fmt.Sprintf("%d", k)
		mu := 1 / (1 + math.Exp(-(x1[i]-x2[i])/2-re[k]))
		y[i] = fam.Rand(mu, sigma, rng)
	}

	ds, err := statmodel.NewDataset([][]float64{y, x1, x2}, []string{"y", "x1", "x2"})
	if err != nil {
		panic(err)
	}
	if err := ds.AddFactor("g", g); err != nil {
		panic(err)
	}

	return ds
}

func main() {

	for _, n := range []int{500, 2000} {

		fmt.Printf("n=%d\n\n", n)
		data := simulate(n, 0.2, 0.5)

		model, err := gamlss.NewModel(data, "y ~ x1 + x2 + re(g)").Family(gamlss.NewFamily(gamlss.BetaFamily)).Done()
		if err != nil {
			panic(err)
		}
		result, err := model.Fit()
		if err != nil {
			panic(err)
		}
		fmt.Printf("%v\n", result.Summary())

		ps, err := gamlss.NewProfiler(result, "mu:x1")
		if err != nil {
			panic(err)
		}
		pct := 95
		lp, rp, err := ps.ConfInt(float64(pct) / 100)
		if err != nil {
			panic(err)
		}
		fmt.Printf("%d%% interval for mu:x1: %f, %f\n\n", pct, lp, rp)

		for _, ft := range gamlss.AllFamilies() {
			fam := gamlss.NewFamily(ft)
			m, err := gamlss.NewModel(data, "y ~ x1 + x2 + re(g)").Family(fam).Done()
			if err != nil {
				panic(err)
			}
			r, err := m.Fit()
			if err != nil {
				fmt.Printf("%-8s failed: %v\n", fam.Name, err)
				continue
			}
			fmt.Printf("%-8s AIC=%10.3f  BIC=%10.3f  Filliben=%.4f\n", fam.Name, r.AIC(), r.BIC(), r.ResidSummary().Filliben)
		}
		fmt.Printf("\n")
	}
}
