package gamlss

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Direction is the search direction of stepwise selection.
type Direction int

// Forward only adds terms, Backward only drops terms, Both considers
// either at every step.
const (
	Both Direction = iota
	Forward
	Backward
)

// ParseDirection maps "both", "forward" and "backward" to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "", "both":
		return Both, nil
	case "forward":
		return Forward, nil
	case "backward":
		return Backward, nil
	}
	return Both, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "both"
	}
}

// StepOptions configures stepwise selection of the mu terms.
type StepOptions struct {
	Direction Direction

	// Candidate terms.  Terms of the starting formula that are not
	// listed here are kept in every model.
	Scope []string

	// Penalty per degree of freedom: 2 for AIC, log(n) for BIC.  Zero
	// means 2.
	K float64

	// Maximum number of accepted steps, zero means no limit.
	MaxSteps int

	// Maximum number of candidate fits run at the same time, zero
	// means the number of CPUs.
	Concurrency int
}

// StepRecord is one entry of the selection trace.
type StepRecord struct {
	Step    int
	Action  string
	Term    string
	Formula string
	GAIC    float64
}

// StepResult holds the selected model and the trace of the search.
type StepResult struct {
	Formula *Formula
	Results *Results
	Trace   []StepRecord
}

type candidate struct {
	action string
	term   string
	f      *Formula
	rslt   *Results
	gaic   float64
	err    error
}

// StepGAIC selects the terms of the mu formula of an unfitted (but Done)
// model by greedy stepwise search on the generalized AIC.  At every step
// all single additions and/or deletions are fit and the best one is
// accepted if it lowers the criterion.
func StepGAIC(ctx context.Context, m *Model, opts StepOptions) (*StepResult, error) {

	if !m.done {
		return nil, errors.New("Done must be called before StepGAIC")
	}

	k := opts.K
	if k == 0 {
		k = 2
	}
	conc := opts.Concurrency
	if conc <= 0 {
		conc = runtime.NumCPU()
	}

	for _, t := range opts.Scope {
		if _, ok := m.data.Var(t); !ok {
			return nil, fmt.Errorf("scope term %q not found", t)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cur, err := m.Fit()
	if err != nil {
		return nil, fmt.Errorf("starting model: %w", err)
	}
	curF := m.muFormula.Clone()
	curG := cur.GAIC(k)

	res := &StepResult{
		Trace: []StepRecord{{Action: "start", Formula: curF.String(), GAIC: curG}},
	}

	for step := 1; opts.MaxSteps == 0 || step <= opts.MaxSteps; step++ {

		var cands []*candidate
		for _, t := range opts.Scope {
			in := curF.Has(t)
			if !in && opts.Direction != Backward {
				cands = append(cands, &candidate{action: "+", term: t, f: curF.With(t)})
			}
			if in && opts.Direction != Forward {
				cands = append(cands, &candidate{action: "-", term: t, f: curF.Without(t)})
			}
		}
		if len(cands) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(conc)
		for _, c := range cands {
			c := c
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				nm, err := m.withMuFormula(c.f)
				if err == nil {
					c.rslt, err = nm.Fit()
				}
				if err != nil {
					c.err = err
					m.logf("step %d: %s%s failed: %v", step, c.action, c.term, err)
					return nil
				}
				c.gaic = c.rslt.GAIC(k)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var best *candidate
		for _, c := range cands {
			if c.err != nil || math.IsNaN(c.gaic) {
				continue
			}
			if best == nil || c.gaic < best.gaic {
				best = c
			}
		}
		if best == nil || best.gaic >= curG {
			break
		}

		cur, curF, curG = best.rslt, best.f, best.gaic
		res.Trace = append(res.Trace, StepRecord{
			Step:    step,
			Action:  best.action,
			Term:    best.term,
			Formula: curF.String(),
			GAIC:    curG,
		})
		m.logf("step %d: %s%s, GAIC=%.4f", step, best.action, best.term, curG)
	}

	res.Formula = curF
	res.Results = cur

	return res, nil
}
