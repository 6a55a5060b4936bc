package gamlss

import (
	"fmt"
	"strings"
)

// Formula describes the linear predictor of one distribution parameter,
// in the notation "y ~ x1 + x2 + re(region)".  The response is only
// present in the formula for mu.  A "-1" or "0" term removes the
// intercept, "1" keeps it (the default).  A term re(f) adds a random
// intercept for the levels of factor f.
type Formula struct {
	Response  string
	Terms     []string
	Intercept bool
	Random    []string
}

// ParseFormula parses a model formula.
func ParseFormula(s string) (*Formula, error) {

	f := &Formula{Intercept: true}

	rhs := s
	if i := strings.Index(s, "~"); i >= 0 {
		f.Response = strings.TrimSpace(s[:i])
		rhs = s[i+1:]
	}
	rhs = strings.TrimSpace(rhs)
	if rhs == "" {
		return nil, fmt.Errorf("formula %q has no right hand side", s)
	}

	// Turn "a - b" into "a + -b" so that every term carries its sign.
	// A hyphen inside a name, as in IDHM-R, is not an operator.
	var sb strings.Builder
	for i := 0; i < len(rhs); i++ {
		if rhs[i] == '-' && (i == 0 || strings.IndexByte(" \t+", rhs[i-1]) >= 0) {
			sb.WriteString("+-")
			continue
		}
		sb.WriteByte(rhs[i])
	}
	rhs = sb.String()

	seen := make(map[string]bool)
	for _, tok := range strings.Split(rhs, "+") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		neg := strings.HasPrefix(tok, "-")
		tok = strings.TrimSpace(strings.TrimPrefix(tok, "-"))

		switch {
		case tok == "1":
			f.Intercept = !neg
		case tok == "0":
			f.Intercept = false
		case strings.HasPrefix(tok, "re(") && strings.HasSuffix(tok, ")"):
			g := strings.TrimSpace(tok[3 : len(tok)-1])
			if g == "" || neg {
				return nil, fmt.Errorf("invalid random term %q in %q", tok, s)
			}
			f.Random = append(f.Random, g)
		case neg:
			return nil, fmt.Errorf("cannot remove term %q in %q", tok, s)
		case strings.ContainsAny(tok, "()*:^ "):
			return nil, fmt.Errorf("unsupported term %q in %q", tok, s)
		default:
			if seen[tok] {
				return nil, fmt.Errorf("duplicated term %q in %q", tok, s)
			}
			seen[tok] = true
			f.Terms = append(f.Terms, tok)
		}
	}

	if len(f.Random) > 1 {
		return nil, fmt.Errorf("at most one random term is supported, got %v", f.Random)
	}

	return f, nil
}

// MustParseFormula is like ParseFormula but panics on error.
func MustParseFormula(s string) *Formula {
	f, err := ParseFormula(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Clone returns a deep copy of the formula.
func (f *Formula) Clone() *Formula {
	g := *f
	g.Terms = append([]string(nil), f.Terms...)
	g.Random = append([]string(nil), f.Random...)
	return &g
}

// Has returns true if the formula contains the given fixed term.
func (f *Formula) Has(term string) bool {
	for _, t := range f.Terms {
		if t == term {
			return true
		}
	}
	return false
}

// With returns a copy of the formula with the fixed term added.
func (f *Formula) With(term string) *Formula {
	g := f.Clone()
	if !g.Has(term) {
		g.Terms = append(g.Terms, term)
	}
	return g
}

// Without returns a copy of the formula with the fixed term removed.
func (f *Formula) Without(term string) *Formula {
	g := f.Clone()
	g.Terms = g.Terms[0:0]
	for _, t := range f.Terms {
		if t != term {
			g.Terms = append(g.Terms, t)
		}
	}
	return g
}

// String returns the formula in the notation accepted by ParseFormula.
func (f *Formula) String() string {

	var terms []string
	if f.Intercept {
		terms = append(terms, "1")
	} else {
		terms = append(terms, "-1")
	}
	terms = append(terms, f.Terms...)
	for _, g := range f.Random {
		terms = append(terms, "re("+g+")")
	}

	rhs := strings.Join(terms, " + ")
	if f.Response == "" {
		return "~ " + rhs
	}
	return f.Response + " ~ " + rhs
}
