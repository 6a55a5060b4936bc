package gamlss

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mathext"
)

// FamilyType is the type of response distribution used in a model.
type FamilyType uint8

// BetaFamily, ... are the supported two-parameter distributions on (0, 1).
const (
	BetaFamily FamilyType = iota
	SimplexFamily
	KumaraswamyFamily
	UnitWeibullFamily
	RUBXIIFamily
)

// PDFFunc evaluates a density (or its logarithm) at y given mu and sigma.
type PDFFunc func(y, mu, sigma float64) float64

// Family represents a two-parameter distribution on the open unit interval,
// indexed by a location parameter mu and a shape/dispersion parameter sigma.
type Family struct {

	// Short name of the family, e.g. "BE"
	Name string

	// Descriptive name of the family
	Long string

	// The numeric code for the family
	TypeCode FamilyType

	// What mu represents: "mean" or "median"
	Location string

	// Log-density
	LogPDF PDFFunc

	// Cumulative distribution function
	CDF PDFFunc

	// Quantile function, the first argument is a probability
	Quantile PDFFunc

	// Default links for mu and sigma
	MuLink    LinkType
	SigmaLink LinkType

	// validSigma reports whether sigma is in the parameter space
	validSigma func(float64) bool
}

// NewFamily returns the family object for the given type.
func NewFamily(fam FamilyType) *Family {

	switch fam {
	case BetaFamily:
		return &beta
	case SimplexFamily:
		return &simplex
	case KumaraswamyFamily:
		return &kumaraswamy
	case UnitWeibullFamily:
		return &unitWeibull
	case RUBXIIFamily:
		return &rubxii
	default:
		msg := fmt.Sprintf("Unknown family: %v\n", fam)
		panic(msg)
	}
}

// AllFamilies returns every supported family type.
func AllFamilies() []FamilyType {
	return []FamilyType{BetaFamily, SimplexFamily, KumaraswamyFamily, UnitWeibullFamily, RUBXIIFamily}
}

// ParseFamily returns the family with the given short or descriptive
// name, ignoring case.
func ParseFamily(name string) (*Family, error) {
	for _, ft := range AllFamilies() {
		f := NewFamily(ft)
		if strings.EqualFold(name, f.Name) || strings.EqualFold(name, f.Long) {
			return f, nil
		}
	}
	return nil, fmt.Errorf("unknown family %q", name)
}

// Valid returns true if (mu, sigma) lies in the parameter space.
func (fam *Family) Valid(mu, sigma float64) bool {
	return mu > 0 && mu < 1 && fam.validSigma(sigma)
}

// Rand draws a value from the distribution by inversion.
func (fam *Family) Rand(mu, sigma float64, rng *rand.Rand) float64 {
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return fam.Quantile(u, mu, sigma)
}

func positive(s float64) bool {
	return s > 0 && !math.IsInf(s, 1)
}

func inUnit(y float64) bool {
	return y > 0 && y < 1
}

var beta = Family{
	Name:       "BE",
	Long:       "Beta",
	TypeCode:   BetaFamily,
	Location:   "mean",
	LogPDF:     betaLogPDF,
	CDF:        betaCDF,
	Quantile:   betaQuantile,
	MuLink:     LogitLink,
	SigmaLink:  LogitLink,
	validSigma: inUnit,
}

var simplex = Family{
	Name:       "SIMPLEX",
	Long:       "Simplex",
	TypeCode:   SimplexFamily,
	Location:   "mean",
	LogPDF:     simplexLogPDF,
	CDF:        simplexCDF,
	Quantile:   simplexQuantile,
	MuLink:     LogitLink,
	SigmaLink:  LogLink,
	validSigma: positive,
}

var kumaraswamy = Family{
	Name:       "KW",
	Long:       "Kumaraswamy",
	TypeCode:   KumaraswamyFamily,
	Location:   "median",
	LogPDF:     kwLogPDF,
	CDF:        kwCDF,
	Quantile:   kwQuantile,
	MuLink:     LogitLink,
	SigmaLink:  LogLink,
	validSigma: positive,
}

var unitWeibull = Family{
	Name:       "UW",
	Long:       "UnitWeibull",
	TypeCode:   UnitWeibullFamily,
	Location:   "median",
	LogPDF:     uwLogPDF,
	CDF:        uwCDF,
	Quantile:   uwQuantile,
	MuLink:     LogitLink,
	SigmaLink:  LogLink,
	validSigma: positive,
}

var rubxii = Family{
	Name:       "RUBXII",
	Long:       "ReflectedUnitBurrXII",
	TypeCode:   RUBXIIFamily,
	Location:   "median",
	LogPDF:     rubxiiLogPDF,
	CDF:        rubxiiCDF,
	Quantile:   rubxiiQuantile,
	MuLink:     LogitLink,
	SigmaLink:  LogLink,
	validSigma: positive,
}

// Beta, mean parameterization: a = mu(1-s^2)/s^2, b = (1-mu)(1-s^2)/s^2.
func betaShapes(mu, sigma float64) (float64, float64) {
	phi := (1 - sigma*sigma) / (sigma * sigma)
	return mu * phi, (1 - mu) * phi
}

func betaLogPDF(y, mu, sigma float64) float64 {
	if !inUnit(y) {
		return math.Inf(-1)
	}
	a, b := betaShapes(mu, sigma)
	return (a-1)*math.Log(y) + (b-1)*math.Log1p(-y) - mathext.Lbeta(a, b)
}

func betaCDF(y, mu, sigma float64) float64 {
	switch {
	case y <= 0:
		return 0
	case y >= 1:
		return 1
	}
	a, b := betaShapes(mu, sigma)
	return mathext.RegIncBeta(a, b, y)
}

func betaQuantile(p, mu, sigma float64) float64 {
	a, b := betaShapes(mu, sigma)
	return mathext.InvRegIncBeta(a, b, p)
}

// Simplex distribution of Barndorff-Nielsen and Jorgensen.
func simplexLogPDF(y, mu, sigma float64) float64 {
	if !inUnit(y) {
		return math.Inf(-1)
	}
	yy := y * (1 - y)
	mm := mu * (1 - mu)
	r := y - mu
	d := r * r / (yy * mm * mm)
	return -0.5*math.Log(2*math.Pi*sigma*sigma) - 1.5*math.Log(yy) - d/(2*sigma*sigma)
}

// simplexPieces and simplexNodes control the composite Gauss-Legendre rule
// used to integrate the simplex density.
const (
	simplexPieces = 16
	simplexNodes  = 16
)

func simplexIntegral(a, b, mu, sigma float64) float64 {
	f := func(t float64) float64 {
		return math.Exp(simplexLogPDF(t, mu, sigma))
	}
	h := (b - a) / simplexPieces
	var s float64
	for k := 0; k < simplexPieces; k++ {
		s += quad.Fixed(f, a+float64(k)*h, a+float64(k+1)*h, simplexNodes, quad.Legendre{}, 0)
	}
	return s
}

func simplexCDF(y, mu, sigma float64) float64 {
	switch {
	case y <= 0:
		return 0
	case y >= 1:
		return 1
	}

	// Integrate over the shorter tail.
	var p float64
	if y <= mu {
		p = simplexIntegral(0, y, mu, sigma)
	} else {
		p = 1 - simplexIntegral(y, 1, mu, sigma)
	}
	return math.Min(math.Max(p, 0), 1)
}

func simplexQuantile(p, mu, sigma float64) float64 {
	lo, hi := 0.0, 1.0
	for iter := 0; iter < 60; iter++ {
		m := (lo + hi) / 2
		if simplexCDF(m, mu, sigma) < p {
			lo = m
		} else {
			hi = m
		}
	}
	return (lo + hi) / 2
}

// Kumaraswamy, median parameterization: sigma is the first shape a and
// b = log(1/2) / log(1 - mu^a).
func kwShapes(mu, sigma float64) (float64, float64) {
	return sigma, math.Log(0.5) / math.Log1p(-math.Pow(mu, sigma))
}

func kwLogPDF(y, mu, sigma float64) float64 {
	if !inUnit(y) {
		return math.Inf(-1)
	}
	a, b := kwShapes(mu, sigma)
	ya := math.Pow(y, a)
	return math.Log(a) + math.Log(b) + (a-1)*math.Log(y) + (b-1)*math.Log1p(-ya)
}

func kwCDF(y, mu, sigma float64) float64 {
	switch {
	case y <= 0:
		return 0
	case y >= 1:
		return 1
	}
	a, b := kwShapes(mu, sigma)
	return -math.Expm1(b * math.Log1p(-math.Pow(y, a)))
}

func kwQuantile(p, mu, sigma float64) float64 {
	a, b := kwShapes(mu, sigma)
	return math.Pow(-math.Expm1(math.Log1p(-p)/b), 1/a)
}

// Unit Weibull, median parameterization: sigma is the shape beta and
// alpha = log(2) / (-log mu)^beta, F(y) = exp(-alpha (-log y)^beta).
func uwAlpha(mu, sigma float64) float64 {
	return math.Ln2 / math.Pow(-math.Log(mu), sigma)
}

func uwLogPDF(y, mu, sigma float64) float64 {
	if !inUnit(y) {
		return math.Inf(-1)
	}
	alpha := uwAlpha(mu, sigma)
	ly := -math.Log(y)
	return math.Log(alpha) + math.Log(sigma) + ly + (sigma-1)*math.Log(ly) - alpha*math.Pow(ly, sigma)
}

func uwCDF(y, mu, sigma float64) float64 {
	switch {
	case y <= 0:
		return 0
	case y >= 1:
		return 1
	}
	return math.Exp(-uwAlpha(mu, sigma) * math.Pow(-math.Log(y), sigma))
}

func uwQuantile(p, mu, sigma float64) float64 {
	alpha := uwAlpha(mu, sigma)
	return math.Exp(-math.Pow(-math.Log(p)/alpha, 1/sigma))
}

// Reflected unit Burr XII, median parameterization: with L(y) = -log(1-y),
// F(y) = 1 - (1 + L(y)^c)^(-d), sigma = c and d = log(2) / log(1 + L(mu)^c).
func rubxiiL(y float64) float64 {
	return -math.Log1p(-y)
}

func rubxiiD(mu, sigma float64) float64 {
	return math.Ln2 / math.Log1p(math.Pow(rubxiiL(mu), sigma))
}

func rubxiiLogPDF(y, mu, sigma float64) float64 {
	if !inUnit(y) {
		return math.Inf(-1)
	}
	d := rubxiiD(mu, sigma)
	l := rubxiiL(y)
	return math.Log(sigma) + math.Log(d) + l + (sigma-1)*math.Log(l) - (d+1)*math.Log1p(math.Pow(l, sigma))
}

func rubxiiCDF(y, mu, sigma float64) float64 {
	switch {
	case y <= 0:
		return 0
	case y >= 1:
		return 1
	}
	d := rubxiiD(mu, sigma)
	return -math.Expm1(-d * math.Log1p(math.Pow(rubxiiL(y), sigma)))
}

func rubxiiQuantile(p, mu, sigma float64) float64 {
	d := rubxiiD(mu, sigma)
	lc := math.Expm1(-math.Log1p(-p) / d)
	return -math.Expm1(-math.Pow(lc, 1/sigma))
}
