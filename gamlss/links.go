package gamlss

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// ScalarFunc maps one real value to another.
type ScalarFunc func(float64) float64

// Link specifies a link function relating a distribution parameter to
// its linear predictor.
type Link struct {
	Name string

	TypeCode LinkType

	// Link maps the parameter to the linear predictor.
	Link ScalarFunc

	// InvLink maps the linear predictor to the parameter.
	InvLink ScalarFunc

	// Deriv is the derivative of the link function with respect to the parameter.
	Deriv ScalarFunc
}

// LinkType is used to specify a link function.
type LinkType uint8

// LogitLink, etc. indicate the different link functions.
const (
	LogitLink LinkType = iota
	LogLink
	IdentityLink
	ProbitLink
	CloglogLink
)

// eps keeps inverse links for (0, 1) parameters away from the boundary.
const eps = 1e-12

// NewLink returns the link function object for the given type.
func NewLink(link LinkType) *Link {

	switch link {
	case LogitLink:
		return &logitLink
	case LogLink:
		return &logLink
	case IdentityLink:
		return &idLink
	case ProbitLink:
		return &probitLink
	case CloglogLink:
		return &cloglogLink
	default:
		msg := fmt.Sprintf("Link unknown: %v\n", link)
		panic(msg)
	}
}

// ParseLink returns the link with the given (case insensitive) name.
func ParseLink(name string) (*Link, error) {
	switch strings.ToLower(name) {
	case "logit":
		return NewLink(LogitLink), nil
	case "log":
		return NewLink(LogLink), nil
	case "identity":
		return NewLink(IdentityLink), nil
	case "probit":
		return NewLink(ProbitLink), nil
	case "cloglog":
		return NewLink(CloglogLink), nil
	}
	return nil, fmt.Errorf("unknown link %q", name)
}

func clampUnit(p float64) float64 {
	return math.Min(math.Max(p, eps), 1-eps)
}

var logitLink = Link{
	Name:     "logit",
	TypeCode: LogitLink,
	Link: func(p float64) float64 {
		return math.Log(p / (1 - p))
	},
	InvLink: func(x float64) float64 {
		return clampUnit(1 / (1 + math.Exp(-x)))
	},
	Deriv: func(p float64) float64 {
		return 1 / (p * (1 - p))
	},
}

var logLink = Link{
	Name:     "log",
	TypeCode: LogLink,
	Link:     math.Log,
	InvLink: func(x float64) float64 {
		return math.Max(math.Exp(x), 1e-300)
	},
	Deriv: func(x float64) float64 {
		return 1 / x
	},
}

var idLink = Link{
	Name:     "identity",
	TypeCode: IdentityLink,
	Link:     func(x float64) float64 { return x },
	InvLink:  func(x float64) float64 { return x },
	Deriv:    func(float64) float64 { return 1 },
}

var probitLink = Link{
	Name:     "probit",
	TypeCode: ProbitLink,
	Link: func(p float64) float64 {
		return distuv.UnitNormal.Quantile(p)
	},
	InvLink: func(x float64) float64 {
		return clampUnit(distuv.UnitNormal.CDF(x))
	},
	Deriv: func(p float64) float64 {
		return 1 / distuv.UnitNormal.Prob(distuv.UnitNormal.Quantile(p))
	},
}

var cloglogLink = Link{
	Name:     "cloglog",
	TypeCode: CloglogLink,
	Link: func(p float64) float64 {
		return math.Log(-math.Log1p(-p))
	},
	InvLink: func(x float64) float64 {
		return clampUnit(-math.Expm1(-math.Exp(x)))
	},
	Deriv: func(p float64) float64 {
		return -1 / ((1 - p) * math.Log1p(-p))
	},
}
