package electoral

import (
	"strings"
)

// The five Brazilian macro-regions.
var Regions = []string{"N", "NE", "SE", "S", "CO"}

var ufRegion = map[string]string{
	"AC": "N", "AP": "N", "AM": "N", "PA": "N", "RO": "N", "RR": "N", "TO": "N",
	"AL": "NE", "BA": "NE", "CE": "NE", "MA": "NE", "PB": "NE", "PE": "NE", "PI": "NE", "RN": "NE", "SE": "NE",
	"ES": "SE", "MG": "SE", "RJ": "SE", "SP": "SE",
	"PR": "S", "RS": "S", "SC": "S",
	"DF": "CO", "GO": "CO", "MT": "CO", "MS": "CO",
}

var regionNames = map[string]string{
	"NORTE":        "N",
	"NORDESTE":     "NE",
	"SUDESTE":      "SE",
	"SUL":          "S",
	"CENTRO-OESTE": "CO",
	"CENTRO OESTE": "CO",
	"CENTROESTE":   "CO",
}

// RegionOf maps a state abbreviation (e.g. "BA"), an IBGE state or
// municipality code (the first digit identifies the region) or a region
// name to the region code.  "SE" is read as the state of Sergipe.
func RegionOf(s string) (string, bool) {

	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}

	if r, ok := ufRegion[s]; ok {
		return r, true
	}
	if r, ok := regionNames[s]; ok {
		return r, true
	}

	// IBGE codes, possibly read from a spreadsheet as "2927408.0"
	if i := strings.IndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	if len(s) == 2 || len(s) == 6 || len(s) == 7 {
		if strings.Trim(s, "0123456789") == "" {
			switch s[0] {
			case '1':
				return "N", true
			case '2':
				return "NE", true
			case '3':
				return "SE", true
			case '4':
				return "S", true
			case '5':
				return "CO", true
			}
		}
	}

	return "", false
}

// regionCode normalizes a value of a region column.  Unlike RegionOf,
// region codes take precedence over state abbreviations, so "SE" is the
// Southeast.
func regionCode(s string) (string, bool) {
	u := strings.ToUpper(strings.TrimSpace(s))
	for _, r := range Regions {
		if u == r {
			return r, true
		}
	}
	return RegionOf(s)
}
