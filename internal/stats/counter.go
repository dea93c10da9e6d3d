// Package stats computes the frequency views of enriched access log records
// and writes them as toplists.
package stats

import (
	"strings"

	"github.com/AdguardTeam/WebStats/internal/accesslog"
	"github.com/AdguardTeam/golibs/container"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// NoneLabel is the label of an absent ownership field.
const NoneLabel = "None"

// labelSep separates the ownership fields within a label.
const labelSep = ", "

// Counter maps labels to the number of their occurrences.
type Counter map[string]uint64

// visit is a label seen from an address.
type visit struct {
	label string
	addr  string
}

// Countries returns the number of distinct addresses per country.  The
// labels are the English names of the countries.  Records without a
// recognized ISO 3166-1 alpha-2 country code are skipped.
func Countries(records []*accesslog.Record) (c Counter) {
	c = Counter{}
	seen := container.NewMapSet[visit]()
	for _, r := range records {
		name, ok := CountryName(r.Country)
		if !ok {
			continue
		}

		v := visit{label: name, addr: r.Addr}
		if seen.Has(v) {
			continue
		}

		seen.Add(v)
		c[name]++
	}

	return c
}

// CountryName returns the English name of the country with the upper-case
// ISO 3166-1 alpha-2 code.  ok is false if code isn't one.
func CountryName(code string) (name string, ok bool) {
	if len(code) != 2 {
		return "", false
	}

	if isUserAssigned(code) {
		return "", false
	}

	region, err := language.ParseRegion(code)
	if err != nil || !region.IsCountry() || region.String() != code {
		return "", false
	}

	// Deprecated codes, such as UK and BU, are canonicalized to their
	// replacements.  Exceptional reservations, such as AC and IC, have no M49
	// code.
	if region.Canonicalize() != region || region.M49() == 0 {
		return "", false
	}

	name = display.English.Regions().Name(region)

	return name, name != ""
}

// isUserAssigned returns true if code is one of the ISO 3166-1 alpha-2 codes
// reserved for private use: AA, QM to QZ, XA to XZ, and ZZ.  Some of them,
// such as XK, are recognized as countries by CLDR.
func isUserAssigned(code string) (ok bool) {
	switch c0, c1 := code[0], code[1]; c0 {
	case 'A':
		return c1 == 'A'
	case 'Q':
		return c1 >= 'M' && c1 <= 'Z'
	case 'X':
		return c1 >= 'A' && c1 <= 'Z'
	case 'Z':
		return c1 == 'Z'
	default:
		return false
	}
}

// Names returns the number of records per label of their first ownership
// tuple.  If unique is true, each label is counted once per address.
// Records without ownership tuples are skipped.
func Names(records []*accesslog.Record, unique bool) (c Counter) {
	c = Counter{}
	seen := container.NewMapSet[visit]()
	for _, r := range records {
		if len(r.Names) == 0 {
			continue
		}

		label := Label(r.Names[0])
		if unique {
			v := visit{label: label, addr: r.Addr}
			if seen.Has(v) {
				continue
			}

			seen.Add(v)
		}

		c[label]++
	}

	return c
}

// Label returns the label of the ownership tuple: the fields joined by
// commas, with absent fields as [NoneLabel] and line breaks replaced.
func Label(o accesslog.Ownership) (l string) {
	fields := o.Fields()
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			f = NoneLabel
		}

		parts = append(parts, f)
	}

	l = strings.Join(parts, labelSep)
	l = strings.ReplaceAll(l, "\r\n", labelSep)

	return strings.ReplaceAll(l, "\n", labelSep)
}
