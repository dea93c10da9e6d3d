// Package filter contains the keyword classifiers of enriched access log
// records.
package filter

import (
	"slices"
	"strings"

	"github.com/AdguardTeam/WebStats/internal/accesslog"
)

// Keywords are substrings identifying a class of network owners.  The match
// is case-sensitive.
type Keywords []string

// DefaultBotKeywords returns the keywords identifying automated crawlers.
func DefaultBotKeywords() (kw Keywords) {
	return Keywords{"Microsoft", "Facebook", "Yahoo", "Google", "Baidu", "Bot"}
}

// DefaultAcademicKeywords returns the keywords identifying academic
// institutions.
func DefaultAcademicKeywords() (kw Keywords) {
	return Keywords{"Uni", "Lab", "Instit", "Bio", "Sci", "Geno"}
}

// Match returns true if any non-empty field of any of names contains any of
// kw.
func (kw Keywords) Match(names []accesslog.Ownership) (ok bool) {
	if len(kw) == 0 {
		return false
	}

	for _, n := range names {
		for _, f := range n.Fields() {
			if f != "" && kw.matchString(f) {
				return true
			}
		}
	}

	return false
}

// matchString returns true if s contains any of kw.
func (kw Keywords) matchString(s string) (ok bool) {
	return slices.ContainsFunc(kw, func(k string) (found bool) {
		return k != "" && strings.Contains(s, k)
	})
}

// RemoveBots returns the records the ownership data of which doesn't match
// bots.  records are not modified.
func RemoveBots(records []*accesslog.Record, bots Keywords) (res []*accesslog.Record) {
	return keep(records, func(r *accesslog.Record) (ok bool) {
		return !bots.Match(r.Names)
	})
}

// SelectAcademic returns the records the ownership data of which matches
// academic if enabled is true.  Otherwise, it returns records as is.
func SelectAcademic(
	records []*accesslog.Record,
	academic Keywords,
	enabled bool,
) (res []*accesslog.Record) {
	if !enabled {
		return records
	}

	return keep(records, func(r *accesslog.Record) (ok bool) {
		return academic.Match(r.Names)
	})
}

// keep returns a new slice with the records for which f returns true,
// preserving the order.
func keep(records []*accesslog.Record, f func(r *accesslog.Record) (ok bool)) (res []*accesslog.Record) {
	res = make([]*accesslog.Record, 0, len(records))
	for _, r := range records {
		if f(r) {
			res = append(res, r)
		}
	}

	return res
}
