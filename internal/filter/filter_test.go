package filter_test

import (
	"testing"

	"github.com/AdguardTeam/WebStats/internal/accesslog"
	"github.com/AdguardTeam/WebStats/internal/filter"
	"github.com/stretchr/testify/assert"
)

// newRecord returns a record with the given address and ownership data.
func newRecord(addr string, names ...accesslog.Ownership) (r *accesslog.Record) {
	return &accesslog.Record{Addr: addr, Names: names}
}

func TestKeywords_Match(t *testing.T) {
	t.Parallel()

	bots := filter.DefaultBotKeywords()

	testCases := []struct {
		name  string
		names []accesslog.Ownership
		want  bool
	}{{
		name:  "nil",
		names: nil,
		want:  false,
	}, {
		name:  "default",
		names: accesslog.DefaultNames(),
		want:  false,
	}, {
		name:  "name",
		names: []accesslog.Ownership{{Name: "GoogleBot"}},
		want:  true,
	}, {
		name:  "description",
		names: []accesslog.Ownership{{Name: "AS15169", Description: "Google LLC"}},
		want:  true,
	}, {
		name: "second_tuple",
		names: []accesslog.Ownership{
			{Name: "LEVEL3"},
			{Name: "MSFT", Description: "Microsoft Corporation"},
		},
		want: true,
	}, {
		name:  "case_sensitive",
		names: []accesslog.Ownership{{Name: "googlebot"}},
		want:  false,
	}, {
		name:  "no_match",
		names: []accesslog.Ownership{{Name: "EXAMPLE-NET", City: "Berlin", Country: "DE"}},
		want:  false,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, bots.Match(tc.names))
		})
	}

	t.Run("empty_keywords", func(t *testing.T) {
		t.Parallel()

		assert.False(t, filter.Keywords{}.Match([]accesslog.Ownership{{Name: "GoogleBot"}}))
		assert.False(t, filter.Keywords{""}.Match([]accesslog.Ownership{{Name: "GoogleBot"}}))
	})
}

func TestRemoveBots(t *testing.T) {
	t.Parallel()

	bot := newRecord("1.2.3.4", accesslog.Ownership{Name: "GoogleBot"})
	human := newRecord("5.6.7.8", accesslog.Ownership{Name: "University of Somewhere"})
	unknown := newRecord("9.9.9.9", accesslog.DefaultNames()...)

	records := []*accesslog.Record{bot, human, unknown}
	got := filter.RemoveBots(records, filter.DefaultBotKeywords())

	assert.Equal(t, []*accesslog.Record{human, unknown}, got)
	assert.Len(t, records, 3)
}

func TestSelectAcademic(t *testing.T) {
	t.Parallel()

	uni := newRecord("5.6.7.8", accesslog.Ownership{Name: "UNI-X", Description: "University X"})
	lab := newRecord("5.6.7.9", accesslog.Ownership{Name: "NATLAB", Description: "National Lab"})
	isp := newRecord("1.1.1.1", accesslog.Ownership{Name: "ISP", Description: "Broadband Inc"})

	records := []*accesslog.Record{uni, isp, lab}
	academic := filter.DefaultAcademicKeywords()

	t.Run("enabled", func(t *testing.T) {
		t.Parallel()

		got := filter.SelectAcademic(records, academic, true)
		assert.Equal(t, []*accesslog.Record{uni, lab}, got)
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		got := filter.SelectAcademic(records, academic, false)
		assert.Equal(t, records, got)
	})
}
