package stats

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/AdguardTeam/WebStats/internal/accesslog"
	"github.com/AdguardTeam/WebStats/internal/aghrenameio"
)

// Names of the report files.
const (
	FileByName       = "visitors_by_name"
	FileByNameUnique = "visitors_by_name_unique"
	FileByCountry    = "visitors_by_country"
)

// DefaultPermFile is the permission mode of the report files.
const DefaultPermFile fs.FileMode = 0o644

// Pair is a single toplist item.
type Pair struct {
	Label string
	Count uint64
}

// Toplist returns the items of c sorted by count in descending order and by
// label in ascending order.  If limit is positive, at most limit items are
// returned.
func Toplist(c Counter, limit int) (pairs []Pair) {
	pairs = make([]Pair, 0, len(c))
	for label, count := range c {
		pairs = append(pairs, Pair{Label: label, Count: count})
	}

	slices.SortFunc(pairs, func(a, b Pair) (res int) {
		return cmp.Or(cmp.Compare(b.Count, a.Count), cmp.Compare(a.Label, b.Label))
	})

	if limit > 0 && limit < len(pairs) {
		pairs = pairs[:limit]
	}

	return pairs
}

// WriteToplist writes pairs to w as lines of tab-separated labels and counts.
// The last line has no trailing newline.
func WriteToplist(w io.Writer, pairs []Pair) (err error) {
	bw := bufio.NewWriter(w)
	for i, p := range pairs {
		if i > 0 {
			_ = bw.WriteByte('\n')
		}

		_, _ = bw.WriteString(p.Label)
		_ = bw.WriteByte('\t')
		_, _ = bw.WriteString(strconv.FormatUint(p.Count, 10))
	}

	// The errors of the writes above are returned by Flush.
	return bw.Flush()
}

// Report contains the frequency views of a set of records.
type Report struct {
	// ByName counts the records per ownership label.
	ByName Counter

	// ByNameUnique counts the addresses per ownership label.
	ByNameUnique Counter

	// ByCountry counts the addresses per country name.
	ByCountry Counter
}

// NewReport computes the views of records.
func NewReport(records []*accesslog.Record) (r *Report) {
	return &Report{
		ByName:       Names(records, false),
		ByNameUnique: Names(records, true),
		ByCountry:    Countries(records),
	}
}

// Write replaces the report files in dir with the toplists of r.  If limit is
// positive, each toplist contains at most limit items.
func (r *Report) Write(ctx context.Context, l *slog.Logger, dir string, limit int) (err error) {
	files := []struct {
		counter Counter
		name    string
	}{{
		counter: r.ByName,
		name:    FileByName,
	}, {
		counter: r.ByNameUnique,
		name:    FileByNameUnique,
	}, {
		counter: r.ByCountry,
		name:    FileByCountry,
	}}

	for _, f := range files {
		path := filepath.Join(dir, f.name)
		pairs := Toplist(f.counter, limit)
		err = aghrenameio.WriteFile(path, DefaultPermFile, func(w io.Writer) (werr error) {
			return WriteToplist(w, pairs)
		})
		if err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}

		l.DebugContext(ctx, "wrote toplist", "path", path, "items", len(pairs))
	}

	return nil
}
