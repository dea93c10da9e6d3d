package accesslog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/c2h5oh/datasize"
	"github.com/klauspost/compress/gzip"
)

// Substrings of the names of the files that are considered logs.
const (
	accessLogMarker = "access.log"
	cacheLogMarker  = "cache.log"
)

// gzipExt is the extension of rotated and compressed log files.
const gzipExt = ".gz"

// Predicate decides whether a record is included into the results.
type Predicate func(r *Record) (ok bool)

// ReaderConfig is the configuration structure for a *Reader.
type ReaderConfig struct {
	// Logger is used to log the operation of the reader.  It must not be nil.
	Logger *slog.Logger

	// Filter is the inclusion predicate.  If it is nil, all records are
	// included.
	Filter Predicate

	// Dir is the directory containing the log files.
	Dir string

	// FileDomain, if not empty, restricts the log files to the ones with names
	// containing it.
	FileDomain string
}

// Reader reads and parses all log files in a directory.
type Reader struct {
	logger     *slog.Logger
	filter     Predicate
	dir        string
	fileDomain string
}

// NewReader returns a new properly initialized *Reader.  c must not be nil.
func NewReader(c *ReaderConfig) (r *Reader) {
	return &Reader{
		logger:     c.Logger,
		filter:     c.Filter,
		dir:        c.Dir,
		fileDomain: c.FileDomain,
	}
}

// ReadResult is the result of reading the log files.
type ReadResult struct {
	// Records are the parsed records accepted by the filter, in the order of
	// files and lines.
	Records []*Record

	// Files is the number of files read.
	Files int

	// Lines is the number of non-empty logical lines read.
	Lines int

	// Malformed is the number of lines that could not be parsed.
	Malformed int

	// Excluded is the number of records rejected by the filter.
	Excluded int
}

// IsLogFile returns true if name is the name of a log file that belongs to
// domain.  An empty domain matches all log files.
func IsLogFile(name, domain string) (ok bool) {
	if !strings.Contains(name, accessLogMarker) && !strings.Contains(name, cacheLogMarker) {
		return false
	}

	return domain == "" || strings.Contains(name, domain)
}

// Files returns the paths of the log files in the directory listing order.
func (r *Reader) Files() (paths []string, err error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("listing log directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !IsLogFile(e.Name(), r.fileDomain) {
			continue
		}

		paths = append(paths, filepath.Join(r.dir, e.Name()))
	}

	return paths, nil
}

// Read reads and parses all log files.  Malformed lines are counted and
// skipped.
func (r *Reader) Read(ctx context.Context) (res *ReadResult, err error) {
	paths, err := r.Files()
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	res = &ReadResult{}
	for _, p := range paths {
		if err = ctx.Err(); err != nil {
			return nil, fmt.Errorf("reading logs: %w", err)
		}

		err = r.readFile(ctx, p, res)
		if err != nil {
			// Don't wrap the error since it's informative enough as is.
			return nil, err
		}

		res.Files++
	}

	r.logger.InfoContext(
		ctx,
		"read logs",
		"files", res.Files,
		"lines", res.Lines,
		"records", len(res.Records),
		"malformed", res.Malformed,
		"excluded", res.Excluded,
	)

	return res, nil
}

// readFile parses the file at path and appends the records to res.
func (r *Reader) readFile(ctx context.Context, path string, res *ReadResult) (err error) {
	data, err := readAll(path)
	if err != nil {
		return fmt.Errorf("reading log file: %w", err)
	}

	r.logger.DebugContext(ctx, "reading log file", "path", path, "size", datasize.ByteSize(len(data)))

	for i, line := range SplitLines(data) {
		if line == "" {
			continue
		}

		res.Lines++

		rec, parseErr := ParseLine(line)
		if parseErr != nil {
			res.Malformed++
			logParseError(ctx, r.logger, parseErr, path, i+1)

			continue
		}

		if r.filter != nil && !r.filter(rec) {
			res.Excluded++

			continue
		}

		res.Records = append(res.Records, rec)
	}

	return nil
}

// logParseError sets the position of err, if it is a *ParseError, and logs it.
func logParseError(ctx context.Context, l *slog.Logger, err error, path string, line int) {
	var perr *ParseError
	if errors.As(err, &perr) {
		perr.File, perr.Line = path, line
	}

	l.DebugContext(ctx, "skipping malformed line", slogutil.KeyError, err)
}

// readAll returns the contents of the file at path, decompressing it if it is
// gzipped.
func readAll(path string) (data string, err error) {
	f, err := os.Open(path)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return "", err
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	var src io.Reader = f
	if strings.HasSuffix(path, gzipExt) {
		var zr *gzip.Reader
		zr, err = gzip.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("opening gzip stream: %w", err)
		}
		defer func() { err = errors.WithDeferred(err, zr.Close()) }()

		src = zr
	}

	b, err := io.ReadAll(src)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return "", err
	}

	return string(b), nil
}

// SplitLines splits data into logical lines.  A newline inside a quoted span
// doesn't end a line.  The quotes are preserved so that the lines can be split
// into fields with [SplitFields].  A trailing carriage return is removed.
func SplitLines(data string) (lines []string) {
	start := 0
	inQuotes := false
	for i := range len(data) {
		switch data[i] {
		case '"':
			inQuotes = !inQuotes
		case '\n':
			if !inQuotes {
				lines = append(lines, strings.TrimSuffix(data[start:i], "\r"))
				start = i + 1
			}
		}
	}

	if start < len(data) {
		lines = append(lines, strings.TrimSuffix(data[start:], "\r"))
	}

	return lines
}
