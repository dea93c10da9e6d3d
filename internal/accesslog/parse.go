package accesslog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/itchyny/timefmt-go"
)

// Field indexes of a log line.
const (
	fieldAddr = iota
	fieldRequestURL
	_
	fieldTimeDate
	fieldTimeZone
	fieldPage
	fieldStatus
	_
	fieldReferrer
	fieldUserAgent

	// minFields is the minimum number of fields in a valid log line.
	minFields
)

const (
	// ErrTooFewFields is returned when a log line has fewer fields than
	// required.
	ErrTooFewFields errors.Error = "too few fields"

	// ErrBadTime is returned when the timestamp of a log line cannot be
	// parsed.
	ErrBadTime errors.Error = "bad timestamp"
)

// ParseError is returned when a log line is malformed.
type ParseError struct {
	// Err is the underlying error.  It is never nil.
	Err error

	// File is the name of the file containing the line, if known.
	File string

	// Line is the 1-based number of the logical line within File, if known.
	Line int
}

// type check
var _ errors.Wrapper = (*ParseError)(nil)

// Error implements the error interface for *ParseError.
func (err *ParseError) Error() (msg string) {
	if err.File == "" {
		return fmt.Sprintf("parsing log line: %s", err.Err)
	}

	return fmt.Sprintf("parsing %s:%d: %s", err.File, err.Line, err.Err)
}

// Unwrap implements the [errors.Wrapper] interface for *ParseError.
func (err *ParseError) Unwrap() (unwrapped error) {
	return err.Err
}

// SplitFields splits a log line on unquoted spaces.  Double quotes toggle a
// quoted span and are not included into the fields.  Consecutive spaces
// produce empty fields.  The line is split bytewise, so invalid UTF-8 is kept
// as is.
func SplitFields(line string) (fields []string) {
	b := &strings.Builder{}
	inQuotes := false
	for i := range len(line) {
		switch c := line[i]; {
		case c == '"':
			inQuotes = !inQuotes
		case c == ' ' && !inQuotes:
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}

	return append(fields, b.String())
}

// ParseLine splits line with [SplitFields] and parses the fields with
// [ParseFields].
func ParseLine(line string) (r *Record, err error) {
	return ParseFields(SplitFields(line))
}

// ParseFields maps the fields of a split log line to a record.  err is a
// *ParseError if the fields are malformed.
func ParseFields(fields []string) (r *Record, err error) {
	if len(fields) < minFields {
		return nil, &ParseError{
			Err: fmt.Errorf("%w: got %d, want at least %d", ErrTooFewFields, len(fields), minFields),
		}
	}

	t, err := parseTime(fields[fieldTimeDate], fields[fieldTimeZone])
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	r = &Record{
		Time:       t,
		Addr:       fields[fieldAddr],
		RequestURL: fields[fieldRequestURL],
		Page:       fields[fieldPage],
		Referrer:   fields[fieldReferrer],
		UserAgent:  fields[fieldUserAgent],
		Names:      DefaultNames(),
	}

	r.Status, r.HasStatus = parseStatus(fields[fieldStatus])

	return r, nil
}

// parseStatus returns the HTTP status code if every character of s is a
// digit.
func parseStatus(s string) (code int, ok bool) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, false
	}

	code, err := strconv.Atoi(s)
	if err != nil {
		// Too large to be a status code.
		return 0, false
	}

	return code, true
}

// timeLayouts are the strftime layouts tried, in order, to parse a log
// timestamp.
var timeLayouts = []string{
	"%d/%b/%Y:%H:%M:%S %z",
	"%Y-%m-%dT%H:%M:%S%z",
	"%Y-%m-%d %H:%M:%S %z",
	"%Y-%m-%dT%H:%M:%S %z",
	"%Y-%m-%d %H:%M:%S",
	"%d/%b/%Y:%H:%M:%S",
	"%d/%b/%Y %H:%M:%S",
	"%Y/%m/%d %H:%M:%S",
	"%Y-%m-%dT%H:%M:%S",
	"%d/%b/%Y",
	"%Y-%m-%d",
}

// parseTime leniently parses the timestamp split into the date and the zone
// tokens.  Brackets and quotes around the tokens are stripped.
func parseTime(date, zone string) (t time.Time, err error) {
	date = strings.TrimLeft(date, `["`)
	zone = strings.TrimRight(zone, `]"`)

	// The second token is not necessarily a part of the timestamp, so try the
	// date token alone after the joined one.
	candidates := []string{date + " " + zone, date}
	for _, s := range candidates {
		for _, layout := range timeLayouts {
			t, err = timefmt.Parse(s, layout)
			if err == nil {
				return t, nil
			}
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, date+" "+zone)
}
