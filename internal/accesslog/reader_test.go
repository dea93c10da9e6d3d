package accesslog_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdguardTeam/WebStats/internal/accesslog"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// Common log lines for tests.
const (
	lineExampleOrg = `1.2.3.4 example.org - [01/Jan/2020:00:00:00 +0000] ` +
		`"GET / HTTP/1.1" 200 10 "-" "Mozilla/5.0"`
	lineSubExampleOrg = `5.6.7.8 www.example.org - [01/Jan/2020:00:00:01 +0000] ` +
		`"GET /a HTTP/1.1" 301 10 "-" "curl/8.0"`
	lineOther = `9.9.9.9 other.test - [01/Jan/2020:00:00:02 +0000] ` +
		`"GET /b HTTP/1.1" 404 10 "-" "Multi` + "\n" + `line agent"`
	lineMalformed = `garbage line`
)

// writeFile is a test helper that writes data into the file name in dir.
func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()

	err := os.WriteFile(filepath.Join(dir, name), data, 0o644)
	require.NoError(t, err)
}

// gzipData is a test helper that returns compressed s.
func gzipData(t *testing.T, s string) (data []byte) {
	t.Helper()

	buf := &bytes.Buffer{}
	w := gzip.NewWriter(buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)

	require.NoError(t, w.Close())

	return buf.Bytes()
}

// newLogDir is a test helper that returns a directory with a plain log file, a
// compressed log file, and files that aren't logs.
func newLogDir(t *testing.T) (dir string) {
	t.Helper()

	dir = t.TempDir()

	plain := lineExampleOrg + "\n" + lineMalformed + "\n\n" + lineSubExampleOrg + "\n"
	writeFile(t, dir, "a.example.org.access.log", []byte(plain))
	writeFile(t, dir, "b.other.cache.log.1.gz", gzipData(t, lineOther))
	writeFile(t, dir, "error.log", []byte(lineExampleOrg))

	err := os.Mkdir(filepath.Join(dir, "c.access.log.d"), 0o755)
	require.NoError(t, err)

	return dir
}

func TestIsLogFile(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		fileName string
		domain   string
		want     bool
	}{{
		name:     "access",
		fileName: "access.log",
		domain:   "",
		want:     true,
	}, {
		name:     "cache_rotated",
		fileName: "cache.log.2.gz",
		domain:   "",
		want:     true,
	}, {
		name:     "error",
		fileName: "error.log",
		domain:   "",
		want:     false,
	}, {
		name:     "domain_match",
		fileName: "example.org.access.log",
		domain:   "example.org",
		want:     true,
	}, {
		name:     "domain_mismatch",
		fileName: "example.com.access.log",
		domain:   "example.org",
		want:     false,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, accesslog.IsLogFile(tc.fileName, tc.domain))
		})
	}
}

func TestSplitLines(t *testing.T) {
	t.Parallel()

	got := accesslog.SplitLines("a \"b\nc\" d\r\ne\n\nf")
	assert.Equal(t, []string{"a \"b\nc\" d", "e", "", "f"}, got)

	assert.Empty(t, accesslog.SplitLines(""))
}

func TestReader_Read(t *testing.T) {
	t.Parallel()

	dir := newLogDir(t)

	t.Run("all", func(t *testing.T) {
		t.Parallel()

		r := accesslog.NewReader(&accesslog.ReaderConfig{
			Logger: slogutil.NewDiscardLogger(),
			Dir:    dir,
		})

		files, err := r.Files()
		require.NoError(t, err)

		assert.Equal(t, []string{
			filepath.Join(dir, "a.example.org.access.log"),
			filepath.Join(dir, "b.other.cache.log.1.gz"),
		}, files)

		res, err := r.Read(testutil.ContextWithTimeout(t, testTimeout))
		require.NoError(t, err)

		assert.Equal(t, 2, res.Files)
		assert.Equal(t, 4, res.Lines)
		assert.Equal(t, 1, res.Malformed)
		assert.Equal(t, 0, res.Excluded)

		require.Len(t, res.Records, 3)

		assert.Equal(t, "1.2.3.4", res.Records[0].Addr)
		assert.Equal(t, "5.6.7.8", res.Records[1].Addr)
		assert.Equal(t, "9.9.9.9", res.Records[2].Addr)
		assert.Equal(t, "Multi\nline agent", res.Records[2].UserAgent)
	})

	t.Run("file_domain", func(t *testing.T) {
		t.Parallel()

		r := accesslog.NewReader(&accesslog.ReaderConfig{
			Logger:     slogutil.NewDiscardLogger(),
			Dir:        dir,
			FileDomain: "other",
		})

		res, err := r.Read(testutil.ContextWithTimeout(t, testTimeout))
		require.NoError(t, err)

		require.Len(t, res.Records, 1)

		assert.Equal(t, "9.9.9.9", res.Records[0].Addr)
	})

	t.Run("domain_filter", func(t *testing.T) {
		t.Parallel()

		r := accesslog.NewReader(&accesslog.ReaderConfig{
			Logger: slogutil.NewDiscardLogger(),
			Filter: accesslog.NewDomainFilter([]string{"example.org"}),
			Dir:    dir,
		})

		res, err := r.Read(testutil.ContextWithTimeout(t, testTimeout))
		require.NoError(t, err)

		assert.Equal(t, 1, res.Excluded)
		require.Len(t, res.Records, 2)

		assert.Equal(t, "example.org", res.Records[0].RequestURL)
		assert.Equal(t, "www.example.org", res.Records[1].RequestURL)
	})

	t.Run("no_dir", func(t *testing.T) {
		t.Parallel()

		r := accesslog.NewReader(&accesslog.ReaderConfig{
			Logger: slogutil.NewDiscardLogger(),
			Dir:    filepath.Join(dir, "nonexistent"),
		})

		_, err := r.Read(testutil.ContextWithTimeout(t, testTimeout))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestNewDomainFilter(t *testing.T) {
	t.Parallel()

	p := accesslog.NewDomainFilter([]string{"Example.ORG."})

	testCases := []struct {
		name   string
		reqURL string
		want   bool
	}{{
		name:   "exact",
		reqURL: "example.org",
		want:   true,
	}, {
		name:   "subdomain",
		reqURL: "a.b.example.org",
		want:   true,
	}, {
		name:   "port",
		reqURL: "example.org:8443",
		want:   true,
	}, {
		name:   "url",
		reqURL: "https://www.example.org/path?q=1",
		want:   true,
	}, {
		name:   "other",
		reqURL: "example.com",
		want:   false,
	}, {
		name:   "suffix_not_subdomain",
		reqURL: "notexample.org",
		want:   false,
	}, {
		name:   "empty",
		reqURL: "",
		want:   false,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, p(&accesslog.Record{RequestURL: tc.reqURL}))
		})
	}

	assert.Nil(t, accesslog.NewDomainFilter(nil))

	t.Run("idna", func(t *testing.T) {
		t.Parallel()

		idnaPred := accesslog.NewDomainFilter([]string{"пример.рф"})

		assert.True(t, idnaPred(&accesslog.Record{RequestURL: "www.xn--e1afmkfd.xn--p1ai"}))
		assert.True(t, idnaPred(&accesslog.Record{RequestURL: "https://пример.рф/"}))
	})
}
