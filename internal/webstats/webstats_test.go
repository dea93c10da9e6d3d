package webstats_test

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/AdguardTeam/WebStats/internal/accesslog"
	"github.com/AdguardTeam/WebStats/internal/aghtest"
	"github.com/AdguardTeam/WebStats/internal/enrich"
	"github.com/AdguardTeam/WebStats/internal/filter"
	"github.com/AdguardTeam/WebStats/internal/metrics"
	"github.com/AdguardTeam/WebStats/internal/stats"
	"github.com/AdguardTeam/WebStats/internal/webstats"
	"github.com/AdguardTeam/WebStats/internal/whois"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/AdguardTeam/golibs/timeutil"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// Addresses of the visitors for tests.
const (
	addrUniA      = "5.6.7.8"
	addrUniB      = "80.1.2.3"
	addrGoogle    = "66.249.66.1"
	addrGoogleBot = "66.249.66.2"
	addrFacebook  = "31.13.24.1"
	addrFailing   = "9.9.9.9"
	addrBroken    = "6.6.6.6"
)

// errUnexpected is the unexpected lookup error for tests.
const errUnexpected errors.Error = "unexpected test error"

// testNets are the WHOIS results for tests by address.
var testNets = map[string]*whois.Result{
	addrUniA: {
		ASNCountry: "DE",
		Nets:       []whois.Net{{Name: "UNI-X", Description: "University X", Country: "DE"}},
	},
	addrUniB: {
		ASNCountry: "US",
		Nets:       []whois.Net{{Name: "LAB-Y", Description: "Y Research Lab", Country: "US"}},
	},
	addrGoogle: {
		ASNCountry: "US",
		Nets:       []whois.Net{{Name: "GOOGLE", Description: "Google LLC", Country: "US"}},
	},
	addrGoogleBot: {
		ASNCountry: "US",
		Nets:       []whois.Net{{Name: "GoogleBot", Country: "US"}},
	},
	addrFacebook: {
		ASNCountry: "IE",
		Nets:       []whois.Net{{Name: "FACEBOOK", Description: "Facebook Ireland", Country: "IE"}},
	},
}

// newFakeWHOIS returns a fake that resolves the addresses from testNets,
// fails transiently for addrFailing, and fails unexpectedly for addrBroken.
// lookups points to the looked up addresses.
func newFakeWHOIS() (w *aghtest.WHOIS, lookups *[]string) {
	return aghtest.NewRecordingWHOIS(func(ip netip.Addr) (res *whois.Result, err error) {
		addr := ip.String()
		switch addr {
		case addrFailing:
			return nil, fmt.Errorf("%w: connection reset", whois.ErrWhoisLookup)
		case addrBroken:
			return nil, errUnexpected
		}

		res, ok := testNets[addr]
		if !ok {
			panic(testutil.UnexpectedCall(ip))
		}

		return res, nil
	})
}

// logLine returns a log line for a request from addr.
func logLine(addr string, sec int) (line string) {
	return addr + ` example.org - [01/Jan/2020:00:00:` + fmt.Sprintf("%02d", sec) + ` +0000] ` +
		`"GET /index.html HTTP/1.1" 200 512 "-" "Mozilla/5.0"`
}

// newTestPipeline is a test helper that returns a pipeline reading the logs in
// logDir and the paths of its output directory and cache file.
func newTestPipeline(
	t *testing.T,
	logDir string,
	w whois.Interface,
) (p *webstats.Pipeline, outDir, cachePath string, m *metrics.Run) {
	t.Helper()

	l := slogutil.NewDiscardLogger()
	outDir = t.TempDir()
	cachePath = filepath.Join(t.TempDir(), "whois.gob")
	m = metrics.New()

	e := enrich.New(&enrich.Config{
		Logger: l,
		WHOIS:  w,
		Cache: enrich.NewCache(&enrich.CacheConfig{
			Logger: l,
			Clock:  timeutil.SystemClock{},
		}),
		Store: enrich.NewFileStore(cachePath),
	})

	p = webstats.New(&webstats.Config{
		Logger: l,
		Clock:  timeutil.SystemClock{},
		Reader: accesslog.NewReader(&accesslog.ReaderConfig{
			Logger: l,
			Dir:    logDir,
		}),
		Enricher:         e,
		Metrics:          m,
		BotKeywords:      filter.DefaultBotKeywords(),
		AcademicKeywords: filter.DefaultAcademicKeywords(),
		OutputDir:        outDir,
		MetricsFile:      filepath.Join(outDir, "webstats.prom"),
	})

	return p, outDir, cachePath, m
}

// writeLogs is a test helper that writes the log files with the lines for the
// given addresses into a new directory.
func writeLogs(t *testing.T, files map[string][]string) (dir string) {
	t.Helper()

	dir = t.TempDir()
	for name, addrs := range files {
		lines := make([]string, 0, len(addrs))
		for i, a := range addrs {
			lines = append(lines, logLine(a, i))
		}

		err := os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o644)
		require.NoError(t, err)
	}

	return dir
}

// readReport is a test helper that returns the lines of the report file.
func readReport(t *testing.T, dir, name string) (lines []string) {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	if len(data) == 0 {
		return nil
	}

	return strings.Split(string(data), "\n")
}

// sumCounts is a test helper that returns the sum of the counts of the
// report lines.
func sumCounts(t *testing.T, lines []string) (sum int) {
	t.Helper()

	for _, l := range lines {
		_, countStr, ok := strings.Cut(l, "\t")
		require.True(t, ok)

		n, err := strconv.Atoi(countStr)
		require.NoError(t, err)

		sum += n
	}

	return sum
}

func TestPipeline_Run(t *testing.T) {
	t.Parallel()

	logDir := writeLogs(t, map[string][]string{
		"a.example.org.access.log": {addrUniA, addrGoogle, addrGoogleBot},
		"b.example.org.access.log": {addrFacebook, addrUniB},
	})

	w, lookups := newFakeWHOIS()
	p, outDir, cachePath, m := newTestPipeline(t, logDir, w)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, p.Run(ctx))

	byCountry := readReport(t, outDir, stats.FileByCountry)
	assert.Equal(t, []string{"Germany\t1", "United States\t1"}, byCountry)
	assert.LessOrEqual(t, sumCounts(t, byCountry), 2)

	byName := readReport(t, outDir, stats.FileByName)
	assert.Len(t, byName, 2)
	assert.Equal(t, 2, sumCounts(t, byName))

	byNameUnique := readReport(t, outDir, stats.FileByNameUnique)
	assert.Equal(t, []string{
		"LAB-Y, Y Research Lab, None, US\t1",
		"UNI-X, University X, None, DE\t1",
	}, byNameUnique)

	assert.Len(t, *lookups, 5)
	assert.Equal(t, float64(5), promtestutil.ToFloat64(m.LinesParsed))
	assert.Equal(t, float64(3), promtestutil.ToFloat64(m.RecordsFiltered.WithLabelValues(metrics.FilterBots)))

	snap, err := enrich.NewFileStore(cachePath).Load()
	require.NoError(t, err)

	assert.Len(t, snap.Entries, 5)
	assert.Empty(t, snap.Failed)

	metricsData, err := os.ReadFile(filepath.Join(outDir, "webstats.prom"))
	require.NoError(t, err)

	assert.Contains(t, string(metricsData), `webstats_whois_lookups_total{result="ok"} 5`)

	t.Run("second_run", func(t *testing.T) {
		secondWHOIS, secondLookups := newFakeWHOIS()
		secondOut := t.TempDir()

		// Reuse the cache of the first run.
		second := webstats.New(&webstats.Config{
			Logger: slogutil.NewDiscardLogger(),
			Clock:  timeutil.SystemClock{},
			Reader: accesslog.NewReader(&accesslog.ReaderConfig{
				Logger: slogutil.NewDiscardLogger(),
				Dir:    logDir,
			}),
			Enricher: enrich.New(&enrich.Config{
				Logger: slogutil.NewDiscardLogger(),
				WHOIS:  secondWHOIS,
				Cache: enrich.NewCache(&enrich.CacheConfig{
					Logger: slogutil.NewDiscardLogger(),
					Clock:  timeutil.SystemClock{},
				}),
				Store: enrich.NewFileStore(cachePath),
			}),
			Metrics:          metrics.New(),
			BotKeywords:      filter.DefaultBotKeywords(),
			AcademicKeywords: filter.DefaultAcademicKeywords(),
			OutputDir:        secondOut,
		})

		require.NoError(t, second.Run(testutil.ContextWithTimeout(t, testTimeout)))

		assert.Empty(t, *secondLookups)
		assert.Equal(t, byCountry, readReport(t, secondOut, stats.FileByCountry))
	})
}

func TestPipeline_Run_rollback(t *testing.T) {
	t.Parallel()

	logDir := writeLogs(t, map[string][]string{
		"a.example.org.access.log": {addrUniA, addrFailing, addrBroken, addrUniB},
	})

	w, lookups := newFakeWHOIS()
	p, outDir, cachePath, _ := newTestPipeline(t, logDir, w)

	err := p.Run(testutil.ContextWithTimeout(t, testTimeout))
	require.ErrorIs(t, err, errUnexpected)

	assert.Equal(t, []string{addrUniA, addrFailing, addrBroken}, *lookups)

	snap, err := enrich.NewFileStore(cachePath).Load()
	require.NoError(t, err)

	assert.NotContains(t, snap.Failed, addrFailing)
	assert.Contains(t, snap.Entries, addrUniA)

	_, err = os.Stat(filepath.Join(outDir, stats.FileByName))
	assert.ErrorIs(t, err, os.ErrNotExist)

	// The metrics are written even if the run has failed.
	_, err = os.Stat(filepath.Join(outDir, "webstats.prom"))
	assert.NoError(t, err)
}

func TestPipeline_Run_onlyAcademic(t *testing.T) {
	t.Parallel()

	logDir := writeLogs(t, map[string][]string{
		"a.example.org.access.log": {addrUniA, addrGoogle, addrFacebook},
	})

	w, _ := newFakeWHOIS()
	l := slogutil.NewDiscardLogger()
	outDir := t.TempDir()
	p := webstats.New(&webstats.Config{
		Logger: l,
		Clock:  timeutil.SystemClock{},
		Reader: accesslog.NewReader(&accesslog.ReaderConfig{
			Logger: l,
			Dir:    logDir,
		}),
		Enricher: enrich.New(&enrich.Config{
			Logger: l,
			WHOIS:  w,
			Cache: enrich.NewCache(&enrich.CacheConfig{
				Logger: l,
				Clock:  timeutil.SystemClock{},
			}),
			Store: enrich.NewBoltStore(filepath.Join(t.TempDir(), "whois.db")),
		}),
		Metrics:          metrics.New(),
		BotKeywords:      filter.Keywords{},
		AcademicKeywords: filter.DefaultAcademicKeywords(),
		OutputDir:        outDir,
		OnlyAcademic:     true,
	})

	require.NoError(t, p.Run(testutil.ContextWithTimeout(t, testTimeout)))

	assert.Equal(t, []string{"UNI-X, University X, None, DE\t1"}, readReport(t, outDir, stats.FileByName))
	assert.Equal(t, []string{"Germany\t1"}, readReport(t, outDir, stats.FileByCountry))
}
