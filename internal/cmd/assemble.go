package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/AdguardTeam/WebStats/internal/accesslog"
	"github.com/AdguardTeam/WebStats/internal/configmgr"
	"github.com/AdguardTeam/WebStats/internal/enrich"
	"github.com/AdguardTeam/WebStats/internal/filter"
	"github.com/AdguardTeam/WebStats/internal/metrics"
	"github.com/AdguardTeam/WebStats/internal/webstats"
	"github.com/AdguardTeam/WebStats/internal/whois"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/miekg/dns"
)

// newPipeline assembles the pipeline from the configuration.  conf must be
// valid.
func newPipeline(conf *configmgr.Config, l *slog.Logger) (p *webstats.Pipeline, err error) {
	store, err := newStore(conf.Cache)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	clock := timeutil.SystemClock{}
	e := enrich.New(&enrich.Config{
		Logger: l.With(slogutil.KeyPrefix, "enrich"),
		WHOIS:  newWHOIS(conf.WHOIS, l.With(slogutil.KeyPrefix, "whois")),
		Cache: enrich.NewCache(&enrich.CacheConfig{
			Logger: l.With(slogutil.KeyPrefix, "cache"),
			Clock:  clock,
			TTL:    time.Duration(conf.Cache.TTL),
			Size:   conf.Cache.Size,
		}),
		Store: store,
	})

	return webstats.New(&webstats.Config{
		Logger: l.With(slogutil.KeyPrefix, "webstats"),
		Clock:  clock,
		Reader: accesslog.NewReader(&accesslog.ReaderConfig{
			Logger:     l.With(slogutil.KeyPrefix, "accesslog"),
			Filter:     accesslog.NewDomainFilter(conf.Domains),
			Dir:        conf.LogDir,
			FileDomain: conf.LogFilesDomain,
		}),
		Enricher:         e,
		Metrics:          metrics.New(),
		BotKeywords:      filter.Keywords(conf.BotKeywords),
		AcademicKeywords: filter.Keywords(conf.AcademicKeywords),
		OutputDir:        conf.OutputDir,
		MetricsFile:      conf.MetricsFile,
		ToplistLimit:     conf.ToplistLimit,
		OnlyAcademic:     conf.OnlyAcademic,
	}), nil
}

// newStore returns the persistent storage of the WHOIS cache of the configured
// type.
func newStore(c *configmgr.CacheConfig) (s enrich.Store, err error) {
	switch c.Type {
	case configmgr.CacheTypeFile:
		return enrich.NewFileStore(c.File), nil
	case configmgr.CacheTypeBolt:
		return enrich.NewBoltStore(c.File), nil
	default:
		return nil, fmt.Errorf("cache type: unexpected value %q", c.Type)
	}
}

// newWHOIS returns a WHOIS client using the configuration.
func newWHOIS(c *configmgr.WHOISConfig, l *slog.Logger) (cli *whois.Client) {
	timeout := time.Duration(c.Timeout)
	dialer := &net.Dialer{
		Timeout: timeout,
	}

	return whois.New(&whois.Config{
		Logger:      l,
		DialContext: dialer.DialContext,
		Exchanger: &dns.Client{
			Timeout: timeout,
		},
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		Method:          c.Method,
		DNSServer:       c.DNSServer,
		RDAPURL:         c.RDAPURL,
		Timeout:         timeout,
		RetryDelay:      time.Duration(c.RetryDelay),
		RateLimitDelay:  time.Duration(c.RateLimitDelay),
		MaxConnReadSize: uint64(c.MaxConnReadSize),
		MaxRedirects:    c.MaxRedirects,
		MaxInfoLen:      c.MaxInfoLen,
		Retries:         c.Retries,
		Port:            whois.DefaultPort,
	})
}
