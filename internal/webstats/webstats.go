// Package webstats contains the batch pipeline: it reads the access logs,
// enriches the records with the WHOIS information, filters them, and writes
// the reports.
package webstats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdguardTeam/WebStats/internal/accesslog"
	"github.com/AdguardTeam/WebStats/internal/enrich"
	"github.com/AdguardTeam/WebStats/internal/filter"
	"github.com/AdguardTeam/WebStats/internal/metrics"
	"github.com/AdguardTeam/WebStats/internal/stats"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
)

// Config is the configuration structure for a *Pipeline.
type Config struct {
	// Logger is used to log the operation of the pipeline.  It must not be
	// nil.
	Logger *slog.Logger

	// Clock is used to measure the duration of the run.  It must not be nil.
	Clock timeutil.Clock

	// Reader reads the access logs.  It must not be nil.
	Reader *accesslog.Reader

	// Enricher attaches the WHOIS information to the records.  It must not be
	// nil.
	Enricher *enrich.Enricher

	// Metrics are the metrics of the run.  It must not be nil.
	Metrics *metrics.Run

	// BotKeywords identify the records to remove.
	BotKeywords filter.Keywords

	// AcademicKeywords identify the records to keep if OnlyAcademic is true.
	AcademicKeywords filter.Keywords

	// OutputDir is the directory for the report files.
	OutputDir string

	// MetricsFile, if not empty, is the path of the file to write the metrics
	// to after the run.
	MetricsFile string

	// ToplistLimit is the maximum number of items in each toplist.  Zero means
	// no limit.
	ToplistLimit int

	// OnlyAcademic, if true, restricts the reports to academic institutions.
	OnlyAcademic bool
}

// Pipeline is a single run of the reports generation.
type Pipeline struct {
	logger       *slog.Logger
	clock        timeutil.Clock
	reader       *accesslog.Reader
	enricher     *enrich.Enricher
	metrics      *metrics.Run
	bots         filter.Keywords
	academic     filter.Keywords
	outputDir    string
	metricsFile  string
	toplistLimit int
	onlyAcademic bool
}

// New returns a new properly initialized *Pipeline.  c must not be nil.
func New(c *Config) (p *Pipeline) {
	return &Pipeline{
		logger:       c.Logger,
		clock:        c.Clock,
		reader:       c.Reader,
		enricher:     c.Enricher,
		metrics:      c.Metrics,
		bots:         c.BotKeywords,
		academic:     c.AcademicKeywords,
		outputDir:    c.OutputDir,
		metricsFile:  c.MetricsFile,
		toplistLimit: c.ToplistLimit,
		onlyAcademic: c.OnlyAcademic,
	}
}

// Run loads the WHOIS cache, reads and enriches the records, writes the
// reports, and saves the cache.  If the enrichment is aborted, the cache is
// saved and no reports are written.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	start := p.clock.Now()
	defer func() { err = errors.WithDeferred(err, p.finish(ctx, start, err == nil)) }()

	err = p.enricher.LoadCache(ctx)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}

	readRes, err := p.reader.Read(ctx)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}

	p.metrics.LinesParsed.Add(float64(readRes.Lines - readRes.Malformed))
	p.metrics.LinesMalformed.Add(float64(readRes.Malformed))

	enrichRes, err := p.enricher.Enrich(ctx, readRes.Records)
	p.observeEnrichment(enrichRes)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}

	records := p.filter(ctx, readRes.Records)

	err = stats.NewReport(records).Write(ctx, p.logger, p.outputDir, p.toplistLimit)
	if err != nil {
		err = fmt.Errorf("writing reports: %w", err)
	} else {
		p.logger.InfoContext(ctx, "reports written", "dir", p.outputDir, "records", len(records))
	}

	// Save the results of the lookups even if the reports couldn't be written.
	return errors.Join(err, p.enricher.SaveCache(ctx))
}

// observeEnrichment updates the metrics with the results of the enrichment.
// res may be nil.
func (p *Pipeline) observeEnrichment(res *enrich.Result) {
	if res == nil {
		return
	}

	p.metrics.CacheHits.Add(float64(res.CacheHits))
	p.metrics.ObserveLookups(res.Lookups-res.Failures, res.Failures)
}

// filter applies the academic and the bot filters to records in this order.
func (p *Pipeline) filter(ctx context.Context, records []*accesslog.Record) (res []*accesslog.Record) {
	res = filter.SelectAcademic(records, p.academic, p.onlyAcademic)
	p.metrics.ObserveFiltered(metrics.FilterAcademic, len(records)-len(res))

	n := len(res)
	res = filter.RemoveBots(res, p.bots)
	p.metrics.ObserveFiltered(metrics.FilterBots, n-len(res))

	p.logger.DebugContext(
		ctx,
		"filtered records",
		"total", len(records),
		"academic", n,
		"kept", len(res),
	)

	return res
}

// finish records the duration of the run and writes the metrics file, if
// configured.
func (p *Pipeline) finish(ctx context.Context, start time.Time, succeeded bool) (err error) {
	now := p.clock.Now()
	p.metrics.Finish(start, now, succeeded)

	p.logger.InfoContext(
		ctx,
		"run finished",
		"succeeded", succeeded,
		"duration", now.Sub(start),
	)

	if p.metricsFile == "" {
		return nil
	}

	err = p.metrics.WriteToTextfile(p.metricsFile)
	if err != nil {
		p.logger.ErrorContext(ctx, "writing metrics file", slogutil.KeyError, err)
	}

	return err
}
