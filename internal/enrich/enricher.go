// Package enrich attaches WHOIS information to access log records and keeps
// the persistent cache of the lookups.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/AdguardTeam/WebStats/internal/accesslog"
	"github.com/AdguardTeam/WebStats/internal/whois"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil"
)

// Config is the configuration structure for an *Enricher.
type Config struct {
	// Logger is used to log the operation of the enricher.  It must not be
	// nil.
	Logger *slog.Logger

	// WHOIS performs the live lookups.  It must not be nil.
	WHOIS whois.Interface

	// Cache contains the results of the previous lookups.  It must not be nil.
	Cache *Cache

	// Store persists Cache.  It must not be nil.
	Store Store
}

// Enricher attaches WHOIS information to records.
type Enricher struct {
	logger *slog.Logger
	whois  whois.Interface
	cache  *Cache
	store  Store
}

// New returns a new properly initialized *Enricher.  c must not be nil.
func New(c *Config) (e *Enricher) {
	return &Enricher{
		logger: c.Logger,
		whois:  c.WHOIS,
		cache:  c.Cache,
		store:  c.Store,
	}
}

// Result contains the statistics of an enrichment pass.
type Result struct {
	// AlreadyDone is the number of records that had already been enriched.
	AlreadyDone int

	// CacheHits is the number of records enriched from the cache.
	CacheHits int

	// FailedSkips is the number of records skipped because the lookup of
	// their address had failed before.
	FailedSkips int

	// Unresolvable is the number of records with an address that is not a
	// public IP address.
	Unresolvable int

	// Lookups is the number of live lookups.
	Lookups int

	// Failures is the number of live lookups that have failed, including the
	// one that has aborted the pass, if any.
	Failures int
}

// LoadCache replaces the contents of the cache with the stored snapshot.
func (e *Enricher) LoadCache(ctx context.Context) (err error) {
	snap, err := e.store.Load()
	if err != nil {
		return fmt.Errorf("loading whois cache: %w", err)
	}

	e.cache.Restore(ctx, snap)

	resolved, failed := e.cache.Len()
	e.logger.InfoContext(ctx, "loaded whois cache", "resolved", resolved, "failed", failed)

	return nil
}

// SaveCache stores the snapshot of the cache.
func (e *Enricher) SaveCache(ctx context.Context) (err error) {
	snap := e.cache.Snapshot()
	err = e.store.Save(snap)
	if err != nil {
		return fmt.Errorf("saving whois cache: %w", err)
	}

	e.logger.DebugContext(
		ctx,
		"saved whois cache",
		"resolved", len(snap.Entries),
		"failed", len(snap.Failed),
	)

	return nil
}

// Enrich attaches WHOIS information to each record.  Transient lookup failures
// leave the records with the default information.  Any other error aborts the
// pass: the last failed address is un-marked, the cache is saved, and the
// error is returned.
func (e *Enricher) Enrich(ctx context.Context, records []*accesslog.Record) (res *Result, err error) {
	res = &Result{}
	for _, r := range records {
		err = e.enrichRecord(ctx, r, res)
		if err != nil {
			return res, e.abort(ctx, err)
		}
	}

	e.logger.InfoContext(
		ctx,
		"enriched records",
		"records", len(records),
		"cache_hits", res.CacheHits,
		"lookups", res.Lookups,
		"failures", res.Failures,
	)

	return res, nil
}

// abort rolls back the last failure mark and saves the cache after an
// unexpected error.
func (e *Enricher) abort(ctx context.Context, cause error) (err error) {
	e.logger.ErrorContext(ctx, "aborting enrichment", slogutil.KeyError, cause)

	if addr, ok := e.cache.Rollback(); ok {
		e.logger.InfoContext(ctx, "unmarked last failed address", "addr", addr)
	}

	return errors.Join(fmt.Errorf("enriching records: %w", cause), e.SaveCache(ctx))
}

// enrichRecord attaches WHOIS information to r and updates res.
func (e *Enricher) enrichRecord(ctx context.Context, r *accesslog.Record, res *Result) (err error) {
	if r.WHOISDone {
		res.AlreadyDone++

		return nil
	}

	addr := r.Addr
	if cached, ok := e.cache.Get(ctx, addr); ok {
		res.CacheHits++
		r.SetWHOIS(cached.Country, cached.Names, cached.Done)

		return nil
	}

	r.ResetWHOIS()

	if e.cache.IsFailed(addr) {
		res.FailedSkips++

		return nil
	}

	ip, err := netip.ParseAddr(addr)
	if err != nil || netutil.IsSpecialPurpose(ip) {
		res.Unresolvable++
		e.logger.DebugContext(ctx, "not looking up", "addr", addr)

		return nil
	}

	res.Lookups++

	lookupRes, err := e.whois.Lookup(ctx, ip)
	if err != nil {
		res.Failures++
		if !whois.IsTransient(err) {
			return fmt.Errorf("looking up %s: %w", addr, err)
		}

		e.cache.MarkFailed(addr)
		e.logger.InfoContext(ctx, "whois", "addr", addr, "result", "failed", slogutil.KeyError, err)

		return nil
	}

	entry := entryFromResult(lookupRes)
	e.cache.Set(ctx, addr, entry)
	r.SetWHOIS(entry.Country, entry.Names, entry.Done)

	e.logger.InfoContext(ctx, "whois", "addr", addr, "result", "ok")

	return nil
}

// entryFromResult converts a lookup result into a completed cache entry.
func entryFromResult(res *whois.Result) (e *Entry) {
	names := make([]accesslog.Ownership, 0, len(res.Nets))
	for _, n := range res.Nets {
		names = append(names, accesslog.Ownership{
			Name:        n.Name,
			Description: n.Description,
			City:        n.City,
			Country:     n.Country,
		})
	}

	return &Entry{
		Country: res.ASNCountry,
		Names:   names,
		Done:    true,
	}
}
