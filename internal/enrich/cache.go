package enrich

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/AdguardTeam/WebStats/internal/accesslog"
	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/bluele/gcache"
)

// Entry is the cached WHOIS information about an address.
type Entry struct {
	// Expiry is the time after which the entry is no longer used.  The zero
	// value means that the entry never expires.
	Expiry time.Time

	// Country is the ISO 3166 country code of the address, if known.
	Country string

	// Names are the networks owning the address.
	Names []accesslog.Ownership

	// Done is true if the lookup has been completed.
	Done bool
}

// clone returns a deep copy of e.
func (e *Entry) clone() (c *Entry) {
	return &Entry{
		Expiry:  e.Expiry,
		Country: e.Country,
		Names:   slices.Clone(e.Names),
		Done:    e.Done,
	}
}

// isExpired returns true if e has expired by now.
func (e *Entry) isExpired(now time.Time) (ok bool) {
	return !e.Expiry.IsZero() && now.After(e.Expiry)
}

// Snapshot is the persistent state of a cache.
type Snapshot struct {
	// Entries are the resolved addresses.  It is never nil in snapshots
	// returned by [Cache.Snapshot] and [Store.Load].
	Entries map[string]*Entry

	// Failed are the addresses the lookup of which has failed, sorted.
	Failed []string
}

// CacheConfig is the configuration structure for a *Cache.
type CacheConfig struct {
	// Logger is used to log the operation of the cache.  It must not be nil.
	Logger *slog.Logger

	// Clock is used to get the current time for expiry.  It must not be nil.
	Clock timeutil.Clock

	// TTL is the time to live of resolved entries.  Zero means that the
	// entries never expire.
	TTL time.Duration

	// Size is the maximum number of resolved entries.  Zero means no limit.
	Size int
}

// Cache contains the resolved and the failed addresses.  An address is never
// both resolved and failed.  It is not safe for concurrent use.
type Cache struct {
	logger *slog.Logger
	clock  timeutil.Clock

	// entries maps addresses to *Entry values.
	entries gcache.Cache

	// failed are the addresses the lookup of which has failed.
	failed *container.MapSet[string]

	// lastFailed is the address most recently marked as failed in this run.
	// It is used to roll back the mark when the run is aborted.
	lastFailed string

	ttl time.Duration
}

// NewCache returns a new empty cache.  c must not be nil.
func NewCache(c *CacheConfig) (cache *Cache) {
	b := gcache.New(c.Size)
	if c.Size > 0 {
		b = b.LRU()
	} else {
		b = b.Simple()
	}

	return &Cache{
		logger:  c.Logger,
		clock:   c.Clock,
		entries: b.Build(),
		failed:  container.NewMapSet[string](),
		ttl:     c.TTL,
	}
}

// Get returns a copy of the cached entry for addr.  ok is false if there is
// no entry or it has expired.
func (c *Cache) Get(ctx context.Context, addr string) (e *Entry, ok bool) {
	val, err := c.entries.Get(addr)
	if err != nil {
		if !errors.Is(err, gcache.KeyNotFoundError) {
			c.logger.DebugContext(ctx, "retrieving item from cache", "key", addr, slogutil.KeyError, err)
		}

		return nil, false
	}

	e = val.(*Entry)
	if e.isExpired(c.clock.Now()) {
		c.entries.Remove(addr)

		return nil, false
	}

	return e.clone(), true
}

// Set caches e for addr setting its expiry according to the TTL and removes
// addr from the failed addresses.
func (c *Cache) Set(ctx context.Context, addr string, e *Entry) {
	e = e.clone()
	if c.ttl > 0 {
		e.Expiry = c.clock.Now().Add(c.ttl)
	}

	c.set(ctx, addr, e)
	c.failed.Delete(addr)
}

// set puts e into the entries.
func (c *Cache) set(ctx context.Context, addr string, e *Entry) {
	err := c.entries.Set(addr, e)
	if err != nil {
		c.logger.DebugContext(ctx, "adding item to cache", "key", addr, slogutil.KeyError, err)
	}
}

// IsFailed returns true if the lookup of addr has failed.
func (c *Cache) IsFailed(addr string) (ok bool) {
	return c.failed.Has(addr)
}

// MarkFailed marks addr as failed and remembers it as the last failed
// address.  Addresses with a resolved entry are not marked.
func (c *Cache) MarkFailed(addr string) {
	if c.entries.Has(addr) {
		return
	}

	c.failed.Add(addr)
	c.lastFailed = addr
}

// Rollback removes the last failed address from the failed addresses.  addr
// is the removed address, ok is false if there was none.
func (c *Cache) Rollback() (addr string, ok bool) {
	addr, c.lastFailed = c.lastFailed, ""
	if addr == "" || !c.failed.Has(addr) {
		return "", false
	}

	c.failed.Delete(addr)

	return addr, true
}

// Len returns the number of resolved entries, including the expired ones, and
// the number of failed addresses.
func (c *Cache) Len() (resolved, failed int) {
	return c.entries.Len(false), c.failed.Len()
}

// Snapshot returns the persistent state of the cache.  Expired entries are
// not included.
func (c *Cache) Snapshot() (s *Snapshot) {
	now := c.clock.Now()
	s = &Snapshot{
		Entries: map[string]*Entry{},
	}

	for k, v := range c.entries.GetALL(false) {
		addr, e := k.(string), v.(*Entry)
		if e.isExpired(now) {
			continue
		}

		s.Entries[addr] = e.clone()
	}

	if c.failed.Len() > 0 {
		s.Failed = c.failed.Values()
		slices.Sort(s.Failed)
	}

	return s
}

// Restore replaces the contents of the cache with s.  Addresses present both
// among entries and failed ones are considered resolved.
func (c *Cache) Restore(ctx context.Context, s *Snapshot) {
	c.entries.Purge()
	c.failed = container.NewMapSet[string]()
	c.lastFailed = ""

	for _, addr := range slices.Sorted(maps.Keys(s.Entries)) {
		c.set(ctx, addr, s.Entries[addr].clone())
	}

	for _, addr := range s.Failed {
		c.MarkFailed(addr)
	}

	c.lastFailed = ""
}
