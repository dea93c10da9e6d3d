// Package whois provides lookups of network ownership information for IP
// addresses.
package whois

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/miekg/dns"
)

const (
	// DefaultServer is the default WHOIS server.
	DefaultServer = "whois.arin.net"

	// DefaultPort is the default port for WHOIS requests.
	DefaultPort = 43

	// DefaultRDAPURL is the default base URL of RDAP IP queries.  ARIN
	// redirects the queries for addresses of other registries.
	DefaultRDAPURL = "https://rdap.arin.net/registry/ip/"

	// DefaultDNSServer is the default DNS server used for ASN lookups.
	DefaultDNSServer = "1.1.1.1:53"
)

// Recognized lookup failures.  Errors returned by [Interface.Lookup] wrap one
// of these if the failure is transient and the address may be looked up again
// in the future.
const (
	// ErrHTTPLookup is returned when an HTTP query fails.
	ErrHTTPLookup errors.Error = "http lookup failed"

	// ErrRateLimit is returned when the server refuses to answer because of
	// the rate limit.
	ErrRateLimit errors.Error = "rate limit exceeded"

	// ErrWhoisLookup is returned when a WHOIS or an ASN query fails or its
	// response cannot be parsed.
	ErrWhoisLookup errors.Error = "whois lookup failed"
)

// IsTransient returns true if err is one of the recognized lookup failures.
func IsTransient(err error) (ok bool) {
	return errors.Is(err, ErrHTTPLookup) ||
		errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrWhoisLookup)
}

// Interface looks up network ownership information.
type Interface interface {
	// Lookup returns the ownership information for ip.  If err is not nil, it
	// is checked with [IsTransient].
	Lookup(ctx context.Context, ip netip.Addr) (res *Result, err error)
}

// Net is the information about a single network containing an address.
type Net struct {
	Name        string
	Description string
	City        string
	Country     string
	CIDR        string
}

// Result is the result of a lookup.
type Result struct {
	// ASN is the number of the autonomous system announcing the address.
	ASN string

	// ASNCIDR is the announced prefix.
	ASNCIDR string

	// ASNCountry is the ISO 3166 country code of the autonomous system.
	ASNCountry string

	// ASNRegistry is the regional registry of the autonomous system, for
	// example "arin" or "ripencc".
	ASNRegistry string

	// Nets are the networks containing the address, from the largest to the
	// smallest, as reported by the registry.
	Nets []Net
}

// Method is the method of querying the network information.
type Method string

// Supported methods.
const (
	MethodWHOIS Method = "whois"
	MethodRDAP  Method = "rdap"
)

// DialContextFunc is the semantic alias for dialing functions.
type DialContextFunc = func(ctx context.Context, network, addr string) (conn net.Conn, err error)

// Exchanger sends DNS messages.  *dns.Client implements it.
type Exchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, addr string) (r *dns.Msg, rtt time.Duration, err error)
}

// type check
var _ Exchanger = (*dns.Client)(nil)

// Config is the configuration structure for Client.
type Config struct {
	// Logger is used for logging the operation of the lookups.  It must not
	// be nil.
	Logger *slog.Logger

	// DialContext is used to create TCP connections to WHOIS servers.  It must
	// not be nil.
	DialContext DialContextFunc

	// Exchanger sends ASN queries.  It must not be nil.
	Exchanger Exchanger

	// HTTPClient is used for RDAP queries.  It must not be nil if Method is
	// [MethodRDAP].
	HTTPClient *http.Client

	// Method is the method of querying the network information.
	Method Method

	// DNSServer is the address of the DNS server for ASN queries.
	DNSServer string

	// RDAPURL is the base URL of RDAP IP queries.
	RDAPURL string

	// Timeout is the timeout for a single WHOIS query.
	Timeout time.Duration

	// RetryDelay is the delay between retries after a failed query.
	RetryDelay time.Duration

	// RateLimitDelay is the delay between retries after the server has
	// reported exceeding the rate limit.
	RateLimitDelay time.Duration

	// MaxConnReadSize is an upper limit in bytes for reading from net.Conn
	// and HTTP response bodies.
	MaxConnReadSize uint64

	// MaxRedirects is the maximum redirects count.
	MaxRedirects int

	// MaxInfoLen is the maximum length of the values of the returned nets.
	MaxInfoLen int

	// Retries is the number of additional attempts after a transient failure.
	Retries int

	// Port is the port for WHOIS requests.
	Port uint16
}

// Client is the default implementation of [Interface].
type Client struct {
	logger     *slog.Logger
	dialCtx    DialContextFunc
	exchanger  Exchanger
	httpCli    *http.Client
	method     Method
	dnsServer  string
	rdapURL    string
	portStr    string
	timeout    time.Duration
	retryDelay time.Duration
	rlDelay    time.Duration

	maxConnReadSize uint64
	maxRedirects    int
	maxInfoLen      int
	retries         int
}

// New returns a new WHOIS lookup client.  c must not be nil.
func New(c *Config) (cli *Client) {
	return &Client{
		logger:          c.Logger,
		dialCtx:         c.DialContext,
		exchanger:       c.Exchanger,
		httpCli:         c.HTTPClient,
		method:          c.Method,
		dnsServer:       c.DNSServer,
		rdapURL:         c.RDAPURL,
		portStr:         strconv.Itoa(int(c.Port)),
		timeout:         c.Timeout,
		retryDelay:      c.RetryDelay,
		rlDelay:         c.RateLimitDelay,
		maxConnReadSize: c.MaxConnReadSize,
		maxRedirects:    c.MaxRedirects,
		maxInfoLen:      c.MaxInfoLen,
		retries:         c.Retries,
	}
}

// type check
var _ Interface = (*Client)(nil)

// Lookup implements the [Interface] interface for *Client.  Transient failures
// are retried.
func (c *Client) Lookup(ctx context.Context, ip netip.Addr) (res *Result, err error) {
	ip = ip.Unmap()
	for attempt := 0; ; attempt++ {
		res, err = c.lookupOnce(ctx, ip)
		if err == nil || !IsTransient(err) || attempt >= c.retries {
			return res, err
		}

		delay := c.retryDelay
		if errors.Is(err, ErrRateLimit) {
			delay = c.rlDelay
		}

		c.logger.DebugContext(
			ctx,
			"retrying",
			"target", ip,
			"attempt", attempt+1,
			"delay", delay,
			slogutil.KeyError, err,
		)

		err = sleep(ctx, delay)
		if err != nil {
			return nil, err
		}
	}
}

// lookupOnce performs a single ASN and network lookup.
func (c *Client) lookupOnce(ctx context.Context, ip netip.Addr) (res *Result, err error) {
	res, err = c.lookupASN(ctx, ip)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	switch c.method {
	case MethodRDAP:
		res.Nets, err = c.lookupRDAP(ctx, ip)
	default:
		res.Nets, err = c.lookupWHOIS(ctx, ip, serverForRegistry(res.ASNRegistry))
	}

	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	return res, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) (err error) {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classify wraps err with class unless err is caused by the cancellation of
// ctx, which is never transient.
func classify(ctx context.Context, class errors.Error, err error) (wrapped error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	return fmt.Errorf("%w: %w", class, err)
}
