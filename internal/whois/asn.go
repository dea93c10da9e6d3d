package whois

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/miekg/dns"
)

// Zones of the Team Cymru IP to ASN mapping service.
const (
	originZone4 = "origin.asn.cymru.com."
	originZone6 = "origin6.asn.cymru.com."
)

// errNoOrigin is returned when the ASN response contains no origin records.
const errNoOrigin errors.Error = "no origin records"

// registryServers maps the names of the regional registries, as reported by
// the ASN service, to their WHOIS servers.
var registryServers = map[string]string{
	"afrinic": "whois.afrinic.net",
	"apnic":   "whois.apnic.net",
	"arin":    DefaultServer,
	"lacnic":  "whois.lacnic.net",
	"ripencc": "whois.ripe.net",
}

// serverForRegistry returns the WHOIS server of the registry.  It returns
// [DefaultServer], which redirects the queries it cannot answer, for unknown
// registries.
func serverForRegistry(registry string) (srv string) {
	srv, ok := registryServers[registry]
	if !ok {
		return DefaultServer
	}

	return srv
}

// originQuestion returns the name of the TXT record containing the origin ASN
// of ip.
func originQuestion(ip netip.Addr) (name string, err error) {
	arpa, err := netutil.IPToReversedAddr(ip.AsSlice())
	if err != nil {
		return "", fmt.Errorf("reversing address: %w", err)
	}

	arpa = strings.TrimSuffix(arpa, ".")
	if ip.Is4() {
		return strings.TrimSuffix(arpa, "in-addr.arpa") + originZone4, nil
	}

	return strings.TrimSuffix(arpa, "ip6.arpa") + originZone6, nil
}

// lookupASN queries the ASN information for ip.
func (c *Client) lookupASN(ctx context.Context, ip netip.Addr) (res *Result, err error) {
	question, err := originQuestion(ip)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWhoisLookup, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := (&dns.Msg{}).SetQuestion(question, dns.TypeTXT)
	resp, _, err := c.exchanger.ExchangeContext(reqCtx, req, c.dnsServer)
	if err != nil {
		return nil, classify(ctx, ErrWhoisLookup, fmt.Errorf("asn query: %w", err))
	}

	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf(
			"%w: asn query: got rcode %s",
			ErrWhoisLookup,
			dns.RcodeToString[resp.Rcode],
		)
	}

	for _, rr := range resp.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}

		res, err = parseOrigin(strings.Join(txt.Txt, ""))
		if err == nil {
			return res, nil
		}
	}

	if err == nil {
		err = errNoOrigin
	}

	return nil, fmt.Errorf("%w: asn query: %w", ErrWhoisLookup, err)
}

// parseOrigin parses an origin TXT record of the form:
//
//	15169 | 8.8.8.0/24 | US | arin | 1992-12-01
func parseOrigin(txt string) (res *Result, err error) {
	parts := strings.Split(txt, "|")
	if len(parts) < 4 {
		return nil, fmt.Errorf("bad origin record %q", txt)
	}

	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}

	// Multi-origin prefixes list several numbers, use the first one.
	asn, _, _ := strings.Cut(parts[0], " ")
	if asn == "" {
		return nil, fmt.Errorf("bad origin record %q: no asn", txt)
	}

	return &Result{
		ASN:         asn,
		ASNCIDR:     parts[1],
		ASNCountry:  strings.ToUpper(parts[2]),
		ASNRegistry: strings.ToLower(parts[3]),
	}, nil
}
