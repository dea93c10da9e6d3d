// Package aghtest contains utilities for testing.
package aghtest

import (
	"context"
	"net/netip"
	"time"

	"github.com/AdguardTeam/WebStats/internal/whois"
	"github.com/miekg/dns"
)

// WHOIS is a [whois.Interface] for tests.
type WHOIS struct {
	OnLookup func(ctx context.Context, ip netip.Addr) (res *whois.Result, err error)
}

// type check
var _ whois.Interface = (*WHOIS)(nil)

// Lookup implements the [whois.Interface] interface for *WHOIS.
func (w *WHOIS) Lookup(ctx context.Context, ip netip.Addr) (res *whois.Result, err error) {
	return w.OnLookup(ctx, ip)
}

// NewRecordingWHOIS returns a *WHOIS that appends the looked up addresses to
// the slice pointed to by lookups and then calls onLookup.
func NewRecordingWHOIS(
	onLookup func(ip netip.Addr) (res *whois.Result, err error),
) (w *WHOIS, lookups *[]string) {
	lookups = &[]string{}

	return &WHOIS{
		OnLookup: func(_ context.Context, ip netip.Addr) (res *whois.Result, err error) {
			*lookups = append(*lookups, ip.String())

			return onLookup(ip)
		},
	}, lookups
}

// Exchanger is a [whois.Exchanger] for tests.
type Exchanger struct {
	OnExchange func(m *dns.Msg) (resp *dns.Msg, err error)
}

// type check
var _ whois.Exchanger = (*Exchanger)(nil)

// ExchangeContext implements the [whois.Exchanger] interface for *Exchanger.
func (e *Exchanger) ExchangeContext(
	_ context.Context,
	m *dns.Msg,
	_ string,
) (resp *dns.Msg, rtt time.Duration, err error) {
	resp, err = e.OnExchange(m)

	return resp, 0, err
}

// NewTXTAnswer returns a reply to req with a single TXT record containing txt.
func NewTXTAnswer(req *dns.Msg, txt string) (resp *dns.Msg) {
	resp = (&dns.Msg{}).SetReply(req)
	resp.Answer = []dns.RR{&dns.TXT{
		Hdr: dns.RR_Header{
			Name:   req.Question[0].Name,
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
		},
		Txt: []string{txt},
	}}

	return resp
}
