package accesslog

import (
	"net/url"
	"slices"
	"strings"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/netutil"
	"golang.org/x/net/idna"
)

// NewDomainFilter returns a predicate that accepts records, the requested host
// of which is one of domains or a subdomain of one of them.  If domains is
// empty, the predicate accepts all records.
func NewDomainFilter(domains []string) (p Predicate) {
	if len(domains) == 0 {
		return nil
	}

	set := container.NewMapSet[string]()
	for _, d := range domains {
		set.Add(normalizeHost(d))
	}

	return func(r *Record) (ok bool) {
		host := requestHost(r.RequestURL)
		if host == "" {
			return false
		}

		return slices.ContainsFunc(netutil.Subdomains(host), set.Has)
	}
}

// requestHost returns the lowercase host of the requested URL, which is
// either a bare host, a host with a port, or an absolute URL.
func requestHost(reqURL string) (host string) {
	if strings.Contains(reqURL, "://") {
		u, err := url.Parse(reqURL)
		if err != nil {
			return ""
		}

		reqURL = u.Host
	}

	reqURL, _, _ = strings.Cut(reqURL, "/")
	host, err := netutil.SplitHost(reqURL)
	if err != nil {
		return ""
	}

	return normalizeHost(host)
}

// normalizeHost returns the lowercase ASCII form of host without the trailing
// dot.  Internationalized names are converted to Punycode, so that both forms
// match each other.
func normalizeHost(host string) (norm string) {
	norm = strings.ToLower(strings.TrimSuffix(host, "."))
	if asciiVal, err := idna.ToASCII(norm); err == nil {
		norm = asciiVal
	}

	return norm
}
