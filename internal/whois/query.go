package whois

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/ioutil"
	"github.com/c2h5oh/datasize"
)

// errRedirectLoop is returned when the WHOIS servers redirect the query more
// times than allowed.
const errRedirectLoop errors.Error = "redirect loop"

// rateLimitMarkers are the lowercased substrings of WHOIS responses meaning
// that the server refuses to answer because of the query rate.
var rateLimitMarkers = []string{
	"query rate limit exceeded",
	"access denied",
	"too many requests",
}

// trimValue trims s and replaces the last 3 characters of the cut with "..."
// to fit into max.  max must be greater than 3.
func trimValue(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}

	return s[:max-3] + "..."
}

// isWHOISComment returns true if the data is empty or is a WHOIS comment.
func isWHOISComment(data []byte) (ok bool) {
	return len(data) == 0 || data[0] == '#' || data[0] == '%'
}

// query sends request to a server and returns the response or error.
func (c *Client) query(ctx context.Context, target, serverAddr string) (data []byte, err error) {
	addr, _, _ := net.SplitHostPort(serverAddr)
	if addr == DefaultServer {
		// Display type flags for query.
		//
		// See https://www.arin.net/resources/registry/whois/rws/api/#nicname-whois-queries.
		target = "n + " + target
	}

	conn, err := c.dialCtx(ctx, "tcp", serverAddr)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}
	defer func() { err = errors.WithDeferred(err, conn.Close()) }()

	r := ioutil.LimitReader(conn, c.maxConnReadSize)

	_ = conn.SetDeadline(time.Now().Add(c.timeout))
	_, err = io.WriteString(conn, target+"\r\n")
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	// This use of ReadAll is now safe, because we limited the conn Reader.
	data, err = io.ReadAll(r)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	return data, nil
}

// lookupWHOIS queries the WHOIS server for the networks containing ip and
// handles redirects.
func (c *Client) lookupWHOIS(
	ctx context.Context,
	ip netip.Addr,
	server string,
) (nets []Net, err error) {
	target := ip.String()
	serverAddr := net.JoinHostPort(server, c.portStr)

	for range c.maxRedirects {
		var data []byte
		data, err = c.query(ctx, target, serverAddr)
		if err != nil {
			return nil, classify(ctx, ErrWhoisLookup, fmt.Errorf("querying %s: %w", serverAddr, err))
		}

		c.logger.DebugContext(
			ctx,
			"received response",
			"size", datasize.ByteSize(len(data)),
			"source", serverAddr,
			"target", target,
		)

		if isRateLimited(data) {
			return nil, fmt.Errorf("%w: server %s", ErrRateLimit, serverAddr)
		}

		var redir string
		nets, redir = parseNets(data, c.maxInfoLen)
		if redir == "" {
			return nets, nil
		}

		redir = strings.ToLower(redir)

		_, _, err = net.SplitHostPort(redir)
		if err != nil {
			serverAddr = net.JoinHostPort(redir, c.portStr)
		} else {
			serverAddr = redir
		}

		c.logger.DebugContext(ctx, "redirected", "destination", redir, "target", target)
	}

	return nil, fmt.Errorf("%w: %w", ErrWhoisLookup, errRedirectLoop)
}

// isRateLimited returns true if the WHOIS response reports exceeding the rate
// limit.
func isRateLimited(data []byte) (ok bool) {
	lower := bytes.ToLower(data)
	for _, m := range rateLimitMarkers {
		if bytes.Contains(lower, []byte(m)) {
			return true
		}
	}

	return false
}

// whoisObject is a single object of a WHOIS response, a block of key-value
// lines separated from other objects by empty lines.
type whoisObject struct {
	values map[string][]string
}

// get returns the first value of key, if any.
func (o *whoisObject) get(key string) (val string) {
	vals := o.values[key]
	if len(vals) == 0 {
		return ""
	}

	return vals[0]
}

// isNet returns true if the object describes a network.
func (o *whoisObject) isNet() (ok bool) {
	for _, k := range []string{"netrange", "inetnum", "inet6num", "cidr"} {
		if len(o.values[k]) > 0 {
			return true
		}
	}

	return false
}

// splitObjects parses a plain-text WHOIS response into objects.  Comments and
// lines without a key are skipped.
func splitObjects(data []byte) (objs []*whoisObject) {
	var cur *whoisObject
	for _, l := range bytes.Split(data, []byte("\n")) {
		l = bytes.TrimRight(l, "\r")
		if len(bytes.TrimSpace(l)) == 0 {
			cur = nil

			continue
		}

		if isWHOISComment(l) {
			continue
		}

		before, after, found := bytes.Cut(l, []byte(":"))
		if !found {
			continue
		}

		key := strings.ToLower(strings.TrimSpace(string(before)))
		val := strings.TrimSpace(string(after))
		if val == "" {
			continue
		}

		if cur == nil {
			cur = &whoisObject{values: map[string][]string{}}
			objs = append(objs, cur)
		}

		cur.values[key] = append(cur.values[key], val)
	}

	return objs
}

// parseNets parses the networks from a plain-text WHOIS response and trims
// their values to maxLen.  The fields the network objects lack are completed
// from the organization objects that follow them.  redir is the referral
// server, if any.
func parseNets(data []byte, maxLen int) (nets []Net, redir string) {
	var cur *Net
	for _, obj := range splitObjects(data) {
		redir = cmp.Or(
			redir,
			obj.get("whois"),
			strings.TrimPrefix(obj.get("referralserver"), "whois://"),
		)

		if obj.isNet() {
			nets = append(nets, netFromObject(obj))
			cur = &nets[len(nets)-1]

			continue
		}

		if cur != nil {
			cur.Description = cmp.Or(cur.Description, orgName(obj))
			cur.City = cmp.Or(cur.City, obj.get("city"))
			cur.Country = cmp.Or(cur.Country, obj.get("country"))
		}
	}

	for i := range nets {
		n := &nets[i]
		n.Name = trimValue(n.Name, maxLen)
		n.Description = trimValue(n.Description, maxLen)
		n.City = trimValue(n.City, maxLen)
		n.Country = trimValue(n.Country, maxLen)
	}

	return nets, redir
}

// netFromObject converts a network WHOIS object into a Net.  Multiple
// description lines are joined with newlines.
func netFromObject(obj *whoisObject) (n Net) {
	return Net{
		Name:        obj.get("netname"),
		Description: cmp.Or(strings.Join(obj.values["descr"], "\n"), orgName(obj)),
		City:        obj.get("city"),
		Country:     obj.get("country"),
		CIDR:        cmp.Or(obj.get("cidr"), obj.get("netrange"), obj.get("inetnum"), obj.get("inet6num")),
	}
}

// orgName returns the organization name from obj.
func orgName(obj *whoisObject) (name string) {
	return cmp.Or(obj.get("orgname"), obj.get("org-name"))
}
