package whois

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"slices"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/ioutil"
)

// rdapMediaType is the media type of RDAP responses.
const rdapMediaType = "application/rdap+json"

// rdapNetwork is the subset of an RDAP IP network object.
type rdapNetwork struct {
	Handle       string        `json:"handle"`
	Name         string        `json:"name"`
	Country      string        `json:"country"`
	StartAddress string        `json:"startAddress"`
	EndAddress   string        `json:"endAddress"`
	Remarks      []rdapRemark  `json:"remarks"`
	Entities     []*rdapEntity `json:"entities"`
}

// rdapRemark is an RDAP remark.
type rdapRemark struct {
	Title       string   `json:"title"`
	Description []string `json:"description"`
}

// rdapEntity is the subset of an RDAP entity object.
type rdapEntity struct {
	Roles      []string `json:"roles"`
	VCardArray []any    `json:"vcardArray"`
}

// vcardProp returns the value of the first property of the jCard with the
// given name, if any.
func (e *rdapEntity) vcardProp(name string) (val any) {
	if len(e.VCardArray) < 2 {
		return nil
	}

	props, ok := e.VCardArray[1].([]any)
	if !ok {
		return nil
	}

	for _, p := range props {
		prop, isSlice := p.([]any)
		if !isSlice || len(prop) < 4 || prop[0] != name {
			continue
		}

		return prop[3]
	}

	return nil
}

// fullName returns the formatted name of the entity.
func (e *rdapEntity) fullName() (fn string) {
	fn, _ = e.vcardProp("fn").(string)

	return fn
}

// locality returns the locality, that is the city, of the address of the
// entity.
func (e *rdapEntity) locality() (city string) {
	const localityIdx = 3

	adr, _ := e.vcardProp("adr").([]any)
	if len(adr) <= localityIdx {
		return ""
	}

	city, _ = adr[localityIdx].(string)

	return city
}

// registrant returns the registrant entity, or the first entity if there is
// no registrant.  It returns nil if there are no entities.
func (n *rdapNetwork) registrant() (e *rdapEntity) {
	i := slices.IndexFunc(n.Entities, func(e *rdapEntity) (ok bool) {
		return slices.Contains(e.Roles, "registrant")
	})
	if i >= 0 {
		return n.Entities[i]
	}

	if len(n.Entities) > 0 {
		return n.Entities[0]
	}

	return nil
}

// toNet converts the RDAP network into a Net trimming the values to maxLen.
func (n *rdapNetwork) toNet(maxLen int) (res Net) {
	var descrs []string
	for _, r := range n.Remarks {
		descrs = append(descrs, r.Description...)
	}

	res = Net{
		Name:        trimValue(n.Name, maxLen),
		Description: strings.Join(descrs, "\n"),
		Country:     trimValue(n.Country, maxLen),
	}

	if n.StartAddress != "" {
		res.CIDR = n.StartAddress + " - " + n.EndAddress
	}

	if e := n.registrant(); e != nil {
		if res.Description == "" {
			res.Description = e.fullName()
		}

		res.City = trimValue(e.locality(), maxLen)
	}

	res.Description = trimValue(res.Description, maxLen)

	return res
}

// lookupRDAP queries the RDAP service for the network containing ip.
func (c *Client) lookupRDAP(ctx context.Context, ip netip.Addr) (nets []Net, err error) {
	u := c.rdapURL + ip.String()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		// Not transient, since the URL is configured incorrectly.
		return nil, fmt.Errorf("making request for http url %q: %w", u, err)
	}

	req.Header.Set(httphdr.Accept, rdapMediaType)

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, classify(ctx, ErrHTTPLookup, fmt.Errorf("requesting %q: %w", u, err))
	}
	defer func() { err = errors.WithDeferred(err, resp.Body.Close()) }()

	switch resp.StatusCode {
	case http.StatusOK:
		// Go on.
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: http url %q", ErrRateLimit, u)
	default:
		return nil, fmt.Errorf(
			"%w: got status code %d, want %d",
			ErrHTTPLookup,
			resp.StatusCode,
			http.StatusOK,
		)
	}

	n := &rdapNetwork{}
	err = json.NewDecoder(ioutil.LimitReader(resp.Body, c.maxConnReadSize)).Decode(n)
	if err != nil {
		return nil, classify(ctx, ErrHTTPLookup, fmt.Errorf("decoding rdap response: %w", err))
	}

	return []Net{n.toNet(c.maxInfoLen)}, nil
}
