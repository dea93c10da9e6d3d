// Package accesslog reads web-server access logs and parses them into request
// records.
package accesslog

import (
	"slices"
	"time"
)

// Ownership is the WHOIS information about a network owning an address.  The
// empty string means that the corresponding value is absent.
type Ownership struct {
	Name        string
	Description string
	City        string
	Country     string
}

// Fields returns the values of o in the order name, description, city,
// country.
func (o Ownership) Fields() (fields [4]string) {
	return [4]string{o.Name, o.Description, o.City, o.Country}
}

// DefaultNames returns the ownership data of a record, for which no WHOIS
// information could be found: a single tuple with all values absent.
func DefaultNames() (names []Ownership) {
	return []Ownership{{}}
}

// Record is a single request from an access log.  The WHOIS fields are set by
// the enrichment and are read-only after that.
type Record struct {
	// Time is the time of the request.
	Time time.Time

	// Addr is the source address as written in the log.
	Addr string

	// RequestURL is the requested URL or host.
	RequestURL string

	// Page is the request line or path.
	Page string

	// Referrer is the value of the Referer header.
	Referrer string

	// UserAgent is the value of the User-Agent header.
	UserAgent string

	// Country is the ISO 3166 country code of the source address as reported
	// by the ASN registry.  It is empty if unknown.
	Country string

	// Names are the networks owning the source address.  A record that has
	// not been enriched has [DefaultNames].
	Names []Ownership

	// Status is the HTTP status code.  It is only meaningful if HasStatus is
	// true.
	Status int

	// HasStatus is true if the status token of the log line was numeric.
	HasStatus bool

	// WHOISDone is true if the WHOIS information has been attached.
	WHOISDone bool
}

// SetWHOIS attaches the WHOIS information to r.  names are cloned.
func (r *Record) SetWHOIS(country string, names []Ownership, done bool) {
	r.Country = country
	r.Names = slices.Clone(names)
	r.WHOISDone = done
}

// ResetWHOIS sets the WHOIS information of r to the defaults of an address
// that could not be resolved.
func (r *Record) ResetWHOIS() {
	r.SetWHOIS("", DefaultNames(), false)
}
