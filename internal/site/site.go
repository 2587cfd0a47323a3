// Package site models origins and the first-party "site for cookies"
// boundary used to decide whether two URLs share cookie and storage access.
package site

import (
	"net"
	"net/url"
	"strings"
)

import (
	"golang.org/x/net/publicsuffix"
)

// Origin is a scheme/host/port tuple. An origin built from a URL without a
// network host (data:, about:, javascript:) is opaque.
type Origin struct {
	Scheme string
	Host   string
	Port   string
	opaque bool
}

// OriginFromURL returns the origin of u.
func OriginFromURL(u *url.URL) Origin {
	if u == nil {
		return Origin{opaque: true}
	}
	scheme := strings.ToLower(u.Scheme)
	host := canonicalHost(u.Hostname())
	if !isNetworkScheme(scheme) || host == "" {
		return Origin{opaque: true}
	}
	port := u.Port()
	if port == defaultPort(scheme) {
		port = ""
	}
	return Origin{Scheme: scheme, Host: host, Port: port}
}

// IsOpaque reports whether o carries no scheme/host tuple.
func (o Origin) IsOpaque() bool {
	return o.opaque || o.Host == ""
}

func (o Origin) String() string {
	if o.IsOpaque() {
		return "null"
	}
	host := o.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if o.Port != "" {
		host += ":" + o.Port
	}
	return o.Scheme + "://" + host
}

// SiteForCookies is the schemeful registrable domain of a first-party
// context. The zero value is the null site, which is only equivalent to
// another null site.
type SiteForCookies struct {
	scheme string
	domain string
}

// FromURL returns the site for cookies of u.
func FromURL(u *url.URL) SiteForCookies {
	return FromOrigin(OriginFromURL(u))
}

// FromOrigin returns the site for cookies of o.
func FromOrigin(o Origin) SiteForCookies {
	if o.IsOpaque() {
		return SiteForCookies{}
	}
	return SiteForCookies{
		scheme: schemefulScheme(o.Scheme),
		domain: RegistrableDomain(o.Host),
	}
}

// Parse builds a site for cookies from a URL string. An empty string yields
// the null site.
func Parse(raw string) (SiteForCookies, error) {
	if strings.TrimSpace(raw) == "" {
		return SiteForCookies{}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return SiteForCookies{}, err
	}
	return FromURL(u), nil
}

// IsNull reports whether s is the null site.
func (s SiteForCookies) IsNull() bool {
	return s.domain == ""
}

// IsEquivalent reports whether s and other denote the same first party.
func (s SiteForCookies) IsEquivalent(other SiteForCookies) bool {
	if s.IsNull() {
		return other.IsNull()
	}
	return s.scheme == other.scheme && s.domain == other.domain
}

// RegistrableDomain returns the eTLD+1 of host, or host itself when it has
// none (IP literals, localhost, bare public suffixes).
func RegistrableDomain(host string) string {
	host = canonicalHost(host)
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

func (s SiteForCookies) String() string {
	if s.IsNull() {
		return "null"
	}
	return s.scheme + "://" + s.domain
}

func canonicalHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}

func isNetworkScheme(scheme string) bool {
	switch scheme {
	case "http", "https", "ws", "wss":
		return true
	}
	return false
}

// ws and wss share cookies with http and https respectively.
func schemefulScheme(scheme string) string {
	switch scheme {
	case "ws":
		return "http"
	case "wss":
		return "https"
	}
	return scheme
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http", "ws":
		return "80"
	case "https", "wss":
		return "443"
	}
	return ""
}
