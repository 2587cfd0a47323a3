// Package urlpattern implements URL match patterns of the form
// <scheme>://<host><path>, plus the special <all_urls> pattern.
//
// The scheme is a concrete scheme or "*" (http and https). The host is
// "*", "*.<domain>" (the domain and all of its subdomains) or an exact host,
// optionally followed by ":<port>" or ":*". The path is matched as a glob where
// "*" matches any sequence of characters; the query string of the tested URL
// is part of the matched path.
package urlpattern

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

import (
	"github.com/gobwas/glob"
)

// Scheme is a bit mask of URL schemes a pattern may reference.
type Scheme uint8

const (
	SchemeHTTP Scheme = 1 << iota
	SchemeHTTPS
	SchemeWS
	SchemeWSS

	SchemeWeb = SchemeHTTP | SchemeHTTPS
	SchemeAll = SchemeHTTP | SchemeHTTPS | SchemeWS | SchemeWSS
)

const AllURLs = "<all_urls>"

var schemeBits = map[string]Scheme{
	"http":  SchemeHTTP,
	"https": SchemeHTTPS,
	"ws":    SchemeWS,
	"wss":   SchemeWSS,
}

var (
	ErrMissingSchemeSeparator = errors.New("missing scheme separator")
	ErrInvalidScheme          = errors.New("invalid scheme")
	ErrEmptyHost              = errors.New("empty host")
	ErrInvalidHostWildcard    = errors.New("invalid host wildcard")
	ErrInvalidPort            = errors.New("invalid port")
	ErrMissingPath            = errors.New("missing path")
	ErrInvalidPath            = errors.New("invalid path")
)

// ParseError reports which pattern failed and why.
type ParseError struct {
	Pattern string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error at pattern %q: %v", e.Pattern, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Pattern is a single compiled match pattern. It is immutable once parsed.
type Pattern struct {
	raw           string
	schemes       Scheme
	host          string
	matchSubdoms  bool
	port          string // "*" matches any port
	path          string
	pathGlob      glob.Glob
	matchAllPaths bool
}

// Parse compiles raw, accepting only schemes present in valid.
func Parse(raw string, valid Scheme) (*Pattern, error) {
	p := &Pattern{raw: raw, port: "*"}
	fail := func(err error) (*Pattern, error) {
		return nil, &ParseError{Pattern: raw, Err: err}
	}

	if raw == AllURLs {
		p.schemes = valid
		p.matchSubdoms = true
		p.matchAllPaths = true
		return p, nil
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return fail(ErrMissingSchemeSeparator)
	}
	scheme = strings.ToLower(scheme)
	if scheme == "*" {
		p.schemes = SchemeWeb & valid
	} else {
		p.schemes = schemeBits[scheme] & valid
	}
	if p.schemes == 0 {
		return fail(ErrInvalidScheme)
	}

	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return fail(ErrMissingPath)
	}
	hostPort, path := rest[:slash], rest[slash:]

	host, port, err := splitHostPort(hostPort)
	if err != nil {
		return fail(err)
	}
	p.port = port

	switch {
	case host == "*":
		p.matchSubdoms = true
	case strings.HasPrefix(host, "*."):
		p.matchSubdoms = true
		p.host = host[2:]
	default:
		p.host = host
	}
	if strings.Contains(p.host, "*") {
		return fail(ErrInvalidHostWildcard)
	}
	if p.host == "" && !p.matchSubdoms {
		return fail(ErrEmptyHost)
	}
	p.host = strings.TrimSuffix(strings.ToLower(p.host), ".")

	p.path = path
	if path == "/*" {
		p.matchAllPaths = true
		return p, nil
	}
	pieces := strings.Split(path, "*")
	for i := range pieces {
		pieces[i] = glob.QuoteMeta(pieces[i])
	}
	g, err := glob.Compile(strings.Join(pieces, "*"))
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidPath, err))
	}
	p.pathGlob = g
	return p, nil
}

func splitHostPort(hostPort string) (string, string, error) {
	// IPv6 literals keep their colons inside brackets.
	if strings.HasPrefix(hostPort, "[") {
		end := strings.IndexByte(hostPort, ']')
		if end < 0 {
			return "", "", ErrEmptyHost
		}
		host, rest := hostPort[1:end], hostPort[end+1:]
		if rest == "" {
			return host, "*", nil
		}
		if !strings.HasPrefix(rest, ":") {
			return "", "", ErrInvalidPort
		}
		port, err := validPort(rest[1:])
		return host, port, err
	}
	host, port, ok := strings.Cut(hostPort, ":")
	if !ok {
		return host, "*", nil
	}
	port, err := validPort(port)
	return host, port, err
}

func validPort(port string) (string, error) {
	if port == "*" {
		return port, nil
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return "", ErrInvalidPort
	}
	return strconv.Itoa(n), nil
}

// String returns the pattern text the pattern was parsed from.
func (p *Pattern) String() string { return p.raw }

// MatchesURL reports whether u falls under the pattern.
func (p *Pattern) MatchesURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	bit, ok := schemeBits[strings.ToLower(u.Scheme)]
	if !ok || p.schemes&bit == 0 {
		return false
	}
	if !p.matchesHost(u.Hostname()) {
		return false
	}
	if !p.matchesPort(u) {
		return false
	}
	if p.matchAllPaths {
		return true
	}
	return p.pathGlob.Match(pathForRequest(u))
}

func (p *Pattern) matchesHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	if p.host == "" {
		return p.matchSubdoms
	}
	if host == p.host {
		return true
	}
	return p.matchSubdoms && strings.HasSuffix(host, "."+p.host)
}

func (p *Pattern) matchesPort(u *url.URL) bool {
	if p.port == "*" {
		return true
	}
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "http", "ws":
			port = "80"
		case "https", "wss":
			port = "443"
		}
	}
	return port == p.port
}

// pathForRequest is the escaped path plus the query, if any.
func pathForRequest(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" || u.ForceQuery {
		path += "?" + u.RawQuery
	}
	return path
}
