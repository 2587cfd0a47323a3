package debounce

import (
	"encoding/base64"
	"net/url"
	"strings"
)

// removeQueryParameter drops every occurrence of name from the query of u.
// The remaining pairs keep their order and their original encoding. It
// reports false, and returns nil, when name does not occur.
func removeQueryParameter(u *url.URL, name string) (*url.URL, bool) {
	escaped := url.QueryEscape(name)
	input := u.RawQuery

	var (
		out   strings.Builder
		found bool
	)
	pairs := strings.Split(input, "&")
	for i, pair := range pairs {
		if pair == "" && i == len(pairs)-1 {
			break
		}
		key, _, _ := strings.Cut(pair, "=")
		if key == escaped {
			found = true
			continue
		}
		if out.Len() > 0 {
			out.WriteByte('&')
		}
		out.WriteString(pair)
	}
	if !found {
		return nil, false
	}

	next := *u
	next.RawQuery = out.String()
	next.ForceQuery = false
	return &next, true
}

// valueForKeyInQuery returns the unescaped value of the first pair whose raw
// key equals key.
func valueForKeyInQuery(u *url.URL, key string) (string, bool) {
	if u.RawQuery == "" {
		return "", false
	}
	for _, pair := range strings.Split(u.RawQuery, "&") {
		k, v, _ := strings.Cut(pair, "=")
		if k != key {
			continue
		}
		if unescaped, err := url.QueryUnescape(v); err == nil {
			return unescaped, true
		}
		// Malformed escapes are kept verbatim.
		return strings.ReplaceAll(v, "+", " "), true
	}
	return "", false
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// decodeBase64 accepts standard and URL-safe alphabets, padded or not.
func decodeBase64(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, enc := range base64Encodings {
		if b, err := enc.DecodeString(s); err == nil {
			return string(b), true
		}
	}
	return "", false
}

// parseTarget turns a redirect parameter into an absolute http(s) URL,
// canonicalizing scheme and host case and the empty path.
func parseTarget(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if u.Opaque != "" || u.Hostname() == "" {
		return nil, false
	}
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" && u.RawPath == "" {
		u.Path = "/"
	}
	return u, true
}
