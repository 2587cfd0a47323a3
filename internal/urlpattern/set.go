package urlpattern

import (
	"net/url"
)

// Set is an OR-combination of patterns. The zero value is an empty set that
// matches nothing.
type Set struct {
	patterns []*Pattern
}

// Populate replaces the contents of s with raw. The set is left empty if any
// pattern fails to parse.
func (s *Set) Populate(raw []string, valid Scheme) error {
	parsed := make([]*Pattern, 0, len(raw))
	for _, r := range raw {
		p, err := Parse(r, valid)
		if err != nil {
			s.Clear()
			return err
		}
		parsed = append(parsed, p)
	}
	s.patterns = parsed
	return nil
}

// Clear removes every pattern.
func (s *Set) Clear() {
	s.patterns = nil
}

// MatchesURL reports whether any pattern in s matches u.
func (s Set) MatchesURL(u *url.URL) bool {
	for _, p := range s.patterns {
		if p.MatchesURL(u) {
			return true
		}
	}
	return false
}

// Strings returns the source text of every pattern, in insertion order.
func (s Set) Strings() []string {
	out := make([]string, len(s.patterns))
	for i, p := range s.patterns {
		out[i] = p.raw
	}
	return out
}
