package shields

import (
	"fmt"
	"net/url"
)

import (
	"github.com/nanjiek/pixiu-debounce/internal/urlpattern"
)

// Gate decides whether debouncing may run for a navigation to u.
type Gate interface {
	ShouldDoDebouncing(u *url.URL) bool
}

// Settings is a static Gate: a global switch plus the sites that have
// shields turned down.
type Settings struct {
	enabled  bool
	disabled urlpattern.Set
}

// NewSettings compiles the shields-down site patterns. Patterns use the
// same syntax as rule include lists.
func NewSettings(enabled bool, disabledSites []string) (*Settings, error) {
	s := &Settings{enabled: enabled}
	if err := s.disabled.Populate(disabledSites, urlpattern.SchemeAll); err != nil {
		return nil, fmt.Errorf("shields.disabledSites: %w", err)
	}
	return s, nil
}

// ShouldDoDebouncing is false when debouncing is globally off or u belongs
// to a site with shields down.
func (s *Settings) ShouldDoDebouncing(u *url.URL) bool {
	if s == nil {
		return true
	}
	if !s.enabled || u == nil {
		return false
	}
	return !s.disabled.MatchesURL(u)
}

// AllowAll is a Gate that never blocks debouncing.
type AllowAll struct{}

func (AllowAll) ShouldDoDebouncing(*url.URL) bool { return true }
