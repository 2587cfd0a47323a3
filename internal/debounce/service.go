package debounce

import (
	"net/url"
)

import (
	"go.uber.org/zap"
)

import (
	"github.com/nanjiek/pixiu-debounce/internal/site"
)

// RuleProvider hands out the current ordered rule list. The returned slice
// must not be modified by the caller or the provider.
type RuleProvider interface {
	Rules() []*Rule
}

// Step records what one rule did during a Debounce call.
type Step struct {
	Index   int
	Outcome Outcome
	URL     string // URL after the step; empty unless Outcome is applied
}

// Service applies the provider's rules to navigation URLs.
type Service struct {
	rules RuleProvider
	log   *zap.Logger
}

func NewService(rules RuleProvider, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{rules: rules, log: log}
}

// Debounce runs every rule once, in list order, over a running URL that
// starts at originalURL. When a rule rewrites the URL, later rules see the
// rewritten URL and the site for cookies is recomputed from its origin;
// earlier rules are not revisited. It reports whether the final URL differs
// from originalURL.
func (s *Service) Debounce(originalURL *url.URL, originalSiteForCookies site.SiteForCookies) (*url.URL, bool) {
	final, changed, _ := s.run(originalURL, originalSiteForCookies, false)
	return final, changed
}

// Explain is Debounce plus the per-rule outcomes.
func (s *Service) Explain(originalURL *url.URL, originalSiteForCookies site.SiteForCookies) (*url.URL, bool, []Step) {
	return s.run(originalURL, originalSiteForCookies, true)
}

func (s *Service) run(originalURL *url.URL, originalSiteForCookies site.SiteForCookies, trace bool) (*url.URL, bool, []Step) {
	if originalURL == nil || s.rules == nil {
		return originalURL, false, nil
	}

	var (
		changed = false
		current = originalURL
		sfc     = originalSiteForCookies
		steps   []Step
	)
	for i, rule := range s.rules.Rules() {
		next, outcome := rule.Evaluate(current, sfc)
		if outcome == OutcomeApplied && next.String() != current.String() {
			changed = true
			current = next
			sfc = site.FromOrigin(site.OriginFromURL(current))
		}
		if trace {
			step := Step{Index: i, Outcome: outcome}
			if outcome == OutcomeApplied {
				step.URL = next.String()
			}
			steps = append(steps, step)
		}
	}
	if changed {
		s.log.Debug("debounced", zap.String("from", originalURL.String()), zap.String("to", current.String()))
	}
	return current, changed, steps
}

// StaticRules is a fixed RuleProvider.
type StaticRules []*Rule

func (r StaticRules) Rules() []*Rule { return r }
