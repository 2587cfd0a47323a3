// Package debounce rewrites navigation URLs to strip tracking parameters or
// skip tracking redirectors, driven by an ordered list of rules.
package debounce

import (
	"fmt"
	"net/url"
)

import (
	"github.com/nanjiek/pixiu-debounce/internal/site"
	"github.com/nanjiek/pixiu-debounce/internal/urlpattern"
)

// Debouncing only ever touches web URLs, whatever the rules say.
const validSchemes = urlpattern.SchemeWeb

// RuleSpec is the wire form of a rule in the configuration payload.
type RuleSpec struct {
	Include []string `json:"include" yaml:"include"`
	Exclude []string `json:"exclude" yaml:"exclude"`
	Action  string   `json:"action"  yaml:"action"`
	Param   string   `json:"param"   yaml:"param"`
}

// Rule is a parsed, immutable debounce rule.
type Rule struct {
	include urlpattern.Set
	exclude urlpattern.Set
	action  Action
	param   string
}

// NewRule parses spec. A rule is always returned; when a pattern is invalid
// it is inert (no patterns, NoAction) and the parse error is returned
// alongside it so the caller can log it and keep loading other rules.
func NewRule(spec RuleSpec) (*Rule, error) {
	r := &Rule{}
	err := r.Parse(spec.Include, spec.Exclude, spec.Action, spec.Param)
	return r, err
}

// Parse resets r from its configuration fields.
func (r *Rule) Parse(include, exclude []string, action, param string) error {
	r.clear()
	if err := r.include.Populate(include, validSchemes); err != nil {
		r.clear()
		return fmt.Errorf("include: %w", err)
	}
	if err := r.exclude.Populate(exclude, validSchemes); err != nil {
		r.clear()
		return fmt.Errorf("exclude: %w", err)
	}
	r.action = ParseAction(action)
	r.param = param
	return nil
}

func (r *Rule) clear() {
	r.include.Clear()
	r.exclude.Clear()
	r.action = NoAction
	r.param = ""
}

func (r *Rule) Action() Action { return r.action }

func (r *Rule) Param() string { return r.param }

// Spec returns the rule in wire form. Inert rules report no patterns.
func (r *Rule) Spec() RuleSpec {
	return RuleSpec{
		Include: r.include.Strings(),
		Exclude: r.exclude.Strings(),
		Action:  r.action.String(),
		Param:   r.param,
	}
}

// Apply rewrites originalURL if the rule applies to it. The boolean is false
// whenever the URL is excluded, not included, or the action has nothing to
// do; originalURL is never modified.
func (r *Rule) Apply(originalURL *url.URL, originalSiteForCookies site.SiteForCookies) (*url.URL, bool) {
	final, outcome := r.Evaluate(originalURL, originalSiteForCookies)
	return final, outcome == OutcomeApplied
}

// Evaluate is Apply with the reason for a negative answer.
func (r *Rule) Evaluate(originalURL *url.URL, originalSiteForCookies site.SiteForCookies) (*url.URL, Outcome) {
	if originalURL == nil {
		return nil, OutcomeNotMatched
	}
	if r.exclude.MatchesURL(originalURL) {
		return nil, OutcomeExcluded
	}
	if !r.include.MatchesURL(originalURL) {
		return nil, OutcomeNotMatched
	}

	switch {
	case r.action == RemoveParam:
		final, ok := removeQueryParameter(originalURL, r.param)
		if !ok {
			return nil, OutcomeSkipped
		}
		return final, OutcomeApplied

	case r.action.isRedirect():
		value, ok := valueForKeyInQuery(originalURL, r.param)
		if !ok {
			return nil, OutcomeSkipped
		}
		if r.action == Base64DecodeAndRedirectToParam {
			if value, ok = decodeBase64(value); !ok {
				return nil, OutcomeSkipped
			}
		}
		target, ok := parseTarget(value)
		if !ok {
			return nil, OutcomeSkipped
		}
		// Never redirect within the same site.
		if originalSiteForCookies.IsEquivalent(site.FromURL(target)) {
			return nil, OutcomeSkipped
		}
		return target, OutcomeApplied
	}

	// Unknown actions never apply.
	return nil, OutcomeSkipped
}
