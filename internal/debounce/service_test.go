package debounce

import (
	"net/url"
	"testing"
)

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

import (
	"github.com/nanjiek/pixiu-debounce/internal/site"
)

func debounceString(t *testing.T, svc *Service, raw string) (string, bool) {
	t.Helper()
	in := mustURL(t, raw)
	out, changed := svc.Debounce(in, site.FromURL(in))
	return out.String(), changed
}

var (
	removeFbclid = RuleSpec{Include: []string{"*://*/*"}, Action: "remove", Param: "fbclid"}
	redirB       = RuleSpec{Include: []string{"https://redir.b.com/*"}, Action: "redirect", Param: "url"}
)

func TestDebounceExamples(t *testing.T) {
	svc := NewService(StaticRules{mustRule(t, removeFbclid)}, nil)

	got, changed := debounceString(t, svc, "https://a.com/?fbclid=1&key=value")
	assert.True(t, changed)
	assert.Equal(t, "https://a.com/?key=value", got)

	got, changed = debounceString(t, svc, "https://a.com/?key=value")
	assert.False(t, changed)
	assert.Equal(t, "https://a.com/?key=value", got)

	svc = NewService(StaticRules{mustRule(t, redirB)}, nil)
	got, changed = debounceString(t, svc, "https://redir.b.com/x?url=https%3A%2F%2Fa.com%2F")
	assert.True(t, changed)
	assert.Equal(t, "https://a.com/", got)

	in := mustURL(t, "https://redir.b.com/x?url=https%3A%2F%2Fa.com%2F")
	out, changed := svc.Debounce(in, site.FromURL(mustURL(t, "https://sub.a.com/")))
	assert.False(t, changed)
	assert.Same(t, in, out)
}

func TestDebounceNoRules(t *testing.T) {
	svc := NewService(StaticRules(nil), nil)
	in := mustURL(t, "https://a.com/?fbclid=1")
	out, changed := svc.Debounce(in, site.FromURL(in))
	assert.False(t, changed)
	assert.Same(t, in, out)

	out, changed = NewService(nil, nil).Debounce(in, site.FromURL(in))
	assert.False(t, changed)
	assert.Same(t, in, out)
}

func TestDebounceOrderMatters(t *testing.T) {
	raw := "https://redir.b.com/?url=" + url.QueryEscape("https://a.com/?fbclid=1")

	forward := NewService(StaticRules{mustRule(t, redirB), mustRule(t, removeFbclid)}, nil)
	got, changed := debounceString(t, forward, raw)
	assert.True(t, changed)
	assert.Equal(t, "https://a.com/", got)

	// The remove rule runs first and never sees the redirect target.
	backward := NewService(StaticRules{mustRule(t, removeFbclid), mustRule(t, redirB)}, nil)
	got, changed = debounceString(t, backward, raw)
	assert.True(t, changed)
	assert.Equal(t, "https://a.com/?fbclid=1", got)
}

func TestDebounceIsSinglePass(t *testing.T) {
	// The second rule rewrites into a URL only the first rule could handle.
	first := mustRule(t, RuleSpec{Include: []string{"https://one.example/*"}, Action: "redirect", Param: "to"})
	second := mustRule(t, RuleSpec{Include: []string{"https://two.example/*"}, Action: "redirect", Param: "to"})
	svc := NewService(StaticRules{first, second}, nil)

	raw := "https://two.example/?to=" + url.QueryEscape("https://one.example/?to=https%3A%2F%2Fthree.example%2F")
	got, changed := debounceString(t, svc, raw)
	assert.True(t, changed)
	assert.Equal(t, "https://one.example/?to=https%3A%2F%2Fthree.example%2F", got)
}

func TestDebounceRecomputesSiteForCookies(t *testing.T) {
	hop := mustRule(t, RuleSpec{Include: []string{"https://redir.b.com/*"}, Action: "redirect", Param: "url"})
	back := mustRule(t, RuleSpec{Include: []string{"https://c.com/hop*"}, Action: "redirect", Param: "next"})
	svc := NewService(StaticRules{hop, back}, nil)

	// The second redirect lands on b.com. It is only allowed because the
	// first party moved to c.com after the first rewrite.
	inner := "https://c.com/hop?next=" + url.QueryEscape("https://www.b.com/landing")
	raw := "https://redir.b.com/?url=" + url.QueryEscape(inner)

	got, changed := debounceString(t, svc, raw)
	assert.True(t, changed)
	assert.Equal(t, "https://www.b.com/landing", got)
}

func TestRedirectNeverReturnsSameSite(t *testing.T) {
	svc := NewService(StaticRules{
		mustRule(t, RuleSpec{Include: []string{"*://*/*"}, Action: "redirect", Param: "url"}),
	}, nil)

	for _, raw := range []string{
		"https://a.com/?url=https%3A%2F%2Fa.com%2Fx",
		"https://www.a.com/?url=https%3A%2F%2Fcdn.a.com%2F",
		"https://a.com/?url=https%3A%2F%2Fb.com%2F",
		"http://a.com/?url=https%3A%2F%2Fa.com%2F",
	} {
		in := mustURL(t, raw)
		sfc := site.FromURL(in)
		out, changed := svc.Debounce(in, sfc)
		if changed {
			assert.False(t, sfc.IsEquivalent(site.FromURL(out)), raw)
		}
	}
}

func TestExplain(t *testing.T) {
	svc := NewService(StaticRules{
		mustRule(t, redirB),
		mustRule(t, removeFbclid),
		mustRule(t, RuleSpec{Include: []string{"*://*/*"}, Action: "archive"}),
	}, nil)

	in := mustURL(t, "https://a.com/?fbclid=1")
	out, changed, steps := svc.Explain(in, site.FromURL(in))
	require.True(t, changed)
	assert.Equal(t, "https://a.com/", out.String())
	require.Len(t, steps, 3)
	assert.Equal(t, OutcomeNotMatched, steps[0].Outcome)
	assert.Equal(t, OutcomeApplied, steps[1].Outcome)
	assert.Equal(t, "https://a.com/", steps[1].URL)
	assert.Equal(t, OutcomeSkipped, steps[2].Outcome)
}
