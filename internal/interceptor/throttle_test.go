package interceptor

import (
	"net/url"
	"testing"
)

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

import (
	"github.com/nanjiek/pixiu-debounce/internal/debounce"
	"github.com/nanjiek/pixiu-debounce/internal/metrics"
	"github.com/nanjiek/pixiu-debounce/internal/shields"
)

type recordingDelegate struct {
	restarts int
	flags    []int
}

func (d *recordingDelegate) RestartWithFlags(flags int) {
	d.restarts++
	d.flags = append(d.flags, flags)
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func newService(t *testing.T) *debounce.Service {
	t.Helper()
	specs := []debounce.RuleSpec{
		{Include: []string{"*://*.tracker.com/*"}, Action: "redirect", Param: "url"},
		{Include: []string{"*://*.landing.com/*"}, Action: "remove", Param: "fbclid"},
	}
	rules := make(debounce.StaticRules, 0, len(specs))
	for _, spec := range specs {
		r, err := debounce.NewRule(spec)
		require.NoError(t, err)
		rules = append(rules, r)
	}
	return debounce.NewService(rules, nil)
}

func newThrottle(t *testing.T, gate shields.Gate) (*Throttle, *recordingDelegate, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	th := MaybeNewThrottle(true, Deps{Debouncer: newService(t), Gate: gate, Metrics: m})
	require.NotNil(t, th)
	d := &recordingDelegate{}
	th.SetDelegate(d)
	return th, d, m
}

func TestMaybeNewThrottleDisabled(t *testing.T) {
	assert.Nil(t, MaybeNewThrottle(false, Deps{}))
	assert.Nil(t, NewFactory(false, Deps{}).MaybeCreate())
	assert.NotNil(t, NewFactory(true, Deps{Debouncer: newService(t)}).MaybeCreate())
}

func TestWillStartRequestCrossSiteResetsIsolation(t *testing.T) {
	th, d, m := newThrottle(t, nil)
	req := NewNavigation(mustURL(t, "https://click.tracker.com/out?url=https%3A%2F%2Fwww.landing.com%2Fstory"))
	oldSFC := req.SiteForCookies

	require.True(t, th.WillStartRequest(req))
	assert.Equal(t, "https://www.landing.com/story", req.URL.String())
	assert.Equal(t, 1, d.restarts)
	assert.Equal(t, []int{0}, d.flags)

	require.NotNil(t, req.RequestInitiator)
	assert.Equal(t, "https://www.landing.com", req.RequestInitiator.String())
	iso := req.TrustedParams.IsolationInfo
	assert.Equal(t, RequestTypeOther, iso.RequestType)
	assert.Equal(t, "https://www.landing.com", iso.TopFrameOrigin.String())
	assert.Equal(t, "https://www.landing.com", iso.FrameOrigin.String())
	assert.Equal(t, "https://landing.com", iso.SiteForCookies.String())

	// The request's own site-for-cookies is left for the restarted navigation.
	assert.True(t, req.SiteForCookies.IsEquivalent(oldSFC))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues(metrics.ResultRedirected)))
}

func TestWillStartRequestSameSiteKeepsIsolation(t *testing.T) {
	th, d, _ := newThrottle(t, nil)
	req := NewNavigation(mustURL(t, "https://www.landing.com/story?fbclid=abc&page=2"))

	require.True(t, th.WillStartRequest(req))
	assert.Equal(t, "https://www.landing.com/story?page=2", req.URL.String())
	assert.Equal(t, 1, d.restarts)
	assert.Equal(t, RequestTypeMainFrame, req.TrustedParams.IsolationInfo.RequestType)
}

func TestWillStartRequestUnchanged(t *testing.T) {
	th, d, m := newThrottle(t, nil)
	req := NewNavigation(mustURL(t, "https://example.org/?url=https%3A%2F%2Fwww.landing.com%2F"))

	assert.False(t, th.WillStartRequest(req))
	assert.Equal(t, "https://example.org/?url=https%3A%2F%2Fwww.landing.com%2F", req.URL.String())
	assert.Zero(t, d.restarts)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues(metrics.ResultUnchanged)))
}

func TestWillStartRequestShieldsDown(t *testing.T) {
	gate, err := shields.NewSettings(true, []string{"*://*.tracker.com/*"})
	require.NoError(t, err)
	th, d, m := newThrottle(t, gate)

	raw := "https://click.tracker.com/out?url=https%3A%2F%2Fwww.landing.com%2F"
	req := NewNavigation(mustURL(t, raw))
	assert.False(t, th.WillStartRequest(req))
	assert.Equal(t, raw, req.URL.String())
	assert.Zero(t, d.restarts)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues(metrics.ResultSkipped)))
}

func TestWillStartRequestWithoutDelegate(t *testing.T) {
	th := MaybeNewThrottle(true, Deps{Debouncer: newService(t)})
	req := NewNavigation(mustURL(t, "https://www.landing.com/?fbclid=1"))
	assert.True(t, th.WillStartRequest(req))
	assert.Equal(t, "https://www.landing.com/", req.URL.String())
}
