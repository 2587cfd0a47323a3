package interceptor

import (
	"net/url"
)

import (
	"go.uber.org/zap"
)

import (
	"github.com/nanjiek/pixiu-debounce/internal/metrics"
	"github.com/nanjiek/pixiu-debounce/internal/shields"
	"github.com/nanjiek/pixiu-debounce/internal/site"
)

// Debouncer rewrites a navigation URL. *debounce.Service implements it.
type Debouncer interface {
	Debounce(u *url.URL, siteForCookies site.SiteForCookies) (*url.URL, bool)
}

// Delegate owns the request lifecycle.
type Delegate interface {
	RestartWithFlags(additionalLoadFlags int)
}

// Deps are shared by every throttle.
type Deps struct {
	Debouncer Debouncer
	Gate      shields.Gate
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Throttle debounces one request before it starts.
type Throttle struct {
	deps     Deps
	delegate Delegate
}

// MaybeNewThrottle returns nil when debouncing is disabled. Callers must
// nil-check the result.
func MaybeNewThrottle(enabled bool, deps Deps) *Throttle {
	if !enabled {
		return nil
	}
	if deps.Gate == nil {
		deps.Gate = shields.AllowAll{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Throttle{deps: deps}
}

func (t *Throttle) SetDelegate(d Delegate) {
	t.delegate = d
}

// WillStartRequest rewrites req in place and restarts it when a rule
// applies. It reports whether the request was restarted.
func (t *Throttle) WillStartRequest(req *Request) bool {
	if !t.deps.Gate.ShouldDoDebouncing(req.URL) {
		t.deps.Metrics.ObserveDebounce(metrics.ResultSkipped)
		return false
	}

	debounced, ok := t.deps.Debouncer.Debounce(req.URL, req.SiteForCookies)
	if !ok {
		t.deps.Metrics.ObserveDebounce(metrics.ResultUnchanged)
		return false
	}

	t.deps.Logger.Debug("debounced navigation",
		zap.String("from", req.URL.String()), zap.String("to", debounced.String()))
	req.URL = debounced

	// A different first party must not inherit the old cookie partition.
	if !req.SiteForCookies.IsEquivalent(site.FromURL(debounced)) {
		req.rekey()
	}
	t.deps.Metrics.ObserveDebounce(metrics.ResultRedirected)
	if t.delegate != nil {
		t.delegate.RestartWithFlags(0)
	}
	return true
}

// Factory creates throttles that share one set of dependencies.
type Factory struct {
	enabled bool
	deps    Deps
}

func NewFactory(enabled bool, deps Deps) *Factory {
	return &Factory{enabled: enabled, deps: deps}
}

// MaybeCreate is MaybeNewThrottle with the factory's dependencies.
func (f *Factory) MaybeCreate() *Throttle {
	return MaybeNewThrottle(f.enabled, f.deps)
}
