package breaker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

import (
	sentinel "github.com/alibaba/sentinel-golang/api"
	"github.com/alibaba/sentinel-golang/core/base"
	"github.com/alibaba/sentinel-golang/core/circuitbreaker"
	sentinelcfg "github.com/alibaba/sentinel-golang/core/config"
)

import (
	"github.com/nanjiek/pixiu-debounce/internal/config"
	"github.com/nanjiek/pixiu-debounce/internal/rules/source"
)

// ErrOpen is returned by a wrapped source while its breaker is open.
var ErrOpen = errors.New("breaker: circuit open")

var (
	initOnce sync.Once
	initErr  error
)

// Init starts sentinel once per process and (re)loads one error-count
// circuit breaker rule per resource.
func Init(cfg config.BreakerCfg, resources ...string) error {
	initOnce.Do(func() {
		conf := sentinelcfg.NewDefaultConfig()
		conf.Sentinel.App.Name = "pixiu-debounce"
		conf.Sentinel.Log.Dir = filepath.Join(os.TempDir(), "pixiu-debounce", "sentinel")
		initErr = sentinel.InitWithConfig(conf)
	})
	if initErr != nil {
		return fmt.Errorf("init sentinel: %w", initErr)
	}

	rules := make([]*circuitbreaker.Rule, 0, len(resources))
	for _, res := range resources {
		rules = append(rules, &circuitbreaker.Rule{
			Resource:         res,
			Strategy:         circuitbreaker.ErrorCount,
			RetryTimeoutMs:   cfg.RetryTimeoutMs,
			MinRequestAmount: cfg.MinRequestAmount,
			StatIntervalMs:   cfg.StatIntervalMs,
			Threshold:        cfg.ErrorThreshold,
		})
	}
	if _, err := circuitbreaker.LoadRules(rules); err != nil {
		return fmt.Errorf("load breaker rules: %w", err)
	}
	return nil
}

type breakerSource struct {
	inner    source.RuleSource
	resource string
}

type watchingBreakerSource struct {
	breakerSource
	watcher source.Watcher
}

// WithBreaker guards inner.Fetch with the circuit breaker named resource.
// Change notifications of a watching source pass through untouched.
func WithBreaker(inner source.RuleSource, resource string) source.RuleSource {
	b := breakerSource{inner: inner, resource: resource}
	if w, ok := inner.(source.Watcher); ok {
		return &watchingBreakerSource{breakerSource: b, watcher: w}
	}
	return &b
}

func (b *breakerSource) Fetch(ctx context.Context) (source.RulesPayload, error) {
	entry, blockErr := sentinel.Entry(b.resource, sentinel.WithTrafficType(base.Outbound))
	if blockErr != nil {
		return source.RulesPayload{}, fmt.Errorf("%w: %s", ErrOpen, b.resource)
	}
	defer entry.Exit()

	payload, err := b.inner.Fetch(ctx)
	if err != nil {
		sentinel.TraceError(entry, err)
	}
	return payload, err
}

func (w *watchingBreakerSource) Watch(ctx context.Context) <-chan struct{} {
	return w.watcher.Watch(ctx)
}
