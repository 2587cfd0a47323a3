package rules

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

import (
	"go.uber.org/zap"
)

import (
	"github.com/nanjiek/pixiu-debounce/internal/config"
	"github.com/nanjiek/pixiu-debounce/internal/rules/source"
)

// PollerConfig controls the pull loop behavior.
type PollerConfig struct {
	Interval   time.Duration
	FailPolicy string // fail-open | fail-closed
	// OnFetchError, if set, is called for every failed fetch.
	OnFetchError func(error)
}

// Poller pulls the rule payload from a source on a timer and whenever the
// source signals a change, and hands new versions to the Store.
type Poller struct {
	source     source.RuleSource
	store      *Store
	interval   time.Duration
	failPolicy string
	onFetchErr func(error)
	log        *zap.Logger

	mu      sync.Mutex
	lastVer string
}

func NewPoller(src source.RuleSource, store *Store, cfg PollerConfig, log *zap.Logger) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		source:     src,
		store:      store,
		interval:   interval,
		failPolicy: strings.ToLower(strings.TrimSpace(cfg.FailPolicy)),
		onFetchErr: cfg.OnFetchError,
		log:        log,
	}
}

// SyncOnce pulls once. It reports whether a new version was published.
// Fetch errors keep the current rules under fail-open, except for an
// unreadable local payload, which always clears them.
// A payload that fetched but failed to parse is published as an empty list
// and its parse error returned.
func (p *Poller) SyncOnce(ctx context.Context) (bool, error) {
	return p.pull(ctx)
}

// Start runs the polling loop until ctx is done.
func (p *Poller) Start(ctx context.Context) {
	if _, err := p.pull(ctx); err != nil {
		p.log.Warn("rule pull failed on startup", zap.Error(err))
	}

	var events <-chan struct{}
	if w, ok := p.source.(source.Watcher); ok {
		events = w.Watch(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
		}
		if _, err := p.pull(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Warn("rule pull failed", zap.Error(err))
		}
	}
}

func (p *Poller) pull(ctx context.Context) (bool, error) {
	payload, err := p.source.Fetch(ctx)
	if err != nil {
		p.handleFailure(err)
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if payload.Version != "" && payload.Version == p.lastVer {
		return false, nil
	}
	p.lastVer = payload.Version
	return true, p.store.OnDataReady(payload.Raw, payload.Version, payload.Format)
}

func (p *Poller) handleFailure(err error) {
	if p.onFetchErr != nil {
		p.onFetchErr(err)
	}
	if p.failPolicy != config.FailClosed && !errors.Is(err, source.ErrUnreadable) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastVer = ""
	p.store.Clear(err)
}
