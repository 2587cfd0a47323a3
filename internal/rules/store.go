package rules

import (
	"sync"
	"time"
)

import (
	"go.uber.org/zap"
)

import (
	"github.com/nanjiek/pixiu-debounce/internal/debounce"
	"github.com/nanjiek/pixiu-debounce/internal/rcu"
)

// RuleSet is an immutable, published rule list.
type RuleSet struct {
	Rules    []*debounce.Rule
	Version  string
	LoadedAt time.Time
	// Err is the parse error of the payload that produced this set, if any.
	Err error
}

// Observer is called after every publish, including publishes of an empty set,
// in publish order. Observers must not publish to the store themselves.
type Observer func(*RuleSet)

// Store owns the active debounce rule list. Readers take an RCU snapshot and
// never block; writers are serialized.
type Store struct {
	format string
	log    *zap.Logger
	snap   *rcu.Snapshot[RuleSet]

	publishMu sync.Mutex // orders snapshot swaps and their notifications
	mu        sync.Mutex // guards observers
	observers map[int]Observer
	nextID    int

	ready     chan struct{}
	readyOnce sync.Once
}

func NewStore(format string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		format:    format,
		log:       log,
		snap:      rcu.NewSnapshot(&RuleSet{}),
		observers: make(map[int]Observer),
		ready:     make(chan struct{}),
	}
}

// Rules implements debounce.RuleProvider.
func (s *Store) Rules() []*debounce.Rule {
	return s.snap.Load().Rules
}

// Snapshot returns the current published set.
func (s *Store) Snapshot() *RuleSet {
	return s.snap.Load()
}

// Ready is closed once the first rule list has been published.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// OnDataReady parses a raw configuration payload and publishes the result.
// An empty or undecodable payload publishes an empty list; observers are
// notified either way.
func (s *Store) OnDataReady(contents []byte, version, format string) error {
	if format == "" {
		format = s.format
	}
	rules, err := debounce.ParseRules(contents, format, s.log)
	if err != nil {
		s.log.Error("could not load debounce configuration",
			zap.String("version", version), zap.Error(err))
		rules = nil
	}
	s.publish(&RuleSet{
		Rules:    rules,
		Version:  version,
		LoadedAt: time.Now(),
		Err:      err,
	})
	return err
}

// ReplaceAll publishes an already built rule list.
func (s *Store) ReplaceAll(rules []*debounce.Rule, version string) {
	s.publish(&RuleSet{
		Rules:    rules,
		Version:  version,
		LoadedAt: time.Now(),
	})
}

// Clear publishes an empty list recording why the rules were dropped.
func (s *Store) Clear(reason error) {
	s.publish(&RuleSet{
		LoadedAt: time.Now(),
		Err:      reason,
	})
}

// Bootstrap publishes rules declared inline in the service config.
func (s *Store) Bootstrap(specs []debounce.RuleSpec) {
	rules := make([]*debounce.Rule, 0, len(specs))
	for i, spec := range specs {
		rule, err := debounce.NewRule(spec)
		if err != nil {
			s.log.Error("invalid bootstrap rule", zap.Int("index", i), zap.Error(err))
		}
		rules = append(rules, rule)
	}
	s.ReplaceAll(rules, "bootstrap")
}

// AddObserver registers fn and returns a function that removes it.
func (s *Store) AddObserver(fn Observer) (remove func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Store) publish(set *RuleSet) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.snap.Replace(set)
	s.readyOnce.Do(func() { close(s.ready) })
	s.log.Info("reloaded debounce rules",
		zap.Int("count", len(set.Rules)), zap.String("version", set.Version))

	s.mu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(set)
	}
}
