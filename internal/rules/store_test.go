package rules

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
)

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

import (
	"github.com/nanjiek/pixiu-debounce/internal/debounce"
	"github.com/nanjiek/pixiu-debounce/internal/site"
)

const twoRules = `[
  {"include": ["*://*.tracker.com/*"], "action": "redirect", "param": "url"},
  {"include": ["*://*.shop.com/*"], "action": "remove", "param": "ref"}
]`

func TestStoreStartsEmptyAndNotReady(t *testing.T) {
	s := NewStore("", nil)
	assert.Empty(t, s.Rules())
	select {
	case <-s.Ready():
		t.Fatal("store should not be ready before the first publish")
	default:
	}
}

func TestStoreOnDataReady(t *testing.T) {
	s := NewStore("json", nil)
	require.NoError(t, s.OnDataReady([]byte(twoRules), "v1", ""))

	<-s.Ready()
	snap := s.Snapshot()
	assert.Len(t, snap.Rules, 2)
	assert.Equal(t, "v1", snap.Version)
	assert.NoError(t, snap.Err)
	assert.Equal(t, debounce.RedirectToParam, snap.Rules[0].Action())
	assert.Equal(t, debounce.RemoveParam, snap.Rules[1].Action())
}

func TestStoreBadPayloadPublishesEmptyList(t *testing.T) {
	s := NewStore("", nil)
	require.NoError(t, s.OnDataReady([]byte(twoRules), "v1", ""))

	var seen []*RuleSet
	s.AddObserver(func(set *RuleSet) { seen = append(seen, set) })

	err := s.OnDataReady([]byte("{not json"), "v2", "json")
	assert.Error(t, err)
	assert.Empty(t, s.Rules())
	assert.Equal(t, "v2", s.Snapshot().Version)

	err = s.OnDataReady(nil, "v3", "")
	assert.ErrorIs(t, err, debounce.ErrEmptyPayload)

	require.Len(t, seen, 2)
	assert.Error(t, seen[0].Err)
	assert.Empty(t, seen[1].Rules)
}

func TestStoreObserverRemove(t *testing.T) {
	s := NewStore("", nil)
	calls := 0
	remove := s.AddObserver(func(*RuleSet) { calls++ })

	s.ReplaceAll(nil, "a")
	remove()
	s.ReplaceAll(nil, "b")
	assert.Equal(t, 1, calls)
}

func TestStoreClear(t *testing.T) {
	s := NewStore("", nil)
	require.NoError(t, s.OnDataReady([]byte(twoRules), "v1", ""))

	reason := errors.New("file gone")
	s.Clear(reason)
	assert.Empty(t, s.Rules())
	assert.ErrorIs(t, s.Snapshot().Err, reason)
	assert.Empty(t, s.Snapshot().Version)
}

func TestStoreObserversSeePublishOrder(t *testing.T) {
	s := NewStore("", nil)

	var (
		mu   sync.Mutex
		seen []string
	)
	s.AddObserver(func(set *RuleSet) {
		mu.Lock()
		seen = append(seen, set.Version)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				s.ReplaceAll(nil, fmt.Sprintf("w%d-%d", i, j))
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 400)
	assert.Equal(t, s.Snapshot().Version, seen[len(seen)-1])
}

func TestStoreBootstrap(t *testing.T) {
	s := NewStore("", nil)
	s.Bootstrap([]debounce.RuleSpec{
		{Include: []string{"*://*.tracker.com/*"}, Action: "redirect", Param: "url"},
		{Include: []string{"not a pattern"}, Action: "redirect", Param: "url"},
	})

	rules := s.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "bootstrap", s.Snapshot().Version)

	svc := debounce.NewService(s, nil)
	in, _ := url.Parse("https://go.tracker.com/?url=https%3A%2F%2Fnews.example.org%2Fstory")
	got, changed := svc.Debounce(in, site.SiteForCookies{})
	assert.True(t, changed)
	assert.Equal(t, "https://news.example.org/story", got.String())
}

func TestStoreConcurrentReadWrite(t *testing.T) {
	s := NewStore("", nil)
	require.NoError(t, s.OnDataReady([]byte(twoRules), "v1", ""))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				n := len(s.Rules())
				if n != 0 && n != 2 {
					t.Errorf("torn rule list of length %d", n)
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if (i+j)%2 == 0 {
					s.ReplaceAll(nil, "empty")
				} else {
					_ = s.OnDataReady([]byte(twoRules), "v1", "")
				}
			}
		}(i)
	}
	wg.Wait()
}

func BenchmarkStoreRules(b *testing.B) {
	s := NewStore("", nil)
	_ = s.OnDataReady([]byte(twoRules), "v1", "")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = s.Rules()
		}
	})
}
