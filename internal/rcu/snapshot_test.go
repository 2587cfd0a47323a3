package rcu

import (
	"sync"
	"testing"
)

type ruleList struct {
	Version string
	Params  []string
}

func TestReplaceIsVisibleToLoad(t *testing.T) {
	snap := NewSnapshot(&ruleList{Version: "v1", Params: []string{"fbclid"}})

	if got := snap.Load(); got.Version != "v1" || len(got.Params) != 1 {
		t.Fatalf("unexpected initial snapshot: %#v", got)
	}

	snap.Replace(&ruleList{Version: "v2", Params: []string{"fbclid", "gclid"}})

	got := snap.Load()
	if got.Version != "v2" || len(got.Params) != 2 {
		t.Fatalf("unexpected snapshot after replace: %#v", got)
	}
}

// Every reader must observe a list whose length matches its version tag.
func TestReadersNeverSeePartialList(t *testing.T) {
	snap := NewSnapshot(&ruleList{Version: "0"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				cur := snap.Load()
				if cur.Version != string(rune('0'+len(cur.Params))) {
					t.Errorf("inconsistent snapshot: %#v", cur)
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for n := 0; n < 10; n++ {
			params := make([]string, n)
			for k := range params {
				params[k] = "p"
			}
			snap.Replace(&ruleList{Version: string(rune('0' + n)), Params: params})
		}
	}()

	wg.Wait()
}

func BenchmarkLoad(b *testing.B) {
	snap := NewSnapshot(&ruleList{Version: "bench", Params: []string{"fbclid"}})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = snap.Load()
		}
	})
}

type rwSnapshot struct {
	mu   sync.RWMutex
	data *ruleList
}

func (s *rwSnapshot) Load() *ruleList {
	s.mu.RLock()
	data := s.data
	s.mu.RUnlock()
	return data
}

func BenchmarkRWMutexLoad(b *testing.B) {
	snap := &rwSnapshot{data: &ruleList{Version: "bench"}}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = snap.Load()
		}
	})
}
