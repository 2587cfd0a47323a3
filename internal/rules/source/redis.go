package source

import (
	"context"
	"errors"
)

// PayloadStore is the subset of the Redis repository used by RedisSource.
type PayloadStore interface {
	GetRules(ctx context.Context) ([]byte, error)
	Subscribe(ctx context.Context) <-chan string
}

// ErrNoRules is returned when the store holds no payload yet.
var ErrNoRules = errors.New("no debounce rules stored")

// RedisSource reads the payload stored under the rules key and reloads on
// every message published to the updates channel.
type RedisSource struct {
	store  PayloadStore
	format string
	// isMissing reports whether err means the key does not exist.
	isMissing func(error) bool
}

func NewRedisSource(store PayloadStore, format string, isMissing func(error) bool) *RedisSource {
	if isMissing == nil {
		isMissing = func(error) bool { return false }
	}
	return &RedisSource{store: store, format: format, isMissing: isMissing}
}

func (s *RedisSource) Fetch(ctx context.Context) (RulesPayload, error) {
	raw, err := s.store.GetRules(ctx)
	if err != nil {
		if s.isMissing(err) {
			return RulesPayload{}, ErrNoRules
		}
		return RulesPayload{}, err
	}
	return RulesPayload{
		Raw:     raw,
		Version: versionOf(raw),
		Format:  s.format,
	}, nil
}

func (s *RedisSource) Watch(ctx context.Context) <-chan struct{} {
	msgs := s.store.Subscribe(ctx)
	out := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
