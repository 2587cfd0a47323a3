package source

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
)

// ErrUnreadable marks a local payload that could not be read. A local file
// that is missing or unreadable counts as an empty configuration, so the
// poller clears the rules whatever its fail policy.
var ErrUnreadable = errors.New("rule payload unreadable")

// RulesPayload is a raw debounce configuration fetched from an external source.
// Parsing is left to the rule store so every source shares one decoder.
type RulesPayload struct {
	Raw     []byte
	Version string
	Format  string // json | yaml | "" to auto-detect
}

// RuleSource fetches the rule payload from an external system (file, Nacos, Redis).
type RuleSource interface {
	Fetch(ctx context.Context) (RulesPayload, error)
}

// Watcher is implemented by sources that can push change notifications.
// The channel is closed when ctx is done.
type Watcher interface {
	Watch(ctx context.Context) <-chan struct{}
}

func versionOf(raw []byte) string {
	sum := md5.Sum(raw)
	return fmt.Sprintf("%x", sum[:])
}
