package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Layout of an installed rules component.
const (
	ConfigVersion = "1"
	ConfigFile    = "debounce.json"
)

var ErrNotInstalled = fmt.Errorf("%w: debounce component not installed", ErrUnreadable)

// FileSource reads <installDir>/1/debounce.json. The install directory is
// known either up front or once the component updater reports it through
// OnComponentReady.
type FileSource struct {
	mu         sync.RWMutex
	installDir string
	notify     chan struct{}
}

func NewFileSource(installDir string) *FileSource {
	return &FileSource{
		installDir: installDir,
		notify:     make(chan struct{}, 1),
	}
}

// Path returns the rules file location, or "" before the component is ready.
func (s *FileSource) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.installDir == "" {
		return ""
	}
	return filepath.Join(s.installDir, ConfigVersion, ConfigFile)
}

// OnComponentReady records the new install directory and asks watchers to reload.
func (s *FileSource) OnComponentReady(installDir string) {
	s.mu.Lock()
	s.installDir = installDir
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *FileSource) Fetch(ctx context.Context) (RulesPayload, error) {
	if err := ctx.Err(); err != nil {
		return RulesPayload{}, err
	}
	path := s.Path()
	if path == "" {
		return RulesPayload{}, ErrNotInstalled
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return RulesPayload{}, fmt.Errorf("%w: read %s: %w", ErrUnreadable, path, err)
	}
	return RulesPayload{
		Raw:     raw,
		Version: versionOf(raw),
	}, nil
}

func (s *FileSource) Watch(ctx context.Context) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.notify:
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
