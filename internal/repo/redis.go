package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

import (
	"github.com/nanjiek/pixiu-debounce/internal/config"
)

// Key templates
const (
	keyRulesTmpl = "%s:rules"
)

// ErrNotFound is returned when no rule payload has been stored yet.
var ErrNotFound = errors.New("repo: rules not found")

type RedisRepo struct {
	Prefix         string
	UpdateChannel  string
	Cli            redis.UniversalClient
	logger         *zap.Logger
	defaultTimeout time.Duration
}

// NewRedis connects to a single node or a cluster depending on how many
// addresses are configured.
func NewRedis(cfg config.RedisCfg, logger *zap.Logger, opts ...Option) (*RedisRepo, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &RedisRepo{
		Prefix:         cfg.Prefix,
		UpdateChannel:  cfg.UpdatesChannel,
		logger:         logger,
		defaultTimeout: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.Cli == nil {
		if len(normalizeAddrs(cfg)) == 0 {
			return nil, errors.New("no redis addresses configured")
		}
		r.Cli = redis.NewUniversalClient(buildUniversalOptions(cfg))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Cli.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", zap.Error(err))
		_ = r.Cli.Close()
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}

	return r, nil
}

// Option pattern for custom configurations
type Option func(*RedisRepo)

// WithDefaultTimeout bounds each GET, SET and PUBLISH issued by the repo.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *RedisRepo) { r.defaultTimeout = d }
}

// WithClient uses an existing client instead of dialing one from config.
func WithClient(cli redis.UniversalClient) Option {
	return func(r *RedisRepo) { r.Cli = cli }
}

func (r *RedisRepo) withTimeout(ctx context.Context, opTimeout time.Duration) (context.Context, context.CancelFunc) {
	if opTimeout == 0 {
		opTimeout = r.defaultTimeout
	}
	return context.WithTimeout(ctx, opTimeout)
}

func (r *RedisRepo) KeyRules() string {
	return fmt.Sprintf(keyRulesTmpl, r.Prefix)
}

// GetRules returns the stored payload or ErrNotFound.
func (r *RedisRepo) GetRules(parentCtx context.Context) ([]byte, error) {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()
	b, err := r.Cli.Get(ctx, r.KeyRules()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r.KeyRules(), err)
	}
	return b, nil
}

// PutRules stores payload and tells subscribers to reload.
func (r *RedisRepo) PutRules(parentCtx context.Context, payload []byte) error {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()
	if err := r.Cli.Set(ctx, r.KeyRules(), payload, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", r.KeyRules(), err)
	}
	if err := r.Cli.Publish(ctx, r.UpdateChannel, r.KeyRules()).Err(); err != nil {
		return fmt.Errorf("publish update on %s failed: %w", r.UpdateChannel, err)
	}
	return nil
}

// Subscribe streams update messages until ctx is done.
func (r *RedisRepo) Subscribe(ctx context.Context) <-chan string {
	sub := r.Cli.Subscribe(ctx, r.UpdateChannel)
	out := make(chan string)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// IsNotFound reports whether err means no payload is stored.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func (r *RedisRepo) Close() error {
	return r.Cli.Close()
}

func normalizeAddrs(cfg config.RedisCfg) []string {
	if len(cfg.Addrs) > 0 {
		return cfg.Addrs
	}
	if cfg.Addr == "" {
		return nil
	}
	parts := strings.Split(cfg.Addr, ",")
	var out []string
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func buildUniversalOptions(cfg config.RedisCfg) *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:           normalizeAddrs(cfg),
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        atLeast(cfg.PoolSize, 10),
		MinIdleConns:    atLeast(cfg.MinIdleConns, 2),
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSec) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeSec) * time.Second,
		DialTimeout:     durationOrDefault(cfg.DialTimeoutMs, 800),
		ReadTimeout:     durationOrDefault(cfg.ReadTimeoutMs, 800),
		WriteTimeout:    durationOrDefault(cfg.WriteTimeoutMs, 800),
		MaxRetries:      atLeast(cfg.MaxRetries, 2),
	}
}

func atLeast(val, def int) int {
	if val > def {
		return val
	}
	return def
}

func durationOrDefault(ms int, defMs int) time.Duration {
	if ms <= 0 {
		ms = defMs
	}
	return time.Duration(ms) * time.Millisecond
}
