package config

import (
	"fmt"
	"os"
	"strings"
)

import (
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

import (
	"github.com/nanjiek/pixiu-debounce/internal/debounce"
)

// EnvPrefix prefixes every environment override, e.g. DEBOUNCE_SERVER_HTTP_ADDR.
const EnvPrefix = "DEBOUNCE"

// Source kinds.
const (
	SourceNone  = "none"
	SourceFile  = "file"
	SourceNacos = "nacos"
	SourceRedis = "redis"
)

// Fail policies applied when a rule source cannot be fetched.
const (
	FailOpen   = "fail-open"   // keep the last good rules
	FailClosed = "fail-closed" // drop all rules
)

// ServerCfg HTTP listen address
type ServerCfg struct {
	HTTPAddr string `yaml:"httpAddr" split_words:"true"` // e.g. ":8080"
}

// LoggingCfg zap logger settings
type LoggingCfg struct {
	Level       string `yaml:"level"       split_words:"true"` // debug | info | warn | error
	Development bool   `yaml:"development" split_words:"true"` // console encoder
}

// Features switches
type Features struct {
	Debounce   bool   `yaml:"debounce"   split_words:"true"` // master switch for URL debouncing
	FailPolicy string `yaml:"failPolicy" split_words:"true"` // fail-open | fail-closed
}

// SourceCfg selects where the rule payload comes from
type SourceCfg struct {
	Kind           string `yaml:"kind"           split_words:"true"` // file | nacos | redis | none
	Format         string `yaml:"format"         split_words:"true"` // json | yaml (auto-detect if empty)
	PollIntervalMs int    `yaml:"pollIntervalMs" split_words:"true"` // default 60000
}

// FileCfg local data file delivery; rules live at <installDir>/1/debounce.json
type FileCfg struct {
	InstallDir string `yaml:"installDir" split_words:"true"`
}

// RedisCfg Redis connection and namespace
type RedisCfg struct {
	Addr               string   `yaml:"addr"               split_words:"true"` // single address or comma separated list
	Addrs              []string `yaml:"addrs"              split_words:"true"`
	Password           string   `yaml:"password"           split_words:"true"`
	DB                 int      `yaml:"db"                 split_words:"true"`
	Prefix             string   `yaml:"prefix"             split_words:"true"` // key prefix
	UpdatesChannel     string   `yaml:"updatesChannel"     split_words:"true"` // pub/sub channel for rule updates
	PoolSize           int      `yaml:"poolSize"`
	MinIdleConns       int      `yaml:"minIdleConns"`
	ConnMaxLifetimeSec int      `yaml:"connMaxLifetimeSec"`
	ConnMaxIdleTimeSec int      `yaml:"connMaxIdleTimeSec"`
	MaxRetries         int      `yaml:"maxRetries"`
	ReadTimeoutMs      int      `yaml:"readTimeoutMs"`
	WriteTimeoutMs     int      `yaml:"writeTimeoutMs"`
	DialTimeoutMs      int      `yaml:"dialTimeoutMs"`
	OpTimeoutMs        int      `yaml:"opTimeoutMs"        split_words:"true"` // per-command deadline, 500ms when unset
}

func (r RedisCfg) Enabled() bool {
	return strings.TrimSpace(r.Addr) != "" || len(r.Addrs) > 0
}

// NacosCfg - Nacos config center (pull mode)
type NacosCfg struct {
	Addr      string `yaml:"addr"      split_words:"true"` // e.g. "http://127.0.0.1:8848"
	Namespace string `yaml:"namespace" split_words:"true"`
	Group     string `yaml:"group"     split_words:"true"` // default DEFAULT_GROUP
	DataID    string `yaml:"dataId"    split_words:"true"` // e.g. "debounce.json"
	Username  string `yaml:"username"  split_words:"true"`
	Password  string `yaml:"password"  split_words:"true"`
	TimeoutMs int    `yaml:"timeoutMs" split_words:"true"` // default 2000
}

func (n NacosCfg) Enabled() bool {
	return n.Addr != "" && n.DataID != ""
}

// BreakerCfg circuit breaker around remote rule fetches
type BreakerCfg struct {
	Enabled          bool    `yaml:"enabled"          split_words:"true"`
	ErrorThreshold   float64 `yaml:"errorThreshold"   split_words:"true"` // failed fetches within the window that open the breaker
	MinRequestAmount uint64  `yaml:"minRequestAmount" split_words:"true"` // fetches needed before the breaker may open
	StatIntervalMs   uint32  `yaml:"statIntervalMs"   split_words:"true"`
	RetryTimeoutMs   uint32  `yaml:"retryTimeoutMs"   split_words:"true"` // how long the breaker stays open
}

// ShieldsCfg permission gate
type ShieldsCfg struct {
	// DisabledSites are URL patterns of sites with shields down; navigations
	// to them are never debounced.
	DisabledSites []string `yaml:"disabledSites" split_words:"true"`
}

// Config full configuration
type Config struct {
	Server   ServerCfg  `yaml:"server"`
	Logging  LoggingCfg `yaml:"logging"`
	Features Features   `yaml:"features"`
	Source   SourceCfg  `yaml:"source"`
	File     FileCfg    `yaml:"file"`
	Redis    RedisCfg   `yaml:"redis"`
	Nacos    NacosCfg   `yaml:"nacos"`
	Breaker  BreakerCfg `yaml:"breaker"`
	Shields  ShieldsCfg `yaml:"shields"`
	// BootstrapRules are served when no source is configured.
	BootstrapRules []debounce.RuleSpec `yaml:"bootstrapRules" ignored:"true"`
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		Server:   ServerCfg{HTTPAddr: ":8080"},
		Logging:  LoggingCfg{Level: "info"},
		Features: Features{Debounce: true, FailPolicy: FailOpen},
		Source:   SourceCfg{PollIntervalMs: 60000},
		Redis: RedisCfg{
			Prefix:         "pixiu:debounce",
			UpdatesChannel: "pixiu_debounce_updates",
		},
		Breaker: BreakerCfg{
			ErrorThreshold:   5,
			MinRequestAmount: 5,
			StatIntervalMs:   10000,
			RetryTimeoutMs:   30000,
		},
	}
}

// Load reads a YAML file, expands ${VAR} references, then applies
// DEBOUNCE_* environment overrides.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) normalize() {
	c.Features.FailPolicy = strings.ToLower(strings.TrimSpace(c.Features.FailPolicy))
	if c.Features.FailPolicy == "" {
		c.Features.FailPolicy = FailOpen
	}
	c.Source.Kind = strings.ToLower(strings.TrimSpace(c.Source.Kind))
	if c.Source.Kind == "" {
		c.Source.Kind = c.inferSourceKind()
	}
	c.Source.Format = strings.ToLower(strings.TrimSpace(c.Source.Format))
	if c.Source.PollIntervalMs <= 0 {
		c.Source.PollIntervalMs = 60000
	}
}

func (c *Config) inferSourceKind() string {
	switch {
	case c.File.InstallDir != "":
		return SourceFile
	case c.Nacos.Enabled():
		return SourceNacos
	case c.Redis.Enabled():
		return SourceRedis
	}
	return SourceNone
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Features.FailPolicy {
	case FailOpen, FailClosed:
	default:
		return fmt.Errorf("features.failPolicy: unknown policy %q", c.Features.FailPolicy)
	}
	switch c.Source.Kind {
	case SourceNone:
	case SourceFile:
		if c.File.InstallDir == "" {
			return fmt.Errorf("source.kind=file requires file.installDir")
		}
	case SourceNacos:
		if !c.Nacos.Enabled() {
			return fmt.Errorf("source.kind=nacos requires nacos.addr and nacos.dataId")
		}
	case SourceRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("source.kind=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("source.kind: unknown kind %q", c.Source.Kind)
	}
	switch c.Source.Format {
	case "", debounce.FormatJSON, debounce.FormatYAML:
	default:
		return fmt.Errorf("source.format: unknown format %q", c.Source.Format)
	}
	return nil
}
