package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the prefix of configuration environment variables.
const DefaultEnvPrefix = "NODEWIRING_"

// Loader collects configuration values from all sources.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	envFile   string
	overrides map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the YAML configuration file.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithEnvFile sets a dotenv file holding prefixed variables. Variables set in
// the process environment win over the file.
func WithEnvFile(path string) Option {
	return func(l *Loader) {
		l.envFile = path
	}
}

// WithOverrides sets dotted-key values that win over every other source,
// usually taken from command line flags.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) {
		l.overrides = values
	}
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads file, dotenv file, environment and overrides, in that order, and
// resolves the result against Defaults.
func (l *Loader) Load(log *slog.Logger) (*Config, error) {
	if err := l.LoadFile(l.filePath); err != nil {
		return nil, err
	}
	if err := l.LoadEnvFile(l.envFile); err != nil {
		return nil, err
	}
	if err := l.LoadEnv(); err != nil {
		return nil, err
	}
	if len(l.overrides) > 0 {
		if err := l.LoadMap(l.overrides); err != nil {
			return nil, err
		}
	}
	return l.Resolve(log)
}

// LoadFile merges a YAML file. An empty path is ignored.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv merges environment variables: NODEWIRING_DISCOVERY_ETCD_HOST sets
// discovery.etcd.host.
func (l *Loader) LoadEnv() error {
	if err := l.k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// LoadEnvFile merges the prefixed variables of a dotenv file, named the same
// way as environment variables. Other variables are ignored. An empty path is
// ignored.
func (l *Loader) LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	values := map[string]any{}
	for name, value := range vars {
		if strings.HasPrefix(name, l.envPrefix) {
			values[l.envKey(name)] = value
		}
	}
	return l.LoadMap(values)
}

func (l *Loader) envKey(name string) string {
	name = strings.TrimPrefix(name, l.envPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "_", ".")
}

// LoadMap merges dotted-key values.
func (l *Loader) LoadMap(values map[string]any) error {
	if err := l.k.Load(mapProvider(values), nil); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	return nil
}

// Resolve builds a Config from the values loaded so far. Absent values take
// their default; malformed ones are logged and take their default too.
func (l *Loader) Resolve(log *slog.Logger) (*Config, error) {
	cfg := Config{
		Trust: TrustConfig{
			CAHost:          l.str(KeyCAHost),
			CAPort:          l.port(log, KeyCAPort),
			CATimeout:       l.duration(log, KeyCATimeout),
			KeyStorage:      l.str(KeyKeyStorage),
			RefreshInterval: l.duration(log, KeyRefreshInterval),
			Threshold:       l.duration(log, KeyRefreshThreshold),
		},
		Discovery: DiscoveryConfig{
			Root:        strings.Trim(l.str(KeyEtcdRoot), "/"),
			EtcdHost:    l.str(KeyEtcdHost),
			EtcdPort:    l.port(log, KeyEtcdPort),
			TTL:         l.duration(log, KeyEtcdTTL),
			EtcdTimeout: l.duration(log, KeyEtcdTimeout),
			SRVDomain:   l.str(KeyEtcdSRV),
			Zone:        l.str(KeyZone),
			NodeID:      l.str(KeyNode),
		},
		HTTP: HTTPConfig{
			ListenAddr:  l.str(KeyHTTPListen),
			MetricsAddr: l.str(KeyHTTPMetrics),
		},
	}

	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}
	return &cfg, nil
}

// Keys returns every key loaded so far.
func (l *Loader) Keys() []string {
	return l.k.Keys()
}

func (l *Loader) str(key string) string {
	return strings.TrimSpace(l.k.String(key))
}

func (l *Loader) port(log *slog.Logger, key string) int {
	raw := l.str(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 65535 {
		log.Warn("Malformed configuration value, using default", "key", key, "value", raw)
		return 0
	}
	return n
}

// duration accepts a Go duration ("1m30s") or a plain number of seconds.
func (l *Loader) duration(log *slog.Logger, key string) time.Duration {
	raw := l.str(key)
	if raw == "" {
		return 0
	}
	d, err := ParseDuration(raw)
	if err != nil {
		log.Warn("Malformed configuration value, using default", "key", key, "value", raw, "err", err)
		return 0
	}
	return d
}

// ParseDuration parses a positive Go duration or a plain number of seconds.
func ParseDuration(raw string) (time.Duration, error) {
	var d time.Duration
	if secs, err := strconv.Atoi(raw); err == nil {
		d = time.Duration(secs) * time.Second
	} else if d, err = time.ParseDuration(raw); err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q is not positive", raw)
	}
	return d, nil
}
