// Package config loads rakh-cache settings from command-line flags with
// RAKH_CACHE_* environment variables as fallbacks.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adeilh/rakh-cache/cache/memory"
	"github.com/adeilh/rakh-cache/logging"
)

const EnvPrefix = "RAKH_CACHE_"

// Backend selects where values live behind the in-memory tier.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
	BackendRemote   Backend = "remote"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Listen string

	MaxSize int
	TTL     time.Duration
	Policy  memory.EvictionPolicy

	Backend Backend

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	PostgresDSN   string
	PostgresTable string

	RemoteURL    string
	RemoteAPIKey string

	// APIKeyHashes are bcrypt hashes accepted by the admin API. Empty
	// leaves the API unauthenticated.
	APIKeyHashes []string

	LogLevel string
	LogDev   bool
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Listen:        ":8080",
		MaxSize:       memory.DefaultMaxSize,
		TTL:           memory.DefaultTTL,
		Policy:        memory.EvictStrict,
		Backend:       BackendMemory,
		RedisAddr:     "127.0.0.1:6379",
		PostgresTable: "cache_entries",
		LogLevel:      "info",
	}
}

// Load parses args (without the program name). Flags win over environment
// variables, which win over defaults. getenv may be nil.
func Load(args []string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	cfg := Default()
	env := envReader{get: getenv}

	cfg.Listen = env.str("LISTEN", cfg.Listen)
	cfg.MaxSize = env.integer("MAX_SIZE", cfg.MaxSize)
	cfg.TTL = env.duration("TTL", cfg.TTL)
	policy := env.str("EVICTION_POLICY", cfg.Policy.String())
	cfg.Backend = Backend(env.str("BACKEND", string(cfg.Backend)))
	cfg.RedisAddr = env.str("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = env.str("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = env.integer("REDIS_DB", cfg.RedisDB)
	cfg.RedisPrefix = env.str("REDIS_PREFIX", cfg.RedisPrefix)
	cfg.PostgresDSN = env.str("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresTable = env.str("POSTGRES_TABLE", cfg.PostgresTable)
	cfg.RemoteURL = env.str("REMOTE_URL", cfg.RemoteURL)
	cfg.RemoteAPIKey = env.str("REMOTE_API_KEY", cfg.RemoteAPIKey)
	hashes := env.str("API_KEY_HASHES", "")
	cfg.LogLevel = env.str("LOG_LEVEL", cfg.LogLevel)
	cfg.LogDev = env.boolean("LOG_DEV", cfg.LogDev)
	if env.err != nil {
		return Config{}, env.err
	}

	fs := flag.NewFlagSet("rakh-cache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "admin API listen address")
	fs.IntVar(&cfg.MaxSize, "max-size", cfg.MaxSize, "maximum entries held in memory")
	fs.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "entry lifetime")
	fs.StringVar(&policy, "eviction-policy", policy, "strict or legacy")
	fs.Func("backend", "memory, redis, postgres or remote", func(s string) error {
		cfg.Backend = Backend(s)
		return nil
	})
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis host:port")
	fs.StringVar(&cfg.RedisPassword, "redis-password", cfg.RedisPassword, "Redis AUTH password")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database index")
	fs.StringVar(&cfg.RedisPrefix, "redis-prefix", cfg.RedisPrefix, "prefix applied to Redis keys")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	fs.StringVar(&cfg.PostgresTable, "postgres-table", cfg.PostgresTable, "PostgreSQL cache table")
	fs.StringVar(&cfg.RemoteURL, "remote-url", cfg.RemoteURL, "base URL of a remote rakh-cache node")
	fs.StringVar(&cfg.RemoteAPIKey, "remote-api-key", cfg.RemoteAPIKey, "API key for the remote node")
	fs.StringVar(&hashes, "api-key-hashes", hashes, "comma separated bcrypt hashes accepted by the admin API")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.BoolVar(&cfg.LogDev, "log-dev", cfg.LogDev, "human readable logs")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("%w: unexpected arguments %v", ErrInvalid, fs.Args())
	}

	p, err := memory.ParseEvictionPolicy(policy)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.Policy = p
	cfg.APIKeyHashes = splitList(hashes)

	return cfg, cfg.Validate()
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}
	if c.Listen == "" {
		add("listen address is empty")
	}
	if c.MaxSize <= 0 {
		add("max size must be positive, got %d", c.MaxSize)
	}
	if c.TTL < 0 {
		add("ttl must not be negative, got %s", c.TTL)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalid, err))
	}
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			add("redis backend needs an address")
		}
		if c.RedisDB < 0 {
			add("redis db must not be negative")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			add("postgres backend needs a DSN")
		}
	case BackendRemote:
		u, err := url.Parse(c.RemoteURL)
		if c.RemoteURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
			add("remote backend needs an absolute URL, got %q", c.RemoteURL)
		}
	default:
		add("unknown backend %q", c.Backend)
	}
	return errors.Join(errs...)
}

type envReader struct {
	get func(string) string
	err error
}

func (e *envReader) str(name, def string) string {
	if v := strings.TrimSpace(e.get(EnvPrefix + name)); v != "" {
		return v
	}
	return def
}

func (e *envReader) integer(name string, def int) int {
	raw := e.str(name, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.fail(name, raw)
		return def
	}
	return n
}

func (e *envReader) duration(name string, def time.Duration) time.Duration {
	raw := e.str(name, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.fail(name, raw)
		return def
	}
	return d
}

func (e *envReader) boolean(name string, def bool) bool {
	raw := e.str(name, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		e.fail(name, raw)
		return def
	}
	return b
}

func (e *envReader) fail(name, raw string) {
	e.err = errors.Join(e.err, fmt.Errorf("%w: %s%s=%q", ErrInvalid, EnvPrefix, name, raw))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
