package memory

import (
	"errors"
	"time"
)

const (
	DefaultMaxSize = 1000
	DefaultTTL     = time.Hour
)

var ErrInvalidConfig = errors.New("memory: invalid configuration")

// EvictionPolicy selects how a full cache picks its victim.
type EvictionPolicy int

const (
	// EvictStrict always removes the entry with the oldest insertion time,
	// so the size bound holds after every Set.
	EvictStrict EvictionPolicy = iota
	// EvictLegacy only removes an entry inserted strictly before the current
	// instant. When every entry is that new (or untimed) nothing is evicted and
	// the cache grows one past its bound.
	EvictLegacy
)

func (p EvictionPolicy) String() string {
	switch p {
	case EvictStrict:
		return "strict"
	case EvictLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// ParseEvictionPolicy maps "strict" or "legacy" onto an EvictionPolicy.
func ParseEvictionPolicy(s string) (EvictionPolicy, error) {
	switch s {
	case "", "strict":
		return EvictStrict, nil
	case "legacy":
		return EvictLegacy, nil
	default:
		return 0, errors.New("memory: unknown eviction policy " + s)
	}
}

// Options configures a Cache.
type Options struct {
	MaxSize      int
	TTL          time.Duration
	Policy       EvictionPolicy
	Observer     Observer
	KeyValidator func(string) error
	Now          func() time.Time
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		MaxSize:  DefaultMaxSize,
		TTL:      DefaultTTL,
		Policy:   EvictStrict,
		Observer: NoopObserver{},
		Now:      time.Now,
	}
}

// WithMaxSize sets the maximum number of entries.
func WithMaxSize(n int) Option {
	return func(o *Options) { o.MaxSize = n }
}

// WithTTL sets how long an entry stays fresh after it was written.
func WithTTL(d time.Duration) Option {
	return func(o *Options) { o.TTL = d }
}

// WithEvictionPolicy selects the eviction behaviour used when the cache is full.
func WithEvictionPolicy(p EvictionPolicy) Option {
	return func(o *Options) { o.Policy = p }
}

// WithObserver installs a sink for cache events.
func WithObserver(obs Observer) Option {
	return func(o *Options) {
		if obs != nil {
			o.Observer = obs
		}
	}
}

// WithKeyValidator rejects keys for which fn returns an error.
func WithKeyValidator(fn func(string) error) Option {
	return func(o *Options) { o.KeyValidator = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

func (o Options) validate() error {
	var errs []error
	if o.MaxSize <= 0 {
		errs = append(errs, errors.New("max size must be positive"))
	}
	if o.TTL < 0 {
		errs = append(errs, errors.New("ttl must not be negative"))
	}
	if o.Policy != EvictStrict && o.Policy != EvictLegacy {
		errs = append(errs, errors.New("unknown eviction policy"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
}
