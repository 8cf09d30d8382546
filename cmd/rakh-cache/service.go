package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/adeilh/rakh-cache/auth"
	"github.com/adeilh/rakh-cache/cache"
	"github.com/adeilh/rakh-cache/cache/memory"
	"github.com/adeilh/rakh-cache/cache/redis"
	"github.com/adeilh/rakh-cache/cache/tiered"
	"github.com/adeilh/rakh-cache/config"
	"github.com/adeilh/rakh-cache/db/sql/postgres"
	"github.com/adeilh/rakh-cache/httpx"
	"github.com/adeilh/rakh-cache/logging"
	"github.com/adeilh/rakh-cache/metrics"
)

const purgeInterval = time.Minute

// service owns everything the binary builds from a Config.
type service struct {
	cfg      config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	store    cache.Store
	server   *httpx.Server
	closers  []func() error
	repo     *postgres.CacheRepository
}

func newService(ctx context.Context, cfg config.Config, log *zap.Logger) (*service, error) {
	s := &service{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	observer := memory.Observers(
		metrics.NewObserver(s.registry, metrics.DefaultNamespace),
		logging.NewObserver(log),
	)
	memOpts := []memory.Option{
		memory.WithMaxSize(cfg.MaxSize),
		memory.WithTTL(cfg.TTL),
		memory.WithEvictionPolicy(cfg.Policy),
		memory.WithObserver(observer),
	}

	back, err := s.backend(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	if back == nil {
		st, err := memory.NewStore(memOpts...)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.store = st
	} else {
		front, err := memory.New[[]byte](append(memOpts, memory.WithKeyValidator(cache.ValidateKey))...)
		if err != nil {
			s.Close()
			return nil, err
		}
		tc, err := tiered.New(front, back, tiered.WithLogger(log), tiered.WithFrontTTL(cfg.TTL))
		if err != nil {
			s.Close()
			return nil, err
		}
		s.store = tc
	}
	if sr, ok := s.store.(cache.StatsReporter); ok {
		s.registry.MustRegister(metrics.NewStatsCollector(sr, metrics.DefaultNamespace))
	}

	var cacheMW []httpx.MiddlewareFunc
	if len(cfg.APIKeyHashes) > 0 {
		verifier := auth.NewKeyVerifier()
		for i, h := range cfg.APIKeyHashes {
			if err := verifier.Add(fmt.Sprintf("key-%d", i+1), h); err != nil {
				s.Close()
				return nil, err
			}
		}
		mw, err := auth.NewMiddleware(verifier)
		if err != nil {
			s.Close()
			return nil, err
		}
		cacheMW = append(cacheMW, httpx.AuthMiddleware(mw))
	}

	s.server = httpx.NewServer(httpx.WithAddress(cfg.Listen), httpx.WithLogger(log))
	s.server.RegisterRoutes(func(a *httpx.App) {
		httpx.RegisterHealth(a)
		httpx.RegisterMetrics(a, s.registry)
		httpx.RegisterCacheRoutes(a, s.store, cacheMW...)
	})
	return s, nil
}

// backend builds the slow tier. A nil store means memory only.
func (s *service) backend(ctx context.Context) (cache.Store, error) {
	switch s.cfg.Backend {
	case config.BackendRedis:
		st := redis.NewStore(redis.Options{
			Addr:      s.cfg.RedisAddr,
			Password:  s.cfg.RedisPassword,
			DB:        s.cfg.RedisDB,
			KeyPrefix: s.cfg.RedisPrefix,
		})
		s.closers = append(s.closers, st.Close)
		if err := st.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis backend: %w", err)
		}
		return st, nil
	case config.BackendPostgres:
		db, err := postgres.Connect(ctx, postgres.WithDSN(s.cfg.PostgresDSN))
		if err != nil {
			return nil, fmt.Errorf("postgres backend: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		if err := postgres.Migrate(ctx, db, s.cfg.PostgresTable); err != nil {
			return nil, fmt.Errorf("postgres backend: %w", err)
		}
		s.repo = postgres.NewCacheRepository(db,
			postgres.WithTable(s.cfg.PostgresTable),
			postgres.WithDefaultTTL(s.cfg.TTL),
		)
		return s.repo, nil
	case config.BackendRemote:
		return httpx.NewCacheClient(s.cfg.RemoteURL, s.cfg.RemoteAPIKey, httpx.WithRetry(2, 100*time.Millisecond)), nil
	default:
		return nil, nil
	}
}

// Serve runs the admin API, plus the expired-row purge for PostgreSQL, until
// ctx is done.
func (s *service) Serve(ctx context.Context) error {
	if s.repo != nil {
		go s.purge(ctx, s.repo)
	}
	return s.server.Start(ctx)
}

func (s *service) purge(ctx context.Context, repo *postgres.CacheRepository) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.PurgeExpired(ctx)
			if err != nil {
				s.log.Warn("purge expired rows", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Debug("purged expired rows", zap.Int64("rows", n))
			}
		}
	}
}

func (s *service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn("close", zap.Error(err))
		}
	}
	s.closers = nil
}
