package main

import (
	"context"
	"fmt"

	"sjsage522/grocerycrawler/config"
	"sjsage522/grocerycrawler/internal/browser"
	"sjsage522/grocerycrawler/internal/crawler"
	"sjsage522/grocerycrawler/logger"
	"sjsage522/grocerycrawler/services/cache"
	"sjsage522/grocerycrawler/services/sink"
	"sjsage522/grocerycrawler/services/worker"
)

// Services holds all the initialized services
type Services struct {
	Cache   cache.CacheService
	Sink    sink.Sink
	Blocker *crawler.SiteBlocker
	Engine  *crawler.Engine
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Sink != nil {
		if err := s.Sink.Close(); err != nil {
			logger.LogError("Cleanup", err, "failed to close sink %s", s.Sink.Name())
		}
	}
}

// loadApp loads configuration and site profiles and validates both
func loadApp() (*config.Config, []config.SiteProfile, error) {
	logger.Init()

	cfg := config.LoadConfig()
	if profilesFile != "" {
		cfg.ProfilesFile = profilesFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	sites, err := config.LoadSites(cfg.ProfilesFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, sites, nil
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config, dryRun bool) (*Services, error) {
	log := logger.Default
	services := &Services{}

	// Initialize cache service
	if cfg.MemcacheAddr != "" {
		mc := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := mc.Ping(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.MemcacheAddr).Msg("Memcache unavailable; keeping rate limit blocks in memory")
			services.Cache = cache.NewMemoryCache()
		} else {
			services.Cache = mc
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
	} else {
		services.Cache = cache.NewMemoryCache()
	}
	services.Blocker = crawler.NewSiteBlocker(services.Cache, cfg.BlockTime)

	// Initialize sinks
	names := cfg.Sinks
	if dryRun {
		names = []string{config.SinkLog}
	}
	var sinks []sink.Sink
	for _, name := range names {
		s, err := newSink(ctx, cfg, name)
		if err != nil {
			for _, opened := range sinks {
				opened.Close()
			}
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		services.Sink = sinks[0]
	} else {
		services.Sink = sink.NewMultiSink(sinks...)
	}

	// Initialize page automation
	opts := browser.OptionsFromConfig(cfg)
	launchers := make(map[config.Driver]browser.Launcher)
	for _, driver := range []config.Driver{config.DriverChrome, config.DriverHTTP} {
		l, err := browser.NewLauncher(driver, opts)
		if err != nil {
			return nil, err
		}
		launchers[driver] = l
	}
	services.Engine = crawler.NewEngine(launchers, cfg.NavigationTimeout, cfg.ReadinessTimeout,
		crawler.WithBlocker(services.Blocker),
	)

	return services, nil
}

func newSink(ctx context.Context, cfg *config.Config, name string) (sink.Sink, error) {
	switch name {
	case config.SinkPostgres:
		logger.Info("Saving to PostgreSQL table %s on %s:%d", cfg.DBTable, cfg.DBHost, cfg.DBPort)
		return sink.NewPostgresSink(cfg.PostgresURL(), cfg.DBTable), nil
	case config.SinkRedis:
		s := sink.NewRedisSink(cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, cfg.RedisStreamMaxLength)
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)", cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
		return s, nil
	case config.SinkLog:
		return sink.NewLogSink(), nil
	default:
		return nil, fmt.Errorf("unknown sink %q", name)
	}
}

// newWorker wires the worker to the services
func newWorker(cfg *config.Config, sites []config.SiteProfile, services *Services) *worker.Worker {
	return worker.NewWorker(sites, services.Engine, services.Sink, services.Blocker, worker.OptionsFromConfig(cfg))
}
