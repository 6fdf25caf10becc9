package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BearBump/RegBox/config"
	"github.com/BearBump/RegBox/internal/broker/kafka"
	"github.com/BearBump/RegBox/internal/cache/rediscache"
	"github.com/BearBump/RegBox/internal/integrations/page"
	"github.com/BearBump/RegBox/internal/integrations/page/directhttp"
	"github.com/BearBump/RegBox/internal/integrations/page/fake"
	"github.com/BearBump/RegBox/internal/integrations/page/renderhttp"
	"github.com/BearBump/RegBox/internal/services/watcher"
	"github.com/BearBump/RegBox/internal/storage/pgreg"
)

type watcherFactories struct {
	newStorage     func(cfg *config.Config) (repo watcher.Repository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) watcher.Producer
	newRateLimiter func(cfg *config.Config) watcher.RateLimiter
	newFetcher     func(cfg *config.Config) page.Fetcher
}

func defaultWatcherFactories() watcherFactories {
	return watcherFactories{
		newStorage: func(cfg *config.Config) (watcher.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgreg.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) watcher.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) watcher.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newFetcher: func(cfg *config.Config) page.Fetcher {
			// "render" ходит через headless-рендер для JS-тяжёлых страниц,
			// "direct" — обычный GET. Иначе fallback на локальный fake.
			switch cfg.RegBox.PageFetchMode {
			case "direct":
				return directhttp.New()
			case "render":
				return renderhttp.New(cfg.RegBox.PageRenderBaseURL, cfg.RegBox.PageRenderAPIKey)
			default:
				return fake.New()
			}
		},
	}
}

func RunRegWatcher(ctx context.Context, cfg *config.Config, f watcherFactories) error {
	topic := cfg.Kafka.OpenDetectedTopicName
	if topic == "" {
		topic = "registration.open_detected"
	}

	cycleInterval := time.Duration(cfg.RegBox.WatcherCycleSeconds) * time.Second
	if cycleInterval <= 0 {
		cycleInterval = 30 * time.Second
	}
	concurrency := cfg.RegBox.WatcherConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	rlPerHost := cfg.RegBox.WatcherRateLimitPerHostPerMinute
	if rlPerHost <= 0 {
		rlPerHost = 60
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	w := watcher.New(repo, f.newFetcher(cfg), f.newProducer(cfg), f.newRateLimiter(cfg), topic).
		WithSettings(cycleInterval, concurrency, rlPerHost)

	if cfg.RegBox.WatcherHTTPAddr != "" {
		go func() {
			err := runWatcherHTTPServer(ctx, watcherHTTPOpts{
				httpAddr:    cfg.RegBox.WatcherHTTPAddr,
				swaggerPath: os.Getenv("swaggerPath"),
				watcher:     w,
				cfg:         cfg,
			})
			if err != nil && err != context.Canceled {
				slog.Error("watcher http server", "error", err.Error())
			}
		}()
	}

	return w.Run(ctx)
}
