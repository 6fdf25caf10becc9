package main

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/RegBox/config"
	"github.com/BearBump/RegBox/internal/integrations/page"
	"github.com/BearBump/RegBox/internal/integrations/page/directhttp"
	"github.com/BearBump/RegBox/internal/integrations/page/fake"
	"github.com/BearBump/RegBox/internal/integrations/page/renderhttp"
	"github.com/BearBump/RegBox/internal/models"
	"github.com/BearBump/RegBox/internal/services/watcher"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct{}

func (r *fakeRepo) ListWatchable(ctx context.Context) ([]*models.RegistrationPlan, error) {
	return []*models.RegistrationPlan{}, nil
}
func (r *fakeRepo) LatestDetection(ctx context.Context, planID uint64) (*models.DetectionLogEntry, error) {
	return nil, nil
}
func (r *fakeRepo) AppendDetection(ctx context.Context, planID uint64, observedAt time.Time, signal, evidence string) (*models.DetectionLogEntry, error) {
	return &models.DetectionLogEntry{}, nil
}
func (r *fakeRepo) SetPlanStatus(ctx context.Context, id uint64, status string) error {
	return nil
}

type noopProducer struct{}

func (p noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error { return nil }

func TestDefaultWatcherFactories_SelectFetcher(t *testing.T) {
	f := defaultWatcherFactories()

	direct := f.newFetcher(&config.Config{
		RegBox: config.RegBoxConfig{PageFetchMode: "direct"},
	})
	_, ok := direct.(*directhttp.Client)
	require.True(t, ok)

	render := f.newFetcher(&config.Config{
		RegBox: config.RegBoxConfig{
			PageFetchMode:     "render",
			PageRenderBaseURL: "http://localhost:9100",
			PageRenderAPIKey:  "k",
		},
	})
	_, ok = render.(*renderhttp.Client)
	require.True(t, ok)

	fallback := f.newFetcher(&config.Config{})
	_, ok = fallback.(*fake.FakeFetcher)
	require.True(t, ok)
}

func TestDefaultWatcherFactories_ProducerAndRateLimiter_NonNil(t *testing.T) {
	f := defaultWatcherFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	require.NotNil(t, f.newProducer(cfg))
	require.NotNil(t, f.newRateLimiter(cfg))
}

func TestRunRegWatcher_ContextCanceled(t *testing.T) {
	calledClose := false

	f := watcherFactories{
		newStorage: func(cfg *config.Config) (watcher.Repository, func(), error) {
			return &fakeRepo{}, func() { calledClose = true }, nil
		},
		newProducer: func(cfg *config.Config) watcher.Producer {
			return noopProducer{}
		},
		newRateLimiter: func(cfg *config.Config) watcher.RateLimiter {
			return nil
		},
		newFetcher: func(cfg *config.Config) page.Fetcher {
			return fake.New()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunRegWatcher(ctx, &config.Config{}, f)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
	require.True(t, calledClose)
}
