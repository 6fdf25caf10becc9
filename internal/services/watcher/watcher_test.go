package watcher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/RegBox/internal/broker/messages"
	"github.com/BearBump/RegBox/internal/integrations/page"
	"github.com/BearBump/RegBox/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu       sync.Mutex
	plans    []*models.RegistrationPlan
	latest   map[uint64]*models.DetectionLogEntry
	appended []*models.DetectionLogEntry
	statuses map[uint64]string
}

func newFakeRepo(plans ...*models.RegistrationPlan) *fakeRepo {
	return &fakeRepo{
		plans:    plans,
		latest:   map[uint64]*models.DetectionLogEntry{},
		statuses: map[uint64]string{},
	}
}

func (f *fakeRepo) ListWatchable(ctx context.Context) ([]*models.RegistrationPlan, error) {
	return f.plans, nil
}

func (f *fakeRepo) LatestDetection(ctx context.Context, planID uint64) (*models.DetectionLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest[planID], nil
}

func (f *fakeRepo) AppendDetection(ctx context.Context, planID uint64, observedAt time.Time, signal, evidence string) (*models.DetectionLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &models.DetectionLogEntry{ID: uint64(len(f.appended) + 1), PlanID: planID, ObservedAt: observedAt, Signal: signal, Evidence: evidence}
	f.appended = append(f.appended, e)
	f.latest[planID] = e
	return e, nil
}

func (f *fakeRepo) SetPlanStatus(ctx context.Context, id uint64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	body  string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (page.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return page.Result{}, f.err
	}
	return page.Result{Body: f.body, FetchedAt: time.Now().UTC()}, nil
}

type fakeProducer struct {
	mu        sync.Mutex
	published [][]byte
	topics    []string
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.published = append(f.published, value)
	return nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return false, limit + 1, nil
}

func hotPlan(id uint64) *models.RegistrationPlan {
	openAt := time.Now().UTC().Add(30 * time.Minute)
	url := "https://camps.example.com/signup"
	return &models.RegistrationPlan{
		ID: id, UserID: 7, SessionCode: "SUM-2026-A",
		Strategy: models.PlanStrategyPublished, Status: models.PlanStatusActive,
		DetectionURL: &url, OpenAt: &openAt,
	}
}

func TestProcessOne_OpenPublishesAndLogs(t *testing.T) {
	repo := newFakeRepo()
	fetcher := &fakeFetcher{body: "Camp signup is here. Register Now!"}
	prod := &fakeProducer{}
	w := New(repo, fetcher, prod, nil, "registration.open_detected")

	err := w.processOne(context.Background(), hotPlan(42))
	require.NoError(t, err)

	require.Len(t, repo.appended, 1)
	require.Equal(t, models.DetectionSignalOpen, repo.appended[0].Signal)

	require.Len(t, prod.published, 1)
	require.Equal(t, "registration.open_detected", prod.topics[0])
	var msg messages.RegistrationOpenDetected
	require.NoError(t, json.Unmarshal(prod.published[0], &msg))
	require.Equal(t, uint64(42), msg.PlanID)
	require.Equal(t, uint64(7), msg.UserID)

	// Открытый план уходит из обхода.
	require.Equal(t, models.PlanStatusDone, repo.statuses[42])
}

func TestProcessOne_ClosedDoesNotPublish(t *testing.T) {
	repo := newFakeRepo()
	fetcher := &fakeFetcher{body: "Registration closed until next year."}
	prod := &fakeProducer{}
	w := New(repo, fetcher, prod, nil, "registration.open_detected")

	require.NoError(t, w.processOne(context.Background(), hotPlan(1)))
	require.Len(t, repo.appended, 1)
	require.Equal(t, models.DetectionSignalClosed, repo.appended[0].Signal)
	require.Empty(t, prod.published)
	require.Empty(t, repo.statuses)
}

func TestProcessOne_FreshDetectionSkipsProbe(t *testing.T) {
	repo := newFakeRepo()
	plan := hotPlan(1)
	// Hot tier needs 1m staleness; this entry is 20s old.
	repo.latest[plan.ID] = &models.DetectionLogEntry{
		PlanID: plan.ID, ObservedAt: time.Now().UTC().Add(-20 * time.Second),
		Signal: models.DetectionSignalClosed,
	}
	fetcher := &fakeFetcher{body: "Register Now"}
	prod := &fakeProducer{}
	w := New(repo, fetcher, prod, nil, "t")

	require.NoError(t, w.processOne(context.Background(), plan))
	require.Equal(t, 0, fetcher.calls)
	require.Empty(t, repo.appended)
}

func TestProcessOne_StaleDetectionProbesAgain(t *testing.T) {
	repo := newFakeRepo()
	plan := hotPlan(1)
	repo.latest[plan.ID] = &models.DetectionLogEntry{
		PlanID: plan.ID, ObservedAt: time.Now().UTC().Add(-5 * time.Minute),
		Signal: models.DetectionSignalClosed,
	}
	fetcher := &fakeFetcher{body: "nothing yet"}
	w := New(repo, fetcher, &fakeProducer{}, nil, "t")

	require.NoError(t, w.processOne(context.Background(), plan))
	require.Equal(t, 1, fetcher.calls)
	require.Len(t, repo.appended, 1)
}

func TestProcessOne_FetchErrorLogsErrorSignal(t *testing.T) {
	repo := newFakeRepo()
	fetcher := &fakeFetcher{err: errors.New("dial tcp: connection refused")}
	prod := &fakeProducer{}
	w := New(repo, fetcher, prod, nil, "t")

	err := w.processOne(context.Background(), hotPlan(1))
	require.Error(t, err)

	// Ошибка пробы тоже считается пробой: ровно одна запись в журнале.
	require.Len(t, repo.appended, 1)
	require.Equal(t, models.DetectionSignalError, repo.appended[0].Signal)
	require.Contains(t, repo.appended[0].Evidence, "connection refused")
	require.Empty(t, prod.published)
}

func TestProcessOne_RateLimitedSkipsWithoutLogging(t *testing.T) {
	repo := newFakeRepo()
	fetcher := &fakeFetcher{body: "Register Now"}
	w := New(repo, fetcher, &fakeProducer{}, denyLimiter{}, "t")

	require.NoError(t, w.processOne(context.Background(), hotPlan(1)))
	require.Equal(t, 0, fetcher.calls)
	require.Empty(t, repo.appended)
}

func TestRunOnce_ProcessesAllPlans(t *testing.T) {
	p1, p2 := hotPlan(1), hotPlan(2)
	repo := newFakeRepo(p1, p2)
	fetcher := &fakeFetcher{body: "Registration Open"}
	prod := &fakeProducer{}
	w := New(repo, fetcher, prod, nil, "t")

	w.RunOnce(context.Background())

	require.Equal(t, 2, fetcher.calls)
	require.Len(t, repo.appended, 2)
	require.Len(t, prod.published, 2)

	st := w.Stats()
	require.Equal(t, int64(2), st.TotalScanned)
	require.Equal(t, int64(2), st.TotalProbed)
	require.Equal(t, int64(2), st.TotalOpens)
}
