package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/RegBox/internal/broker/messages"
	"github.com/BearBump/RegBox/internal/integrations/page"
	"github.com/BearBump/RegBox/internal/models"
	"github.com/BearBump/RegBox/internal/services/window"
	"github.com/pkg/errors"
)

type Repository interface {
	ListWatchable(ctx context.Context) ([]*models.RegistrationPlan, error)
	LatestDetection(ctx context.Context, planID uint64) (*models.DetectionLogEntry, error)
	AppendDetection(ctx context.Context, planID uint64, observedAt time.Time, signal, evidence string) (*models.DetectionLogEntry, error)
	SetPlanStatus(ctx context.Context, id uint64, status string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Watcher is the adaptive poll loop: each cycle scans every watchable plan,
// and the per-plan probe cadence is decided from the detection log, not from
// scheduler state. Crashing between cycles loses nothing.
type Watcher struct {
	repo     Repository
	fetcher  page.Fetcher
	producer Producer
	rl       RateLimiter
	resolver *window.Resolver

	topic string

	cycleInterval      time.Duration
	concurrency        int
	rateLimitPerHost   int64
	rateLimitWindow    time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalScanned        atomic.Int64
	totalProbed         atomic.Int64
	totalOpens          atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, fetcher page.Fetcher, producer Producer, rl RateLimiter, topic string) *Watcher {
	return &Watcher{
		repo: repo, fetcher: fetcher, producer: producer, rl: rl, topic: topic,
		resolver:          window.NewResolver(nil),
		cycleInterval:     30 * time.Second,
		concurrency:       10,
		rateLimitPerHost:  60,
		rateLimitWindow:   70 * time.Second,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (w *Watcher) WithSettings(cycleInterval time.Duration, concurrency int, rlPerHostPerMin int) *Watcher {
	if cycleInterval > 0 {
		w.cycleInterval = cycleInterval
	}
	if concurrency > 0 {
		w.concurrency = concurrency
	}
	if rlPerHostPerMin > 0 {
		w.rateLimitPerHost = int64(rlPerHostPerMin)
	}
	return w
}

func (w *Watcher) WithResolver(r *window.Resolver) *Watcher {
	if r != nil {
		w.resolver = r
	}
	return w
}

// Trigger forces an immediate scan cycle (best-effort, non-blocking).
func (w *Watcher) Trigger() {
	w.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalScanned  int64      `json:"totalScanned"`
	TotalProbed   int64      `json:"totalProbed"`
	TotalOpens    int64      `json:"totalOpens"`
	TotalErrors   int64      `json:"totalErrors"`
	InFlight      int64      `json:"inFlight"`
	LastError     string     `json:"lastError,omitempty"`
}

func (w *Watcher) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, w.startedAtUnixNano).UTC(),
		TotalScanned: w.totalScanned.Load(),
		TotalProbed:  w.totalProbed.Load(),
		TotalOpens:   w.totalOpens.Load(),
		TotalErrors:  w.totalErrors.Load(),
		InFlight:     w.inFlight.Load(),
	}
	if n := w.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := w.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	w.lastErrorMu.Lock()
	st.LastError = w.lastError
	w.lastErrorMu.Unlock()
	return st
}

func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.cycleInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			w.RunOnce(ctx)
		case <-w.triggerCh:
			w.RunOnce(ctx)
		}
	}
}

func (w *Watcher) RunOnce(ctx context.Context) {
	now := time.Now().UTC()
	w.lastCycleUnixNano.Store(now.UnixNano())

	plans, err := w.repo.ListWatchable(ctx)
	if err != nil {
		slog.Error("list watchable plans", "error", err.Error())
		w.recordError(err)
		return
	}
	w.totalScanned.Add(int64(len(plans)))

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	for _, plan := range plans {
		sem <- struct{}{}
		wg.Add(1)
		planCopy := plan
		w.inFlight.Add(1)
		go func() {
			defer func() {
				w.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := w.processOne(ctx, planCopy); err != nil {
				w.totalErrors.Add(1)
				w.recordError(err)
				slog.Error("process plan", "plan_id", planCopy.ID, "error", err.Error())
			}
		}()
	}
	wg.Wait()
}

func (w *Watcher) recordError(err error) {
	w.lastErrorMu.Lock()
	w.lastError = err.Error()
	w.lastErrorMu.Unlock()
}

func (w *Watcher) processOne(ctx context.Context, plan *models.RegistrationPlan) error {
	now := time.Now().UTC()

	win := w.resolver.Resolve(plan, now)
	interval := RequiredInterval(now, win)

	last, err := w.repo.LatestDetection(ctx, plan.ID)
	if err != nil {
		return err
	}
	if last != nil && now.Sub(last.ObservedAt) < interval {
		return nil
	}

	if plan.DetectionURL == nil {
		return errors.New("watchable plan without detection url")
	}
	detURL := *plan.DetectionURL

	if w.rl != nil && w.rateLimitPerHost > 0 {
		host := hostOf(detURL)
		minuteKey := fmt.Sprintf("rl:page:%s:%s", host, now.Format("200601021504"))
		allowed, n, err := w.rl.Allow(ctx, minuteKey, w.rateLimitPerHost, w.rateLimitWindow)
		if err != nil {
			return err
		}
		if !allowed {
			// Хост перегружен: пропускаем пробу и не трогаем журнал,
			// план останется просроченным и попадёт в следующий цикл.
			slog.Warn("per-host rate limit exceeded", "host", host, "count", n)
			return nil
		}
	}

	w.totalProbed.Add(1)

	res, fetchErr := w.fetcher.Fetch(ctx, detURL)
	if fetchErr != nil {
		// A probe failure is still a probe: log it so the staleness guard
		// advances and the plan is not hammered in a tight loop.
		if _, err := w.repo.AppendDetection(ctx, plan.ID, now, models.DetectionSignalError, fetchErr.Error()); err != nil {
			return err
		}
		return errors.Wrap(fetchErr, "fetch detection page")
	}

	signal, evidence := Classify(res.Body)
	if _, err := w.repo.AppendDetection(ctx, plan.ID, now, signal, evidence); err != nil {
		return err
	}

	if signal != models.DetectionSignalOpen {
		return nil
	}

	w.totalOpens.Add(1)
	slog.Info("registration open detected", "plan_id", plan.ID, "window_source", win.Source, "evidence", evidence)

	msg := messages.RegistrationOpenDetected{
		PlanID:     plan.ID,
		UserID:     plan.UserID,
		DetectedAt: now,
		Evidence:   evidence,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	key := []byte(fmt.Sprintf("%d", plan.ID))
	// Kafka может быть не готова сразу после старта docker compose.
	// Для демо/устойчивости делаем небольшой retry.
	var pubErr error
	for i := 0; i < 10; i++ {
		if err := w.producer.Publish(ctx, w.topic, key, b); err == nil {
			pubErr = nil
			break
		} else {
			pubErr = err
			time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
		}
	}
	if pubErr != nil {
		return pubErr
	}

	// Событие ушло, дальше планом занимается диспетчер попыток.
	// Если апдейт не прошёл, план опубликуется ещё раз, claim это переживёт.
	if err := w.repo.SetPlanStatus(ctx, plan.ID, models.PlanStatusDone); err != nil {
		return errors.Wrap(err, "retire plan")
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
