package reservations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/RegBox/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu           sync.Mutex
	reservations map[uint64]*models.Reservation
	nextID       uint64
	getCalls     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{reservations: map[uint64]*models.Reservation{}}
}

func (f *fakeRepo) CreateReservation(ctx context.Context, planID uint64, chargeRef string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r := &models.Reservation{
		ID: f.nextID, PlanID: planID, ChargeRef: chargeRef,
		Status: models.ReservationStatusPending, CreatedAt: time.Now().UTC(),
	}
	f.reservations[r.ID] = r
	return r, nil
}

func (f *fakeRepo) GetReservation(ctx context.Context, id uint64) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	r, ok := f.reservations[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemCache() *memCache { return &memCache{m: map[string][]byte{}} }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *memCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

func TestCreate_Validation(t *testing.T) {
	svc := New(newFakeRepo(), nil, 0)

	_, err := svc.Create(context.Background(), 0, "ch_x")
	require.Error(t, err)
	_, err = svc.Create(context.Background(), 1, "")
	require.Error(t, err)

	r, err := svc.Create(context.Background(), 1, "ch_x")
	require.NoError(t, err)
	require.Equal(t, models.ReservationStatusPending, r.Status)
}

func TestGet_CachesSecondRead(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, newMemCache(), time.Minute)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, "ch_x")
	require.NoError(t, err)

	first, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, first.ID)

	_, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 1, repo.getCalls)
}

func TestGet_MissReturnsNil(t *testing.T) {
	svc := New(newFakeRepo(), newMemCache(), time.Minute)

	r, err := svc.Get(context.Background(), 404)
	require.NoError(t, err)
	require.Nil(t, r)
}

func TestInvalidate_ForcesDBRead(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, newMemCache(), time.Minute)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, "ch_x")
	require.NoError(t, err)

	_, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)

	// Статус меняется мимо кэша, как это делает settlement.
	repo.mu.Lock()
	repo.reservations[created.ID].Status = models.ReservationStatusConfirmed
	repo.mu.Unlock()

	svc.Invalidate(ctx, created.ID)

	r, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.ReservationStatusConfirmed, r.Status)
}
