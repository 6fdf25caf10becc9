package settlement

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	payfake "github.com/BearBump/RegBox/internal/integrations/payments/fake"
	"github.com/BearBump/RegBox/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu           sync.Mutex
	reservations map[uint64]*models.Reservation
}

func newFakeRepo(rs ...*models.Reservation) *fakeRepo {
	f := &fakeRepo{reservations: map[uint64]*models.Reservation{}}
	for _, r := range rs {
		f.reservations[r.ID] = r
	}
	return f
}

func (f *fakeRepo) GetReservation(ctx context.Context, id uint64) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) TransitionReservation(ctx context.Context, id uint64, to string, providerResponse json.RawMessage, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok || r.Status != models.ReservationStatusPending {
		return false, nil
	}
	r.Status = to
	r.ProviderResponse = providerResponse
	n := now
	r.SettledAt = &n
	return true, nil
}

func (f *fakeRepo) RecordChargeOutcome(ctx context.Context, id uint64, settled bool, chargeErr *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.reservations[id]; ok {
		r.ChargeSettled = settled
		r.ChargeError = chargeErr
	}
	return nil
}

func pendingReservation(id uint64) *models.Reservation {
	return &models.Reservation{
		ID: id, PlanID: 1, ChargeRef: "ch_abc123",
		Status: models.ReservationStatusPending, CreatedAt: time.Now().UTC(),
	}
}

func TestCommit_SuccessCaptures(t *testing.T) {
	repo := newFakeRepo(pendingReservation(5))
	pc := payfake.New()
	c := New(repo, pc)

	status, alreadyFinal, err := c.Commit(context.Background(), 5, true, json.RawMessage(`{"confirmation":"C-1"}`))
	require.NoError(t, err)
	require.False(t, alreadyFinal)
	require.Equal(t, models.ReservationStatusConfirmed, status)
	require.Equal(t, 1, pc.Captures)
	require.Equal(t, 0, pc.Cancels)

	r, _ := repo.GetReservation(context.Background(), 5)
	require.True(t, r.ChargeSettled)
	require.Nil(t, r.ChargeError)
	require.JSONEq(t, `{"confirmation":"C-1"}`, string(r.ProviderResponse))
}

func TestCommit_FailureCancels(t *testing.T) {
	repo := newFakeRepo(pendingReservation(5))
	pc := payfake.New()
	c := New(repo, pc)

	status, _, err := c.Commit(context.Background(), 5, false, json.RawMessage(`{"error":"seat taken"}`))
	require.NoError(t, err)
	require.Equal(t, models.ReservationStatusFailed, status)
	require.Equal(t, 1, pc.Cancels)
	require.Equal(t, 0, pc.Captures)
}

func TestCommit_DuplicateIsNoOp(t *testing.T) {
	repo := newFakeRepo(pendingReservation(5))
	pc := payfake.New()
	c := New(repo, pc)

	_, _, err := c.Commit(context.Background(), 5, true, nil)
	require.NoError(t, err)

	// Повторный коллбек, даже с противоположным исходом, ничего не меняет.
	status, alreadyFinal, err := c.Commit(context.Background(), 5, false, nil)
	require.NoError(t, err)
	require.True(t, alreadyFinal)
	require.Equal(t, models.ReservationStatusConfirmed, status)
	require.Equal(t, 1, pc.Captures)
	require.Equal(t, 0, pc.Cancels)
}

func TestCommit_UnknownReservation(t *testing.T) {
	c := New(newFakeRepo(), payfake.New())
	_, _, err := c.Commit(context.Background(), 404, true, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCommit_RetriesTransientProcessorError(t *testing.T) {
	repo := newFakeRepo(pendingReservation(5))
	pc := payfake.New()
	pc.FailN = 2 // первые две попытки падают, третья проходит
	c := New(repo, pc)

	status, _, err := c.Commit(context.Background(), 5, true, nil)
	require.NoError(t, err)
	require.Equal(t, models.ReservationStatusConfirmed, status)
	require.Equal(t, 1, pc.Captures)

	r, _ := repo.GetReservation(context.Background(), 5)
	require.True(t, r.ChargeSettled)
}

func TestCommit_ProcessorDownKeepsStatus(t *testing.T) {
	repo := newFakeRepo(pendingReservation(5))
	pc := payfake.New()
	pc.FailN = 10 // все попытки падают
	c := New(repo, pc)

	status, _, err := c.Commit(context.Background(), 5, true, nil)
	require.NoError(t, err)
	require.Equal(t, models.ReservationStatusConfirmed, status)

	r, _ := repo.GetReservation(context.Background(), 5)
	require.Equal(t, models.ReservationStatusConfirmed, r.Status)
	require.False(t, r.ChargeSettled)
	require.NotNil(t, r.ChargeError)
}
