package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/RegBox/internal/integrations/payments"
	"github.com/BearBump/RegBox/internal/models"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("reservation not found")

type Repository interface {
	GetReservation(ctx context.Context, id uint64) (*models.Reservation, error)
	TransitionReservation(ctx context.Context, id uint64, to string, providerResponse json.RawMessage, now time.Time) (bool, error)
	RecordChargeOutcome(ctx context.Context, id uint64, settled bool, chargeErr *string) error
}

// Committer settles the money side of a finished attempt exactly once: the
// status CAS decides who talks to the payment processor, and the processor
// call itself is shielded by an idempotency key derived from the reservation.
type Committer struct {
	repo     Repository
	payments payments.Client
}

func New(repo Repository, pc payments.Client) *Committer {
	return &Committer{repo: repo, payments: pc}
}

// Commit applies a settlement callback. alreadyFinal reports that the
// reservation had reached a terminal status before this call; the returned
// status is then the recorded one, not the caller's.
func (c *Committer) Commit(ctx context.Context, reservationID uint64, success bool, providerResponse json.RawMessage) (status string, alreadyFinal bool, err error) {
	r, err := c.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return "", false, err
	}
	if r == nil {
		return "", false, ErrNotFound
	}
	if r.Status != models.ReservationStatusPending {
		return r.Status, true, nil
	}

	to := models.ReservationStatusFailed
	if success {
		to = models.ReservationStatusConfirmed
	}

	now := time.Now().UTC()
	won, err := c.repo.TransitionReservation(ctx, reservationID, to, providerResponse, now)
	if err != nil {
		return "", false, err
	}
	if !won {
		// Проиграли гонку: перечитываем, что записал победитель.
		cur, err := c.repo.GetReservation(ctx, reservationID)
		if err != nil {
			return "", false, err
		}
		if cur == nil {
			return "", false, ErrNotFound
		}
		return cur.Status, true, nil
	}

	c.settleCharge(ctx, r, success)
	return to, false, nil
}

// settleCharge runs capture/cancel with bounded retries. A processor failure
// is recorded on the reservation and never unwinds the status: the outcome
// of the registration is a fact, the charge is follow-up work.
func (c *Committer) settleCharge(ctx context.Context, r *models.Reservation, success bool) {
	key := fmt.Sprintf("settle-%d", r.ID)

	var callErr error
	for i := 0; i < 3; i++ {
		if success {
			callErr = c.payments.Capture(ctx, r.ChargeRef, key)
		} else {
			callErr = c.payments.Cancel(ctx, r.ChargeRef, key)
		}
		if callErr == nil {
			break
		}
		time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
	}

	if callErr != nil {
		slog.Error("settle charge", "reservation_id", r.ID, "charge_ref", r.ChargeRef, "error", callErr.Error())
		msg := callErr.Error()
		if err := c.repo.RecordChargeOutcome(ctx, r.ID, false, &msg); err != nil {
			slog.Error("record charge outcome", "reservation_id", r.ID, "error", err.Error())
		}
		return
	}

	if err := c.repo.RecordChargeOutcome(ctx, r.ID, true, nil); err != nil {
		slog.Error("record charge outcome", "reservation_id", r.ID, "error", err.Error())
	}
}
