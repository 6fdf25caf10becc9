package pgreg

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/RegBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const reservationColumns = `
  id, plan_id, charge_ref, status, provider_response,
  charge_settled, charge_error, created_at, settled_at
`

func scanReservation(row pgx.Row) (*models.Reservation, error) {
	var r models.Reservation
	if err := row.Scan(
		&r.ID, &r.PlanID, &r.ChargeRef, &r.Status, &r.ProviderResponse,
		&r.ChargeSettled, &r.ChargeError, &r.CreatedAt, &r.SettledAt,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Storage) CreateReservation(ctx context.Context, planID uint64, chargeRef string) (*models.Reservation, error) {
	now := time.Now().UTC()
	row := s.db.QueryRow(ctx, `
INSERT INTO reservations (plan_id, charge_ref, status, created_at)
VALUES ($1,$2,$3,$4)
RETURNING `+reservationColumns, planID, chargeRef, models.ReservationStatusPending, now)

	r, err := scanReservation(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert reservation")
	}
	return r, nil
}

func (s *Storage) GetReservation(ctx context.Context, id uint64) (*models.Reservation, error) {
	row := s.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	r, err := scanReservation(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select reservation")
	}
	return r, nil
}

// TransitionReservation — единственный путь из pending в терминальный
// статус. Кто проиграл гонку за UPDATE, тот не делает никаких side effects.
func (s *Storage) TransitionReservation(ctx context.Context, id uint64, to string, providerResponse json.RawMessage, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE reservations
SET status = $2, provider_response = $3, settled_at = $4
WHERE id = $1 AND status = $5
`, id, to, providerResponse, now.UTC(), models.ReservationStatusPending)
	if err != nil {
		return false, errors.Wrap(err, "transition reservation")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Storage) RecordChargeOutcome(ctx context.Context, id uint64, settled bool, chargeErr *string) error {
	_, err := s.db.Exec(ctx, `
UPDATE reservations SET charge_settled = $2, charge_error = $3 WHERE id = $1
`, id, settled, chargeErr)
	return errors.Wrap(err, "record charge outcome")
}
