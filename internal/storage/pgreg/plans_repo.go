package pgreg

import (
	"context"
	"time"

	"github.com/BearBump/RegBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const planColumns = `
  id, user_id, session_code, strategy, status,
  detection_url, open_at,
  attempt_session_id, attempt_started_at,
  created_at, updated_at
`

func scanPlan(row pgx.Row) (*models.RegistrationPlan, error) {
	var p models.RegistrationPlan
	if err := row.Scan(
		&p.ID, &p.UserID, &p.SessionCode, &p.Strategy, &p.Status,
		&p.DetectionURL, &p.OpenAt,
		&p.AttemptSessionID, &p.AttemptStartedAt,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Storage) CreatePlan(ctx context.Context, in models.PlanCreateInput) (*models.RegistrationPlan, error) {
	now := time.Now().UTC()
	row := s.db.QueryRow(ctx, `
INSERT INTO registration_plans (
  user_id, session_code, strategy, status, detection_url, open_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
RETURNING `+planColumns, in.UserID, in.SessionCode, in.Strategy, models.PlanStatusActive, in.DetectionURL, in.OpenAt, now)

	p, err := scanPlan(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert plan")
	}
	return p, nil
}

func (s *Storage) GetPlan(ctx context.Context, id uint64) (*models.RegistrationPlan, error) {
	row := s.db.QueryRow(ctx, `SELECT `+planColumns+` FROM registration_plans WHERE id = $1`, id)
	p, err := scanPlan(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select plan")
	}
	return p, nil
}

// ListWatchable возвращает планы, которые вотчер вообще должен проверять:
// активные, с URL обнаружения и не-ручной стратегией. Частоту проверки
// решает не БД, а watcher по журналу обнаружений.
func (s *Storage) ListWatchable(ctx context.Context) ([]*models.RegistrationPlan, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+planColumns+`
FROM registration_plans
WHERE status = $1
  AND detection_url IS NOT NULL
  AND strategy IN ($2, $3)
ORDER BY id
`, models.PlanStatusActive, models.PlanStrategyPublished, models.PlanStrategyAuto)
	if err != nil {
		return nil, errors.Wrap(err, "select watchable plans")
	}
	defer rows.Close()

	var out []*models.RegistrationPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan plan")
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) SetPlanStatus(ctx context.Context, id uint64, status string) error {
	_, err := s.db.Exec(ctx, `UPDATE registration_plans SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return errors.Wrap(err, "update plan status")
}

// ClaimAttempt is the at-most-once guard for starting the attempt executor:
// only the caller that sets attempt_session_id while it is NULL wins.
func (s *Storage) ClaimAttempt(ctx context.Context, planID uint64, sessionID string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE registration_plans
SET attempt_session_id = $2, attempt_started_at = $3, updated_at = now()
WHERE id = $1 AND attempt_session_id IS NULL
`, planID, sessionID, now.UTC())
	if err != nil {
		return false, errors.Wrap(err, "claim attempt")
	}
	return tag.RowsAffected() == 1, nil
}
