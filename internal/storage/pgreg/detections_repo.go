package pgreg

import (
	"context"
	"time"

	"github.com/BearBump/RegBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) AppendDetection(ctx context.Context, planID uint64, observedAt time.Time, signal, evidence string) (*models.DetectionLogEntry, error) {
	var e models.DetectionLogEntry
	err := s.db.QueryRow(ctx, `
INSERT INTO detection_log (plan_id, observed_at, signal, evidence)
VALUES ($1,$2,$3,$4)
RETURNING id, plan_id, observed_at, signal, evidence
`, planID, observedAt.UTC(), signal, evidence).Scan(&e.ID, &e.PlanID, &e.ObservedAt, &e.Signal, &e.Evidence)
	if err != nil {
		return nil, errors.Wrap(err, "insert detection")
	}
	return &e, nil
}

// LatestDetection — последняя запись журнала по плану. Это и есть
// "проверяли ли недавно": отдельной таблицы блокировок нет.
func (s *Storage) LatestDetection(ctx context.Context, planID uint64) (*models.DetectionLogEntry, error) {
	var e models.DetectionLogEntry
	err := s.db.QueryRow(ctx, `
SELECT id, plan_id, observed_at, signal, evidence
FROM detection_log
WHERE plan_id = $1
ORDER BY observed_at DESC, id DESC
LIMIT 1
`, planID).Scan(&e.ID, &e.PlanID, &e.ObservedAt, &e.Signal, &e.Evidence)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select latest detection")
	}
	return &e, nil
}

func (s *Storage) ListDetections(ctx context.Context, planID uint64, limit, offset int) ([]*models.DetectionLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, plan_id, observed_at, signal, evidence
FROM detection_log
WHERE plan_id = $1
ORDER BY observed_at DESC, id DESC
LIMIT $2 OFFSET $3
`, planID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select detections")
	}
	defer rows.Close()

	var out []*models.DetectionLogEntry
	for rows.Next() {
		var e models.DetectionLogEntry
		if err := rows.Scan(&e.ID, &e.PlanID, &e.ObservedAt, &e.Signal, &e.Evidence); err != nil {
			return nil, errors.Wrap(err, "scan detection")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
