package pgreg

import (
	"context"
	"time"

	"github.com/BearBump/RegBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const checkpointColumns = `
  id, session_id, step_name,
  browser_state, workflow_state, provider_context,
  success, metadata, created_at
`

func scanCheckpoint(row pgx.Row) (*models.Checkpoint, error) {
	var c models.Checkpoint
	if err := row.Scan(
		&c.ID, &c.SessionID, &c.StepName,
		&c.BrowserState, &c.WorkflowState, &c.ProviderContext,
		&c.Success, &c.Metadata, &c.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCheckpoint appends a snapshot and prunes the session history to the
// newest keep entries in the same transaction.
func (s *Storage) SaveCheckpoint(ctx context.Context, sessionID string, in models.CheckpointInput, keep int) (*models.Checkpoint, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
INSERT INTO checkpoints (
  session_id, step_name, browser_state, workflow_state, provider_context, success, metadata, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING `+checkpointColumns, sessionID, in.StepName, in.BrowserState, in.WorkflowState, in.ProviderContext, in.Success, in.Metadata, now)

	c, err := scanCheckpoint(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert checkpoint")
	}

	if keep > 0 {
		_, err = tx.Exec(ctx, `
DELETE FROM checkpoints
WHERE session_id = $1
  AND id NOT IN (
    SELECT id FROM checkpoints
    WHERE session_id = $1
    ORDER BY created_at DESC, id DESC
    LIMIT $2
  )
`, sessionID, keep)
		if err != nil {
			return nil, errors.Wrap(err, "prune checkpoints")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return c, nil
}

func (s *Storage) LatestCheckpoint(ctx context.Context, sessionID string) (*models.Checkpoint, error) {
	row := s.db.QueryRow(ctx, `
SELECT `+checkpointColumns+`
FROM checkpoints
WHERE session_id = $1
ORDER BY created_at DESC, id DESC
LIMIT 1
`, sessionID)
	c, err := scanCheckpoint(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select latest checkpoint")
	}
	return c, nil
}

func (s *Storage) GetCheckpoint(ctx context.Context, sessionID string, id uint64) (*models.Checkpoint, error) {
	row := s.db.QueryRow(ctx, `
SELECT `+checkpointColumns+`
FROM checkpoints
WHERE session_id = $1 AND id = $2
`, sessionID, id)
	c, err := scanCheckpoint(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select checkpoint")
	}
	return c, nil
}
