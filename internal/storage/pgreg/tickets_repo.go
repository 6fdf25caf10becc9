package pgreg

import (
	"context"
	"time"

	"github.com/BearBump/RegBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const ticketColumns = `
  id, user_id, session_id, provider, resume_token,
  status, created_at, expires_at, resolved_at,
  last_notified_at, notified_channel
`

func scanTicket(row pgx.Row) (*models.ChallengeTicket, error) {
	var t models.ChallengeTicket
	if err := row.Scan(
		&t.ID, &t.UserID, &t.SessionID, &t.Provider, &t.ResumeToken,
		&t.Status, &t.CreatedAt, &t.ExpiresAt, &t.ResolvedAt,
		&t.LastNotifiedAt, &t.NotifiedChannel,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Storage) CreateTicket(ctx context.Context, userID uint64, sessionID, provider, resumeToken string, now, expiresAt time.Time) (*models.ChallengeTicket, error) {
	row := s.db.QueryRow(ctx, `
INSERT INTO challenge_tickets (
  user_id, session_id, provider, resume_token, status, created_at, expires_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING `+ticketColumns, userID, sessionID, provider, resumeToken, models.TicketStatusPending, now.UTC(), expiresAt.UTC())

	t, err := scanTicket(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert ticket")
	}
	return t, nil
}

func (s *Storage) GetTicket(ctx context.Context, id uint64) (*models.ChallengeTicket, error) {
	row := s.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM challenge_tickets WHERE id = $1`, id)
	t, err := scanTicket(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select ticket")
	}
	return t, nil
}

func (s *Storage) GetTicketByToken(ctx context.Context, token string) (*models.ChallengeTicket, error) {
	row := s.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM challenge_tickets WHERE resume_token = $1`, token)
	t, err := scanTicket(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select ticket by token")
	}
	return t, nil
}

// TouchNotified занимает "слот" отправки: один UPDATE с проверкой
// last_notified_at и есть compare-and-set. Из двух гонящихся ресендов
// слот получит ровно один.
func (s *Storage) TouchNotified(ctx context.Context, ticketID uint64, now time.Time, minInterval time.Duration) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE challenge_tickets
SET last_notified_at = $2
WHERE id = $1
  AND status = $3
  AND (last_notified_at IS NULL OR last_notified_at <= $4)
`, ticketID, now.UTC(), models.TicketStatusPending, now.UTC().Add(-minInterval))
	if err != nil {
		return false, errors.Wrap(err, "touch notified")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Storage) SetNotifiedChannel(ctx context.Context, ticketID uint64, channel string) error {
	_, err := s.db.Exec(ctx, `UPDATE challenge_tickets SET notified_channel = $2 WHERE id = $1`, ticketID, channel)
	return errors.Wrap(err, "set notified channel")
}

// TransitionTicket flips a pending ticket to a terminal status. The guard on
// the current status makes resume tokens single-use: the second caller
// affects zero rows.
func (s *Storage) TransitionTicket(ctx context.Context, id uint64, to string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE challenge_tickets
SET status = $2, resolved_at = $3
WHERE id = $1 AND status = $4 AND expires_at > $3
`, id, to, now.UTC(), models.TicketStatusPending)
	if err != nil {
		return false, errors.Wrap(err, "transition ticket")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Storage) ExpireTickets(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE challenge_tickets
SET status = $1, resolved_at = $2
WHERE status = $3 AND expires_at <= $2
`, models.TicketStatusExpired, now.UTC(), models.TicketStatusPending)
	if err != nil {
		return 0, errors.Wrap(err, "expire tickets")
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) LatestPendingTicketForUser(ctx context.Context, userID uint64, now time.Time) (*models.ChallengeTicket, error) {
	row := s.db.QueryRow(ctx, `
SELECT `+ticketColumns+`
FROM challenge_tickets
WHERE user_id = $1 AND status = $2 AND expires_at > $3
ORDER BY created_at DESC
LIMIT 1
`, userID, models.TicketStatusPending, now.UTC())
	t, err := scanTicket(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select latest pending ticket")
	}
	return t, nil
}
