package pgreg

import (
	"context"
	"time"

	"github.com/BearBump/RegBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) GetConsent(ctx context.Context, phone string) (*models.ConsentLedgerEntry, error) {
	var e models.ConsentLedgerEntry
	err := s.db.QueryRow(ctx, `
SELECT phone, opted_in, opted_in_at, updated_at FROM consent_ledger WHERE phone = $1
`, phone).Scan(&e.Phone, &e.OptedIn, &e.OptedInAt, &e.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select consent")
	}
	return &e, nil
}

func (s *Storage) SetConsent(ctx context.Context, phone string, optedIn bool, now time.Time) error {
	var optedInAt *time.Time
	if optedIn {
		t := now.UTC()
		optedInAt = &t
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO consent_ledger (phone, opted_in, opted_in_at, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (phone)
DO UPDATE SET opted_in = $2, opted_in_at = COALESCE($3, consent_ledger.opted_in_at), updated_at = $4
`, phone, optedIn, optedInAt, now.UTC())
	return errors.Wrap(err, "upsert consent")
}

func (s *Storage) GetContact(ctx context.Context, userID uint64) (*models.Contact, error) {
	var c models.Contact
	err := s.db.QueryRow(ctx, `
SELECT user_id, phone, phone_verified, email FROM contacts WHERE user_id = $1
`, userID).Scan(&c.UserID, &c.Phone, &c.PhoneVerified, &c.Email)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select contact")
	}
	return &c, nil
}

// GetContactByPhone matches verified phones only: inbound replies from an
// unverified number must not leak someone else's resume link.
func (s *Storage) GetContactByPhone(ctx context.Context, phone string) (*models.Contact, error) {
	var c models.Contact
	err := s.db.QueryRow(ctx, `
SELECT user_id, phone, phone_verified, email
FROM contacts
WHERE phone = $1 AND phone_verified
`, phone).Scan(&c.UserID, &c.Phone, &c.PhoneVerified, &c.Email)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select contact by phone")
	}
	return &c, nil
}

func (s *Storage) UpsertContact(ctx context.Context, c models.Contact) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO contacts (user_id, phone, phone_verified, email)
VALUES ($1,$2,$3,$4)
ON CONFLICT (user_id)
DO UPDATE SET phone = $2, phone_verified = $3, email = $4
`, c.UserID, c.Phone, c.PhoneVerified, c.Email)
	return errors.Wrap(err, "upsert contact")
}
