package pgreg

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS registration_plans (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL,
  session_code TEXT NOT NULL,
  strategy TEXT NOT NULL,
  status TEXT NOT NULL,
  detection_url TEXT NULL,
  open_at TIMESTAMPTZ NULL,
  attempt_session_id TEXT NULL,
  attempt_started_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_registration_plans_status ON registration_plans(status)`,
		`
CREATE TABLE IF NOT EXISTS detection_log (
  id BIGSERIAL PRIMARY KEY,
  plan_id BIGINT NOT NULL REFERENCES registration_plans(id) ON DELETE CASCADE,
  observed_at TIMESTAMPTZ NOT NULL,
  signal TEXT NOT NULL,
  evidence TEXT NOT NULL DEFAULT ''
)`,
		`CREATE INDEX IF NOT EXISTS idx_detection_log_plan_observed ON detection_log(plan_id, observed_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS challenge_tickets (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL,
  session_id TEXT NOT NULL,
  provider TEXT NOT NULL,
  resume_token TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  resolved_at TIMESTAMPTZ NULL,
  last_notified_at TIMESTAMPTZ NULL,
  notified_channel TEXT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_challenge_tickets_user_status ON challenge_tickets(user_id, status, expires_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS checkpoints (
  id BIGSERIAL PRIMARY KEY,
  session_id TEXT NOT NULL,
  step_name TEXT NOT NULL,
  browser_state JSONB NULL,
  workflow_state JSONB NULL,
  provider_context JSONB NULL,
  success BOOLEAN NOT NULL DEFAULT TRUE,
  metadata JSONB NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_session_created ON checkpoints(session_id, created_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS reservations (
  id BIGSERIAL PRIMARY KEY,
  plan_id BIGINT NOT NULL,
  charge_ref TEXT NOT NULL,
  status TEXT NOT NULL,
  provider_response JSONB NULL,
  charge_settled BOOLEAN NOT NULL DEFAULT FALSE,
  charge_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  settled_at TIMESTAMPTZ NULL
)`,
		`
CREATE TABLE IF NOT EXISTS consent_ledger (
  phone TEXT PRIMARY KEY,
  opted_in BOOLEAN NOT NULL,
  opted_in_at TIMESTAMPTZ NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS contacts (
  user_id BIGINT PRIMARY KEY,
  phone TEXT NULL,
  phone_verified BOOLEAN NOT NULL DEFAULT FALSE,
  email TEXT NOT NULL DEFAULT ''
)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_phone ON contacts(phone)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
