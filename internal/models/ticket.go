package models

import "time"

const (
	TicketStatusPending   = "pending"
	TicketStatusCompleted = "completed"
	TicketStatusFailed    = "failed"
	TicketStatusExpired   = "expired"
)

const (
	NotifyChannelSMS   = "sms"
	NotifyChannelEmail = "email"
)

// ChallengeTicket represents one bot-challenge interruption waiting for a
// human. The resume token is single-use; once status leaves pending the
// ticket is immutable.
type ChallengeTicket struct {
	ID        uint64
	UserID    uint64
	SessionID string
	Provider  string

	ResumeToken string

	Status     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ResolvedAt *time.Time

	LastNotifiedAt  *time.Time
	NotifiedChannel *string
}
