package challenges

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/RegBox/internal/integrations/email"
	"github.com/BearBump/RegBox/internal/integrations/executor"
	"github.com/BearBump/RegBox/internal/integrations/sms"
	"github.com/BearBump/RegBox/internal/models"
	"github.com/pkg/errors"
)

var (
	ErrNotFound         = errors.New("ticket not found")
	ErrInvalidSignature = errors.New("invalid resume link signature")
	ErrNotPending       = errors.New("ticket is not pending")
	ErrThrottled        = errors.New("notification throttled")
)

type Repository interface {
	CreateTicket(ctx context.Context, userID uint64, sessionID, provider, resumeToken string, now, expiresAt time.Time) (*models.ChallengeTicket, error)
	GetTicket(ctx context.Context, id uint64) (*models.ChallengeTicket, error)
	GetTicketByToken(ctx context.Context, token string) (*models.ChallengeTicket, error)
	TouchNotified(ctx context.Context, ticketID uint64, now time.Time, minInterval time.Duration) (bool, error)
	SetNotifiedChannel(ctx context.Context, ticketID uint64, channel string) error
	TransitionTicket(ctx context.Context, id uint64, to string, now time.Time) (bool, error)
	ExpireTickets(ctx context.Context, now time.Time) (int64, error)

	GetContact(ctx context.Context, userID uint64) (*models.Contact, error)
	GetConsent(ctx context.Context, phone string) (*models.ConsentLedgerEntry, error)
}

type CheckpointRestorer interface {
	Restore(ctx context.Context, sessionID string, checkpointID uint64, now time.Time) (*models.Checkpoint, error)
}

// Service owns the human-in-the-loop pause: mint a single-use resume link,
// get it to the user, and resume the executor when the link comes back.
type Service struct {
	repo        Repository
	sms         sms.Sender
	email       email.Sender
	checkpoints CheckpointRestorer
	executor    executor.Client

	linkSecret  string
	linkBaseURL string

	ticketTTL      time.Duration
	notifyThrottle time.Duration
}

func New(repo Repository, smsSender sms.Sender, emailSender email.Sender, cp CheckpointRestorer, exec executor.Client, linkSecret, linkBaseURL string) *Service {
	return &Service{
		repo: repo, sms: smsSender, email: emailSender, checkpoints: cp, executor: exec,
		linkSecret: linkSecret, linkBaseURL: linkBaseURL,
		ticketTTL:      10 * time.Minute,
		notifyThrottle: 2 * time.Minute,
	}
}

func (s *Service) WithTTLs(ticketTTL, notifyThrottle time.Duration) *Service {
	if ticketTTL > 0 {
		s.ticketTTL = ticketTTL
	}
	if notifyThrottle > 0 {
		s.notifyThrottle = notifyThrottle
	}
	return s
}

// Create mints a pending ticket for an interrupted session and immediately
// notifies the user. Returns the ticket and the full magic URL.
func (s *Service) Create(ctx context.Context, userID uint64, sessionID, provider string) (*models.ChallengeTicket, string, error) {
	token, err := newResumeToken()
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	t, err := s.repo.CreateTicket(ctx, userID, sessionID, provider, token, now, now.Add(s.ticketTTL))
	if err != nil {
		return nil, "", errors.Wrap(err, "create ticket")
	}

	url := magicURL(s.linkBaseURL, s.linkSecret, token)
	if err := s.notify(ctx, t, url); err != nil && !errors.Is(err, ErrThrottled) {
		// Тикет уже создан, уведомление можно повторить ресендом.
		slog.Error("notify challenge", "ticket_id", t.ID, "error", err.Error())
	}
	return t, url, nil
}

// Resend re-sends the magic link for a still-pending ticket, subject to the
// same throttle as the initial notification.
func (s *Service) Resend(ctx context.Context, ticketID uint64) error {
	t, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if t == nil {
		return ErrNotFound
	}
	if t.Status != models.TicketStatusPending || !t.ExpiresAt.After(time.Now().UTC()) {
		return ErrNotPending
	}
	return s.notify(ctx, t, magicURL(s.linkBaseURL, s.linkSecret, t.ResumeToken))
}

// notify claims the send slot first (CAS on last_notified_at), then picks a
// channel: SMS when the user has a verified, opted-in phone, email otherwise
// or when the SMS send fails. A lost CAS means another sender was here within
// the throttle window; callers branch on ErrThrottled.
func (s *Service) notify(ctx context.Context, t *models.ChallengeTicket, url string) error {
	now := time.Now().UTC()
	ok, err := s.repo.TouchNotified(ctx, t.ID, now, s.notifyThrottle)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("notify throttled", "ticket_id", t.ID)
		return ErrThrottled
	}

	contact, err := s.repo.GetContact(ctx, t.UserID)
	if err != nil {
		return err
	}
	if contact == nil {
		return errors.Errorf("no contact for user %d", t.UserID)
	}

	body := fmt.Sprintf("Your camp registration needs a quick human step. Finish here: %s", url)

	if contact.Phone != nil && contact.PhoneVerified {
		consent, err := s.repo.GetConsent(ctx, *contact.Phone)
		if err != nil {
			return err
		}
		if consent != nil && consent.OptedIn {
			sendErr := s.sms.Send(ctx, *contact.Phone, body)
			if sendErr == nil {
				return s.repo.SetNotifiedChannel(ctx, t.ID, models.NotifyChannelSMS)
			}
			slog.Warn("sms send failed, falling back to email", "ticket_id", t.ID, "error", sendErr.Error())
		}
	}

	if contact.Email == "" {
		return errors.Errorf("no reachable channel for user %d", t.UserID)
	}
	if err := s.email.Send(ctx, contact.Email, "Action needed: finish your registration", body); err != nil {
		return errors.Wrap(err, "email send")
	}
	return s.repo.SetNotifiedChannel(ctx, t.ID, models.NotifyChannelEmail)
}

// Lookup returns the ticket behind a resume token, for the challenge UI
// shell. No signature needed: the response carries status only.
func (s *Service) Lookup(ctx context.Context, token string) (*models.ChallengeTicket, error) {
	t, err := s.repo.GetTicketByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}

// Resolve consumes a magic link. The status CAS makes the token single-use:
// the winner restores the newest checkpoint and resumes the executor, any
// later call just reports the terminal status.
func (s *Service) Resolve(ctx context.Context, token, sig string) (*models.ChallengeTicket, error) {
	if !verifyToken(s.linkSecret, token, sig) {
		return nil, ErrInvalidSignature
	}

	t, err := s.repo.GetTicketByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	won, err := s.repo.TransitionTicket(ctx, t.ID, models.TicketStatusCompleted, now)
	if err != nil {
		return nil, err
	}
	if !won {
		// Уже решён (или истёк): перечитываем терминальный статус.
		cur, err := s.repo.GetTicket(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			return nil, ErrNotFound
		}
		return cur, nil
	}

	cp, err := s.checkpoints.Restore(ctx, t.SessionID, 0, now)
	if err != nil {
		return nil, errors.Wrap(err, "restore checkpoint")
	}
	if err := s.executor.Resume(ctx, t.SessionID, cp.ID); err != nil {
		return nil, errors.Wrap(err, "resume executor")
	}

	t.Status = models.TicketStatusCompleted
	t.ResolvedAt = &now
	slog.Info("challenge resolved", "ticket_id", t.ID, "session_id", t.SessionID, "checkpoint_id", cp.ID)
	return t, nil
}

// ExpireSweep flips overdue pending tickets to expired.
func (s *Service) ExpireSweep(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.ExpireTickets(ctx, now)
}
