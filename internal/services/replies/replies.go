package replies

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/RegBox/internal/models"
	"github.com/BearBump/RegBox/internal/services/challenges"
)

const (
	replyOptedOut = "You are unsubscribed. No more messages will be sent. Reply START to re-subscribe."
	replyOptedIn  = "You are subscribed again. We will text you when your registration needs attention."
	replyHelp     = "RegBox registration alerts. Reply STOP to unsubscribe, START to re-subscribe."
	replyLinkSent = "Your resume link has been re-sent."
	replyGeneric  = "Nothing is waiting on you right now. Reply HELP for info."
)

// Twilio-совместимые ключевые слова; сравниваем всё сообщение целиком.
var (
	stopWords  = []string{"STOP", "STOPALL", "UNSUBSCRIBE", "CANCEL", "END", "QUIT"}
	startWords = []string{"START", "YES", "UNSTOP"}
	helpWords  = []string{"HELP", "INFO"}
)

type Repository interface {
	SetConsent(ctx context.Context, phone string, optedIn bool, now time.Time) error
	GetContactByPhone(ctx context.Context, phone string) (*models.Contact, error)
	LatestPendingTicketForUser(ctx context.Context, userID uint64, now time.Time) (*models.ChallengeTicket, error)
}

type Resender interface {
	Resend(ctx context.Context, ticketID uint64) error
}

// Router turns an inbound SMS into a reply. Opt-out handling is a carrier
// compliance requirement and always comes first.
type Router struct {
	repo     Repository
	resender Resender
}

func New(repo Repository, resender Resender) *Router {
	return &Router{repo: repo, resender: resender}
}

// Handle classifies an inbound message and returns the reply body. It never
// returns an error: failures are logged and the caller still gets a reply,
// because the gateway will deliver whatever we answer with.
func (r *Router) Handle(ctx context.Context, fromPhone, body string) string {
	word := strings.ToUpper(strings.TrimSpace(body))
	now := time.Now().UTC()

	switch {
	case contains(stopWords, word):
		if err := r.repo.SetConsent(ctx, fromPhone, false, now); err != nil {
			slog.Error("consent opt-out", "error", err.Error())
		}
		return replyOptedOut

	case contains(startWords, word):
		if err := r.repo.SetConsent(ctx, fromPhone, true, now); err != nil {
			slog.Error("consent opt-in", "error", err.Error())
		}
		return replyOptedIn

	case contains(helpWords, word):
		return replyHelp
	}

	// Не ключевое слово: считаем, что человек просит ссылку ещё раз.
	contact, err := r.repo.GetContactByPhone(ctx, fromPhone)
	if err != nil {
		slog.Error("contact by phone", "error", err.Error())
		return replyGeneric
	}
	if contact == nil {
		return replyGeneric
	}

	ticket, err := r.repo.LatestPendingTicketForUser(ctx, contact.UserID, now)
	if err != nil {
		slog.Error("latest pending ticket", "user_id", contact.UserID, "error", err.Error())
		return replyGeneric
	}
	if ticket == nil {
		return replyGeneric
	}

	if err := r.resender.Resend(ctx, ticket.ID); err != nil {
		if errors.Is(err, challenges.ErrThrottled) {
			slog.Info("resend throttled", "ticket_id", ticket.ID)
		} else {
			slog.Error("resend resume link", "ticket_id", ticket.ID, "error", err.Error())
		}
		return replyGeneric
	}
	return replyLinkSent
}

func contains(words []string, w string) bool {
	for _, s := range words {
		if s == w {
			return true
		}
	}
	return false
}
