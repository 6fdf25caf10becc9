package email

import "context"

// Sender delivers one outbound email. Used as the fallback channel when SMS
// is unavailable or fails.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}
