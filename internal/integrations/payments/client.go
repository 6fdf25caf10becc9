package payments

import "context"

// Client finalizes a pre-authorized charge. Both calls must be idempotent on
// the processor side via the idempotency key: the committer may fire the same
// call more than once during a transition race.
type Client interface {
	Capture(ctx context.Context, chargeRef, idempotencyKey string) error
	Cancel(ctx context.Context, chargeRef, idempotencyKey string) error
}
