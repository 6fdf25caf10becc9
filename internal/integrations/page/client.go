package page

import (
	"context"
	"time"
)

type Result struct {
	Body      string
	FetchedAt time.Time
}

// Fetcher retrieves a detection page body. Implementations must carry their
// own request timeout; probe failures are reported as errors, never as an
// empty body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Result, error)
}
