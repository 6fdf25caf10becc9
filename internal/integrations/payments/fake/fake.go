package fake

import (
	"context"
	"errors"
	"sync"
)

var ErrTransient = errors.New("processor unavailable")

// FakeClient считает capture/cancel и дедуплицирует по idempotency key —
// как настоящий процессор.
type FakeClient struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	Captures int
	Cancels  int
	Err      error
	FailN    int // первые FailN вызовов падают (для проверки ретраев)
}

func New() *FakeClient {
	return &FakeClient{seen: map[string]struct{}{}}
}

func (f *FakeClient) Capture(ctx context.Context, chargeRef, idempotencyKey string) error {
	return f.call(idempotencyKey, &f.Captures)
}

func (f *FakeClient) Cancel(ctx context.Context, chargeRef, idempotencyKey string) error {
	return f.call(idempotencyKey, &f.Cancels)
}

func (f *FakeClient) call(key string, counter *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailN > 0 {
		f.FailN--
		return ErrTransient
	}
	if f.Err != nil {
		return f.Err
	}
	if _, ok := f.seen[key]; ok {
		return nil
	}
	f.seen[key] = struct{}{}
	*counter++
	return nil
}
