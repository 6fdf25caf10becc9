package fake

import (
	"context"
	"sync"
)

// FakeSender записывает исходящие SMS вместо отправки.
type FakeSender struct {
	mu   sync.Mutex
	Sent []Message
	Err  error
}

type Message struct {
	To   string
	Body string
}

func New() *FakeSender { return &FakeSender{} }

func (f *FakeSender) Send(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Sent = append(f.Sent, Message{To: to, Body: body})
	return nil
}

func (f *FakeSender) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}
