package fake

import (
	"context"
	"sync"
)

type FakeSender struct {
	mu   sync.Mutex
	Sent []Message
	Err  error
}

type Message struct {
	To      string
	Subject string
	Body    string
}

func New() *FakeSender { return &FakeSender{} }

func (f *FakeSender) Send(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Sent = append(f.Sent, Message{To: to, Subject: subject, Body: body})
	return nil
}

func (f *FakeSender) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}
