package fake

import (
	"context"
	"sync"
)

type FakeClient struct {
	mu      sync.Mutex
	Started []StartCall
	Resumed []ResumeCall
	Err     error
}

type StartCall struct {
	PlanID    uint64
	SessionID string
}

type ResumeCall struct {
	SessionID    string
	CheckpointID uint64
}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Start(ctx context.Context, planID uint64, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Started = append(f.Started, StartCall{PlanID: planID, SessionID: sessionID})
	return nil
}

func (f *FakeClient) Resume(ctx context.Context, sessionID string, checkpointID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Resumed = append(f.Resumed, ResumeCall{SessionID: sessionID, CheckpointID: checkpointID})
	return nil
}
