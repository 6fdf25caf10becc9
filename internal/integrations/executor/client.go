package executor

import "context"

// Client drives the external attempt executor: an opaque worker that runs
// the actual registration flow. The coordinator only starts it and resumes
// it after a resolved challenge.
type Client interface {
	Start(ctx context.Context, planID uint64, sessionID string) error
	Resume(ctx context.Context, sessionID string, checkpointID uint64) error
}
