package checkpoints

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/RegBox/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	saved    []*models.Checkpoint
	keepSeen int
	nextID   uint64
}

func (f *fakeRepo) SaveCheckpoint(ctx context.Context, sessionID string, in models.CheckpointInput, keep int) (*models.Checkpoint, error) {
	f.keepSeen = keep
	f.nextID++
	c := &models.Checkpoint{
		ID: f.nextID, SessionID: sessionID, StepName: in.StepName,
		BrowserState: in.BrowserState, WorkflowState: in.WorkflowState, ProviderContext: in.ProviderContext,
		Success: in.Success, Metadata: in.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	f.saved = append(f.saved, c)
	return c, nil
}

func (f *fakeRepo) LatestCheckpoint(ctx context.Context, sessionID string) (*models.Checkpoint, error) {
	for i := len(f.saved) - 1; i >= 0; i-- {
		if f.saved[i].SessionID == sessionID {
			return f.saved[i], nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) GetCheckpoint(ctx context.Context, sessionID string, id uint64) (*models.Checkpoint, error) {
	for _, c := range f.saved {
		if c.SessionID == sessionID && c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func TestSave_PassesKeepPolicy(t *testing.T) {
	repo := &fakeRepo{}
	svc := New(repo, 3, time.Minute)

	c, err := svc.Save(context.Background(), "sess-1", models.CheckpointInput{
		StepName:      "form_filled",
		WorkflowState: json.RawMessage(`{"step":2}`),
	})
	require.NoError(t, err)
	require.Equal(t, "form_filled", c.StepName)
	require.Equal(t, 3, repo.keepSeen)
}

func TestSave_RejectsEmptyInput(t *testing.T) {
	svc := New(&fakeRepo{}, 3, time.Minute)

	_, err := svc.Save(context.Background(), "", models.CheckpointInput{StepName: "x"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Save(context.Background(), "sess-1", models.CheckpointInput{})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRestore_LatestAndSpecific(t *testing.T) {
	repo := &fakeRepo{}
	svc := New(repo, 5, time.Hour)
	ctx := context.Background()

	first, err := svc.Save(ctx, "sess-1", models.CheckpointInput{StepName: "login_done"})
	require.NoError(t, err)
	second, err := svc.Save(ctx, "sess-1", models.CheckpointInput{StepName: "form_filled"})
	require.NoError(t, err)

	got, err := svc.Restore(ctx, "sess-1", 0, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)

	got, err = svc.Restore(ctx, "sess-1", first.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, "login_done", got.StepName)
}

func TestRestore_NoCheckpoints(t *testing.T) {
	svc := New(&fakeRepo{}, 5, time.Hour)

	_, err := svc.Restore(context.Background(), "sess-x", 0, time.Now().UTC())
	require.ErrorIs(t, err, ErrNoRecoverableState)
}

func TestRestore_TooOld(t *testing.T) {
	repo := &fakeRepo{}
	svc := New(repo, 5, 10*time.Minute)
	ctx := context.Background()

	c, err := svc.Save(ctx, "sess-1", models.CheckpointInput{StepName: "form_filled"})
	require.NoError(t, err)

	_, err = svc.Restore(ctx, "sess-1", c.ID, time.Now().UTC().Add(11*time.Minute))
	require.ErrorIs(t, err, ErrNoRecoverableState)
}
