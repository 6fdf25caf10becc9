package checkpoints

import (
	"context"
	"time"

	"github.com/BearBump/RegBox/internal/models"
	"github.com/pkg/errors"
)

var (
	ErrInvalidInput       = errors.New("invalid checkpoint input")
	ErrNoRecoverableState = errors.New("no recoverable state")
)

type Repository interface {
	SaveCheckpoint(ctx context.Context, sessionID string, in models.CheckpointInput, keep int) (*models.Checkpoint, error)
	LatestCheckpoint(ctx context.Context, sessionID string) (*models.Checkpoint, error)
	GetCheckpoint(ctx context.Context, sessionID string, id uint64) (*models.Checkpoint, error)
}

// Service enforces the checkpoint retention and recovery policy; the raw
// state blobs pass through untouched.
type Service struct {
	repo Repository

	keep   int
	maxAge time.Duration
}

func New(repo Repository, keep int, maxAge time.Duration) *Service {
	if keep <= 0 {
		keep = 10
	}
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	return &Service{repo: repo, keep: keep, maxAge: maxAge}
}

func (s *Service) Save(ctx context.Context, sessionID string, in models.CheckpointInput) (*models.Checkpoint, error) {
	if sessionID == "" || in.StepName == "" {
		return nil, ErrInvalidInput
	}

	c, err := s.repo.SaveCheckpoint(ctx, sessionID, in, s.keep)
	if err != nil {
		return nil, errors.Wrap(err, "save checkpoint")
	}
	return c, nil
}

// Restore returns the checkpoint to resume from. checkpointID == 0 means
// "latest". Snapshots older than maxAge are unusable: the provider session
// they captured has long expired, resuming from them would fail anyway.
func (s *Service) Restore(ctx context.Context, sessionID string, checkpointID uint64, now time.Time) (*models.Checkpoint, error) {
	var (
		c   *models.Checkpoint
		err error
	)
	if checkpointID == 0 {
		c, err = s.repo.LatestCheckpoint(ctx, sessionID)
	} else {
		c, err = s.repo.GetCheckpoint(ctx, sessionID, checkpointID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load checkpoint")
	}
	if c == nil {
		return nil, ErrNoRecoverableState
	}
	if now.Sub(c.CreatedAt) > s.maxAge {
		return nil, ErrNoRecoverableState
	}
	return c, nil
}
