package reservations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BearBump/RegBox/internal/cache"
	"github.com/BearBump/RegBox/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateReservation(ctx context.Context, planID uint64, chargeRef string) (*models.Reservation, error)
	GetReservation(ctx context.Context, id uint64) (*models.Reservation, error)
}

// Service is the read side for reservations. The current state is cached as
// whole-row JSON, best effort: the cache not being there is never an error.
type Service struct {
	repo       Repository
	cache      cache.BytesCache
	currentTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, currentTTL: currentTTL}
}

func (s *Service) Create(ctx context.Context, planID uint64, chargeRef string) (*models.Reservation, error) {
	if planID == 0 {
		return nil, errors.New("planId is required")
	}
	if chargeRef == "" {
		return nil, errors.New("chargeRef is required")
	}
	return s.repo.CreateReservation(ctx, planID, chargeRef)
}

func (s *Service) Get(ctx context.Context, id uint64) (*models.Reservation, error) {
	if s.cache != nil && s.currentTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, currentKey(id)); err == nil && ok {
			var r models.Reservation
			if json.Unmarshal(b, &r) == nil {
				return &r, nil
			}
		}
	}

	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}

	if s.cache != nil && s.currentTTL > 0 {
		b, _ := json.Marshal(r)
		_ = s.cache.Set(ctx, currentKey(id), b, s.currentTTL)
	}
	return r, nil
}

// Invalidate drops the cached row after a settlement write. Failure is
// harmless, the entry ages out by TTL anyway.
func (s *Service) Invalidate(ctx context.Context, id uint64) {
	if s.cache == nil || s.currentTTL <= 0 {
		return
	}
	_ = s.cache.Del(ctx, currentKey(id))
}

func currentKey(id uint64) string {
	return fmt.Sprintf("reservation:current:%d", id)
}
