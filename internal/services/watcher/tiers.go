package watcher

import (
	"time"

	"github.com/BearBump/RegBox/internal/services/window"
)

// Proximity tiers. Steady-state polling stays cheap; the 1-minute tier is
// reserved for the window itself, where detection latency costs seats.
const (
	tierFar  = 15 * time.Minute
	tierNear = 5 * time.Minute
	tierHot  = 1 * time.Minute

	farBefore  = 48 * time.Hour
	nearBefore = 1 * time.Hour
	hotAfter   = 1 * time.Hour
	nearAfter  = 2 * time.Hour
)

// RequiredInterval returns the minimum staleness before the plan is probed
// again. Exact boundaries land on the tighter tier, and the interval never
// increases as now approaches either edge of the window.
func RequiredInterval(now time.Time, w window.Window) time.Duration {
	untilStart := w.Start.Sub(now)
	sinceEnd := now.Sub(w.End)

	switch {
	case untilStart > farBefore:
		return tierFar
	case untilStart > nearBefore:
		return tierNear
	case sinceEnd <= hotAfter:
		return tierHot
	case sinceEnd <= nearAfter:
		return tierNear
	default:
		return tierFar
	}
}
