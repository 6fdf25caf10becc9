package watcher

import (
	"testing"
	"time"

	"github.com/BearBump/RegBox/internal/services/window"
	"github.com/stretchr/testify/require"
)

func TestRequiredInterval(t *testing.T) {
	open := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	w := window.Window{Start: open, End: open.Add(time.Hour)}

	cases := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{"three days before", open.Add(-72 * time.Hour), 15 * time.Minute},
		{"exactly 48h before", open.Add(-48 * time.Hour), 5 * time.Minute},
		{"a day before", open.Add(-24 * time.Hour), 5 * time.Minute},
		{"exactly 1h before", open.Add(-time.Hour), 1 * time.Minute},
		{"inside window", open.Add(30 * time.Minute), 1 * time.Minute},
		{"exactly 1h after end", w.End.Add(time.Hour), 1 * time.Minute},
		{"90m after end", w.End.Add(90 * time.Minute), 5 * time.Minute},
		{"exactly 2h after end", w.End.Add(2 * time.Hour), 5 * time.Minute},
		{"long after end", w.End.Add(3 * time.Hour), 15 * time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, RequiredInterval(tc.now, w))
		})
	}
}

func TestRequiredInterval_WindowOpeningSoon(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)
	open := now.Add(30 * time.Minute)
	w := window.Window{Start: open, End: open.Add(time.Hour)}

	require.Equal(t, 1*time.Minute, RequiredInterval(now, w))
}
