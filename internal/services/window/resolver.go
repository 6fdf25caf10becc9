package window

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/RegBox/internal/models"
)

const (
	SourceExplicit  = "explicit"
	SourceParsed    = "parsed"
	SourceHeuristic = "heuristic"
)

// Window is the interval the watcher treats as "the registration may open
// here". Source records how much we trust it.
type Window struct {
	Start  time.Time
	End    time.Time
	Source string
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Anchor — опорная дата сезона. Даты без времени ставим на 09:00 UTC:
// провайдеры почти всегда открывают запись утром.
type Anchor struct {
	Month time.Month
	Day   int
}

// DefaultSeasonAnchors is a deliberately low-confidence guess table; it can
// be replaced wholesale via NewResolver without touching the core logic.
var DefaultSeasonAnchors = map[string]Anchor{
	"spring": {Month: time.March, Day: 1},
	"summer": {Month: time.June, Day: 1},
	"fall":   {Month: time.August, Day: 15},
	"autumn": {Month: time.August, Day: 15},
	"winter": {Month: time.December, Day: 1},
}

const anchorHourUTC = 9

var (
	isoDateRe = regexp.MustCompile(`(20\d{2})-(\d{2})-(\d{2})`)
	usDateRe  = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(20\d{2})`)
	yearRe    = regexp.MustCompile(`20\d{2}`)
)

type Resolver struct {
	anchors map[string]Anchor
}

func NewResolver(anchors map[string]Anchor) *Resolver {
	if anchors == nil {
		anchors = DefaultSeasonAnchors
	}
	return &Resolver{anchors: anchors}
}

// Resolve derives the watch window for a plan. Ordering is strict:
// explicit open instant > date parsed from the detection URL > seasonal
// heuristic. Heuristics only guarantee that every plan has some window.
func (r *Resolver) Resolve(plan *models.RegistrationPlan, now time.Time) Window {
	if plan.OpenAt != nil {
		t := plan.OpenAt.UTC()
		return Window{Start: t.Add(-time.Hour), End: t.Add(time.Hour), Source: SourceExplicit}
	}

	if plan.DetectionURL != nil {
		if t, ok := r.parseURLHints(*plan.DetectionURL); ok {
			return Window{Start: t.Add(-time.Hour), End: t.Add(time.Hour), Source: SourceParsed}
		}
	}

	g := r.seasonalGuess(now)
	return Window{Start: g.Add(-24 * time.Hour), End: g.Add(24 * time.Hour), Source: SourceHeuristic}
}

func (r *Resolver) parseURLHints(rawURL string) (time.Time, bool) {
	low := strings.ToLower(rawURL)

	if m := isoDateRe.FindStringSubmatch(low); m != nil {
		if t, ok := mkDate(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return t, true
		}
	}

	if m := usDateRe.FindStringSubmatch(low); m != nil {
		if t, ok := mkDate(atoi(m[3]), atoi(m[1]), atoi(m[2])); ok {
			return t, true
		}
	}

	// "summer-2026", "2026/fall" и т.п.: сезонный токен + год.
	if y := yearRe.FindString(low); y != "" {
		for season, a := range r.anchors {
			if strings.Contains(low, season) {
				if t, ok := mkDate(atoi(y), int(a.Month), a.Day); ok {
					return t, true
				}
			}
		}
	}

	return time.Time{}, false
}

// seasonalGuess picks the next anchor strictly after now, checking this year
// then the next.
func (r *Resolver) seasonalGuess(now time.Time) time.Time {
	now = now.UTC()
	best := time.Time{}
	for _, a := range r.anchors {
		for _, year := range []int{now.Year(), now.Year() + 1} {
			t := time.Date(year, a.Month, a.Day, anchorHourUTC, 0, 0, 0, time.UTC)
			if !t.After(now) {
				continue
			}
			if best.IsZero() || t.Before(best) {
				best = t
			}
		}
	}
	return best
}

func mkDate(year, month, day int) (time.Time, bool) {
	if year < 2000 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, anchorHourUTC, 0, 0, 0, time.UTC), true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
