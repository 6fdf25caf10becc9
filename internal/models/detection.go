package models

import "time"

const (
	DetectionSignalOpen   = "open_detected"
	DetectionSignalClosed = "closed_detected"
	DetectionSignalError  = "error"
)

// DetectionLogEntry is an immutable probe fact. The newest entry per plan is
// also the staleness guard for the watcher, so exactly one entry is written
// per probe regardless of outcome.
type DetectionLogEntry struct {
	ID         uint64
	PlanID     uint64
	ObservedAt time.Time
	Signal     string
	Evidence   string
}
