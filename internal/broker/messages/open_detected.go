package messages

import "time"

// RegistrationOpenDetected is published by reg-watcher when a plan's page
// yields an open verdict. Delivery is at-least-once; consumers must claim
// the attempt before starting the executor.
type RegistrationOpenDetected struct {
	PlanID     uint64    `json:"plan_id"`
	UserID     uint64    `json:"user_id"`
	DetectedAt time.Time `json:"detected_at"`

	Evidence string `json:"evidence,omitempty"`
}
