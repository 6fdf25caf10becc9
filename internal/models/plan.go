package models

import "time"

// Стратегии регистрации: manual — пользователь сам жмёт кнопку,
// published — время открытия опубликовано, auto — угадываем окно сами.
const (
	PlanStrategyManual    = "manual"
	PlanStrategyPublished = "published"
	PlanStrategyAuto      = "auto"
)

const (
	PlanStatusActive    = "active"
	PlanStatusDone      = "done"
	PlanStatusCancelled = "cancelled"
)

// RegistrationPlan is one standing intent to auto-register a user for a
// specific camp session. Plans are archived (status), never deleted.
type RegistrationPlan struct {
	ID          uint64
	UserID      uint64
	SessionCode string
	Strategy    string
	Status      string

	DetectionURL *string
	OpenAt       *time.Time

	// At-most-once guard for the external attempt executor.
	AttemptSessionID *string
	AttemptStartedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type PlanCreateInput struct {
	UserID       uint64
	SessionCode  string
	Strategy     string
	DetectionURL *string
	OpenAt       *time.Time
}
