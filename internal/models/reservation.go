package models

import (
	"encoding/json"
	"time"
)

const (
	ReservationStatusPending   = "pending"
	ReservationStatusConfirmed = "confirmed"
	ReservationStatusFailed    = "failed"
)

// Reservation carries the money side of one registration attempt. Status
// moves one way only: pending -> confirmed | failed.
type Reservation struct {
	ID     uint64
	PlanID uint64

	// Reference to the pre-authorized charge at the payment processor.
	ChargeRef string

	Status           string
	ProviderResponse json.RawMessage

	// Outcome of the capture/cancel call, tracked separately from Status:
	// a processor-side failure must not unwind an already-recorded outcome.
	ChargeSettled bool
	ChargeError   *string

	CreatedAt time.Time
	SettledAt *time.Time
}
