package models

import "time"

// ConsentLedgerEntry — текущее согласие на SMS по номеру телефона.
// Обновляется синхронно на входящие STOP/START.
type ConsentLedgerEntry struct {
	Phone     string
	OptedIn   bool
	OptedInAt *time.Time
	UpdatedAt time.Time
}

// Contact is the minimal projection of the account system the broker needs
// for channel selection.
type Contact struct {
	UserID        uint64
	Phone         *string
	PhoneVerified bool
	Email         string
}
