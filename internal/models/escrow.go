package models

import "time"

// Escrow statuses. Active is the only status from which funds move.
const (
	EscrowStatusActive   = "active"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
	EscrowStatusDisputed = "disputed"
)

// EscrowRecord holds custody state for one accepted shift. At most one record
// ever exists per shift; poster, worker and amount are copied at creation and
// immutable afterwards.
type EscrowRecord struct {
	ShiftID         int64     `json:"shift_id"`
	Poster          Address   `json:"poster"`
	Worker          Address   `json:"worker"`
	AmountCents     int64     `json:"amount_cents"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	ReleaseDeadline time.Time `json:"release_deadline"` // past this, anyone may trigger release
}
