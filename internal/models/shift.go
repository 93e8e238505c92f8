package models

import "time"

// Shift lifecycle statuses. Transitions happen only through the shift ledger:
// posted -> applied -> accepted -> completed, with cancelled reachable from
// posted/applied and disputed from accepted/completed. Both cancelled and
// disputed are terminal for this ledger; dispute resolution lives in the
// escrow vault.
const (
	ShiftStatusPosted    = "posted"
	ShiftStatusApplied   = "applied"
	ShiftStatusAccepted  = "accepted"
	ShiftStatusCompleted = "completed"
	ShiftStatusCancelled = "cancelled"
	ShiftStatusDisputed  = "disputed"
)

type Shift struct {
	ID           int64     `json:"id"`
	Poster       Address   `json:"poster"`
	Worker       Address   `json:"worker,omitempty"` // set on acceptance, never cleared
	DetailsRef   string    `json:"details_ref"`      // opaque content identifier, not interpreted
	PaymentCents int64     `json:"payment_cents"`
	Status       string    `json:"status"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Application records a worker's interest in a shift. Applications are
// append-only and stay recorded for audit even after cancellation.
type Application struct {
	ShiftID   int64     `json:"shift_id"`
	Applicant Address   `json:"applicant"`
	AppliedAt time.Time `json:"applied_at"`
}
