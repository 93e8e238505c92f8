// Package events carries lifecycle notifications to external subscribers.
// Emission is fire-and-forget: no acknowledgement is awaited, and publish
// failures are logged by the caller rather than propagated.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chefsplan/backend/internal/models"
)

// Event names, one per state transition.
const (
	ShiftPosted    = "shift.posted"
	ShiftApplied   = "shift.applied"
	ShiftAccepted  = "shift.accepted"
	ShiftCompleted = "shift.completed"
	ShiftConfirmed = "shift.confirmed"
	ShiftDisputed  = "shift.disputed"
	ShiftCancelled = "shift.cancelled"

	EscrowCreated            = "escrow.created"
	EscrowReleased           = "escrow.released"
	EscrowAutoReleased       = "escrow.auto_released"
	EscrowRefunded           = "escrow.refunded"
	EscrowDisputed           = "escrow.disputed"
	EscrowEmergencyWithdrawn = "escrow.emergency_withdrawn"
)

type Event struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	ShiftID      int64          `json:"shift_id"`
	Actor        models.Address `json:"actor,omitempty"`
	Counterparty models.Address `json:"counterparty,omitempty"`
	AmountCents  int64          `json:"amount_cents,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	EmittedAt    time.Time      `json:"emitted_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
