package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chefsplan/backend/internal/events"
	"github.com/chefsplan/backend/internal/fault"
	"github.com/chefsplan/backend/internal/metrics"
	"github.com/chefsplan/backend/internal/models"
	"github.com/chefsplan/backend/internal/repository"
)

// Every confirmed completion records this score for both parties. The
// aggregate is therefore a completion signal more than a quality signal.
const confirmationScore = 5

const confirmationComment = "shift completed"

// ShiftStore is the shift persistence interface the ledger needs. The ledger
// begins the transaction for every mutating operation; downstream vault and
// reputation writes ride the same transaction, so a failure anywhere rolls
// the whole operation back.
type ShiftStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, s *models.Shift) error
	GetByID(ctx context.Context, id int64) (*models.Shift, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Shift, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status string) error
	SetAccepted(ctx context.Context, tx pgx.Tx, id int64, worker models.Address) error
	AddApplication(ctx context.Context, tx pgx.Tx, a *models.Application) error
	HasApplied(ctx context.Context, tx pgx.Tx, shiftID int64, applicant models.Address) (bool, error)
	ListApplications(ctx context.Context, shiftID int64) ([]*models.Application, error)
	ListActive(ctx context.Context) ([]*models.Shift, error)
	ListByPoster(ctx context.Context, poster models.Address) ([]*models.Shift, error)
	ListByWorker(ctx context.Context, worker models.Address) ([]*models.Shift, error)
}

// EscrowVault is the custody capability the shift ledger depends on.
type EscrowVault interface {
	CreateEscrow(ctx context.Context, tx pgx.Tx, caller, poster models.Address, shiftID int64, worker models.Address, amountCents, fundsCents int64) error
	Release(ctx context.Context, tx pgx.Tx, caller models.Address, shiftID int64) error
	Dispute(ctx context.Context, tx pgx.Tx, caller models.Address, shiftID int64, reason string) error
}

// ReputationRecorder feeds completed transactions into the reputation ledger.
type ReputationRecorder interface {
	RecordRating(ctx context.Context, tx pgx.Tx, caller, rater, subject models.Address, score int, comment string) error
	IncrementCompleted(ctx context.Context, tx pgx.Tx, caller, subject models.Address) error
}

// ShiftLedger owns the shift lifecycle and is the single entry point for all
// party-facing actions. It directs the vault and the reputation ledger;
// neither ever calls back, so the dependency order stays one-directional.
type ShiftLedger struct {
	shifts     ShiftStore
	vault      EscrowVault
	reputation ReputationRecorder
	pub        events.Publisher
	met        *metrics.Metrics
	log        *slog.Logger

	self            models.Address // principal presented to the vault and reputation ledger
	minPaymentCents int64
	applyCutoff     time.Duration
	maxDuration     time.Duration
	now             func() time.Time
}

type ShiftLedgerConfig struct {
	Self            models.Address
	MinPaymentCents int64
	ApplyCutoff     time.Duration // defaults to 1 hour
	MaxDuration     time.Duration // defaults to 12 hours
	Now             func() time.Time
}

func NewShiftLedger(shifts ShiftStore, vault EscrowVault, reputation ReputationRecorder, pub events.Publisher, met *metrics.Metrics, log *slog.Logger, cfg ShiftLedgerConfig) *ShiftLedger {
	if pub == nil {
		pub = events.Nop{}
	}
	if met == nil {
		met = metrics.New(prometheus.NewRegistry())
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.ApplyCutoff <= 0 {
		cfg.ApplyCutoff = time.Hour
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 12 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ShiftLedger{
		shifts:          shifts,
		vault:           vault,
		reputation:      reputation,
		pub:             pub,
		met:             met,
		log:             log,
		self:            cfg.Self,
		minPaymentCents: cfg.MinPaymentCents,
		applyCutoff:     cfg.ApplyCutoff,
		maxDuration:     cfg.MaxDuration,
		now:             cfg.Now,
	}
}

// PostShift creates a new shift owned by the caller.
func (s *ShiftLedger) PostShift(ctx context.Context, caller models.Address, detailsRef string, paymentCents int64, startTime, endTime time.Time) (*models.Shift, error) {
	if caller.IsZero() {
		return nil, fault.New(fault.InvalidInput, "poster address required")
	}
	if detailsRef == "" {
		return nil, fault.New(fault.InvalidInput, "details_ref required")
	}
	if paymentCents < s.minPaymentCents {
		return nil, fault.Newf(fault.InvalidInput, "payment %d below minimum %d", paymentCents, s.minPaymentCents)
	}
	now := s.now()
	if !startTime.After(now) {
		return nil, fault.New(fault.InvalidInput, "start_time must be in the future")
	}
	if !endTime.After(startTime) {
		return nil, fault.New(fault.InvalidInput, "end_time must be after start_time")
	}
	if endTime.Sub(startTime) > s.maxDuration {
		return nil, fault.Newf(fault.InvalidInput, "shift duration exceeds maximum of %s", s.maxDuration)
	}
	shift := &models.Shift{
		Poster:       caller,
		DetailsRef:   detailsRef,
		PaymentCents: paymentCents,
		Status:       models.ShiftStatusPosted,
		StartTime:    startTime,
		EndTime:      endTime,
	}
	if err := s.shifts.Create(ctx, shift); err != nil {
		return nil, err
	}
	s.met.ShiftTransition(events.ShiftPosted)
	s.emit(ctx, events.Event{
		Name:        events.ShiftPosted,
		ShiftID:     shift.ID,
		Actor:       caller,
		AmountCents: paymentCents,
	})
	return shift, nil
}

// ApplyToShift records the caller's interest. The first application moves the
// shift from posted to applied; the applicant set never shrinks.
func (s *ShiftLedger) ApplyToShift(ctx context.Context, caller models.Address, shiftID int64) error {
	tx, err := s.shifts.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	shift, err := s.shifts.GetByIDForUpdate(ctx, tx, shiftID)
	if err != nil {
		return s.notFoundOr(err, shiftID)
	}
	if shift.Status != models.ShiftStatusPosted && shift.Status != models.ShiftStatusApplied {
		return fault.Newf(fault.InvalidState, "shift %d is %s, not open for applications", shiftID, shift.Status)
	}
	if caller == shift.Poster {
		return fault.Newf(fault.Forbidden, "poster cannot apply to own shift %d", shiftID)
	}
	if cutoff := shift.StartTime.Add(-s.applyCutoff); !s.now().Before(cutoff) {
		return fault.Newf(fault.WindowClosed, "applications for shift %d closed at %s", shiftID, cutoff.UTC().Format(time.RFC3339))
	}
	applied, err := s.shifts.HasApplied(ctx, tx, shiftID, caller)
	if err != nil {
		return err
	}
	if applied {
		return fault.Newf(fault.Duplicate, "%s already applied to shift %d", caller, shiftID)
	}
	if err := s.shifts.AddApplication(ctx, tx, &models.Application{ShiftID: shiftID, Applicant: caller}); err != nil {
		return err
	}
	if shift.Status == models.ShiftStatusPosted {
		if err := s.shifts.UpdateStatus(ctx, tx, shiftID, models.ShiftStatusApplied); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.met.ShiftTransition(events.ShiftApplied)
	s.emit(ctx, events.Event{
		Name:         events.ShiftApplied,
		ShiftID:      shiftID,
		Actor:        caller,
		Counterparty: shift.Poster,
	})
	return nil
}

// AcceptApplication picks one applicant as the worker and escrows the
// payment in the same transaction. If escrow creation fails for any reason,
// no part of the acceptance persists.
func (s *ShiftLedger) AcceptApplication(ctx context.Context, caller models.Address, shiftID int64, worker models.Address, fundsCents int64) error {
	tx, err := s.shifts.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	shift, err := s.shifts.GetByIDForUpdate(ctx, tx, shiftID)
	if err != nil {
		return s.notFoundOr(err, shiftID)
	}
	if caller != shift.Poster {
		return fault.Newf(fault.Forbidden, "only the poster may accept applications for shift %d", shiftID)
	}
	if shift.Status != models.ShiftStatusApplied {
		return fault.Newf(fault.InvalidState, "shift %d is %s, not applied", shiftID, shift.Status)
	}
	if worker.IsZero() {
		return fault.Newf(fault.NotApplied, "worker address required for shift %d", shiftID)
	}
	applied, err := s.shifts.HasApplied(ctx, tx, shiftID, worker)
	if err != nil {
		return err
	}
	if !applied {
		return fault.Newf(fault.NotApplied, "%s has not applied to shift %d", worker, shiftID)
	}
	if fundsCents != shift.PaymentCents {
		return fault.Newf(fault.PaymentMismatch, "shift %d requires %d, got %d", shiftID, shift.PaymentCents, fundsCents)
	}
	if err := s.vault.CreateEscrow(ctx, tx, s.self, shift.Poster, shiftID, worker, shift.PaymentCents, fundsCents); err != nil {
		return err
	}
	if err := s.shifts.SetAccepted(ctx, tx, shiftID, worker); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.met.ShiftTransition(events.ShiftAccepted)
	s.emit(ctx, events.Event{
		Name:         events.ShiftAccepted,
		ShiftID:      shiftID,
		Actor:        shift.Poster,
		Counterparty: worker,
		AmountCents:  shift.PaymentCents,
	})
	return nil
}

// MarkComplete is the worker's claim that the shift was worked. Valid from
// the shift's end time onward; confirmation and payment stay separate so the
// poster keeps a chance to dispute.
func (s *ShiftLedger) MarkComplete(ctx context.Context, caller models.Address, shiftID int64) error {
	tx, err := s.shifts.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	shift, err := s.shifts.GetByIDForUpdate(ctx, tx, shiftID)
	if err != nil {
		return s.notFoundOr(err, shiftID)
	}
	if caller != shift.Worker {
		return fault.Newf(fault.Forbidden, "only the accepted worker may mark shift %d complete", shiftID)
	}
	if shift.Status != models.ShiftStatusAccepted {
		return fault.Newf(fault.InvalidState, "shift %d is %s, not accepted", shiftID, shift.Status)
	}
	if s.now().Before(shift.EndTime) {
		return fault.Newf(fault.TooEarly, "shift %d ends at %s", shiftID, shift.EndTime.UTC().Format(time.RFC3339))
	}
	if err := s.shifts.UpdateStatus(ctx, tx, shiftID, models.ShiftStatusCompleted); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.met.ShiftTransition(events.ShiftCompleted)
	s.emit(ctx, events.Event{
		Name:         events.ShiftCompleted,
		ShiftID:      shiftID,
		Actor:        caller,
		Counterparty: shift.Poster,
	})
	return nil
}

// ConfirmCompletion releases the escrow to the worker and records the
// automatic mutual rating plus completion counters. Escrow release, ratings
// and counters are one atomic unit.
func (s *ShiftLedger) ConfirmCompletion(ctx context.Context, caller models.Address, shiftID int64) error {
	tx, err := s.shifts.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	shift, err := s.shifts.GetByIDForUpdate(ctx, tx, shiftID)
	if err != nil {
		return s.notFoundOr(err, shiftID)
	}
	if caller != shift.Poster {
		return fault.Newf(fault.Forbidden, "only the poster may confirm shift %d", shiftID)
	}
	if shift.Status != models.ShiftStatusCompleted {
		return fault.Newf(fault.InvalidState, "shift %d is %s, not completed", shiftID, shift.Status)
	}
	if err := s.vault.Release(ctx, tx, s.self, shiftID); err != nil {
		return err
	}
	if err := s.reputation.RecordRating(ctx, tx, s.self, shift.Poster, shift.Worker, confirmationScore, confirmationComment); err != nil {
		return err
	}
	if err := s.reputation.RecordRating(ctx, tx, s.self, shift.Worker, shift.Poster, confirmationScore, confirmationComment); err != nil {
		return err
	}
	if err := s.reputation.IncrementCompleted(ctx, tx, s.self, shift.Worker); err != nil {
		return err
	}
	if err := s.reputation.IncrementCompleted(ctx, tx, s.self, shift.Poster); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.met.ShiftTransition(events.ShiftConfirmed)
	s.emit(ctx, events.Event{
		Name:         events.ShiftConfirmed,
		ShiftID:      shiftID,
		Actor:        shift.Poster,
		Counterparty: shift.Worker,
		AmountCents:  shift.PaymentCents,
	})
	return nil
}

// DisputeShift freezes the shift and its escrow. Either party may dispute an
// accepted or completed shift; the vault re-validates the caller against its
// own record.
func (s *ShiftLedger) DisputeShift(ctx context.Context, caller models.Address, shiftID int64, reason string) error {
	tx, err := s.shifts.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	shift, err := s.shifts.GetByIDForUpdate(ctx, tx, shiftID)
	if err != nil {
		return s.notFoundOr(err, shiftID)
	}
	if caller != shift.Poster && caller != shift.Worker {
		return fault.Newf(fault.Forbidden, "only the poster or worker may dispute shift %d", shiftID)
	}
	if shift.Status != models.ShiftStatusAccepted && shift.Status != models.ShiftStatusCompleted {
		return fault.Newf(fault.InvalidState, "shift %d is %s, not accepted or completed", shiftID, shift.Status)
	}
	if err := s.shifts.UpdateStatus(ctx, tx, shiftID, models.ShiftStatusDisputed); err != nil {
		return err
	}
	if err := s.vault.Dispute(ctx, tx, caller, shiftID, reason); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.met.ShiftTransition(events.ShiftDisputed)
	s.emit(ctx, events.Event{
		Name:    events.ShiftDisputed,
		ShiftID: shiftID,
		Actor:   caller,
		Reason:  reason,
	})
	return nil
}

// CancelShift withdraws a shift before any acceptance. Accepted shifts can
// only be disputed; applications stay recorded for audit.
func (s *ShiftLedger) CancelShift(ctx context.Context, caller models.Address, shiftID int64, reason string) error {
	tx, err := s.shifts.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	shift, err := s.shifts.GetByIDForUpdate(ctx, tx, shiftID)
	if err != nil {
		return s.notFoundOr(err, shiftID)
	}
	if caller != shift.Poster {
		return fault.Newf(fault.Forbidden, "only the poster may cancel shift %d", shiftID)
	}
	if shift.Status != models.ShiftStatusPosted && shift.Status != models.ShiftStatusApplied {
		return fault.Newf(fault.InvalidState, "shift %d is %s and can no longer be cancelled", shiftID, shift.Status)
	}
	if err := s.shifts.UpdateStatus(ctx, tx, shiftID, models.ShiftStatusCancelled); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.met.ShiftTransition(events.ShiftCancelled)
	s.emit(ctx, events.Event{
		Name:    events.ShiftCancelled,
		ShiftID: shiftID,
		Actor:   caller,
		Reason:  reason,
	})
	return nil
}

// GetShift is a pure read.
func (s *ShiftLedger) GetShift(ctx context.Context, shiftID int64) (*models.Shift, error) {
	shift, err := s.shifts.GetByID(ctx, shiftID)
	if err != nil {
		return nil, s.notFoundOr(err, shiftID)
	}
	return shift, nil
}

// GetApplications returns the applicant list for a known shift.
func (s *ShiftLedger) GetApplications(ctx context.Context, shiftID int64) ([]*models.Application, error) {
	if _, err := s.shifts.GetByID(ctx, shiftID); err != nil {
		return nil, s.notFoundOr(err, shiftID)
	}
	return s.shifts.ListApplications(ctx, shiftID)
}

// ListActive returns every shift still open for applications. Full scan;
// fine at expected scale.
func (s *ShiftLedger) ListActive(ctx context.Context) ([]*models.Shift, error) {
	return s.shifts.ListActive(ctx)
}

func (s *ShiftLedger) ListByPoster(ctx context.Context, poster models.Address) ([]*models.Shift, error) {
	return s.shifts.ListByPoster(ctx, poster)
}

func (s *ShiftLedger) ListByWorker(ctx context.Context, worker models.Address) ([]*models.Shift, error) {
	return s.shifts.ListByWorker(ctx, worker)
}

func (s *ShiftLedger) notFoundOr(err error, shiftID int64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fault.Newf(fault.NotFound, "shift %d not found", shiftID)
	}
	return err
}

func (s *ShiftLedger) emit(ctx context.Context, ev events.Event) {
	ev.ID = uuid.New()
	ev.EmittedAt = s.now()
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn("event publish failed", "event", ev.Name, "shift_id", ev.ShiftID, "error", err)
	}
}
