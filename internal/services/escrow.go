package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
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

// VaultEscrowRepo is the escrow persistence interface the vault needs.
type VaultEscrowRepo interface {
	Create(ctx context.Context, tx pgx.Tx, e *models.EscrowRecord) error
	GetByShiftID(ctx context.Context, shiftID int64) (*models.EscrowRecord, error)
	GetByShiftIDForUpdate(ctx context.Context, tx pgx.Tx, shiftID int64) (*models.EscrowRecord, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, shiftID int64, status string) error
}

// VaultWalletRepo moves funds between party wallets.
type VaultWalletRepo interface {
	Add(ctx context.Context, tx pgx.Tx, addr models.Address, amountCents int64) (int64, error)
	Deduct(ctx context.Context, tx pgx.Tx, addr models.Address, amountCents int64) (int64, error)
}

// Vault owns fund custody per shift. Escrows are created only on instruction
// of the trusted shift ledger and unwound by release, refund, or the dispute
// plus emergency-withdraw path. Every fund movement shares the caller's
// transaction with the status update, so a failed transfer leaves no partial
// state behind. The vault never calls back into the shift ledger.
type Vault struct {
	escrows VaultEscrowRepo
	wallets VaultWalletRepo
	pub     events.Publisher
	met     *metrics.Metrics
	log     *slog.Logger

	mu            sync.RWMutex // guards trustedLedger, rewired at runtime by the admin
	trustedLedger models.Address

	admin          models.Address
	releaseWindow  time.Duration
	disputeCooling time.Duration
	now            func() time.Time
}

type VaultConfig struct {
	TrustedLedger  models.Address
	Admin          models.Address
	ReleaseWindow  time.Duration // defaults to 7 days
	DisputeCooling time.Duration // defaults to 3 days
	Now            func() time.Time
}

func NewVault(escrows VaultEscrowRepo, wallets VaultWalletRepo, pub events.Publisher, met *metrics.Metrics, log *slog.Logger, cfg VaultConfig) *Vault {
	if pub == nil {
		pub = events.Nop{}
	}
	if met == nil {
		met = metrics.New(prometheus.NewRegistry())
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.ReleaseWindow <= 0 {
		cfg.ReleaseWindow = 7 * 24 * time.Hour
	}
	if cfg.DisputeCooling <= 0 {
		cfg.DisputeCooling = 3 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Vault{
		escrows:        escrows,
		wallets:        wallets,
		pub:            pub,
		met:            met,
		log:            log,
		trustedLedger:  cfg.TrustedLedger,
		admin:          cfg.Admin,
		releaseWindow:  cfg.ReleaseWindow,
		disputeCooling: cfg.DisputeCooling,
		now:            cfg.Now,
	}
}

// TrustedLedger returns the principal currently allowed to direct the vault.
func (v *Vault) TrustedLedger() models.Address {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.trustedLedger
}

// SetTrustedLedger rewires which principal the vault obeys. Admin only.
func (v *Vault) SetTrustedLedger(caller, ledger models.Address) error {
	if caller != v.admin {
		return fault.New(fault.Forbidden, "only the admin may rewire the trusted ledger")
	}
	if ledger.IsZero() {
		return fault.New(fault.InvalidInput, "ledger address required")
	}
	v.mu.Lock()
	v.trustedLedger = ledger
	v.mu.Unlock()
	return nil
}

// CreateEscrow takes custody of fundsCents from the poster's wallet for one
// shift. The poster is passed explicitly by the orchestrating ledger rather
// than inferred from any ambient caller. At most one escrow ever exists per
// shift.
func (v *Vault) CreateEscrow(ctx context.Context, tx pgx.Tx, caller, poster models.Address, shiftID int64, worker models.Address, amountCents, fundsCents int64) error {
	if caller != v.TrustedLedger() {
		return fault.Newf(fault.Forbidden, "caller %s is not the trusted shift ledger", caller)
	}
	if _, err := v.escrows.GetByShiftIDForUpdate(ctx, tx, shiftID); err == nil {
		return fault.Newf(fault.AlreadyExists, "escrow for shift %d already exists", shiftID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if worker.IsZero() {
		return fault.New(fault.InvalidInput, "worker address required")
	}
	if amountCents <= 0 {
		return fault.New(fault.InvalidInput, "escrow amount must be positive")
	}
	if fundsCents != amountCents {
		return fault.Newf(fault.InvalidInput, "attached funds %d do not match escrow amount %d", fundsCents, amountCents)
	}
	if _, err := v.wallets.Deduct(ctx, tx, poster, fundsCents); err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return fault.Newf(fault.TransferFailed, "poster %s cannot fund escrow of %d", poster, fundsCents)
		}
		return err
	}
	now := v.now()
	rec := &models.EscrowRecord{
		ShiftID:         shiftID,
		Poster:          poster,
		Worker:          worker,
		AmountCents:     amountCents,
		Status:          models.EscrowStatusActive,
		CreatedAt:       now,
		ReleaseDeadline: now.Add(v.releaseWindow),
	}
	if err := v.escrows.Create(ctx, tx, rec); err != nil {
		return err
	}
	v.met.EscrowTransition(events.EscrowCreated)
	v.emit(ctx, events.Event{
		Name:         events.EscrowCreated,
		ShiftID:      shiftID,
		Actor:        poster,
		Counterparty: worker,
		AmountCents:  amountCents,
	})
	return nil
}

// Release pays the escrowed amount out to the worker. Restricted to the
// trusted ledger; the public timeout path is AutoRelease.
func (v *Vault) Release(ctx context.Context, tx pgx.Tx, caller models.Address, shiftID int64) error {
	if caller != v.TrustedLedger() {
		return fault.Newf(fault.Forbidden, "caller %s is not the trusted shift ledger", caller)
	}
	rec, err := v.activeForUpdate(ctx, tx, shiftID)
	if err != nil {
		return err
	}
	return v.releaseFunds(ctx, tx, rec, events.EscrowReleased)
}

// AutoRelease is open to any caller once the release deadline has passed.
func (v *Vault) AutoRelease(ctx context.Context, tx pgx.Tx, caller models.Address, shiftID int64) error {
	rec, err := v.activeForUpdate(ctx, tx, shiftID)
	if err != nil {
		return err
	}
	if v.now().Before(rec.ReleaseDeadline) {
		return fault.Newf(fault.TooEarly, "escrow for shift %d releases at %s", shiftID, rec.ReleaseDeadline.UTC().Format(time.RFC3339))
	}
	v.log.Info("auto-releasing escrow", "shift_id", shiftID, "caller", caller)
	return v.releaseFunds(ctx, tx, rec, events.EscrowAutoReleased)
}

// Refund returns the escrowed amount to the poster. Restricted caller.
func (v *Vault) Refund(ctx context.Context, tx pgx.Tx, caller models.Address, shiftID int64) error {
	if caller != v.TrustedLedger() {
		return fault.Newf(fault.Forbidden, "caller %s is not the trusted shift ledger", caller)
	}
	rec, err := v.activeForUpdate(ctx, tx, shiftID)
	if err != nil {
		return err
	}
	return v.refundFunds(ctx, tx, rec, events.EscrowRefunded)
}

// Dispute freezes an active escrow. The vault re-validates the caller against
// its own record instead of trusting the orchestrator: only the poster or
// worker of this escrow may dispute. No funds move.
func (v *Vault) Dispute(ctx context.Context, tx pgx.Tx, caller models.Address, shiftID int64, reason string) error {
	rec, err := v.activeForUpdate(ctx, tx, shiftID)
	if err != nil {
		return err
	}
	if caller != rec.Poster && caller != rec.Worker {
		return fault.Newf(fault.Forbidden, "caller %s is not a party to escrow for shift %d", caller, shiftID)
	}
	if err := v.escrows.UpdateStatus(ctx, tx, shiftID, models.EscrowStatusDisputed); err != nil {
		return err
	}
	v.met.EscrowTransition(events.EscrowDisputed)
	v.emit(ctx, events.Event{
		Name:    events.EscrowDisputed,
		ShiftID: shiftID,
		Actor:   caller,
		Reason:  reason,
	})
	return nil
}

// EmergencyWithdraw refunds a disputed escrow to the poster after the cooling
// period. This is the only path that resolves a dispute; the judgment itself
// happens out of band before the admin calls this.
func (v *Vault) EmergencyWithdraw(ctx context.Context, tx pgx.Tx, caller models.Address, shiftID int64) error {
	if caller != v.admin {
		return fault.Newf(fault.Forbidden, "caller %s is not the vault admin", caller)
	}
	rec, err := v.escrows.GetByShiftIDForUpdate(ctx, tx, shiftID)
	if errors.Is(err, repository.ErrNotFound) {
		return fault.Newf(fault.NotFound, "no escrow for shift %d", shiftID)
	}
	if err != nil {
		return err
	}
	if rec.Status != models.EscrowStatusDisputed {
		return fault.Newf(fault.InvalidState, "escrow for shift %d is %s, not disputed", shiftID, rec.Status)
	}
	if cooled := rec.CreatedAt.Add(v.disputeCooling); v.now().Before(cooled) {
		return fault.Newf(fault.TooEarly, "emergency withdrawal for shift %d opens at %s", shiftID, cooled.UTC().Format(time.RFC3339))
	}
	return v.refundFunds(ctx, tx, rec, events.EscrowEmergencyWithdrawn)
}

// GetEscrow is a pure read.
func (v *Vault) GetEscrow(ctx context.Context, shiftID int64) (*models.EscrowRecord, error) {
	rec, err := v.escrows.GetByShiftID(ctx, shiftID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fault.Newf(fault.NotFound, "no escrow for shift %d", shiftID)
	}
	return rec, err
}

func (v *Vault) activeForUpdate(ctx context.Context, tx pgx.Tx, shiftID int64) (*models.EscrowRecord, error) {
	rec, err := v.escrows.GetByShiftIDForUpdate(ctx, tx, shiftID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fault.Newf(fault.NotFound, "no escrow for shift %d", shiftID)
	}
	if err != nil {
		return nil, err
	}
	if rec.Status != models.EscrowStatusActive {
		return nil, fault.Newf(fault.InvalidState, "escrow for shift %d is %s, not active", shiftID, rec.Status)
	}
	return rec, nil
}

// releaseFunds credits the worker and marks the record released. The wallet
// credit and the status update ride the same transaction.
func (v *Vault) releaseFunds(ctx context.Context, tx pgx.Tx, rec *models.EscrowRecord, event string) error {
	if _, err := v.wallets.Add(ctx, tx, rec.Worker, rec.AmountCents); err != nil {
		return fault.Newf(fault.TransferFailed, "transfer of %d to worker %s failed: %v", rec.AmountCents, rec.Worker, err)
	}
	if err := v.escrows.UpdateStatus(ctx, tx, rec.ShiftID, models.EscrowStatusReleased); err != nil {
		return err
	}
	v.met.EscrowTransition(event)
	v.emit(ctx, events.Event{
		Name:         event,
		ShiftID:      rec.ShiftID,
		Actor:        rec.Worker,
		Counterparty: rec.Poster,
		AmountCents:  rec.AmountCents,
	})
	return nil
}

func (v *Vault) refundFunds(ctx context.Context, tx pgx.Tx, rec *models.EscrowRecord, event string) error {
	if _, err := v.wallets.Add(ctx, tx, rec.Poster, rec.AmountCents); err != nil {
		return fault.Newf(fault.TransferFailed, "refund of %d to poster %s failed: %v", rec.AmountCents, rec.Poster, err)
	}
	if err := v.escrows.UpdateStatus(ctx, tx, rec.ShiftID, models.EscrowStatusRefunded); err != nil {
		return err
	}
	v.met.EscrowTransition(event)
	v.emit(ctx, events.Event{
		Name:         event,
		ShiftID:      rec.ShiftID,
		Actor:        rec.Poster,
		Counterparty: rec.Worker,
		AmountCents:  rec.AmountCents,
	})
	return nil
}

func (v *Vault) emit(ctx context.Context, ev events.Event) {
	ev.ID = uuid.New()
	ev.EmittedAt = v.now()
	if err := v.pub.Publish(ctx, ev); err != nil {
		v.log.Warn("event publish failed", "event", ev.Name, "shift_id", ev.ShiftID, "error", err)
	}
}
