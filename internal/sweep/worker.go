package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/riverqueue/river"

	"github.com/chefsplan/backend/internal/fault"
	"github.com/chefsplan/backend/internal/metrics"
	"github.com/chefsplan/backend/internal/models"
)

// How many overdue escrows one sweep run will release.
const batchSize = 100

type AutoReleaseArgs struct{}

func (AutoReleaseArgs) Kind() string { return "auto_release_sweep" }

// ExpiredLister finds active escrows whose release deadline has passed.
type ExpiredLister interface {
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

// Releaser is the vault capability the sweeper drives.
type Releaser interface {
	AutoRelease(ctx context.Context, tx pgx.Tx, caller models.Address, shiftID int64) error
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AutoReleaseWorker sweeps overdue escrows and releases each in its own
// transaction, so one failing escrow never blocks the rest of the batch.
// AutoRelease is open to any caller, so the sweeper holds no privilege the
// parties themselves lack.
type AutoReleaseWorker struct {
	river.WorkerDefaults[AutoReleaseArgs]
	pool    TxBeginner
	escrows ExpiredLister
	vault   Releaser
	met     *metrics.Metrics
	log     *slog.Logger
	self    models.Address
	now     func() time.Time
}

func NewAutoReleaseWorker(pool TxBeginner, escrows ExpiredLister, vault Releaser, met *metrics.Metrics, log *slog.Logger, self models.Address) *AutoReleaseWorker {
	if met == nil {
		met = metrics.New(prometheus.NewRegistry())
	}
	if log == nil {
		log = slog.Default()
	}
	return &AutoReleaseWorker{
		pool:    pool,
		escrows: escrows,
		vault:   vault,
		met:     met,
		log:     log,
		self:    self,
		now:     time.Now,
	}
}

func (w *AutoReleaseWorker) Work(ctx context.Context, _ *river.Job[AutoReleaseArgs]) error {
	released, err := w.Sweep(ctx)
	if err != nil {
		return err
	}
	if released > 0 {
		w.log.Info("auto-release sweep done", "released", released)
	}
	return nil
}

// Sweep releases every overdue active escrow it can and returns how many it
// released. Per-escrow failures are logged and counted, not returned: a
// concurrent confirm or dispute between listing and releasing is normal.
func (w *AutoReleaseWorker) Sweep(ctx context.Context) (int, error) {
	ids, err := w.escrows.ListExpiredActive(ctx, w.now(), batchSize)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, id := range ids {
		if err := w.releaseOne(ctx, id); err != nil {
			if fault.KindOf(err) == "" {
				w.log.Error("auto-release failed", "shift_id", id, "error", err)
			} else {
				w.log.Info("escrow no longer eligible", "shift_id", id, "error", err)
			}
			w.met.SweepFailures.Inc()
			continue
		}
		w.met.SweepReleases.Inc()
		released++
	}
	return released, nil
}

func (w *AutoReleaseWorker) releaseOne(ctx context.Context, shiftID int64) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := w.vault.AutoRelease(ctx, tx, w.self, shiftID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
