package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chefsplan/backend/internal/models"
)

const escrowColumns = "shift_id, poster, worker, amount_cents, status, created_at, release_deadline"

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

func (r *EscrowRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *EscrowRepo) Create(ctx context.Context, tx pgx.Tx, e *models.EscrowRecord) error {
	return tx.QueryRow(ctx, `
		INSERT INTO escrows (shift_id, poster, worker, amount_cents, status, created_at, release_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, e.ShiftID, e.Poster, e.Worker, e.AmountCents, e.Status, e.CreatedAt, e.ReleaseDeadline).Scan(&e.CreatedAt)
}

func (r *EscrowRepo) GetByShiftID(ctx context.Context, shiftID int64) (*models.EscrowRecord, error) {
	return scanEscrow(r.pool.QueryRow(ctx, `
		SELECT `+escrowColumns+` FROM escrows WHERE shift_id = $1
	`, shiftID))
}

func (r *EscrowRepo) GetByShiftIDForUpdate(ctx context.Context, tx pgx.Tx, shiftID int64) (*models.EscrowRecord, error) {
	return scanEscrow(tx.QueryRow(ctx, `
		SELECT `+escrowColumns+` FROM escrows WHERE shift_id = $1 FOR UPDATE
	`, shiftID))
}

func (r *EscrowRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, shiftID int64, status string) error {
	_, err := tx.Exec(ctx, `
		UPDATE escrows SET status = $2 WHERE shift_id = $1
	`, shiftID, status)
	return err
}

// ListExpiredActive returns shift ids of active escrows whose release
// deadline has passed, oldest first. Used by the sweep worker.
func (r *EscrowRepo) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT shift_id FROM escrows
		WHERE status = $1 AND release_deadline <= $2
		ORDER BY release_deadline LIMIT $3
	`, models.EscrowStatusActive, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanEscrow(row pgx.Row) (*models.EscrowRecord, error) {
	var e models.EscrowRecord
	err := row.Scan(&e.ShiftID, &e.Poster, &e.Worker, &e.AmountCents, &e.Status, &e.CreatedAt, &e.ReleaseDeadline)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
