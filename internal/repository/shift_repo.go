package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chefsplan/backend/internal/models"
)

// ErrNotFound is returned when a row lookup matches nothing.
var ErrNotFound = errors.New("record not found")

const shiftColumns = "id, poster, COALESCE(worker, ''), details_ref, payment_cents, status, start_time, end_time, created_at, updated_at"

type ShiftRepo struct {
	pool *pgxpool.Pool
}

func NewShiftRepo(pool *pgxpool.Pool) *ShiftRepo {
	return &ShiftRepo{pool: pool}
}

func (r *ShiftRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Create inserts the shift and fills in its allocated id and timestamps.
// Ids come from a BIGSERIAL so they are monotonic and never reused.
func (r *ShiftRepo) Create(ctx context.Context, s *models.Shift) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO shifts (poster, details_ref, payment_cents, status, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, s.Poster, s.DetailsRef, s.PaymentCents, s.Status, s.StartTime, s.EndTime).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (r *ShiftRepo) GetByID(ctx context.Context, id int64) (*models.Shift, error) {
	return scanShift(r.pool.QueryRow(ctx, `
		SELECT `+shiftColumns+` FROM shifts WHERE id = $1
	`, id))
}

// GetByIDForUpdate locks the shift row for the duration of the transaction so
// racing callers serialize on it.
func (r *ShiftRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Shift, error) {
	return scanShift(tx.QueryRow(ctx, `
		SELECT `+shiftColumns+` FROM shifts WHERE id = $1 FOR UPDATE
	`, id))
}

func (r *ShiftRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status string) error {
	_, err := tx.Exec(ctx, `
		UPDATE shifts SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	return err
}

// SetAccepted records the chosen worker and moves the shift to accepted in
// one statement.
func (r *ShiftRepo) SetAccepted(ctx context.Context, tx pgx.Tx, id int64, worker models.Address) error {
	_, err := tx.Exec(ctx, `
		UPDATE shifts SET worker = $2, status = $3, updated_at = now() WHERE id = $1
	`, id, worker, models.ShiftStatusAccepted)
	return err
}

func (r *ShiftRepo) AddApplication(ctx context.Context, tx pgx.Tx, a *models.Application) error {
	return tx.QueryRow(ctx, `
		INSERT INTO shift_applications (shift_id, applicant)
		VALUES ($1, $2)
		RETURNING applied_at
	`, a.ShiftID, a.Applicant).Scan(&a.AppliedAt)
}

func (r *ShiftRepo) HasApplied(ctx context.Context, tx pgx.Tx, shiftID int64, applicant models.Address) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM shift_applications WHERE shift_id = $1 AND applicant = $2)
	`, shiftID, applicant).Scan(&exists)
	return exists, err
}

func (r *ShiftRepo) ListApplications(ctx context.Context, shiftID int64) ([]*models.Application, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT shift_id, applicant, applied_at
		FROM shift_applications WHERE shift_id = $1 ORDER BY applied_at
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Application
	for rows.Next() {
		var a models.Application
		if err := rows.Scan(&a.ShiftID, &a.Applicant, &a.AppliedAt); err != nil {
			return nil, err
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}

// ListActive returns all shifts still open for applications.
func (r *ShiftRepo) ListActive(ctx context.Context) ([]*models.Shift, error) {
	return r.list(ctx, `
		SELECT `+shiftColumns+` FROM shifts
		WHERE status IN ($1, $2) ORDER BY start_time
	`, models.ShiftStatusPosted, models.ShiftStatusApplied)
}

func (r *ShiftRepo) ListByPoster(ctx context.Context, poster models.Address) ([]*models.Shift, error) {
	return r.list(ctx, `
		SELECT `+shiftColumns+` FROM shifts WHERE poster = $1 ORDER BY created_at DESC
	`, poster)
}

func (r *ShiftRepo) ListByWorker(ctx context.Context, worker models.Address) ([]*models.Shift, error) {
	return r.list(ctx, `
		SELECT `+shiftColumns+` FROM shifts WHERE worker = $1 ORDER BY created_at DESC
	`, worker)
}

func (r *ShiftRepo) list(ctx context.Context, query string, args ...any) ([]*models.Shift, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Shift
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func scanShift(row pgx.Row) (*models.Shift, error) {
	var s models.Shift
	err := row.Scan(&s.ID, &s.Poster, &s.Worker, &s.DetailsRef, &s.PaymentCents, &s.Status, &s.StartTime, &s.EndTime, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
