package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chefsplan/backend/internal/models"
)

type ReputationRepo struct {
	pool *pgxpool.Pool
}

func NewReputationRepo(pool *pgxpool.Pool) *ReputationRepo {
	return &ReputationRepo{pool: pool}
}

// GetBySubject returns the aggregate record, or a zero-valued record for
// subjects that were never rated. Unseen addresses are not an error.
func (r *ReputationRepo) GetBySubject(ctx context.Context, subject models.Address) (*models.ReputationRecord, error) {
	var rec models.ReputationRecord
	err := r.pool.QueryRow(ctx, `
		SELECT subject, total_score, rating_count, average_rating, completed_count, updated_at
		FROM reputation WHERE subject = $1
	`, subject).Scan(&rec.Subject, &rec.TotalScore, &rec.RatingCount, &rec.AverageRating, &rec.CompletedCount, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.ReputationRecord{Subject: subject}, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ApplyRating folds one score into the aggregate, creating the record lazily.
// average_rating is total*100/count with integer truncation; the division
// happens in SQL so the stored value matches the documented rule exactly.
func (r *ReputationRepo) ApplyRating(ctx context.Context, tx pgx.Tx, subject models.Address, score int) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO reputation (subject, total_score, rating_count, average_rating, completed_count)
		VALUES ($1, $2, 1, $2 * 100, 0)
		ON CONFLICT (subject) DO UPDATE SET
			total_score    = reputation.total_score + EXCLUDED.total_score,
			rating_count   = reputation.rating_count + 1,
			average_rating = (reputation.total_score + EXCLUDED.total_score) * 100 / (reputation.rating_count + 1),
			updated_at     = now()
	`, subject, score)
	return err
}

func (r *ReputationRepo) AppendRating(ctx context.Context, tx pgx.Tx, rating *models.Rating) error {
	return tx.QueryRow(ctx, `
		INSERT INTO reputation_ratings (subject, rater, score, comment)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, rating.Subject, rating.Rater, rating.Score, rating.Comment).Scan(&rating.CreatedAt)
}

func (r *ReputationRepo) IncrementCompleted(ctx context.Context, tx pgx.Tx, subject models.Address) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO reputation (subject, total_score, rating_count, average_rating, completed_count)
		VALUES ($1, 0, 0, 0, 1)
		ON CONFLICT (subject) DO UPDATE SET
			completed_count = reputation.completed_count + 1,
			updated_at      = now()
	`, subject)
	return err
}

func (r *ReputationRepo) ListRatings(ctx context.Context, subject models.Address) ([]*models.Rating, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT subject, rater, score, comment, created_at
		FROM reputation_ratings WHERE subject = $1 ORDER BY created_at
	`, subject)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Rating
	for rows.Next() {
		var rt models.Rating
		if err := rows.Scan(&rt.Subject, &rt.Rater, &rt.Score, &rt.Comment, &rt.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &rt)
	}
	return list, rows.Err()
}

// Authorized-caller set for the mutating reputation operations.

func (r *ReputationRepo) IsAuthorized(ctx context.Context, caller models.Address) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM reputation_authorized WHERE address = $1)
	`, caller).Scan(&exists)
	return exists, err
}

func (r *ReputationRepo) AddAuthorized(ctx context.Context, addr models.Address) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reputation_authorized (address) VALUES ($1) ON CONFLICT DO NOTHING
	`, addr)
	return err
}

func (r *ReputationRepo) RemoveAuthorized(ctx context.Context, addr models.Address) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM reputation_authorized WHERE address = $1
	`, addr)
	return err
}
